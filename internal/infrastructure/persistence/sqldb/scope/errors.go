package scope

import "errors"

var (
	// ErrNoActiveConnection means Connection was called outside RunScoped.
	// It is a wiring bug, not a runtime condition.
	ErrNoActiveConnection = errors.New("no active connection in context")
	// ErrScopeClosed means a context outlived the scope that produced it.
	ErrScopeClosed = errors.New("connection scope already closed")
)

// AcquireError wraps the pool's failure to hand out a connection.
type AcquireError struct {
	Err error
}

func (e *AcquireError) Error() string { return "acquire connection: " + e.Err.Error() }
func (e *AcquireError) Unwrap() error { return e.Err }
