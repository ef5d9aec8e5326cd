package errs

import "errors"

// Kind classifies an error for callers at the usecase boundary.
type Kind uint8

const (
	KindUnexpected Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

// Error carries a Kind on top of an optional cause.
// Msg is what presentation layers may show; the cause stays in the chain for logs.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func NotFound(err error) error {
	return &Error{Kind: KindNotFound, Err: err}
}

func Conflict(err error) error {
	return &Error{Kind: KindConflict, Err: err}
}

// Unexpected marks err as an infrastructure fault. Messages from the cause are
// not meant for end users.
func Unexpected(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindUnexpected, Msg: "unexpected error", Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain.
// Errors without a kind are unexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "unexpected error"
	}
	if e.Kind == KindUnexpected {
		return "unexpected error"
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}
