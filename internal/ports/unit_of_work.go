package ports

import "context"

// UnitOfWork defines a transaction boundary.
//
// This is intentionally callback-style: returning an error causes rollback,
// returning nil causes commit. The connection travels in ctx, so fn must use
// the context it is given. Calling WithTx inside fn joins the running
// transaction instead of starting a new one.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RunInTx runs fn in a unit of work and returns its value when the
// transaction commits.
func RunInTx[T any](ctx context.Context, uow UnitOfWork, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := uow.WithTx(ctx, func(txCtx context.Context) error {
		v, err := fn(txCtx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
