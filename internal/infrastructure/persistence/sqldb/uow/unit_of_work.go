package uow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"todoapi/internal/bootstrap/logging"
	"todoapi/internal/errs"
	"todoapi/internal/infrastructure/persistence/sqldb/scope"
	"todoapi/internal/ports"
)

// RollbackError is returned when ROLLBACK itself fails after fn failed.
// Both causes stay reachable through errors.Is and errors.As.
type RollbackError struct {
	Rollback error
	Cause    error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback failed: %v (after: %v)", e.Rollback, e.Cause)
}

func (e *RollbackError) Unwrap() []error { return []error{e.Rollback, e.Cause} }

// UnitOfWork implements ports.UnitOfWork with explicit BEGIN/COMMIT/ROLLBACK
// on the scope's connection.
type UnitOfWork struct {
	provider *scope.Provider
}

var _ ports.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(provider *scope.Provider) *UnitOfWork {
	return &UnitOfWork{provider: provider}
}

// txState marks the call chain that owns an open transaction. Only contexts
// derived from the owner's fn carry it.
type txState struct {
	scope *scope.Scope
	open  atomic.Bool
}

type txKey struct{}

func ownedTx(ctx context.Context, s *scope.Scope) bool {
	st, ok := ctx.Value(txKey{}).(*txState)
	return ok && st.scope == s && st.open.Load()
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if fn == nil {
		return errors.New("unit of work func is required")
	}
	if u == nil || u.provider == nil {
		return errs.Unexpected(errors.New("unit of work is not configured"))
	}

	err := u.provider.RunScoped(ctx, func(ctx context.Context) error {
		s, _ := scope.FromContext(ctx)
		if ownedTx(ctx, s) {
			return fn(ctx)
		}
		return u.run(ctx, s, fn)
	})

	// RunScoped returns the acquire failure without a kind; fn never ran.
	var (
		acquireErr *scope.AcquireError
		kinded     *errs.Error
	)
	if errors.As(err, &acquireErr) && !errors.As(err, &kinded) {
		return errs.Unexpected(err)
	}
	return err
}

func (u *UnitOfWork) run(ctx context.Context, s *scope.Scope, fn func(ctx context.Context) error) (err error) {
	ctx = logging.WithAttrs(ctx, slog.String("component", "uow"))
	metrics := u.provider.Metrics()

	if err := s.LockTransaction(ctx); err != nil {
		metrics.ObserveTransaction(scope.OutcomeBeginFailed)
		return errs.Unexpected(errs.Wrap(err, "begin transaction"))
	}
	defer s.UnlockTransaction()

	if err := u.exec(ctx, "BEGIN"); err != nil {
		metrics.ObserveTransaction(scope.OutcomeBeginFailed)
		return errs.Unexpected(errs.Wrap(err, "begin transaction"))
	}
	s.SetTransaction(true)
	logging.Debug(ctx, "transaction started")

	st := &txState{scope: s}
	st.open.Store(true)
	defer st.open.Store(false)
	txCtx := context.WithValue(ctx, txKey{}, st)

	defer func() {
		if r := recover(); r != nil {
			if rbErr := u.rollback(ctx, s); rbErr != nil {
				logging.Error(ctx, "rollback after panic failed", slog.Any("err", errs.Loggable(rbErr)))
			}
			panic(r)
		}
	}()

	if fnErr := fn(txCtx); fnErr != nil {
		if rbErr := u.rollback(ctx, s); rbErr != nil {
			metrics.ObserveTransaction(scope.OutcomeRollbackFailed)
			logging.Error(ctx, "rollback failed",
				slog.Any("err", errs.Loggable(rbErr)),
				slog.Any("cause", errs.Loggable(fnErr)),
			)
			return errs.Unexpected(&RollbackError{Rollback: rbErr, Cause: fnErr})
		}
		metrics.ObserveTransaction(scope.OutcomeRollback)
		logging.Debug(ctx, "transaction rolled back")
		return fnErr
	}

	if err := u.exec(ctx, "COMMIT"); err != nil {
		metrics.ObserveTransaction(scope.OutcomeCommitFailed)
		// The transaction may still be open; end it before anyone else
		// in the scope can BEGIN.
		if rbErr := u.rollback(ctx, s); rbErr != nil {
			logging.Error(ctx, "rollback after failed commit failed",
				slog.Any("err", errs.Loggable(rbErr)),
				slog.Any("cause", errs.Loggable(err)),
			)
		}
		return errs.Unexpected(errs.Wrap(err, "commit transaction"))
	}
	s.SetTransaction(false)
	metrics.ObserveTransaction(scope.OutcomeCommit)
	logging.Debug(ctx, "transaction committed")
	return nil
}

// rollback runs without cancellation so a cancelled caller still ends the
// transaction. The scope leaves transaction state either way; a connection
// whose ROLLBACK failed is discarded at teardown.
func (u *UnitOfWork) rollback(ctx context.Context, s *scope.Scope) error {
	err := u.exec(context.WithoutCancel(ctx), "ROLLBACK")
	if err != nil {
		s.Discard()
	}
	s.SetTransaction(false)
	return err
}

func (u *UnitOfWork) exec(ctx context.Context, stmt string) error {
	g, err := u.provider.Connection(ctx)
	if err != nil {
		return err
	}
	defer g.Release()
	return g.DB(ctx).Exec(stmt).Error
}
