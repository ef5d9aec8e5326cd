// Package scope binds one pooled database connection to a context call chain.
//
// The first RunScoped on a chain checks a connection out of the pool and
// stores it in the derived context. Every call that receives that context,
// however deeply nested, reaches the same connection through Connection.
// Independent call chains never see each other's binding.
package scope

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"todoapi/internal/bootstrap/logging"
	"todoapi/internal/errs"
)

type scopeKey struct{}

// Scope is the per-operation binding of a checked-out connection.
type Scope struct {
	id     string
	conn   Conn
	gate   *semaphore.Weighted
	txLock *semaphore.Weighted
	closed atomic.Bool
	inTx   atomic.Bool
	broken atomic.Bool
}

func (s *Scope) ID() string { return s.id }

// InTransaction reports whether a unit of work has issued BEGIN on this
// scope's connection and not yet finished it.
func (s *Scope) InTransaction() bool { return s.inTx.Load() }

func (s *Scope) SetTransaction(open bool) { s.inTx.Store(open) }

func (s *Scope) Closed() bool { return s.closed.Load() }

// LockTransaction waits until no other unit of work owns a transaction on
// this scope. The owner holds the lock from BEGIN until COMMIT or ROLLBACK.
func (s *Scope) LockTransaction(ctx context.Context) error {
	if s.closed.Load() {
		return ErrScopeClosed
	}
	if err := s.txLock.Acquire(ctx, 1); err != nil {
		return errs.Wrap(err, "wait for scope transaction")
	}
	if s.closed.Load() {
		s.txLock.Release(1)
		return ErrScopeClosed
	}
	return nil
}

func (s *Scope) UnlockTransaction() { s.txLock.Release(1) }

// Discard marks the connection as unusable; teardown closes it instead of
// returning it to the pool.
func (s *Scope) Discard() { s.broken.Store(true) }

// Guard is exclusive access to the scope's connection. Release is idempotent.
type Guard struct {
	scope *Scope
	once  sync.Once
}

func (g *Guard) DB(ctx context.Context) *gorm.DB {
	return g.scope.conn.DB(ctx)
}

func (g *Guard) Scope() *Scope { return g.scope }

func (g *Guard) Release() {
	g.once.Do(func() {
		g.scope.gate.Release(1)
	})
}

// Provider opens scopes over a Pool.
type Provider struct {
	pool        Pool
	metrics     *Metrics
	outstanding atomic.Int64
}

func NewProvider(pool Pool, metrics *Metrics) *Provider {
	return &Provider{pool: pool, metrics: metrics}
}

func (p *Provider) Metrics() *Metrics { return p.metrics }

// Outstanding is the number of connections currently checked out by scopes
// this provider opened.
func (p *Provider) Outstanding() int64 { return p.outstanding.Load() }

func FromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}

func Active(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// RunScoped runs fn with a connection bound to its context. When ctx already
// carries a scope, fn runs directly on it and nothing is acquired.
func (p *Provider) RunScoped(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if fn == nil {
		return errors.New("scoped func is required")
	}
	if _, ok := FromContext(ctx); ok {
		return fn(ctx)
	}
	if p == nil || p.pool == nil {
		return &AcquireError{Err: errors.New("connection pool is not configured")}
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		p.metrics.acquireFailed()
		logging.Warn(ctx, "acquire connection failed", slog.Any("err", errs.Loggable(err)))
		return &AcquireError{Err: err}
	}

	s := &Scope{
		id:     newScopeID(),
		conn:   conn,
		gate:   semaphore.NewWeighted(1),
		txLock: semaphore.NewWeighted(1),
	}
	p.outstanding.Add(1)
	p.metrics.opened()

	scoped := context.WithValue(ctx, scopeKey{}, s)
	scoped = logging.WithAttrs(scoped, slog.String("scope_id", s.id))
	logging.Debug(scoped, "connection scope opened")

	defer p.teardown(scoped, s)
	return fn(scoped)
}

// Connection waits for exclusive use of the bound connection. The caller must
// Release the guard.
func (p *Provider) Connection(ctx context.Context) (*Guard, error) {
	s, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoActiveConnection
	}
	if s.closed.Load() {
		return nil, ErrScopeClosed
	}

	start := time.Now()
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return nil, errs.Wrap(err, "wait for scoped connection")
	}
	p.metrics.waited(time.Since(start))

	// teardown may have won the gate while we waited
	if s.closed.Load() {
		s.gate.Release(1)
		return nil, ErrScopeClosed
	}
	return &Guard{scope: s}, nil
}

func (p *Provider) teardown(ctx context.Context, s *Scope) {
	s.closed.Store(true)

	bg := context.WithoutCancel(ctx)
	// Cannot fail: bg is never cancelled.
	_ = s.gate.Acquire(bg, 1)
	defer s.gate.Release(1)

	discard := s.broken.Load()
	if s.inTx.Load() && !discard {
		if err := s.conn.DB(bg).Exec("ROLLBACK").Error; err != nil {
			discard = true
			logging.Warn(bg, "rollback dangling transaction failed; discarding connection",
				slog.Any("err", errs.Loggable(err)))
		} else {
			logging.Warn(bg, "rolled back dangling transaction")
		}
		s.inTx.Store(false)
	}

	if err := s.conn.Release(discard); err != nil {
		logging.Warn(bg, "release connection failed", slog.Any("err", errs.Loggable(err)))
	}
	p.outstanding.Add(-1)
	p.metrics.released()
	logging.Debug(bg, "connection scope closed")
}

func newScopeID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
