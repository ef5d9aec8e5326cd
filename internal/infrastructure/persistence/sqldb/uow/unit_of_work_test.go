package uow

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"todoapi/internal/errs"
	"todoapi/internal/infrastructure/persistence/sqldb/model"
	"todoapi/internal/infrastructure/persistence/sqldb/scope"
)

type statementLog struct {
	mu    sync.Mutex
	stmts []string
	fail  map[string]error
}

// failNext makes the next execution of stmt fail with err without reaching
// the database.
func (l *statementLog) failNext(stmt string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail == nil {
		l.fail = make(map[string]error)
	}
	l.fail[stmt] = err
}

func (l *statementLog) inject(tx *gorm.DB) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stmt := strings.ToUpper(strings.TrimSpace(tx.Statement.SQL.String()))
	if err, ok := l.fail[stmt]; ok {
		delete(l.fail, stmt)
		_ = tx.AddError(err)
	}
}

func (l *statementLog) txStatements() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, s := range l.stmts {
		switch strings.ToUpper(strings.TrimSpace(s)) {
		case "BEGIN", "COMMIT", "ROLLBACK":
			out = append(out, strings.ToUpper(strings.TrimSpace(s)))
		}
	}
	return out
}

type failingPool struct{ err error }

func (p failingPool) Acquire(context.Context) (scope.Conn, error) { return nil, p.err }

func setupUOW(t *testing.T) (*UnitOfWork, *scope.Provider, *gorm.DB, *statementLog) {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "uow.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&model.Todo{}); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	log := &statementLog{}
	err = db.Callback().Raw().After("gorm:raw").Register("test:record", func(tx *gorm.DB) {
		log.mu.Lock()
		log.stmts = append(log.stmts, tx.Statement.SQL.String())
		log.mu.Unlock()
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	if err := db.Callback().Raw().Before("gorm:raw").Register("test:inject", log.inject); err != nil {
		t.Fatalf("register callback: %v", err)
	}

	provider := scope.NewProvider(scope.NewGormPool(db), nil)
	return NewUnitOfWork(provider), provider, db, log
}

func insertTodo(ctx context.Context, t *testing.T, p *scope.Provider, id string) error {
	t.Helper()
	g, err := p.Connection(ctx)
	if err != nil {
		return err
	}
	defer g.Release()
	return g.DB(ctx).Create(&model.Todo{ID: id, Title: "write tests"}).Error
}

func countTodos(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&model.Todo{}).Count(&n).Error; err != nil {
		t.Fatalf("count todos: %v", err)
	}
	return n
}

func todoExists(t *testing.T, db *gorm.DB, id string) bool {
	t.Helper()
	var n int64
	if err := db.Model(&model.Todo{}).Where("id = ?", id).Count(&n).Error; err != nil {
		t.Fatalf("count todo %s: %v", id, err)
	}
	return n == 1
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	u, p, db, log := setupUOW(t)

	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		return insertTodo(ctx, t, p, "a")
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	if got := log.txStatements(); !slices.Equal(got, []string{"BEGIN", "COMMIT"}) {
		t.Fatalf("statements = %v", got)
	}
	if n := countTodos(t, db); n != 1 {
		t.Fatalf("todos = %d, want 1", n)
	}
	if p.Outstanding() != 0 {
		t.Fatalf("outstanding = %d", p.Outstanding())
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	u, p, db, log := setupUOW(t)
	boom := errors.New("boom")

	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		if err := insertTodo(ctx, t, p, "a"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	if got := log.txStatements(); !slices.Equal(got, []string{"BEGIN", "ROLLBACK"}) {
		t.Fatalf("statements = %v", got)
	}
	if n := countTodos(t, db); n != 0 {
		t.Fatalf("todos = %d, want 0", n)
	}
}

func TestWithTxReturnsBusinessErrorUnchanged(t *testing.T) {
	u, p, db, _ := setupUOW(t)

	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		if err := insertTodo(ctx, t, p, "a"); err != nil {
			return err
		}
		return errs.Conflict(errors.New("already completed"))
	})
	if errs.KindOf(err) != errs.KindConflict {
		t.Fatalf("KindOf() = %v, want conflict (err = %v)", errs.KindOf(err), err)
	}
	if n := countTodos(t, db); n != 0 {
		t.Fatalf("todos = %d, want 0", n)
	}
}

func TestWithTxNestedJoinsOuterTransaction(t *testing.T) {
	u, p, db, log := setupUOW(t)

	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		if err := insertTodo(ctx, t, p, "outer"); err != nil {
			return err
		}
		return u.WithTx(ctx, func(ctx context.Context) error {
			return insertTodo(ctx, t, p, "inner")
		})
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if got := log.txStatements(); !slices.Equal(got, []string{"BEGIN", "COMMIT"}) {
		t.Fatalf("statements = %v", got)
	}
	if n := countTodos(t, db); n != 2 {
		t.Fatalf("todos = %d, want 2", n)
	}
}

func TestWithTxNestedFailureRollsBackEverything(t *testing.T) {
	u, p, db, log := setupUOW(t)
	boom := errors.New("inner failed")

	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		if err := insertTodo(ctx, t, p, "outer"); err != nil {
			return err
		}
		return u.WithTx(ctx, func(ctx context.Context) error {
			if err := insertTodo(ctx, t, p, "inner"); err != nil {
				return err
			}
			return boom
		})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v", err)
	}
	if got := log.txStatements(); !slices.Equal(got, []string{"BEGIN", "ROLLBACK"}) {
		t.Fatalf("statements = %v", got)
	}
	if n := countTodos(t, db); n != 0 {
		t.Fatalf("todos = %d, want 0", n)
	}
}

func TestWithTxJoinsEnclosingScope(t *testing.T) {
	u, p, _, _ := setupUOW(t)

	var outer, inner string
	err := p.RunScoped(context.Background(), func(ctx context.Context) error {
		s, _ := scope.FromContext(ctx)
		outer = s.ID()
		return u.WithTx(ctx, func(ctx context.Context) error {
			s, _ := scope.FromContext(ctx)
			inner = s.ID()
			return nil
		})
	})
	if err != nil {
		t.Fatalf("RunScoped() error = %v", err)
	}
	if outer == "" || outer != inner {
		t.Fatalf("scope ids differ: outer %q inner %q", outer, inner)
	}
}

func TestWithTxAcquireFailure(t *testing.T) {
	poolErr := errors.New("pool closed")
	u := NewUnitOfWork(scope.NewProvider(failingPool{err: poolErr}, nil))

	called := false
	err := u.WithTx(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if called {
		t.Fatalf("operation invoked after acquire failure")
	}
	var acquireErr *scope.AcquireError
	if !errors.As(err, &acquireErr) || !errors.Is(err, poolErr) {
		t.Fatalf("WithTx() error = %v, want acquire error", err)
	}
	if errs.KindOf(err) != errs.KindUnexpected {
		t.Fatalf("KindOf() = %v", errs.KindOf(err))
	}
}

func TestWithTxRollbackFailureKeepsBothErrors(t *testing.T) {
	u, p, _, _ := setupUOW(t)
	cause := errors.New("business failure")

	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		// End the transaction behind the unit of work's back so ROLLBACK fails.
		g, err := p.Connection(ctx)
		if err != nil {
			return err
		}
		defer g.Release()
		if err := g.DB(ctx).Exec("COMMIT").Error; err != nil {
			return err
		}
		return cause
	})

	var rbErr *RollbackError
	if !errors.As(err, &rbErr) {
		t.Fatalf("WithTx() error = %v, want RollbackError", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("original error lost: %v", err)
	}
	if rbErr.Rollback == nil {
		t.Fatalf("rollback error missing")
	}
	if errs.KindOf(err) != errs.KindUnexpected {
		t.Fatalf("KindOf() = %v", errs.KindOf(err))
	}
	if p.Outstanding() != 0 {
		t.Fatalf("outstanding = %d", p.Outstanding())
	}
}

func TestWithTxRollsBackWhenCancelled(t *testing.T) {
	u, p, db, log := setupUOW(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := u.WithTx(ctx, func(ctx context.Context) error {
		if err := insertTodo(ctx, t, p, "a"); err != nil {
			return err
		}
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithTx() error = %v", err)
	}
	if got := log.txStatements(); !slices.Equal(got, []string{"BEGIN", "ROLLBACK"}) {
		t.Fatalf("statements = %v", got)
	}
	if n := countTodos(t, db); n != 0 {
		t.Fatalf("todos = %d, want 0", n)
	}
}

func TestWithTxPanicRollsBack(t *testing.T) {
	u, p, db, _ := setupUOW(t)

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Fatalf("recover() = %v", r)
			}
		}()
		_ = u.WithTx(context.Background(), func(ctx context.Context) error {
			if err := insertTodo(ctx, t, p, "a"); err != nil {
				return err
			}
			panic("kaboom")
		})
	}()

	if n := countTodos(t, db); n != 0 {
		t.Fatalf("todos = %d, want 0", n)
	}
	if p.Outstanding() != 0 {
		t.Fatalf("outstanding = %d", p.Outstanding())
	}
}

func TestWithTxBeginFailureSkipsOperation(t *testing.T) {
	u, p, db, log := setupUOW(t)
	injected := errors.New("injected begin failure")
	log.failNext("BEGIN", injected)

	called := false
	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		return insertTodo(ctx, t, p, "a")
	})
	if called {
		t.Fatalf("operation invoked after BEGIN failed")
	}
	if !errors.Is(err, injected) || errs.KindOf(err) != errs.KindUnexpected {
		t.Fatalf("WithTx() error = %v (kind %v)", err, errs.KindOf(err))
	}
	if got := log.txStatements(); !slices.Equal(got, []string{"BEGIN"}) {
		t.Fatalf("statements = %v", got)
	}
	if n := countTodos(t, db); n != 0 {
		t.Fatalf("todos = %d, want 0", n)
	}
	if p.Outstanding() != 0 {
		t.Fatalf("outstanding = %d", p.Outstanding())
	}
}

func TestWithTxCommitFailureIsUnexpected(t *testing.T) {
	u, p, db, log := setupUOW(t)
	injected := errors.New("injected commit failure")
	log.failNext("COMMIT", injected)

	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		return insertTodo(ctx, t, p, "a")
	})
	if !errors.Is(err, injected) || errs.KindOf(err) != errs.KindUnexpected {
		t.Fatalf("WithTx() error = %v (kind %v)", err, errs.KindOf(err))
	}
	if got := log.txStatements(); !slices.Equal(got, []string{"BEGIN", "COMMIT", "ROLLBACK"}) {
		t.Fatalf("statements = %v", got)
	}
	if n := countTodos(t, db); n != 0 {
		t.Fatalf("todos = %d, want 0", n)
	}
	if p.Outstanding() != 0 {
		t.Fatalf("outstanding = %d", p.Outstanding())
	}
}

func TestWithTxAfterFailedCommitStartsFreshTransaction(t *testing.T) {
	u, p, db, log := setupUOW(t)
	injected := errors.New("injected commit failure")
	log.failNext("COMMIT", injected)

	err := p.RunScoped(context.Background(), func(ctx context.Context) error {
		first := u.WithTx(ctx, func(ctx context.Context) error {
			return insertTodo(ctx, t, p, "first")
		})
		if !errors.Is(first, injected) {
			t.Fatalf("first WithTx() error = %v", first)
		}
		if s, _ := scope.FromContext(ctx); s.InTransaction() {
			t.Fatalf("scope still in transaction after failed commit")
		}
		return u.WithTx(ctx, func(ctx context.Context) error {
			return insertTodo(ctx, t, p, "second")
		})
	})
	if err != nil {
		t.Fatalf("RunScoped() error = %v", err)
	}

	want := []string{"BEGIN", "COMMIT", "ROLLBACK", "BEGIN", "COMMIT"}
	if got := log.txStatements(); !slices.Equal(got, want) {
		t.Fatalf("statements = %v, want %v", got, want)
	}
	if todoExists(t, db, "first") {
		t.Fatalf("row from failed commit was stored")
	}
	if !todoExists(t, db, "second") {
		t.Fatalf("row from second unit was not stored")
	}
}

func TestWithTxSiblingsInScopeDoNotShareTransaction(t *testing.T) {
	u, p, db, log := setupUOW(t)
	boom := errors.New("sibling failed")

	var ownerErr, siblingErr error
	err := p.RunScoped(context.Background(), func(ctx context.Context) error {
		started := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			ownerErr = u.WithTx(ctx, func(ctx context.Context) error {
				close(started)
				time.Sleep(50 * time.Millisecond)
				return insertTodo(ctx, t, p, "owner")
			})
		}()
		go func() {
			defer wg.Done()
			<-started
			siblingErr = u.WithTx(ctx, func(ctx context.Context) error {
				if err := insertTodo(ctx, t, p, "sibling"); err != nil {
					return err
				}
				return boom
			})
		}()
		wg.Wait()
		return nil
	})
	if err != nil {
		t.Fatalf("RunScoped() error = %v", err)
	}

	if ownerErr != nil {
		t.Fatalf("owner WithTx() error = %v", ownerErr)
	}
	if !errors.Is(siblingErr, boom) {
		t.Fatalf("sibling WithTx() error = %v", siblingErr)
	}
	want := []string{"BEGIN", "COMMIT", "BEGIN", "ROLLBACK"}
	if got := log.txStatements(); !slices.Equal(got, want) {
		t.Fatalf("statements = %v, want %v", got, want)
	}
	if !todoExists(t, db, "owner") {
		t.Fatalf("owner row missing")
	}
	if todoExists(t, db, "sibling") {
		t.Fatalf("failed sibling row was committed")
	}
}

func TestWithTxChildOfOwnerJoins(t *testing.T) {
	u, p, db, log := setupUOW(t)

	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			done <- u.WithTx(ctx, func(ctx context.Context) error {
				return insertTodo(ctx, t, p, "child")
			})
		}()
		return <-done
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if got := log.txStatements(); !slices.Equal(got, []string{"BEGIN", "COMMIT"}) {
		t.Fatalf("statements = %v", got)
	}
	if n := countTodos(t, db); n != 1 {
		t.Fatalf("todos = %d, want 1", n)
	}
}

func TestWithTxMarksWrappedAcquireFailureUnexpected(t *testing.T) {
	u, _, _, _ := setupUOW(t)
	poolErr := errors.New("pool exhausted")

	err := u.WithTx(context.Background(), func(context.Context) error {
		return errs.Wrap(&scope.AcquireError{Err: poolErr}, "open reporting connection")
	})
	var kinded *errs.Error
	if !errors.As(err, &kinded) || kinded.Kind != errs.KindUnexpected {
		t.Fatalf("WithTx() error = %v, want unexpected", err)
	}
	if !errors.Is(err, poolErr) {
		t.Fatalf("pool error lost: %v", err)
	}
}
