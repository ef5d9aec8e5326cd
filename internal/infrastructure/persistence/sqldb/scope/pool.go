package scope

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync/atomic"

	"gorm.io/gorm"

	"todoapi/internal/errs"
)

// Pool hands out connections that stay dedicated to the caller until released.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Conn is one checked-out database session.
type Conn interface {
	// DB returns a gorm session whose statements all run on this connection.
	DB(ctx context.Context) *gorm.DB
	// Release hands the connection back. With discard set the underlying
	// session is closed instead of going back to the pool.
	Release(discard bool) error
}

// GormPool checks connections out of the database/sql pool behind a gorm DB.
type GormPool struct {
	db *gorm.DB
}

var _ Pool = (*GormPool)(nil)

func NewGormPool(db *gorm.DB) *GormPool {
	return &GormPool{db: db}
}

func (p *GormPool) Acquire(ctx context.Context) (Conn, error) {
	if p.db == nil {
		return nil, errors.New("gorm db is required")
	}
	sqlDB, err := p.db.DB()
	if err != nil {
		return nil, errs.Wrap(err, "get sql db")
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "checkout connection")
	}
	return &gormConn{base: p.db, conn: conn}, nil
}

type gormConn struct {
	base     *gorm.DB
	conn     *sql.Conn
	released atomic.Bool
}

func (c *gormConn) DB(ctx context.Context) *gorm.DB {
	// gorm wraps writes in its own transaction unless told otherwise; on a
	// pinned connection that would nest inside ours.
	tx := c.base.Session(&gorm.Session{
		NewDB:                  true,
		SkipDefaultTransaction: true,
		Context:                ctx,
	})
	tx.Statement.ConnPool = c.conn
	return tx
}

func (c *gormConn) Release(discard bool) error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	if discard {
		// Returning ErrBadConn from Raw makes database/sql close the driver
		// connection instead of pooling it.
		_ = c.conn.Raw(func(any) error { return driver.ErrBadConn })
		if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			return errs.Wrap(err, "close discarded connection")
		}
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return errs.Wrap(err, "return connection to pool")
	}
	return nil
}
