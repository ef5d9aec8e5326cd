package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"todoapi/internal/errs"
	"todoapi/internal/infrastructure/persistence/sqldb/model"
	"todoapi/internal/infrastructure/persistence/sqldb/scope"
	"todoapi/internal/ports"
)

// SQLCache stores entries in kv_entries on the ambient connection, so a Set
// inside a unit of work commits or rolls back with it.
type SQLCache struct {
	provider *scope.Provider
	now      func() time.Time
}

var _ ports.Cache = (*SQLCache)(nil)

func NewSQLCache(provider *scope.Provider) *SQLCache {
	return &SQLCache{provider: provider, now: time.Now}
}

func (c *SQLCache) withDB(ctx context.Context, key string, fn func(db *gorm.DB, key string) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return errors.New("key is required")
	}

	return c.provider.RunScoped(ctx, func(ctx context.Context) error {
		g, err := c.provider.Connection(ctx)
		if err != nil {
			return err
		}
		defer g.Release()
		return fn(g.DB(ctx), trimmedKey)
	})
}

func keyIs(key string) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}

func (c *SQLCache) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		row   model.KVEntry
		found bool
	)
	err := c.withDB(ctx, key, func(db *gorm.DB, key string) error {
		err := db.Where(keyIs(key)).Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return errs.Wrap(err, "query cache by key")
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	if row.ExpiresAt != nil && *row.ExpiresAt <= c.now().UnixMilli() {
		return "", false, nil
	}
	return row.Value, true, nil
}

func (c *SQLCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	now := c.now()
	var expiresAt *int64
	if ttl > 0 {
		v := now.Add(ttl).UnixMilli()
		expiresAt = &v
	}

	return c.withDB(ctx, key, func(db *gorm.DB, key string) error {
		row := model.KVEntry{
			Key:       key,
			Value:     value,
			ExpiresAt: expiresAt,
			UpdatedAt: now.UnixMilli(),
		}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return errs.Wrap(err, "upsert cache key")
		}
		return nil
	})
}

func (c *SQLCache) SetIfAbsent(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	now := c.now()
	var expiresAt *int64
	if ttl > 0 {
		v := now.Add(ttl).UnixMilli()
		expiresAt = &v
	}

	var stored bool
	err := c.withDB(ctx, key, func(db *gorm.DB, key string) error {
		if err := db.Where(keyIs(key)).
			Where("expires_at IS NOT NULL AND expires_at <= ?", now.UnixMilli()).
			Delete(&model.KVEntry{}).Error; err != nil {
			return errs.Wrap(err, "purge expired cache key")
		}

		row := model.KVEntry{
			Key:       key,
			Value:     value,
			ExpiresAt: expiresAt,
			UpdatedAt: now.UnixMilli(),
		}
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return errs.Wrap(res.Error, "insert cache key")
		}
		stored = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return stored, nil
}

func (c *SQLCache) Delete(ctx context.Context, key string) error {
	return c.withDB(ctx, key, func(db *gorm.DB, key string) error {
		if err := db.Where(keyIs(key)).Delete(&model.KVEntry{}).Error; err != nil {
			return errs.Wrap(err, "delete cache key")
		}
		return nil
	})
}
