package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"todoapi/internal/bootstrap/config"
	"todoapi/internal/bootstrap/logging"
	"todoapi/internal/errs"
	"todoapi/internal/infrastructure/persistence/sqldb/model"
	"todoapi/internal/infrastructure/persistence/sqldb/scope"
)

type App struct {
	Config   config.Config
	DB       *gorm.DB
	Provider *scope.Provider
	Handler  http.Handler
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(
		&model.Todo{},
		&model.KVEntry{},
	); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}

	logging.Info(logCtx, "schema migration completed")
	return nil
}
