package bootstrap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"todoapi/internal/bootstrap/config"
	"todoapi/internal/bootstrap/database"
	"todoapi/internal/bootstrap/logging"
	cacheinfra "todoapi/internal/infrastructure/cache"
	"todoapi/internal/infrastructure/persistence/sqldb/repository"
	"todoapi/internal/infrastructure/persistence/sqldb/scope"
	"todoapi/internal/infrastructure/persistence/sqldb/uow"
	"todoapi/internal/ports"
	"todoapi/internal/presentation/httpapi"
	"todoapi/internal/usecase/todo"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideRegistry),
	fx.Provide(provideScopeProvider),
	fx.Provide(
		fx.Annotate(
			repository.NewTodoRepository,
			fx.As(new(ports.TodoRepository)),
		),
	),
	fx.Provide(
		fx.Annotate(
			uow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(todo.NewService),
	fx.Provide(provideHandler),
	fx.Provide(provideApp),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			logging.Info(logCtx, "closing database pool")
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func provideScopeProvider(lc fx.Lifecycle, ctx context.Context, db *gorm.DB, reg *prometheus.Registry) (*scope.Provider, error) {
	metrics, err := scope.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	provider := scope.NewProvider(scope.NewGormPool(db), metrics)

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			if n := provider.Outstanding(); n > 0 {
				logging.Warn(ctx, "connection scopes still open at shutdown", slog.Int64("outstanding", n))
			}
			return nil
		},
	})
	return provider, nil
}

func provideHandler(cfg config.Config, svc *todo.Service, reg *prometheus.Registry) (http.Handler, error) {
	metrics, err := httpapi.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	return httpapi.NewRouter(svc, httpapi.Options{
		Gatherer:       reg,
		Metrics:        metrics,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}), nil
}

func provideApp(cfg config.Config, db *gorm.DB, provider *scope.Provider, handler http.Handler) *App {
	return &App{
		Config:   cfg,
		DB:       db,
		Provider: provider,
		Handler:  handler,
	}
}
