// Package httpapi exposes the todo usecases over JSON/HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domaintodo "todoapi/internal/domain/todo"
	"todoapi/internal/usecase/todo"
)

// TodoService is the usecase surface the handlers need.
type TodoService interface {
	Create(ctx context.Context, input todo.CreateInput) (domaintodo.Todo, error)
	List(ctx context.Context) ([]domaintodo.Todo, error)
	Get(ctx context.Context, id uuid.UUID) (domaintodo.Todo, error)
	Update(ctx context.Context, input todo.UpdateInput) (domaintodo.Todo, error)
	MarkAsCompleted(ctx context.Context, id uuid.UUID) (domaintodo.Todo, error)
	MarkAsNotCompleted(ctx context.Context, id uuid.UUID) (domaintodo.Todo, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var _ TodoService = (*todo.Service)(nil)

type Options struct {
	// Gatherer backs GET /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Metrics records request counts and latency. Nil disables recording.
	Metrics *Metrics
	// RequestTimeout bounds each request's context. Zero means no limit.
	RequestTimeout time.Duration
}

type handler struct {
	svc      TodoService
	validate *validator.Validate
}

func NewRouter(svc TodoService, opts Options) http.Handler {
	h := &handler{
		svc:      svc,
		validate: newValidator(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(opts.Metrics))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/health", h.health)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/todos", func(r chi.Router) {
		r.Post("/", h.createTodo)
		r.Get("/", h.listTodos)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getTodo)
			r.Put("/", h.updateTodo)
			r.Delete("/", h.deleteTodo)
			r.Put("/complete", h.completeTodo)
			r.Put("/uncomplete", h.uncompleteTodo)
		})
	})
	return r
}
