package todo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	domaintodo "todoapi/internal/domain/todo"
	"todoapi/internal/errs"
	"todoapi/internal/ports"
)

const (
	idempotencyKeyPrefix = "idempotency:create_todo:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// Service runs todo usecases. Every mutation goes through one unit of work.
type Service struct {
	repo  ports.TodoRepository
	uow   ports.UnitOfWork
	cache ports.Cache
}

// NewService wires todo usecases with repository and optional cache.
func NewService(repo ports.TodoRepository, uow ports.UnitOfWork, cache ports.Cache) *Service {
	return &Service{
		repo:  repo,
		uow:   uow,
		cache: cache,
	}
}

type CreateInput struct {
	Title       string
	Description *string
	// IdempotencyKey makes retries of the same create return the first result.
	IdempotencyKey string
}

type UpdateInput struct {
	ID          uuid.UUID
	Title       string
	Description *string
}

func (s *Service) check(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	if s.repo == nil {
		return errs.Unexpected(errors.New("todo repository is required"))
	}
	if s.uow == nil {
		return errs.Unexpected(errors.New("todo unit of work is required"))
	}
	return nil
}

// translate maps repository and domain failures onto error kinds. Errors that
// already carry a kind pass through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var kinded *errs.Error
	if errors.As(err, &kinded) {
		return err
	}
	switch {
	case errors.Is(err, ports.ErrTodoNotFound):
		return errs.NotFound(err)
	case errors.Is(err, domaintodo.ErrAlreadyCompleted), errors.Is(err, domaintodo.ErrNotCompleted):
		return errs.Conflict(err)
	case errors.Is(err, domaintodo.ErrTitleRequired):
		return errs.Validation(err.Error())
	default:
		return errs.Unexpected(err)
	}
}
