package todo

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"todoapi/internal/bootstrap/logging"
	domaintodo "todoapi/internal/domain/todo"
	"todoapi/internal/errs"
	"todoapi/internal/ports"
)

// Create stores a new todo. With an idempotency key, a repeated call returns
// the todo created by the first one. The key and the row commit together.
func (s *Service) Create(ctx context.Context, input CreateInput) (domaintodo.Todo, error) {
	if err := s.check(ctx); err != nil {
		return domaintodo.Todo{}, err
	}

	item, err := domaintodo.New(input.Title, input.Description)
	if err != nil {
		return domaintodo.Todo{}, translate(err)
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	created, err := ports.RunInTx(ctx, s.uow, func(txCtx context.Context) (domaintodo.Todo, error) {
		if key != "" && s.cache != nil {
			// Claim the key before writing the row so concurrent retries
			// cannot both create a todo.
			claimed, err := s.cache.SetIfAbsent(txCtx, idempotencyKeyPrefix+key, item.ID().String(), idempotencyKeyTTL)
			if err != nil {
				return domaintodo.Todo{}, errs.Wrap(err, "claim idempotency key")
			}
			if !claimed {
				existing, found, err := s.findByIdempotencyKey(txCtx, key)
				if err != nil {
					return domaintodo.Todo{}, err
				}
				if !found {
					return domaintodo.Todo{}, errs.Conflict(errors.New("idempotency key is held by another request"))
				}
				logging.Info(txCtx, "create todo replayed", slog.String("todo_id", existing.ID().String()))
				return existing, nil
			}
		}

		if err := s.repo.Save(txCtx, item); err != nil {
			return domaintodo.Todo{}, err
		}
		return item, nil
	})
	if err != nil {
		return domaintodo.Todo{}, translate(err)
	}
	return created, nil
}

func (s *Service) findByIdempotencyKey(ctx context.Context, key string) (domaintodo.Todo, bool, error) {
	value, found, err := s.cache.Get(ctx, idempotencyKeyPrefix+key)
	if err != nil {
		return domaintodo.Todo{}, false, errs.Wrap(err, "load idempotency key")
	}
	if !found {
		return domaintodo.Todo{}, false, nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return domaintodo.Todo{}, false, errs.Wrapf(err, "parse idempotent todo id %q", value)
	}
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domaintodo.Todo{}, false, err
	}
	return existing, true, nil
}
