package todo

import (
	"context"

	"github.com/google/uuid"

	domaintodo "todoapi/internal/domain/todo"
	"todoapi/internal/ports"
)

func (s *Service) Update(ctx context.Context, input UpdateInput) (domaintodo.Todo, error) {
	return s.mutate(ctx, input.ID, func(item *domaintodo.Todo) error {
		return item.Update(input.Title, input.Description)
	})
}

func (s *Service) MarkAsCompleted(ctx context.Context, id uuid.UUID) (domaintodo.Todo, error) {
	return s.mutate(ctx, id, (*domaintodo.Todo).MarkAsCompleted)
}

func (s *Service) MarkAsNotCompleted(ctx context.Context, id uuid.UUID) (domaintodo.Todo, error) {
	return s.mutate(ctx, id, (*domaintodo.Todo).MarkAsNotCompleted)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		return s.repo.Delete(txCtx, item)
	})
	return translate(err)
}

// mutate loads, changes and saves one todo inside a single transaction.
func (s *Service) mutate(ctx context.Context, id uuid.UUID, change func(*domaintodo.Todo) error) (domaintodo.Todo, error) {
	if err := s.check(ctx); err != nil {
		return domaintodo.Todo{}, err
	}
	updated, err := ports.RunInTx(ctx, s.uow, func(txCtx context.Context) (domaintodo.Todo, error) {
		item, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return domaintodo.Todo{}, err
		}
		if err := change(&item); err != nil {
			return domaintodo.Todo{}, err
		}
		if err := s.repo.Save(txCtx, item); err != nil {
			return domaintodo.Todo{}, err
		}
		return item, nil
	})
	if err != nil {
		return domaintodo.Todo{}, translate(err)
	}
	return updated, nil
}
