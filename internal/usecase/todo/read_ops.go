package todo

import (
	"context"

	"github.com/google/uuid"

	domaintodo "todoapi/internal/domain/todo"
)

func (s *Service) List(ctx context.Context) ([]domaintodo.Todo, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	items, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domaintodo.Todo, error) {
	if err := s.check(ctx); err != nil {
		return domaintodo.Todo{}, err
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domaintodo.Todo{}, translate(err)
	}
	return item, nil
}
