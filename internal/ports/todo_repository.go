package ports

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"todoapi/internal/domain/todo"
)

var ErrTodoNotFound = errors.New("todo not found")

// DataAccessError reports a storage failure other than a missing row,
// including rows that cannot be mapped back to the domain.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string { return "data access: " + e.Op + ": " + e.Err.Error() }
func (e *DataAccessError) Unwrap() error { return e.Err }

func DataAccess(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DataAccessError{Op: op, Err: err}
}

type TodoRepository interface {
	FindAll(ctx context.Context) ([]todo.Todo, error)
	FindByID(ctx context.Context, id uuid.UUID) (todo.Todo, error)
	// Save inserts or updates by id.
	Save(ctx context.Context, t todo.Todo) error
	Delete(ctx context.Context, t todo.Todo) error
}
