package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"todoapi/internal/domain/todo"
	"todoapi/internal/errs"
	"todoapi/internal/infrastructure/persistence/sqldb/model"
	"todoapi/internal/infrastructure/persistence/sqldb/scope"
	"todoapi/internal/ports"
)

// TodoRepository reads and writes todos on the ambient connection. Outside a
// scope each call opens its own.
type TodoRepository struct {
	provider *scope.Provider
}

var _ ports.TodoRepository = (*TodoRepository)(nil)

func NewTodoRepository(provider *scope.Provider) *TodoRepository {
	return &TodoRepository{provider: provider}
}

func (r *TodoRepository) withDB(ctx context.Context, fn func(db *gorm.DB) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	return r.provider.RunScoped(ctx, func(ctx context.Context) error {
		g, err := r.provider.Connection(ctx)
		if err != nil {
			return err
		}
		defer g.Release()
		return fn(g.DB(ctx))
	})
}

func (r *TodoRepository) FindAll(ctx context.Context) ([]todo.Todo, error) {
	var rows []model.Todo
	err := r.withDB(ctx, func(db *gorm.DB) error {
		return db.Order("id asc").Find(&rows).Error
	})
	if err != nil {
		return nil, ports.DataAccess("query todos", err)
	}

	items := make([]todo.Todo, 0, len(rows))
	for _, row := range rows {
		item, err := mapTodo(row)
		if err != nil {
			return nil, ports.DataAccess("map todo", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *TodoRepository) FindByID(ctx context.Context, id uuid.UUID) (todo.Todo, error) {
	var row model.Todo
	err := r.withDB(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", id.String()).Take(&row).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return todo.Todo{}, ports.ErrTodoNotFound
	}
	if err != nil {
		return todo.Todo{}, ports.DataAccess("query todo", err)
	}

	item, err := mapTodo(row)
	if err != nil {
		return todo.Todo{}, ports.DataAccess("map todo", err)
	}
	return item, nil
}

func (r *TodoRepository) Save(ctx context.Context, t todo.Todo) error {
	row := model.Todo{
		ID:          t.ID().String(),
		Title:       t.Title(),
		Description: t.Description(),
		Completed:   t.Completed(),
	}
	err := r.withDB(ctx, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "description", "completed"}),
		}).Create(&row).Error
	})
	if err != nil {
		return ports.DataAccess("upsert todo", err)
	}
	return nil
}

func (r *TodoRepository) Delete(ctx context.Context, t todo.Todo) error {
	err := r.withDB(ctx, func(db *gorm.DB) error {
		return db.Where("id = ?", t.ID().String()).Delete(&model.Todo{}).Error
	})
	if err != nil {
		return ports.DataAccess("delete todo", err)
	}
	return nil
}

func mapTodo(row model.Todo) (todo.Todo, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return todo.Todo{}, errs.Wrapf(err, "parse todo id %q", row.ID)
	}
	return todo.Reconstruct(id, row.Title, row.Description, row.Completed), nil
}
