package todo

import (
	"strings"

	"github.com/google/uuid"
)

// Todo is the aggregate. Fields are private so state changes go through
// the methods that enforce completion rules.
type Todo struct {
	id          uuid.UUID
	title       string
	description *string
	completed   bool
}

// New creates an open todo with a time-ordered (v7) id.
func New(title string, description *string) (Todo, error) {
	if strings.TrimSpace(title) == "" {
		return Todo{}, ErrTitleRequired
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Todo{}, err
	}
	return Todo{
		id:          id,
		title:       title,
		description: cloneString(description),
	}, nil
}

// Reconstruct rebuilds a todo from persisted state without validation.
func Reconstruct(id uuid.UUID, title string, description *string, completed bool) Todo {
	return Todo{
		id:          id,
		title:       title,
		description: cloneString(description),
		completed:   completed,
	}
}

func (t Todo) ID() uuid.UUID        { return t.id }
func (t Todo) Title() string        { return t.title }
func (t Todo) Description() *string { return cloneString(t.description) }
func (t Todo) Completed() bool      { return t.completed }

// Update replaces title and description. A nil description clears it.
func (t *Todo) Update(title string, description *string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}
	t.title = title
	t.description = cloneString(description)
	return nil
}

func (t *Todo) MarkAsCompleted() error {
	if t.completed {
		return ErrAlreadyCompleted
	}
	t.completed = true
	return nil
}

func (t *Todo) MarkAsNotCompleted() error {
	if !t.completed {
		return ErrNotCompleted
	}
	t.completed = false
	return nil
}

// Snapshot is the serializable view of a todo.
type Snapshot struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description *string   `json:"description" yaml:"description"`
	Completed   bool      `json:"completed" yaml:"completed"`
}

func (t Todo) Snapshot() Snapshot {
	return Snapshot{
		ID:          t.id,
		Title:       t.title,
		Description: cloneString(t.description),
		Completed:   t.completed,
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
