package todo

import "errors"

var (
	ErrTitleRequired    = errors.New("title is required")
	ErrAlreadyCompleted = errors.New("todo is already completed")
	ErrNotCompleted     = errors.New("todo is not completed")
)
