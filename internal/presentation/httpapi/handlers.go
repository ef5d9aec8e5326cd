package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	domaintodo "todoapi/internal/domain/todo"
	"todoapi/internal/errs"
	"todoapi/internal/usecase/todo"
)

const maxBodyBytes = 1 << 20

type createTodoRequest struct {
	Title       string  `json:"title" validate:"required,notblank,max=255"`
	Description *string `json:"description" validate:"omitempty,max=4096"`
}

type updateTodoRequest struct {
	Title       string  `json:"title" validate:"required,notblank,max=255"`
	Description *string `json:"description" validate:"omitempty,max=4096"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *handler) createTodo(w http.ResponseWriter, r *http.Request) {
	var req createTodoRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.svc.Create(r.Context(), todo.CreateInput{
		Title:          req.Title,
		Description:    req.Description,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created.Snapshot())
}

func (h *handler) listTodos(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]domaintodo.Snapshot, 0, len(items))
	for _, item := range items {
		out = append(out, item.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) getTodo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item.Snapshot())
}

func (h *handler) updateTodo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateTodoRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.svc.Update(r.Context(), todo.UpdateInput{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated.Snapshot())
}

func (h *handler) completeTodo(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.MarkAsCompleted)
}

func (h *handler) uncompleteTodo(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.MarkAsNotCompleted)
}

func (h *handler) transition(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, id uuid.UUID) (domaintodo.Todo, error),
) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	item, err := apply(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item.Snapshot())
}

func (h *handler) deleteTodo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.Validation("invalid todo id: " + raw)
	}
	return id, nil
}

func (h *handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Validation("invalid request body: " + err.Error())
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return errs.Validation(describeFieldError(fieldErrs[0]))
		}
		return errs.Validation(err.Error())
	}
	return nil
}
