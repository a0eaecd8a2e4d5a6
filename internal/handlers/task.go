package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/chepyr/tasktracker/internal/models"
	"github.com/chepyr/tasktracker/internal/tasks"
	"github.com/google/uuid"
)

// taskID reads the {id} path segment. A malformed id is a missing task.
func taskID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, tasks.ErrTaskNotFound
	}
	return id, nil
}

func (h *Handler) sendTask(w http.ResponseWriter, status int, task *models.Task) {
	sendJSON(w, status, map[string]any{"data": newTaskResource(task, h.now())})
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	query, err := parseListQuery(r.URL.Query())
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	page, err := h.Tasks.List(r.Context(), identityFrom(r.Context()), query)
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, newTaskPage(page, h.now()))
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var body createTaskRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	input, err := body.input()
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}

	task, err := h.Tasks.Create(r.Context(), identityFrom(r.Context()), input)
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	h.sendTask(w, http.StatusCreated, task)
}

func (h *Handler) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	task, trail, err := h.Tasks.Get(r.Context(), identityFrom(r.Context()), id)
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"data": newTaskDetail(task, trail, h.now())})
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	var body map[string]json.RawMessage
	if !decodeJSON(w, r, &body) {
		return
	}
	patch, err := parseTaskPatch(body)
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}

	task, err := h.Tasks.Update(r.Context(), identityFrom(r.Context()), id, patch)
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	h.sendTask(w, http.StatusOK, task)
}

// deleteTask soft-deletes unless ?permanent=true asks for the row to go.
func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	ident := identityFrom(r.Context())
	if parseBool(r.URL.Query().Get("permanent")) {
		err = h.Tasks.Purge(r.Context(), ident, id)
	} else {
		err = h.Tasks.Delete(r.Context(), ident, id)
	}
	if err != nil {
		h.sendAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type taskTransition func(ctx context.Context, id models.Identity, taskID uuid.UUID) (*models.Task, error)

func (h *Handler) transition(fn taskTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := taskID(r)
		if err != nil {
			h.sendAppError(w, r, err)
			return
		}
		task, err := fn(r.Context(), identityFrom(r.Context()), id)
		if err != nil {
			h.sendAppError(w, r, err)
			return
		}
		h.sendTask(w, http.StatusOK, task)
	}
}

func (h *Handler) completeTask(w http.ResponseWriter, r *http.Request) {
	h.transition(h.Tasks.Complete)(w, r)
}

func (h *Handler) reopenTask(w http.ResponseWriter, r *http.Request) {
	h.transition(h.Tasks.Reopen)(w, r)
}

func (h *Handler) restoreTask(w http.ResponseWriter, r *http.Request) {
	h.transition(h.Tasks.Restore)(w, r)
}
