package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskHandler handles task CRUD endpoints.
type TaskHandler struct {
	base
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(stores store.Stores, authz *policy.Authorizer, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{base: newBase(stores, authz, logger)}
}

type taskRequest struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	ResponsibleID *uuid.UUID `json:"responsible_id"`
	Status        *string    `json:"status"`
	Priority      *int       `json:"priority"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
}

// apply copies the supplied fields onto t. The responsible user must be a
// member of the task's project.
func (h *TaskHandler) apply(ctx context.Context, w http.ResponseWriter, body *taskRequest, t *store.Task) bool {
	if body.Title != nil {
		title := strings.TrimSpace(*body.Title)
		if title == "" {
			WriteValidationError(w, "title", "title is required")
			return false
		}
		t.Title = title
	}
	if body.Description != nil {
		t.Description = *body.Description
	}
	if body.ResponsibleID != nil {
		_, err := h.stores.ProjectMemberships.GetForUser(ctx, t.ProjectID, *body.ResponsibleID)
		if errors.Is(err, store.ErrNotFound) {
			WriteValidationError(w, "responsible_id", "responsible must be a project member")
			return false
		}
		if err != nil {
			h.fail(w, err)
			return false
		}
		t.ResponsibleID = body.ResponsibleID
	}
	if body.Status != nil {
		t.Status = *body.Status
	}
	if body.Priority != nil {
		t.Priority = *body.Priority
	}
	if body.StartDate != nil {
		t.StartDate = body.StartDate
	}
	if body.EndDate != nil {
		t.EndDate = body.EndDate
	}
	if t.StartDate != nil && t.EndDate != nil && t.StartDate.After(*t.EndDate) {
		WriteValidationError(w, "end_date", store.ErrInvalidDateRange.Error())
		return false
	}
	return true
}

// List handles GET /api/v1/projects/{project_id}/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.Tasks)
	if !ok {
		return
	}
	page, pageSize := parsePagination(r)
	f := store.TaskFilter{ProjectID: req.ProjectID, Pagination: pagination(page, pageSize)}
	if v := r.URL.Query().Get("responsible_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			WriteValidationError(w, "responsible_id", "invalid id")
			return
		}
		f.ResponsibleID = &id
	}
	tasks, err := h.stores.Tasks.List(r.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	WritePaginated(w, tasks, page, pageSize)
}

// Create handles POST /api/v1/projects/{project_id}/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.Tasks)
	if !ok {
		return
	}
	p, err := h.project(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !h.object(w, r, h.rules.Tasks, req, p) {
		return
	}

	var body taskRequest
	if !decode(w, r, &body) {
		return
	}
	if body.Title == nil {
		WriteValidationError(w, "title", "title is required")
		return
	}
	t := &store.Task{
		ProjectID: p.ID,
		Status:    "todo",
		CreatedBy: &req.Actor.ID,
		UpdatedBy: &req.Actor.ID,
	}
	if !h.apply(r.Context(), w, &body, t) {
		return
	}
	if err := h.stores.Tasks.Create(r.Context(), t); err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, t)
}

func (h *TaskHandler) load(w http.ResponseWriter, r *http.Request) (*policy.Request, *store.Task, bool) {
	req, ok := h.collection(w, r, h.rules.Tasks)
	if !ok {
		return nil, nil, false
	}
	t, err := h.task(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return nil, nil, false
	}
	if !h.object(w, r, h.rules.Tasks, req, t) {
		return nil, nil, false
	}
	return req, t, true
}

// Get handles GET /api/v1/projects/{project_id}/tasks/{task_id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, t, ok := h.load(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

// Update handles PATCH /api/v1/projects/{project_id}/tasks/{task_id}.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, t, ok := h.load(w, r)
	if !ok {
		return
	}
	var body taskRequest
	if !decode(w, r, &body) {
		return
	}
	if body.ResponsibleID != nil && !responsible(t, *body.ResponsibleID) {
		if !h.object(w, r, h.rules.TaskManage, req, t) {
			return
		}
	}
	if !h.apply(r.Context(), w, &body, t) {
		return
	}
	t.UpdatedBy = &req.Actor.ID
	if err := h.stores.Tasks.Update(r.Context(), t); err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /api/v1/projects/{project_id}/tasks/{task_id}.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	req, t, ok := h.load(w, r)
	if !ok {
		return
	}
	if !h.object(w, r, h.rules.TaskManage, req, t) {
		return
	}
	if err := h.stores.Tasks.Delete(r.Context(), t.ID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func responsible(t *store.Task, userID uuid.UUID) bool {
	return t.ResponsibleID != nil && *t.ResponsibleID == userID
}
