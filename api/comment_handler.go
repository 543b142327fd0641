package api

import (
	"net/http"
	"strings"

	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/store"
	"go.uber.org/zap"
)

// CommentHandler handles task comment endpoints.
type CommentHandler struct {
	base
}

// NewCommentHandler creates a new CommentHandler.
func NewCommentHandler(stores store.Stores, authz *policy.Authorizer, logger *zap.Logger) *CommentHandler {
	return &CommentHandler{base: newBase(stores, authz, logger)}
}

func (h *CommentHandler) routedTask(w http.ResponseWriter, r *http.Request) (*policy.Request, *store.Task, bool) {
	req, ok := h.collection(w, r, h.rules.Comments)
	if !ok {
		return nil, nil, false
	}
	t, err := h.task(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return nil, nil, false
	}
	return req, t, true
}

// List handles GET /api/v1/projects/{project_id}/tasks/{task_id}/comments.
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	_, t, ok := h.routedTask(w, r)
	if !ok {
		return
	}
	page, pageSize := parsePagination(r)
	comments, err := h.stores.Comments.List(r.Context(), store.CommentFilter{
		TaskID:     &t.ID,
		Pagination: pagination(page, pageSize),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	WritePaginated(w, comments, page, pageSize)
}

// Create handles POST /api/v1/projects/{project_id}/tasks/{task_id}/comments.
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, t, ok := h.routedTask(w, r)
	if !ok {
		return
	}
	var body struct {
		Body string `json:"body"`
	}
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Body) == "" {
		WriteValidationError(w, "body", "body is required")
		return
	}
	c := &store.Comment{TaskID: t.ID, AuthorID: req.Actor.ID, Body: body.Body}
	if err := h.stores.Comments.Create(r.Context(), c); err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, c)
}

func (h *CommentHandler) load(w http.ResponseWriter, r *http.Request) (*store.Comment, bool) {
	req, t, ok := h.routedTask(w, r)
	if !ok {
		return nil, false
	}
	id, err := mustPathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	c, err := h.stores.Comments.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	if c.TaskID != t.ID {
		h.fail(w, policy.ErrNotFound)
		return nil, false
	}
	if !h.object(w, r, h.rules.Comments, req, c) {
		return nil, false
	}
	return c, true
}

// Get handles GET .../comments/{id}.
func (h *CommentHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

// Update handles PATCH .../comments/{id}.
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	var body struct {
		Body string `json:"body"`
	}
	if !decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Body) == "" {
		WriteValidationError(w, "body", "body is required")
		return
	}
	c.Body = body.Body
	if err := h.stores.Comments.Update(r.Context(), c); err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, c)
}

// Delete handles DELETE .../comments/{id}.
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.stores.Comments.Delete(r.Context(), c.ID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
