package api

import (
	"net/http"
	"path"
	"strings"

	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AttachmentHandler handles attachment metadata endpoints. File bytes live
// in external storage addressed by StorageKey.
type AttachmentHandler struct {
	base
}

// NewAttachmentHandler creates a new AttachmentHandler.
func NewAttachmentHandler(stores store.Stores, authz *policy.Authorizer, logger *zap.Logger) *AttachmentHandler {
	return &AttachmentHandler{base: newBase(stores, authz, logger)}
}

func (h *AttachmentHandler) routedTask(w http.ResponseWriter, r *http.Request) (*policy.Request, *store.Task, bool) {
	req, ok := h.collection(w, r, h.rules.Attachments)
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

// List handles GET /api/v1/projects/{project_id}/tasks/{task_id}/attachments.
func (h *AttachmentHandler) List(w http.ResponseWriter, r *http.Request) {
	_, t, ok := h.routedTask(w, r)
	if !ok {
		return
	}
	page, pageSize := parsePagination(r)
	items, err := h.stores.Attachments.List(r.Context(), store.AttachmentFilter{
		TaskID:     &t.ID,
		Pagination: pagination(page, pageSize),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	WritePaginated(w, items, page, pageSize)
}

// Create handles POST /api/v1/projects/{project_id}/tasks/{task_id}/attachments.
func (h *AttachmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, t, ok := h.routedTask(w, r)
	if !ok {
		return
	}
	var body struct {
		FileName    string     `json:"file_name"`
		ContentType string     `json:"content_type"`
		Size        int64      `json:"size"`
		CommentID   *uuid.UUID `json:"comment_id"`
	}
	if !decode(w, r, &body) {
		return
	}
	name := path.Base(strings.TrimSpace(body.FileName))
	if name == "" || name == "." || name == "/" {
		WriteValidationError(w, "file_name", "file name is required")
		return
	}
	if body.Size < 0 {
		WriteValidationError(w, "size", "size must not be negative")
		return
	}
	if body.CommentID != nil {
		c, err := h.stores.Comments.Get(r.Context(), *body.CommentID)
		if err != nil || c.TaskID != t.ID {
			WriteValidationError(w, "comment_id", "comment does not belong to the task")
			return
		}
	}

	a := &store.Attachment{
		ID:          uuid.New(),
		TaskID:      t.ID,
		CommentID:   body.CommentID,
		UploadedBy:  req.Actor.ID,
		FileName:    name,
		ContentType: body.ContentType,
		Size:        body.Size,
	}
	a.StorageKey = path.Join("tasks", t.ID.String(), a.ID.String(), name)
	if err := h.stores.Attachments.Create(r.Context(), a); err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, a)
}

func (h *AttachmentHandler) load(w http.ResponseWriter, r *http.Request) (*store.Attachment, bool) {
	req, t, ok := h.routedTask(w, r)
	if !ok {
		return nil, false
	}
	id, err := mustPathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	a, err := h.stores.Attachments.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	if a.TaskID != t.ID {
		h.fail(w, policy.ErrNotFound)
		return nil, false
	}
	if !h.object(w, r, h.rules.Attachments, req, a) {
		return nil, false
	}
	return a, true
}

// Get handles GET .../attachments/{id}.
func (h *AttachmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

// Delete handles DELETE .../attachments/{id}.
func (h *AttachmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.stores.Attachments.Delete(r.Context(), a.ID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
