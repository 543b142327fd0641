package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/store"
	"go.uber.org/zap"
)

// ProjectHandler handles project CRUD endpoints.
type ProjectHandler struct {
	base
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(stores store.Stores, authz *policy.Authorizer, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{base: newBase(stores, authz, logger)}
}

type projectRequest struct {
	Name        *string              `json:"name"`
	Description *string              `json:"description"`
	Status      *store.ProjectStatus `json:"status"`
	StartDate   *time.Time           `json:"start_date"`
	EndDate     *time.Time           `json:"end_date"`
}

// apply copies the supplied fields onto p and reports the first invalid one.
func (req *projectRequest) apply(w http.ResponseWriter, p *store.Project) bool {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			WriteValidationError(w, "name", "name is required")
			return false
		}
		p.Name = name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Status != nil {
		if !store.ValidProjectStatuses[*req.Status] {
			WriteValidationError(w, "status", "invalid project status")
			return false
		}
		p.Status = *req.Status
	}
	if req.StartDate != nil {
		p.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		p.EndDate = req.EndDate
	}
	return true
}

// List handles GET /api/v1/projects. Tenant owners and platform admins see
// every project of the tenant; other members see the projects they belong to.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.ProjectList)
	if !ok {
		return
	}
	all, err := h.seesAllProjects(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}

	page, pageSize := parsePagination(r)
	f := store.ProjectFilter{
		TenantID:   &req.Tenant.ID,
		Status:     store.ProjectStatus(r.URL.Query().Get("status")),
		Pagination: pagination(page, pageSize),
	}
	if !all {
		f.MemberID = &req.Actor.ID
	}
	projects, err := h.stores.Projects.List(r.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	WritePaginated(w, projects, page, pageSize)
}

// Create handles POST /api/v1/projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.ProjectCreate)
	if !ok {
		return
	}
	var body projectRequest
	if !decode(w, r, &body) {
		return
	}
	if body.Name == nil {
		WriteValidationError(w, "name", "name is required")
		return
	}

	p := &store.Project{
		TenantID:  req.Tenant.ID,
		CreatedBy: &req.Actor.ID,
		UpdatedBy: &req.Actor.ID,
	}
	if !body.apply(w, p) {
		return
	}
	if err := h.stores.Projects.Create(r.Context(), p); err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, p)
}

// load authorizes g for the routed project and returns it.
func (h *ProjectHandler) load(w http.ResponseWriter, r *http.Request, g *policy.Guard) (*policy.Request, *store.Project, bool) {
	req, ok := h.collection(w, r, g)
	if !ok {
		return nil, nil, false
	}
	p, err := h.project(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return nil, nil, false
	}
	if !h.object(w, r, g, req, p) {
		return nil, nil, false
	}
	return req, p, true
}

// Get handles GET /api/v1/projects/{project_id}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, p, ok := h.load(w, r, h.rules.Project)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// Update handles PATCH /api/v1/projects/{project_id}.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, p, ok := h.load(w, r, h.rules.Project)
	if !ok {
		return
	}
	var body projectRequest
	if !decode(w, r, &body) {
		return
	}
	if !body.apply(w, p) {
		return
	}
	if body.Status != nil && *body.Status == store.ProjectStatusArchived && p.CloseDate == nil {
		now := time.Now()
		p.CloseDate = &now
	}
	p.UpdatedBy = &req.Actor.ID
	if err := h.stores.Projects.Update(r.Context(), p); err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// Delete handles DELETE /api/v1/projects/{project_id}.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	_, p, ok := h.load(w, r, h.rules.ProjectDelete)
	if !ok {
		return
	}
	if err := h.stores.Projects.Delete(r.Context(), p.ID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
