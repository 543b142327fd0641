package api

import (
	"net/http"

	"github.com/denusbtw/projecthub-sub000/membership"
	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemberHandler handles project membership endpoints. Role changes go through
// the membership engine.
type MemberHandler struct {
	base
	engine *membership.Engine
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(stores store.Stores, engine *membership.Engine, authz *policy.Authorizer, logger *zap.Logger) *MemberHandler {
	return &MemberHandler{base: newBase(stores, authz, logger), engine: engine}
}

// assignResponse reports the changed membership and every demoted holder.
type assignResponse struct {
	Membership *store.ProjectMembership   `json:"membership"`
	Demoted    []*store.ProjectMembership `json:"demoted"`
}

func newAssignResponse(res *membership.AssignResult) assignResponse {
	demoted := res.Demoted
	if demoted == nil {
		demoted = []*store.ProjectMembership{}
	}
	return assignResponse{Membership: res.Membership, Demoted: demoted}
}

// List handles GET /api/v1/projects/{project_id}/members.
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.ProjectMembers)
	if !ok {
		return
	}
	page, pageSize := parsePagination(r)
	members, err := h.stores.ProjectMemberships.List(r.Context(), store.ProjectMembershipFilter{
		ProjectID:  req.ProjectID,
		Role:       role.Project(r.URL.Query().Get("role")),
		Pagination: pagination(page, pageSize),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	WritePaginated(w, members, page, pageSize)
}

// Create handles POST /api/v1/projects/{project_id}/members.
func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.ProjectMembers)
	if !ok {
		return
	}
	p, err := h.project(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !h.object(w, r, h.rules.ProjectMembers, req, p) {
		return
	}

	var body struct {
		UserID uuid.UUID `json:"user_id"`
		Role   string    `json:"role"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.UserID == uuid.Nil {
		WriteValidationError(w, "user", "user is required")
		return
	}

	res, err := h.engine.Assign(r.Context(), membership.AssignRequest{
		Actor:        req.Actor,
		Tenant:       req.Tenant,
		Project:      p,
		TargetUserID: body.UserID,
		Role:         role.Project(body.Role),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, newAssignResponse(res))
}

// load authorizes g for the routed membership and returns it with its project.
func (h *MemberHandler) load(w http.ResponseWriter, r *http.Request, g *policy.Guard) (*policy.Request, *store.Project, *store.ProjectMembership, bool) {
	req, ok := h.collection(w, r, g)
	if !ok {
		return nil, nil, nil, false
	}
	id, err := mustPathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return nil, nil, nil, false
	}
	p, err := h.project(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return nil, nil, nil, false
	}
	m, err := h.stores.ProjectMemberships.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return nil, nil, nil, false
	}
	if m.ProjectID != p.ID {
		h.fail(w, policy.ErrNotFound)
		return nil, nil, nil, false
	}
	if !h.object(w, r, g, req, m) {
		return nil, nil, nil, false
	}
	return req, p, m, true
}

// Get handles GET /api/v1/projects/{project_id}/members/{id}.
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, _, m, ok := h.load(w, r, h.rules.ProjectMembers)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

// Update handles PATCH /api/v1/projects/{project_id}/members/{id}.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, p, m, ok := h.load(w, r, h.rules.ProjectMembers)
	if !ok {
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &body) {
		return
	}

	res, err := h.engine.Assign(r.Context(), membership.AssignRequest{
		Actor:        req.Actor,
		Tenant:       req.Tenant,
		Project:      p,
		TargetUserID: m.UserID,
		Role:         role.Project(body.Role),
		Existing:     m,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newAssignResponse(res))
}

// Delete handles DELETE /api/v1/projects/{project_id}/members/{id}.
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	req, p, m, ok := h.load(w, r, h.rules.ProjectMemberDelete)
	if !ok {
		return
	}
	err := h.engine.Remove(r.Context(), membership.RemoveRequest{
		Actor:      req.Actor,
		Tenant:     req.Tenant,
		Project:    p,
		Membership: m,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
