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

// TenantMemberHandler handles membership endpoints of the resolved tenant.
type TenantMemberHandler struct {
	base
	engine *membership.TenantEngine
}

// NewTenantMemberHandler creates a new TenantMemberHandler.
func NewTenantMemberHandler(stores store.Stores, engine *membership.TenantEngine, authz *policy.Authorizer, logger *zap.Logger) *TenantMemberHandler {
	return &TenantMemberHandler{base: newBase(stores, authz, logger), engine: engine}
}

// List handles GET /api/v1/tenant/members.
func (h *TenantMemberHandler) List(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.TenantMembers)
	if !ok {
		return
	}
	page, pageSize := parsePagination(r)
	members, err := h.stores.TenantMemberships.List(r.Context(), store.TenantMembershipFilter{
		TenantID:   &req.Tenant.ID,
		Role:       role.Tenant(r.URL.Query().Get("role")),
		Pagination: pagination(page, pageSize),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	WritePaginated(w, members, page, pageSize)
}

// Create handles POST /api/v1/tenant/members.
func (h *TenantMemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.TenantMembers)
	if !ok {
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
	if _, err := h.stores.Users.Get(r.Context(), body.UserID); err != nil {
		WriteValidationError(w, "user", "user does not exist")
		return
	}

	m, err := h.engine.Assign(r.Context(), membership.TenantAssignRequest{
		Actor:        req.Actor,
		Tenant:       req.Tenant,
		TargetUserID: body.UserID,
		Role:         role.Tenant(body.Role),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, m)
}

func (h *TenantMemberHandler) load(w http.ResponseWriter, r *http.Request, g *policy.Guard) (*policy.Request, *store.TenantMembership, bool) {
	req, ok := h.collection(w, r, g)
	if !ok {
		return nil, nil, false
	}
	id, err := mustPathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return nil, nil, false
	}
	m, err := h.stores.TenantMemberships.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return nil, nil, false
	}
	if !h.object(w, r, g, req, m) {
		return nil, nil, false
	}
	return req, m, true
}

// Get handles GET /api/v1/tenant/members/{id}.
func (h *TenantMemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	_, m, ok := h.load(w, r, h.rules.TenantMembers)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, m)
}

// Update handles PATCH /api/v1/tenant/members/{id}.
func (h *TenantMemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, m, ok := h.load(w, r, h.rules.TenantMembers)
	if !ok {
		return
	}
	var body struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &body) {
		return
	}
	updated, err := h.engine.Assign(r.Context(), membership.TenantAssignRequest{
		Actor:    req.Actor,
		Tenant:   req.Tenant,
		Role:     role.Tenant(body.Role),
		Existing: m,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/tenant/members/{id}.
func (h *TenantMemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	req, m, ok := h.load(w, r, h.rules.TenantMemberDelete)
	if !ok {
		return
	}
	if err := h.engine.Remove(r.Context(), req.Actor, req.Tenant, m); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
