package api

import (
	"net/http"
	"strings"

	"github.com/denusbtw/projecthub-sub000/policy"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/denusbtw/projecthub-sub000/tenant"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminHandler serves the platform administration endpoints. They sit under
// an exempt prefix and are not bound to a tenant.
type AdminHandler struct {
	base
	cache *tenant.Cache
}

// NewAdminHandler creates a new AdminHandler. cache may be nil.
func NewAdminHandler(stores store.Stores, cache *tenant.Cache, authz *policy.Authorizer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{base: newBase(stores, authz, logger), cache: cache}
}

// CreateTenant handles POST /admin/tenants.
func (h *AdminHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.Admin)
	if !ok {
		return
	}
	var body struct {
		Name      string `json:"name"`
		Subdomain string `json:"subdomain"`
	}
	if !decode(w, r, &body) {
		return
	}
	body.Subdomain = strings.ToLower(strings.TrimSpace(body.Subdomain))
	if !tenant.ValidSubdomain(body.Subdomain) {
		WriteValidationError(w, "subdomain", "subdomain must be a DNS label")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		body.Name = body.Subdomain
	}

	t := &store.Tenant{
		Name:      body.Name,
		Subdomain: body.Subdomain,
		Active:    true,
		CreatedBy: &req.Actor.ID,
		UpdatedBy: &req.Actor.ID,
	}
	if err := h.stores.Tenants.Create(r.Context(), t); err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, t)
}

// UpdateTenant handles PATCH /admin/tenants/{id}.
func (h *AdminHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	req, ok := h.collection(w, r, h.rules.Admin)
	if !ok {
		return
	}
	id, err := mustPathID(r, "id")
	if err != nil {
		h.fail(w, err)
		return
	}
	t, err := h.stores.Tenants.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	var body struct {
		Name      *string `json:"name"`
		Subdomain *string `json:"subdomain"`
		Active    *bool   `json:"active"`
	}
	if !decode(w, r, &body) {
		return
	}

	previous := t.Subdomain
	if body.Name != nil {
		t.Name = *body.Name
	}
	if body.Subdomain != nil {
		sub := strings.ToLower(strings.TrimSpace(*body.Subdomain))
		if !tenant.ValidSubdomain(sub) {
			WriteValidationError(w, "subdomain", "subdomain must be a DNS label")
			return
		}
		t.Subdomain = sub
	}
	if body.Active != nil {
		t.Active = *body.Active
	}
	t.UpdatedBy = &req.Actor.ID
	if err := h.stores.Tenants.Update(r.Context(), t); err != nil {
		h.fail(w, err)
		return
	}
	if h.cache != nil && previous != t.Subdomain {
		if err := h.cache.Invalidate(r.Context(), previous); err != nil {
			h.logger.Warn("tenant cache invalidate failed", zap.String("subdomain", previous), zap.Error(err))
		}
	}
	WriteJSON(w, http.StatusOK, t)
}

// CreateUser handles POST /admin/users.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.collection(w, r, h.rules.Admin); !ok {
		return
	}
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"` //nolint:gosec // G117: request DTO field
		DisplayName string `json:"display_name"`
		IsAdmin     bool   `json:"is_admin"`
	}
	if !decode(w, r, &body) {
		return
	}
	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	if body.Email == "" {
		WriteValidationError(w, "email", "email is required")
		return
	}
	if len(body.Password) < 8 {
		WriteValidationError(w, "password", "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		h.fail(w, err)
		return
	}
	u := &store.User{
		Email:        body.Email,
		PasswordHash: string(hash),
		DisplayName:  body.DisplayName,
		IsAdmin:      body.IsAdmin,
		Active:       true,
	}
	if err := h.stores.Users.Create(r.Context(), u); err != nil {
		h.fail(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, u)
}
