package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/denusbtw/projecthub-sub000/audit"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler issues bearer tokens.
type AuthHandler struct {
	users  store.UserStore
	audit  *audit.Recorder
	secret []byte
	issuer string
	ttl    time.Duration
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users store.UserStore, rec *audit.Recorder, secret []byte, issuer string, ttl time.Duration, logger *zap.Logger) *AuthHandler {
	if ttl == 0 {
		ttl = time.Hour
	}
	return &AuthHandler{
		users:  users,
		audit:  rec,
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		logger: logger,
	}
}

// tokenResponse is the JSON shape returned to callers.
type tokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: token response field
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token handles POST /api/v1/auth/token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"` //nolint:gosec // G117: request DTO field
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ip := realIP(r)
	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil || !user.Active {
		h.audit.Auth(r.Context(), req.Email, ip, nil, false)
		WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.audit.Auth(r.Context(), req.Email, ip, &user.ID, false)
		WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.issue(user.ID, user.Email)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit.Auth(r.Context(), req.Email, ip, &user.ID, true)
	WriteJSON(w, http.StatusOK, token)
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) issue(userID uuid.UUID, email string) (*tokenResponse, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(h.ttl).Unix(),
	}
	if h.issuer != "" {
		claims["iss"] = h.issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return nil, err
	}
	return &tokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.ttl.Seconds()),
	}, nil
}
