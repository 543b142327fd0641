package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/denusbtw/projecthub-sub000/logging"
	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Middleware holds dependencies needed by the HTTP middleware chain.
type Middleware struct {
	jwtSecret []byte
	issuer    string
	users     store.UserStore
	logger    *zap.Logger
	metrics   *metrics.Collector
	logins    *loginLimiter
}

// NewMiddleware builds the middleware set. logger and m may be nil.
func NewMiddleware(jwtSecret []byte, issuer string, users store.UserStore, logger *zap.Logger, m *metrics.Collector) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		jwtSecret: jwtSecret,
		issuer:    issuer,
		users:     users,
		logger:    logger,
		metrics:   m,
	}
}

// Authenticate loads the user named by a Bearer token into the context.
// Requests without a token continue anonymously so the policy layer can
// decide; a token that fails validation is rejected with 401.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.authenticate(r)
		if err != nil {
			m.logger.Debug("bearer token rejected", zap.Error(err))
			WriteError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(SetUserContext(r.Context(), user)))
	})
}

// realIP returns the client address: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote address.
func realIP(r *http.Request) string {
	candidates := []string{r.Header.Get("X-Real-IP")}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		candidates = append([]string{first}, candidates...)
	}
	for _, c := range candidates {
		if ip := net.ParseIP(strings.TrimSpace(c)); ip != nil {
			return ip.String()
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

var errBadToken = errors.New("invalid bearer token")

// authenticate validates the Bearer token of r and loads its subject. Only
// HS256 tokens from the configured issuer are accepted.
func (m *Middleware) authenticate(r *http.Request) (*store.User, error) {
	scheme, raw, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
		return nil, errBadToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	var claims jwt.RegisteredClaims
	if _, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.jwtSecret, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadToken, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject %q", errBadToken, claims.Subject)
	}

	user, err := m.users.Get(r.Context(), userID)
	if err != nil {
		return nil, fmt.Errorf("load token subject: %w", err)
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: user %s is inactive", errBadToken, user.ID)
	}
	return user, nil
}

// routeKey carries the matched route pattern back out to Logging.
type routeKey struct{}

type routeHolder struct{ pattern string }

// tagRoute records pattern for the request metrics of Logging.
func tagRoute(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := r.Context().Value(routeKey{}).(*routeHolder); ok {
			h.pattern = pattern
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging assigns a request id, logs one line per request and records
// request metrics.
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		holder := &routeHolder{pattern: "unmatched"}
		ctx := logging.ContextWithRequestID(r.Context(), id)
		ctx = context.WithValue(ctx, routeKey{}, holder)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		elapsed := time.Since(start)
		m.metrics.RecordHTTPRequest(r.Method, holder.pattern, rec.status, elapsed)
		logging.WithRequest(ctx, m.logger).Info("request",
			zap.String("method", r.Method),
			zap.String("host", r.Host),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", elapsed))
	})
}

// Recover turns a panic into a 500 response.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logging.WithRequest(r.Context(), m.logger).Error("panic in handler",
					zap.Any("panic", v), zap.Stack("stack"))
				WriteError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
