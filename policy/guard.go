package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/denusbtw/projecthub-sub000/store"
	"go.uber.org/zap"
)

// Guard pairs the two authorization layers of an endpoint. Access denials
// surface as ErrNotFound so the resource's existence is not leaked;
// Permission denials surface as ErrForbidden. A nil layer grants.
type Guard struct {
	Name       string
	Access     Policy
	Permission Policy
}

// Collection runs both layers' collection checks.
func (g *Guard) Collection(ctx context.Context, req *Request) error {
	if g.Access != nil {
		ok, err := g.Access.Collection(ctx, req)
		if err != nil {
			return classify(err)
		}
		if !ok {
			return ErrNotFound
		}
	}
	if g.Permission != nil {
		ok, err := g.Permission.Collection(ctx, req)
		if err != nil {
			return classify(err)
		}
		if !ok {
			return ErrForbidden
		}
	}
	return nil
}

// Object runs both layers' collection and object checks against obj.
func (g *Guard) Object(ctx context.Context, req *Request, obj any) error {
	if g.Access != nil {
		ok, err := full(ctx, g.Access, req, obj)
		if err != nil {
			return classify(err)
		}
		if !ok {
			return ErrNotFound
		}
	}
	if g.Permission != nil {
		ok, err := full(ctx, g.Permission, req, obj)
		if err != nil {
			return classify(err)
		}
		if !ok {
			return ErrForbidden
		}
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrAuthenticationRequired), errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		return err
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	}
	return fmt.Errorf("evaluate policy: %w", err)
}

// Authorizer runs guards and records every decision.
type Authorizer struct {
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewAuthorizer creates an Authorizer. Both arguments may be nil.
func NewAuthorizer(logger *zap.Logger, m *metrics.Collector) *Authorizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authorizer{logger: logger, metrics: m}
}

// Collection evaluates g before a resource is loaded.
func (a *Authorizer) Collection(ctx context.Context, g *Guard, req *Request) error {
	err := g.Collection(ctx, req)
	a.observe(g, "collection", req, err)
	return err
}

// Object evaluates g against a loaded resource.
func (a *Authorizer) Object(ctx context.Context, g *Guard, req *Request, obj any) error {
	err := g.Object(ctx, req, obj)
	a.observe(g, "object", req, err)
	return err
}

func (a *Authorizer) observe(g *Guard, level string, req *Request, err error) {
	outcome := Outcome(err)
	a.metrics.RecordAuthz(g.Name, level, outcome)
	if ce := a.logger.Check(zap.DebugLevel, "authorization decision"); ce != nil {
		fields := []zap.Field{
			zap.String("guard", g.Name),
			zap.String("level", level),
			zap.String("method", req.Method),
			zap.String("outcome", outcome),
		}
		if req.Actor != nil {
			fields = append(fields, zap.Stringer("actor", req.Actor.ID))
		}
		if req.Tenant != nil {
			fields = append(fields, zap.String("tenant", req.Tenant.Subdomain))
		}
		if outcome == "error" {
			fields = append(fields, zap.Error(err))
		}
		ce.Write(fields...)
	}
}

// Outcome labels a guard result.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, ErrAuthenticationRequired):
		return "unauthenticated"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}
	return "error"
}
