// Package policy evaluates composable access policies at two levels: a
// collection check made before any resource is loaded, and an object check
// made against a loaded resource.
package policy

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
)

// Sentinel errors surfaced by guards.
var (
	// ErrAuthenticationRequired means the actor is anonymous where identity
	// is mandatory. It is never downgraded to a plain deny.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrNotFound hides the resource from actors not eligible to know it exists.
	ErrNotFound = errors.New("not found")
	// ErrForbidden denies an operation on a resource the actor may see.
	ErrForbidden = errors.New("forbidden")
)

// Request is the explicit context of one authorization decision.
type Request struct {
	// Actor is nil for anonymous requests.
	Actor *store.User
	// Tenant is the tenant resolved by the gate, nil when none was resolved.
	Tenant *store.Tenant
	// Method is the HTTP method of the operation.
	Method string
	// ProjectID and TaskID come from the route, when present.
	ProjectID *uuid.UUID
	TaskID    *uuid.UUID
}

// Safe reports whether the operation does not mutate state.
func (r *Request) Safe() bool {
	switch strings.ToUpper(r.Method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// Policy is a composable access predicate.
type Policy interface {
	// Collection is evaluated before any specific resource is loaded.
	Collection(ctx context.Context, req *Request) (bool, error)
	// Object is evaluated against a loaded resource.
	Object(ctx context.Context, req *Request, obj any) (bool, error)
	String() string
}

// Predicate is a leaf policy built from two functions. A nil function grants.
type Predicate struct {
	Name           string
	CollectionFunc func(ctx context.Context, req *Request) (bool, error)
	ObjectFunc     func(ctx context.Context, req *Request, obj any) (bool, error)
}

func (p *Predicate) Collection(ctx context.Context, req *Request) (bool, error) {
	if p.CollectionFunc == nil {
		return true, nil
	}
	return p.CollectionFunc(ctx, req)
}

func (p *Predicate) Object(ctx context.Context, req *Request, obj any) (bool, error) {
	if p.ObjectFunc == nil {
		return true, nil
	}
	return p.ObjectFunc(ctx, req, obj)
}

func (p *Predicate) String() string { return p.Name }

// AndPolicy grants when both sides grant. At object level each side must pass
// its own collection check before its object check is consulted.
type AndPolicy struct {
	Left, Right Policy
}

// And returns l AND r.
func And(l, r Policy) Policy { return &AndPolicy{Left: l, Right: r} }

func (p *AndPolicy) Collection(ctx context.Context, req *Request) (bool, error) {
	ok, err := p.Left.Collection(ctx, req)
	if err != nil || !ok {
		return false, err
	}
	return p.Right.Collection(ctx, req)
}

func (p *AndPolicy) Object(ctx context.Context, req *Request, obj any) (bool, error) {
	ok, err := full(ctx, p.Left, req, obj)
	if err != nil || !ok {
		return false, err
	}
	return full(ctx, p.Right, req, obj)
}

func (p *AndPolicy) String() string { return "(" + p.Left.String() + " & " + p.Right.String() + ")" }

// OrPolicy grants when either side grants. At object level a side counts
// only if its own collection check also passes.
type OrPolicy struct {
	Left, Right Policy
}

// Or returns l OR r.
func Or(l, r Policy) Policy { return &OrPolicy{Left: l, Right: r} }

func (p *OrPolicy) Collection(ctx context.Context, req *Request) (bool, error) {
	ok, err := p.Left.Collection(ctx, req)
	if err != nil || ok {
		return ok, err
	}
	return p.Right.Collection(ctx, req)
}

func (p *OrPolicy) Object(ctx context.Context, req *Request, obj any) (bool, error) {
	ok, err := full(ctx, p.Left, req, obj)
	if err != nil || ok {
		return ok, err
	}
	return full(ctx, p.Right, req, obj)
}

func (p *OrPolicy) String() string { return "(" + p.Left.String() + " | " + p.Right.String() + ")" }

// NotPolicy inverts both results of its operand. Errors pass through.
type NotPolicy struct {
	Inner Policy
}

// Not returns NOT p.
func Not(p Policy) Policy { return &NotPolicy{Inner: p} }

func (p *NotPolicy) Collection(ctx context.Context, req *Request) (bool, error) {
	ok, err := p.Inner.Collection(ctx, req)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (p *NotPolicy) Object(ctx context.Context, req *Request, obj any) (bool, error) {
	ok, err := p.Inner.Object(ctx, req, obj)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (p *NotPolicy) String() string { return "~" + p.Inner.String() }

// All folds ps left with And. It panics when ps is empty.
func All(ps ...Policy) Policy {
	if len(ps) == 0 {
		panic("policy: All requires at least one policy")
	}
	out := ps[0]
	for _, p := range ps[1:] {
		out = And(out, p)
	}
	return out
}

// Any folds ps left with Or. It panics when ps is empty.
func Any(ps ...Policy) Policy {
	if len(ps) == 0 {
		panic("policy: Any requires at least one policy")
	}
	out := ps[0]
	for _, p := range ps[1:] {
		out = Or(out, p)
	}
	return out
}

// full evaluates p's collection check and then its object check.
func full(ctx context.Context, p Policy, req *Request, obj any) (bool, error) {
	ok, err := p.Collection(ctx, req)
	if err != nil || !ok {
		return false, err
	}
	return p.Object(ctx, req, obj)
}
