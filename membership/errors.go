package membership

import (
	"fmt"

	"github.com/denusbtw/projecthub-sub000/role"
	"github.com/denusbtw/projecthub-sub000/store"
)

// ValidationError is a rejected membership change. Field is "role" or "user".
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// ConflictError reports that a role slot changed between the pre-check and
// the commit. The caller may reload and retry.
type ConflictError struct {
	Role role.Project
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("role %s changed concurrently", e.Role)
}

func (e *ConflictError) Unwrap() error { return store.ErrConflict }

// Rejection messages.
const (
	msgInvalidRole       = "invalid role"
	msgHigherThanOwn     = "cannot assign role higher than your own"
	msgOutranked         = "cannot change the role of a member ranked above you"
	msgFreeRoleFirst     = "must free the role first"
	msgNotTenantMember   = "user is not a member of this tenant"
	msgTenantOwner       = "the tenant owner cannot be added as a project member"
	msgActingParty       = "user already holds the project owner or supervisor role"
	msgAlreadyMember     = "user is already a member of this project"
	msgWrongProject      = "membership does not belong to this project"
	msgCannotRemove      = "cannot remove a member ranked at or above you"
	msgTenantHasOwner    = "tenant already has an owner"
	msgOwnerGrant        = "only the tenant owner can assign the owner role"
	msgLastOwner         = "the tenant owner cannot leave the tenant"
	msgTenantMemberExist = "user is already a member of this tenant"
)
