package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
	// ErrConflict reports that a row changed underneath an in-flight transaction.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyMember is the (project, user) uniqueness violation. It wraps
	// ErrDuplicate.
	ErrAlreadyMember = fmt.Errorf("%w: project membership exists", ErrDuplicate)
)
