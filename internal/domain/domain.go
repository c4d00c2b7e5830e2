// Package domain holds the pieces shared by every domain service: the
// explicit caller identity and the error kinds the API maps to responses.
package domain

import "errors"

// Error kinds. Package-level sentinels wrap exactly one of these so callers
// can branch with errors.Is without knowing the concrete sentinel.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrEmptyCart  = errors.New("cart is empty")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Caller is the identity resolved by the access-control layer before any
// domain operation runs. The domain trusts it as given.
type Caller struct {
	UserID string
	Email  string
	Role   Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

func (c Caller) Authenticated() bool { return c.UserID != "" }

// RequireAdmin returns ErrForbidden unless the caller is an administrator.
func RequireAdmin(c Caller) error {
	if !c.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// Kind reports which error kind err belongs to, or nil for unclassified
// errors.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrEmptyCart, ErrForbidden, ErrConflict} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
