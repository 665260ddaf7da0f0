package common

import "context"

// Role identifies the capability level of an authenticated caller.
type Role string

const (
	// RoleStaff may drive forward order transitions and stock writes.
	RoleStaff Role = "staff"
	// RoleAdmin has staff capabilities plus tenant administration.
	RoleAdmin Role = "admin"
	// RoleCustomer is a QR/kiosk customer identified by phone.
	RoleCustomer Role = "customer"
)

// Principal is the resolved identity supplied by the identity collaborator.
// The core never parses tokens; it consumes this value from the context.
type Principal struct {
	UserID   string
	Role     Role
	TenantID string
	Phone    string
}

// IsStaff reports whether the principal may perform staff-gated operations.
func (p Principal) IsStaff() bool {
	return p.Role == RoleStaff || p.Role == RoleAdmin
}

type ctxKey string

const principalKey ctxKey = "auth/principal"

// WithPrincipal stores the resolved principal on the provided context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the resolved principal from the context if present.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalKey)
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
