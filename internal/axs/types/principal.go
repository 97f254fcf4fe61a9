package types

import "context"

type Role string

const (
	RoleUser     Role = "user"
	RoleBusiness Role = "business"
	RoleAdmin    Role = "admin"
	RoleScanner  Role = "scanner"
)

// Principal is the authenticated caller as asserted by the identity service.
type Principal struct {
	UserID     string
	BusinessID string
	Role       Role
}

func (p Principal) IsZero() bool { return p.UserID == "" && p.Role == "" }

// Staff reports whether the principal acts on behalf of a business or the
// platform rather than as a pass holder.
func (p Principal) Staff() bool {
	return p.Role == RoleAdmin || p.Role == RoleBusiness || p.Role == RoleScanner
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
