package auth

import (
	"context"
)

// HeaderUserID carries the authenticated user id; every collection is scoped by it.
const HeaderUserID = "X-User-ID"

type tenantKey struct{}

func WithTenant(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, tenantKey{}, uid)
}

// TenantFrom returns the user id stored by the auth middleware, or "".
func TenantFrom(ctx context.Context) string {
	if val, ok := ctx.Value(tenantKey{}).(string); ok {
		return val
	}
	return ""
}
