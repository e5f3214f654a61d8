// Package tenantscope carries the current tenant of a request through its
// context. The binding is per-request by construction: it lives and dies with
// the request context and can never leak between concurrent requests.
package tenantscope

import "context"

type ctxKey int

const (
	tenantKey ctxKey = iota
	allTenantsKey
)

// WithTenant binds the acting tenant into ctx.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// FromContext returns the bound tenant, if any. Data access against
// tenant-owned rows must refuse to run when ok is false.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// WithAllTenants marks ctx as deliberately crossing tenants. Only
// platform-admin operations may opt in, and only per call site.
func WithAllTenants(ctx context.Context) context.Context {
	return context.WithValue(ctx, allTenantsKey, true)
}

func AllTenants(ctx context.Context) bool {
	ok, _ := ctx.Value(allTenantsKey).(bool)
	return ok
}
