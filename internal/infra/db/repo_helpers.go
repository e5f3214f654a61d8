package db

import (
	"context"
	"errors"

	"coreconnect/internal/domain"
	"coreconnect/internal/tenantscope"

	"github.com/google/uuid"
)

var errDBUnavailable = errors.New("db unavailable")

// requireScope permits touching tenantID's rows only when ctx is bound to
// that tenant or the caller opted into the all-tenants escape hatch. Raw-SQL
// reads and upserts cannot take the scoped handle's injected filter, so they
// check the binding explicitly.
func requireScope(ctx context.Context, tenantID string) error {
	if tenantscope.AllTenants(ctx) {
		return nil
	}
	bound, ok := tenantscope.FromContext(ctx)
	if !ok || bound != tenantID {
		return domain.ErrTenantScopeRequired
	}
	return nil
}

func newUUID() string {
	return uuid.NewString()
}
