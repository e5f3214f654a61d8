// Package entitlement answers whether a module is switched on for a tenant.
package entitlement

import (
	"context"
	"errors"
	"fmt"

	"coreconnect/internal/domain"

	"go.uber.org/zap"
)

// Store reads the per-tenant module entitlement status. Reads always name
// their tenant explicitly.
type Store interface {
	Status(ctx context.Context, tenantID, module string) (domain.ModuleStatus, error)
}

type Checker struct {
	store Store
	log   *zap.Logger
}

func NewChecker(store Store, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{store: store, log: logger}
}

// ModuleEnabled reports whether the identity's acting tenant has the module
// enabled or in trial. Platform admins pass unconditionally. Decisions are
// cached on the identity for the rest of the request; a store failure is an
// error, never an allow, and a missing row means disabled.
func (c *Checker) ModuleEnabled(ctx context.Context, id *domain.Identity, module string) (bool, error) {
	if id.IsPlatformAdmin {
		return true, nil
	}
	if id.ModuleAccess != nil {
		if allowed, ok := id.ModuleAccess[module]; ok {
			return allowed, nil
		}
	}
	if c.store == nil {
		return false, domain.ErrPolicyStoreUnavailable
	}

	status, err := c.store.Status(ctx, id.TenantID, module)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.cache(id, module, false)
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", domain.ErrPolicyStoreUnavailable, err)
	}
	allowed := status.Active()
	c.cache(id, module, allowed)
	return allowed, nil
}

func (c *Checker) cache(id *domain.Identity, module string, allowed bool) {
	if id.ModuleAccess == nil {
		id.ModuleAccess = make(map[string]bool)
	}
	id.ModuleAccess[module] = allowed
}
