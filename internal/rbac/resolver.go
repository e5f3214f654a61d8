// Package rbac resolves roles and permissions for an identity against the
// policy store, reconciling them with token-carried claims according to the
// process-wide enforcement mode.
package rbac

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"coreconnect/internal/domain"

	"go.uber.org/zap"
)

// PolicyStore is the authoritative source of role assignments and role
// permission memberships. Lookups cover roles assigned for the given tenant
// plus platform-scoped roles that apply regardless of tenant.
type PolicyStore interface {
	UserRoles(ctx context.Context, userID, tenantID string) ([]string, error)
	UserPermissions(ctx context.Context, userID, tenantID string) ([]string, error)
}

type Resolver struct {
	store PolicyStore
	mode  domain.EnforcementMode
	log   *zap.Logger
}

func NewResolver(store PolicyStore, mode domain.EnforcementMode, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, mode: mode, log: logger}
}

// HasPermission reports whether the identity holds the permission key.
// Platform admins always pass. The policy-store round trip happens at most
// once per identity; a store failure is an error, never an allow.
func (r *Resolver) HasPermission(ctx context.Context, id *domain.Identity, key string) (bool, error) {
	if id.IsPlatformAdmin {
		return true, nil
	}
	if r.mode.Warn() && id.HasPermissionClaim(key) {
		return true, nil
	}
	if err := r.load(ctx, id); err != nil {
		return false, err
	}
	return id.HasPermissionClaim(key), nil
}

// HasRole reports whether the identity holds the role name, with the same
// admin bypass, reconciliation and memoization rules as HasPermission.
func (r *Resolver) HasRole(ctx context.Context, id *domain.Identity, name string) (bool, error) {
	if id.IsPlatformAdmin {
		return true, nil
	}
	if r.mode.Warn() && id.HasRoleClaim(name) {
		return true, nil
	}
	if err := r.load(ctx, id); err != nil {
		return false, err
	}
	return id.HasRoleClaim(name), nil
}

func (r *Resolver) load(ctx context.Context, id *domain.Identity) error {
	if id.RBACLoaded {
		return nil
	}
	if r.store == nil {
		return domain.ErrPolicyStoreUnavailable
	}

	roles, err := r.store.UserRoles(ctx, id.UserID, id.TenantID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPolicyStoreUnavailable, err)
	}
	permissions, err := r.store.UserPermissions(ctx, id.UserID, id.TenantID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPolicyStoreUnavailable, err)
	}

	if r.mode.Warn() {
		// Advisory mode: the store only widens what the token already claims.
		id.Roles = mergeSorted(id.Roles, roles)
		id.Permissions = mergeSorted(id.Permissions, permissions)
	} else {
		// Strict mode: the store is authoritative and replaces the claims.
		id.Roles = roles
		id.Permissions = permissions
	}

	// Only the reserved markers can upgrade to platform admin; a
	// tenant-scoped role never does.
	if id.HasRoleClaim(domain.PlatformAdminRole) || id.HasPermissionClaim(domain.PlatformAdminPermission) {
		id.IsPlatformAdmin = true
	}
	id.RBACLoaded = true
	return nil
}

// PermissionForRequest maps an HTTP method onto the coarse module-scoped
// action the caller must hold.
func PermissionForRequest(moduleKey, method string) (string, bool) {
	if moduleKey == "" {
		return "", false
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return moduleKey + ".read", true
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return moduleKey + ".write", true
	default:
		return "", false
	}
}

// WriteMethod reports whether the method mutates state, for audit purposes.
func WriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func mergeSorted(current, extra []string) []string {
	seen := make(map[string]struct{}, len(current)+len(extra))
	out := make([]string, 0, len(current)+len(extra))
	for _, lists := range [][]string{current, extra} {
		for _, v := range lists {
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
