package db

import (
	"context"
)

// PolicyRepository answers the RBAC joins: which roles a user holds for a
// tenant (or platform-wide), and which permission keys those roles carry.
// Both reads are raw SQL, so the tenant-scope binding is checked up front
// instead of through the scoped handle.
type PolicyRepository struct {
	store *Store
}

func NewPolicyRepository(store *Store) *PolicyRepository {
	return &PolicyRepository{store: store}
}

func (r *PolicyRepository) UserRoles(ctx context.Context, userID, tenantID string) ([]string, error) {
	if r.store == nil || r.store.DB == nil {
		return nil, errDBUnavailable
	}
	if err := requireScope(ctx, tenantID); err != nil {
		return nil, err
	}
	var names []string
	err := r.store.DB.WithContext(ctx).Raw(`
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = @user_id
		  and (ur.tenant_id = @tenant_id or r.scope = 'PLATFORM')`,
		map[string]any{"user_id": userID, "tenant_id": tenantID},
	).Scan(&names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (r *PolicyRepository) UserPermissions(ctx context.Context, userID, tenantID string) ([]string, error) {
	if r.store == nil || r.store.DB == nil {
		return nil, errDBUnavailable
	}
	if err := requireScope(ctx, tenantID); err != nil {
		return nil, err
	}
	var keys []string
	err := r.store.DB.WithContext(ctx).Raw(`
		select p.key
		from user_roles ur
		join roles r on r.id = ur.role_id
		join role_permissions rp on rp.role_id = r.id
		join permissions p on p.id = rp.permission_id
		where ur.user_id = @user_id
		  and (ur.tenant_id = @tenant_id or r.scope = 'PLATFORM')`,
		map[string]any{"user_id": userID, "tenant_id": tenantID},
	).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}
