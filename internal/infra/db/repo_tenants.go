package db

import (
	"context"
	"errors"
	"time"

	"coreconnect/internal/domain"
	"coreconnect/internal/tenantscope"

	"gorm.io/gorm"
)

type Tenant struct {
	ID        string
	Name      string
	Active    bool
	Status    string
	CreatedAt time.Time
}

// TenantRepository manages the tenant registry. The table is keyed by the
// tenant's own id rather than a tenant_id column, so scope checks compare the
// context binding against the requested id directly.
type TenantRepository struct {
	store *Store
}

func NewTenantRepository(store *Store) *TenantRepository {
	return &TenantRepository{store: store}
}

func (r *TenantRepository) Create(ctx context.Context, tenant Tenant) error {
	if r.store == nil || r.store.DB == nil {
		return errDBUnavailable
	}
	// Registering a tenant is a registry operation: only the explicit
	// escape hatch may do it.
	if !tenantscope.AllTenants(ctx) {
		return domain.ErrTenantScopeRequired
	}
	if tenant.ID == "" {
		tenant.ID = newUUID()
	}
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}
	model := TenantModel{
		ID:        tenant.ID,
		Name:      tenant.Name,
		Active:    tenant.Active,
		Status:    tenant.Status,
		CreatedAt: tenant.CreatedAt,
		UpdatedAt: tenant.CreatedAt,
	}
	return r.store.DB.WithContext(ctx).Create(&model).Error
}

func (r *TenantRepository) GetByID(ctx context.Context, tenantID string) (*Tenant, error) {
	if r.store == nil || r.store.DB == nil {
		return nil, errDBUnavailable
	}
	if tenantID == "" {
		return nil, domain.ErrTenantScopeRequired
	}
	if err := requireScope(ctx, tenantID); err != nil {
		return nil, err
	}
	var model TenantModel
	err := r.store.DB.WithContext(ctx).First(&model, "id = ?", tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &Tenant{
		ID:        model.ID,
		Name:      model.Name,
		Active:    model.Active,
		Status:    model.Status,
		CreatedAt: model.CreatedAt,
	}, nil
}
