package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"coreconnect/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ModuleEntitlementRepository struct {
	store *Store
	now   func() time.Time
}

func NewModuleEntitlementRepository(store *Store) *ModuleEntitlementRepository {
	return &ModuleEntitlementRepository{store: store, now: time.Now}
}

// Status reads the entitlement status for one (tenant, module) pair.
// Missing rows surface as domain.ErrNotFound. The query runs on the
// tenant-scoped handle: a context bound to another tenant cannot see the row
// no matter what the caller passes for tenantID.
func (r *ModuleEntitlementRepository) Status(ctx context.Context, tenantID, module string) (domain.ModuleStatus, error) {
	if tenantID == "" {
		return "", domain.ErrTenantScopeRequired
	}
	tx, err := r.store.TenantScoped(ctx)
	if err != nil {
		return "", err
	}
	var model ModuleEntitlementModel
	err = tx.First(&model, "tenant_id = ? and module = ?", tenantID, module).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	status, ok := domain.ParseModuleStatus(model.Status)
	if !ok {
		// Unknown status rows fail closed.
		return domain.ModuleDisabled, nil
	}
	return status, nil
}

// SetStatus upserts the (tenant, module) row, stamping the transition
// timestamps and the actor who made the change.
func (r *ModuleEntitlementRepository) SetStatus(ctx context.Context, tenantID, module string, status domain.ModuleStatus, updatedBy string, config map[string]any) error {
	if r.store == nil || r.store.DB == nil {
		return errDBUnavailable
	}
	if tenantID == "" {
		return domain.ErrTenantScopeRequired
	}
	if err := requireScope(ctx, tenantID); err != nil {
		return err
	}
	now := r.now().UTC()
	model := ModuleEntitlementModel{
		ID:        newUUID(),
		TenantID:  tenantID,
		Module:    module,
		Status:    string(status),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if updatedBy != "" {
		model.UpdatedBy = &updatedBy
	}
	if config != nil {
		raw, err := json.Marshal(config)
		if err != nil {
			return err
		}
		model.Config = raw
	}
	if status.Active() {
		model.EnabledAt = &now
	} else {
		model.DisabledAt = &now
	}

	assignments := map[string]any{
		"status":     model.Status,
		"updated_by": model.UpdatedBy,
		"updated_at": now,
	}
	if model.Config != nil {
		assignments["config"] = model.Config
	}
	if model.EnabledAt != nil {
		assignments["enabled_at"] = now
	}
	if model.DisabledAt != nil {
		assignments["disabled_at"] = now
	}
	return r.store.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "module"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&model).Error
}

func (r *ModuleEntitlementRepository) List(ctx context.Context, tenantID string) ([]domain.ModuleEntitlement, error) {
	if tenantID == "" {
		return nil, domain.ErrTenantScopeRequired
	}
	tx, err := r.store.TenantScoped(ctx)
	if err != nil {
		return nil, err
	}
	var models []ModuleEntitlementModel
	err = tx.Where("tenant_id = ?", tenantID).
		Order("module asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.ModuleEntitlement, 0, len(models))
	for _, m := range models {
		out = append(out, entitlementFromModel(m))
	}
	return out, nil
}

func entitlementFromModel(m ModuleEntitlementModel) domain.ModuleEntitlement {
	ent := domain.ModuleEntitlement{
		TenantID:   m.TenantID,
		Module:     m.Module,
		Status:     domain.ModuleStatus(m.Status),
		EnabledAt:  m.EnabledAt,
		DisabledAt: m.DisabledAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if m.UpdatedBy != nil {
		ent.UpdatedBy = *m.UpdatedBy
	}
	if len(m.Config) > 0 {
		var cfg map[string]any
		if err := json.Unmarshal(m.Config, &cfg); err == nil {
			ent.Config = cfg
		}
	}
	return ent
}
