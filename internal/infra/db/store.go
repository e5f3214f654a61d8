package db

import (
	"context"
	"fmt"

	"coreconnect/internal/config"
	"coreconnect/internal/domain"
	"coreconnect/internal/tenantscope"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

// NewStore connects to Postgres. Without a DSN the store starts in no-db
// mode: every policy-backed check then fails closed.
func NewStore(cfg config.Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PostgresDSN == "" {
		logger.Warn("POSTGRES_DSN not set; starting in no-db mode, policy checks will deny")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{DB: gdb}, nil
}

// Migrate creates or updates the schema for every model the store owns.
func (s *Store) Migrate() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.AutoMigrate(
		&TenantModel{},
		&UserModel{},
		&RoleModel{},
		&PermissionModel{},
		&UserRoleModel{},
		&RolePermissionModel{},
		&ModuleEntitlementModel{},
		&AuditEventModel{},
	)
}

// TenantScoped returns a DB handle constrained to the tenant bound in ctx.
// A context with no tenant yields ErrTenantScopeRequired unless the caller
// explicitly opted into the all-tenants escape hatch. This is the enforcement
// point for tenant isolation: handlers that forget to filter still cannot
// cross tenants.
func (s *Store) TenantScoped(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.DB == nil {
		return nil, domain.ErrPolicyStoreUnavailable
	}
	base := s.DB.WithContext(ctx)
	if tenantscope.AllTenants(ctx) {
		return base, nil
	}
	tenantID, ok := tenantscope.FromContext(ctx)
	if !ok {
		return nil, domain.ErrTenantScopeRequired
	}
	return base.Where("tenant_id = ?", tenantID), nil
}
