//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"coreconnect/internal/domain"
	"coreconnect/internal/tenantscope"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	lockTestDB(t, gdb)
	store := &Store{DB: gdb}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func lockTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("open db conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_lock(424242001)"); err != nil {
		_ = conn.Close()
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(424242001)")
		_ = conn.Close()
	})
}

func resetDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	tables := []string{
		"audit_events", "tenant_modules", "role_permissions",
		"user_roles", "permissions", "roles", "users", "tenants",
	}
	for _, table := range tables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("reset %s: %v", table, err)
		}
	}
}

func insertTenant(t *testing.T, db *gorm.DB, tenantID, name string) {
	t.Helper()
	model := TenantModel{
		ID: tenantID, Name: name, Active: true, Status: "ACTIVE",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := db.Create(&model).Error; err != nil {
		t.Fatalf("insert tenant: %v", err)
	}
}

func insertUser(t *testing.T, db *gorm.DB, userID, tenantID, email string) {
	t.Helper()
	model := UserModel{ID: userID, TenantID: tenantID, Email: email, CreatedAt: time.Now().UTC()}
	if err := db.Create(&model).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
}

func grantRole(t *testing.T, db *gorm.DB, userID, tenantID, roleName, scope string, permissions ...string) {
	t.Helper()
	role := RoleModel{ID: newUUID(), Name: roleName, Scope: scope, CreatedAt: time.Now().UTC()}
	if scope == string(domain.RoleScopeTenant) {
		role.TenantID = &tenantID
	}
	if err := db.Create(&role).Error; err != nil {
		t.Fatalf("insert role: %v", err)
	}
	if err := db.Create(&UserRoleModel{ID: newUUID(), UserID: userID, RoleID: role.ID, TenantID: tenantID}).Error; err != nil {
		t.Fatalf("assign role: %v", err)
	}
	for _, key := range permissions {
		perm := PermissionModel{ID: newUUID(), Key: key}
		if err := db.Where(PermissionModel{Key: key}).FirstOrCreate(&perm).Error; err != nil {
			t.Fatalf("insert permission: %v", err)
		}
		if err := db.Create(&RolePermissionModel{ID: newUUID(), RoleID: role.ID, PermissionID: perm.ID}).Error; err != nil {
			t.Fatalf("link permission: %v", err)
		}
	}
}

func TestPolicyRepositoryTenantScopedRoles(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)

	tenantA := newUUID()
	tenantB := newUUID()
	userID := newUUID()
	insertTenant(t, gdb, tenantA, "tenant-a")
	insertTenant(t, gdb, tenantB, "tenant-b")
	insertUser(t, gdb, userID, tenantA, "user@a.example")
	grantRole(t, gdb, userID, tenantA, "editor", string(domain.RoleScopeTenant), "crm.read", "crm.write")

	repo := NewPolicyRepository(&Store{DB: gdb})
	ctxA := tenantscope.WithTenant(context.Background(), tenantA)
	roles, err := repo.UserRoles(ctxA, userID, tenantA)
	if err != nil {
		t.Fatalf("user roles: %v", err)
	}
	if len(roles) != 1 || roles[0] != "editor" {
		t.Fatalf("unexpected roles: %v", roles)
	}

	perms, err := repo.UserPermissions(ctxA, userID, tenantA)
	if err != nil {
		t.Fatalf("user permissions: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("unexpected permissions: %v", perms)
	}

	// The assignment is tenant-scoped: a request acting in another tenant
	// sees nothing.
	ctxB := tenantscope.WithTenant(context.Background(), tenantB)
	roles, err = repo.UserRoles(ctxB, userID, tenantB)
	if err != nil {
		t.Fatalf("user roles for other tenant: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("roles leaked across tenants: %v", roles)
	}

	// An unbound context cannot query at all, and a context bound to one
	// tenant cannot query on behalf of another.
	if _, err := repo.UserRoles(context.Background(), userID, tenantA); err != domain.ErrTenantScopeRequired {
		t.Fatalf("expected ErrTenantScopeRequired, got %v", err)
	}
	if _, err := repo.UserPermissions(ctxB, userID, tenantA); err != domain.ErrTenantScopeRequired {
		t.Fatalf("expected ErrTenantScopeRequired on mismatch, got %v", err)
	}
}

func TestPolicyRepositoryPlatformRolesCrossTenants(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)

	tenantA := newUUID()
	tenantB := newUUID()
	userID := newUUID()
	insertTenant(t, gdb, tenantA, "tenant-a")
	insertTenant(t, gdb, tenantB, "tenant-b")
	insertUser(t, gdb, userID, tenantA, "admin@a.example")
	grantRole(t, gdb, userID, tenantA, domain.PlatformAdminRole, string(domain.RoleScopePlatform), domain.PlatformAdminPermission)

	repo := NewPolicyRepository(&Store{DB: gdb})
	for _, tenant := range []string{tenantA, tenantB} {
		roles, err := repo.UserRoles(tenantscope.WithTenant(context.Background(), tenant), userID, tenant)
		if err != nil {
			t.Fatalf("user roles: %v", err)
		}
		if len(roles) != 1 || roles[0] != domain.PlatformAdminRole {
			t.Fatalf("platform role missing for tenant %s: %v", tenant, roles)
		}
	}
}

func TestModuleEntitlementRepositoryUpsert(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)

	tenantID := newUUID()
	adminID := newUUID()
	insertTenant(t, gdb, tenantID, "tenant-a")

	repo := NewModuleEntitlementRepository(&Store{DB: gdb})
	ctx := tenantscope.WithTenant(context.Background(), tenantID)

	if _, err := repo.Status(ctx, tenantID, "crm"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.SetStatus(ctx, tenantID, "crm", domain.ModuleEnabled, adminID, map[string]any{"seats": 5}); err != nil {
		t.Fatalf("enable module: %v", err)
	}
	status, err := repo.Status(ctx, tenantID, "crm")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.ModuleEnabled {
		t.Fatalf("status = %s", status)
	}

	// Upsert on the same pair flips the row in place.
	if err := repo.SetStatus(ctx, tenantID, "crm", domain.ModuleDisabled, adminID, nil); err != nil {
		t.Fatalf("disable module: %v", err)
	}
	list, err := repo.List(ctx, tenantID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected a single row per (tenant, module), got %d", len(list))
	}
	if list[0].Status != domain.ModuleDisabled {
		t.Fatalf("status = %s", list[0].Status)
	}
	if list[0].DisabledAt == nil {
		t.Fatal("expected disabled_at to be stamped")
	}
	if list[0].UpdatedBy != adminID {
		t.Fatalf("updated_by = %s", list[0].UpdatedBy)
	}
}

func TestModuleEntitlementRepositoryIsolation(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)

	tenantA := newUUID()
	tenantB := newUUID()
	insertTenant(t, gdb, tenantA, "tenant-a")
	insertTenant(t, gdb, tenantB, "tenant-b")

	repo := NewModuleEntitlementRepository(&Store{DB: gdb})
	if err := repo.SetStatus(tenantscope.WithTenant(context.Background(), tenantA), tenantA, "crm", domain.ModuleEnabled, "", nil); err != nil {
		t.Fatalf("enable module: %v", err)
	}

	ctxB := tenantscope.WithTenant(context.Background(), tenantB)
	if _, err := repo.Status(ctxB, tenantB, "crm"); err != domain.ErrNotFound {
		t.Fatalf("tenant B must not see tenant A's entitlement, got %v", err)
	}
}

func TestModuleEntitlementRepositoryScopeEnforcement(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)

	tenantA := newUUID()
	tenantB := newUUID()
	insertTenant(t, gdb, tenantA, "tenant-a")
	insertTenant(t, gdb, tenantB, "tenant-b")

	repo := NewModuleEntitlementRepository(&Store{DB: gdb})
	admin := tenantscope.WithAllTenants(context.Background())
	if err := repo.SetStatus(admin, tenantA, "crm", domain.ModuleEnabled, "", nil); err != nil {
		t.Fatalf("enable module: %v", err)
	}

	// An unbound context refuses every operation.
	unbound := context.Background()
	if _, err := repo.Status(unbound, tenantA, "crm"); err != domain.ErrTenantScopeRequired {
		t.Fatalf("expected ErrTenantScopeRequired, got %v", err)
	}
	if _, err := repo.List(unbound, tenantA); err != domain.ErrTenantScopeRequired {
		t.Fatalf("expected ErrTenantScopeRequired, got %v", err)
	}
	if err := repo.SetStatus(unbound, tenantA, "crm", domain.ModuleDisabled, "", nil); err != domain.ErrTenantScopeRequired {
		t.Fatalf("expected ErrTenantScopeRequired, got %v", err)
	}

	// A context bound to tenant B cannot reach tenant A's rows, whatever
	// the caller passes for the explicit tenant id.
	ctxB := tenantscope.WithTenant(context.Background(), tenantB)
	if _, err := repo.Status(ctxB, tenantA, "crm"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
	list, err := repo.List(ctxB, tenantA)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rows leaked across tenants: %+v", list)
	}
	if err := repo.SetStatus(ctxB, tenantA, "crm", domain.ModuleDisabled, "", nil); err != domain.ErrTenantScopeRequired {
		t.Fatalf("expected ErrTenantScopeRequired on cross-tenant write, got %v", err)
	}

	// The escape hatch reads any tenant.
	status, err := repo.Status(admin, tenantA, "crm")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status != domain.ModuleEnabled {
		t.Fatalf("status = %s", status)
	}
}

func TestStoreTenantScoped(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)

	tenantA := newUUID()
	tenantB := newUUID()
	insertTenant(t, gdb, tenantA, "tenant-a")
	insertTenant(t, gdb, tenantB, "tenant-b")

	repo := NewModuleEntitlementRepository(&Store{DB: gdb})
	admin := tenantscope.WithAllTenants(context.Background())
	if err := repo.SetStatus(admin, tenantA, "crm", domain.ModuleEnabled, "", nil); err != nil {
		t.Fatalf("enable module: %v", err)
	}
	if err := repo.SetStatus(admin, tenantB, "crm", domain.ModuleEnabled, "", nil); err != nil {
		t.Fatalf("enable module: %v", err)
	}

	store := &Store{DB: gdb}

	// Unbound context refuses to query at all.
	if _, err := store.TenantScoped(context.Background()); err != domain.ErrTenantScopeRequired {
		t.Fatalf("expected ErrTenantScopeRequired, got %v", err)
	}

	scoped, err := store.TenantScoped(tenantscope.WithTenant(context.Background(), tenantA))
	if err != nil {
		t.Fatalf("tenant scoped: %v", err)
	}
	var rows []ModuleEntitlementModel
	if err := scoped.Find(&rows).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 1 || rows[0].TenantID != tenantA {
		t.Fatalf("scope leaked: %+v", rows)
	}

	all, err := store.TenantScoped(tenantscope.WithAllTenants(context.Background()))
	if err != nil {
		t.Fatalf("all tenants: %v", err)
	}
	rows = nil
	if err := all.Find(&rows).Error; err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected both rows with the escape hatch, got %d", len(rows))
	}
}

func TestAuditEventRepositoryAppend(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)

	tenantID := newUUID()
	actorID := newUUID()
	insertTenant(t, gdb, tenantID, "tenant-a")

	repo := NewAuditEventRepository(gdb)
	err := repo.Append(context.Background(), domain.AuditEvent{
		TenantID:  tenantID,
		ActorID:   actorID,
		EventType: domain.AuditEventAccessDecision,
		Result:    domain.AuditResultDenied,
		Code:      "INSUFFICIENT_PERMISSIONS",
		Payload:   map[string]any{"path": "/v1/contacts", "method": "POST"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	// Pre-identity denials have no actor and fall to the system tenant.
	err = repo.Append(context.Background(), domain.AuditEvent{
		EventType: domain.AuditEventAccessDecision,
		Result:    domain.AuditResultDenied,
		Code:      "UNAUTHENTICATED",
	})
	if err != nil {
		t.Fatalf("append without actor: %v", err)
	}

	var stored []AuditEventModel
	if err := gdb.Order("created_at asc").Find(&stored).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 events, got %d", len(stored))
	}
	for _, event := range stored {
		if event.TenantID == tenantID && (event.ActorID == nil || *event.ActorID != actorID) {
			t.Fatalf("actor not recorded: %+v", event)
		}
		if event.TenantID == domain.AuditSystemTenantID && event.ActorID != nil {
			t.Fatalf("expected null actor on system event: %+v", event)
		}
	}
}

func TestTenantRepositoryRoundTrip(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)

	repo := NewTenantRepository(&Store{DB: gdb})
	tenantID := newUUID()
	admin := tenantscope.WithAllTenants(context.Background())
	err := repo.Create(admin, Tenant{
		ID: tenantID, Name: "acme", Active: true, Status: "ACTIVE",
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	// Registration requires the escape hatch.
	if err := repo.Create(context.Background(), Tenant{Name: "rogue"}); err != domain.ErrTenantScopeRequired {
		t.Fatalf("expected ErrTenantScopeRequired, got %v", err)
	}

	got, err := repo.GetByID(admin, tenantID)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if got.Name != "acme" || !got.Active {
		t.Fatalf("unexpected tenant: %+v", got)
	}

	// A tenant may read its own row, nobody else's.
	if _, err := repo.GetByID(tenantscope.WithTenant(context.Background(), tenantID), tenantID); err != nil {
		t.Fatalf("get own tenant: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), tenantID); err != domain.ErrTenantScopeRequired {
		t.Fatalf("expected ErrTenantScopeRequired, got %v", err)
	}

	if _, err := repo.GetByID(admin, newUUID()); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
