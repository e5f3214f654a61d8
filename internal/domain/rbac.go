package domain

const (
	// PlatformAdminRole and PlatformAdminPermission are the reserved markers
	// that grant cross-tenant authority. A tenant-scoped role can never grant
	// platform admin; only these markers can.
	PlatformAdminRole       = "platform_admin"
	PlatformAdminPermission = "platform.admin"
)

// RoleScope distinguishes cross-tenant roles from tenant-local ones.
type RoleScope string

const (
	RoleScopePlatform RoleScope = "PLATFORM"
	RoleScopeTenant   RoleScope = "TENANT"
)

type Role struct {
	ID       string
	Name     string
	Scope    RoleScope
	TenantID string
}

// Permission is a stable key in the global catalog, e.g. "billing.write".
type Permission struct {
	ID  string
	Key string
}
