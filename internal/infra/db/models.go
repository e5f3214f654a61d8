package db

import "time"

type TenantModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Subdomain *string
	Active    bool      `gorm:"not null;default:true"`
	Status    string    `gorm:"not null;default:ACTIVE"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (TenantModel) TableName() string { return "tenants" }

type UserModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	TenantID  string `gorm:"type:uuid;index;not null"`
	Email     string `gorm:"uniqueIndex;not null"`
	Name      *string
	CreatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type RoleModel struct {
	ID        string  `gorm:"type:uuid;primaryKey"`
	Name      string  `gorm:"index;not null"`
	Scope     string  `gorm:"not null;default:TENANT"`
	TenantID  *string `gorm:"type:uuid;index"`
	CreatedAt time.Time
}

func (RoleModel) TableName() string { return "roles" }

type PermissionModel struct {
	ID  string `gorm:"type:uuid;primaryKey"`
	Key string `gorm:"uniqueIndex;not null"`
}

func (PermissionModel) TableName() string { return "permissions" }

type UserRoleModel struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	UserID   string `gorm:"type:uuid;index;not null"`
	RoleID   string `gorm:"type:uuid;index;not null"`
	TenantID string `gorm:"type:uuid;index;not null"`
}

func (UserRoleModel) TableName() string { return "user_roles" }

type RolePermissionModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	RoleID       string `gorm:"type:uuid;index;not null"`
	PermissionID string `gorm:"type:uuid;index;not null"`
}

func (RolePermissionModel) TableName() string { return "role_permissions" }

type ModuleEntitlementModel struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	TenantID   string `gorm:"type:uuid;uniqueIndex:idx_tenant_module;not null"`
	Module     string `gorm:"uniqueIndex:idx_tenant_module;not null"`
	Status     string `gorm:"not null"`
	Config     []byte `gorm:"type:jsonb"`
	EnabledAt  *time.Time
	DisabledAt *time.Time
	UpdatedBy  *string   `gorm:"type:uuid"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (ModuleEntitlementModel) TableName() string { return "tenant_modules" }

type AuditEventModel struct {
	ID        string  `gorm:"type:uuid;primaryKey"`
	TenantID  string  `gorm:"type:uuid;index;not null"`
	ActorID   *string `gorm:"type:uuid"`
	EventType string  `gorm:"index;not null"`
	Result    string  `gorm:"not null"`
	Code      string
	Payload   []byte    `gorm:"type:jsonb"`
	CreatedAt time.Time `gorm:"not null"`
}

func (AuditEventModel) TableName() string { return "audit_events" }
