package domain

import "time"

// ModuleStatus is the entitlement state of one module for one tenant.
type ModuleStatus string

const (
	ModuleEnabled  ModuleStatus = "ENABLED"
	ModuleDisabled ModuleStatus = "DISABLED"
	ModuleTrial    ModuleStatus = "TRIAL"
)

// Active reports whether the status entitles the tenant to use the module.
func (s ModuleStatus) Active() bool {
	return s == ModuleEnabled || s == ModuleTrial
}

func ParseModuleStatus(raw string) (ModuleStatus, bool) {
	switch ModuleStatus(raw) {
	case ModuleEnabled, ModuleDisabled, ModuleTrial:
		return ModuleStatus(raw), true
	default:
		return "", false
	}
}

// ModuleEntitlement records, per (tenant, module), whether the module is
// switched on, who last changed it and when. At most one row exists per pair.
type ModuleEntitlement struct {
	TenantID   string
	Module     string
	Status     ModuleStatus
	Config     map[string]any
	EnabledAt  *time.Time
	DisabledAt *time.Time
	UpdatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
