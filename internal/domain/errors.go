package domain

import "errors"

var (
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrLicenseInvalid         = errors.New("license invalid")
	ErrModuleNotEnabled       = errors.New("module not enabled for tenant")
	ErrInsufficientPermission = errors.New("insufficient permissions")
	ErrPolicyStoreUnavailable = errors.New("policy store unavailable")
	ErrTenantScopeRequired    = errors.New("tenant scope required")
	ErrNotFound               = errors.New("not found")
)

// EnforcementMode is the single process-wide policy that decides whether
// failed license, module and RBAC checks are fatal or advisory.
type EnforcementMode string

const (
	EnforcementStrict EnforcementMode = "strict"
	EnforcementWarn   EnforcementMode = "warn"
)

func (m EnforcementMode) Warn() bool {
	return m == EnforcementWarn
}

func ParseEnforcementMode(raw string) (EnforcementMode, bool) {
	switch EnforcementMode(raw) {
	case EnforcementStrict:
		return EnforcementStrict, true
	case EnforcementWarn:
		return EnforcementWarn, true
	default:
		return "", false
	}
}
