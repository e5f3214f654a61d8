package domain

// ResolutionMode selects how a caller identity is established.
type ResolutionMode string

const (
	// ResolveToken extracts the identity from a verified bearer token.
	ResolveToken ResolutionMode = "token"
	// ResolveHeader trusts identity headers set by an upstream gateway.
	ResolveHeader ResolutionMode = "header"
)

// Identity is the resolved caller for one request. It is built once per
// request by the identity resolver and discarded at request end; the
// RBACLoaded flag and ModuleAccess map memoize policy-store round trips
// within that lifetime.
type Identity struct {
	UserID   string
	TenantID string
	// HomeTenantID keeps the claim-sourced tenant when a platform admin
	// overrides the acting tenant, so impersonation stays auditable.
	HomeTenantID string

	Roles       []string
	Permissions []string
	Modules     []string

	IsPlatformAdmin bool
	RawClaims       map[string]any
	Mode            ResolutionMode

	RBACLoaded   bool
	ModuleAccess map[string]bool
}

// ActingTenant reports the tenant whose data this request may touch.
func (i *Identity) ActingTenant() string {
	return i.TenantID
}

// Impersonating reports whether the acting tenant differs from the
// claim-sourced home tenant.
func (i *Identity) Impersonating() bool {
	return i.HomeTenantID != "" && i.HomeTenantID != i.TenantID
}

func (i *Identity) HasRoleClaim(name string) bool {
	return containsString(i.Roles, name)
}

func (i *Identity) HasPermissionClaim(key string) bool {
	return containsString(i.Permissions, key)
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
