package domain

import "time"

type AuditResult string

const (
	AuditResultAllowed AuditResult = "allowed"
	AuditResultDenied  AuditResult = "denied"
)

const (
	AuditEventAccessDecision = "access.decision"
	AuditEventModuleChanged  = "entitlement.module_changed"
)

// AuditSystemTenantID owns events that cannot be attributed to a tenant,
// e.g. denials before a tenant was established.
const AuditSystemTenantID = "00000000-0000-0000-0000-000000000000"

type AuditEvent struct {
	ID        string
	TenantID  string
	ActorID   string
	EventType string
	Result    AuditResult
	Code      string
	Payload   map[string]any
	CreatedAt time.Time
}
