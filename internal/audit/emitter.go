// Package audit records authorization decisions. Audit writes never change
// the primary decision: a failed write is logged and dropped.
package audit

import (
	"context"
	"time"

	"coreconnect/internal/domain"

	"go.uber.org/zap"
)

type Repository interface {
	Append(ctx context.Context, event domain.AuditEvent) error
}

type Emitter struct {
	repo  Repository
	log   *zap.Logger
	clock func() time.Time
}

func NewEmitter(repo Repository, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{repo: repo, log: logger, clock: time.Now}
}

// Decision records one allow/deny outcome for a request.
func (e *Emitter) Decision(ctx context.Context, tenantID, actorID string, result domain.AuditResult, code, path, method string) {
	if e == nil || e.repo == nil {
		return
	}
	event := domain.AuditEvent{
		TenantID:  tenantID,
		ActorID:   actorID,
		EventType: domain.AuditEventAccessDecision,
		Result:    result,
		Code:      code,
		Payload: map[string]any{
			"path":   path,
			"method": method,
		},
		CreatedAt: e.clock().UTC(),
	}
	if err := e.repo.Append(ctx, event); err != nil {
		e.log.Warn("audit write failed",
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}

// ModuleChanged records an entitlement toggle by an admin.
func (e *Emitter) ModuleChanged(ctx context.Context, tenantID, actorID, module string, status domain.ModuleStatus) {
	if e == nil || e.repo == nil {
		return
	}
	event := domain.AuditEvent{
		TenantID:  tenantID,
		ActorID:   actorID,
		EventType: domain.AuditEventModuleChanged,
		Result:    domain.AuditResultAllowed,
		Payload: map[string]any{
			"module": module,
			"status": string(status),
		},
		CreatedAt: e.clock().UTC(),
	}
	if err := e.repo.Append(ctx, event); err != nil {
		e.log.Warn("audit write failed",
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}
