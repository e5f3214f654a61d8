package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"coreconnect/internal/domain"

	"gorm.io/gorm"
)

type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if event.EventType == "" {
		return errors.New("event_type is required")
	}
	if event.ID == "" {
		event.ID = newUUID()
	}
	if event.TenantID == "" {
		event.TenantID = domain.AuditSystemTenantID
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	var payload []byte
	if event.Payload != nil {
		raw, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		payload = raw
	}
	var actorID *string
	if event.ActorID != "" {
		actorID = &event.ActorID
	}
	model := AuditEventModel{
		ID:        event.ID,
		TenantID:  event.TenantID,
		ActorID:   actorID,
		EventType: event.EventType,
		Result:    string(event.Result),
		Code:      event.Code,
		Payload:   payload,
		CreatedAt: event.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}
