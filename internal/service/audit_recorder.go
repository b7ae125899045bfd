package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/gleamops/fieldops-api/internal/models"
)

type auditStore interface {
	Append(ctx context.Context, record *models.AuditRecord) error
	ListForEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditRecord, error)
}

// AuditRecorder serialises before/after snapshots and appends them to the
// audit trail. Recording is best effort: a failed append is retried a
// bounded number of times, then logged. It never fails the operation that
// produced it.
type AuditRecorder struct {
	store   auditStore
	logger  *zap.Logger
	retries int
}

// NewAuditRecorder constructs a recorder. Retries below zero are clamped.
func NewAuditRecorder(store auditStore, logger *zap.Logger, retries int) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retries < 0 {
		retries = 0
	}
	return &AuditRecorder{store: store, logger: logger, retries: retries}
}

// Record appends one audit entry. Snapshots are marshalled to JSON; a nil
// snapshot is stored as NULL.
func (a *AuditRecorder) Record(ctx context.Context, entityType, entityID, action string, before, after interface{}, actx models.AuditContext) {
	record := &models.AuditRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Before:     a.marshalSnapshot(entityID, "before", before),
		After:      a.marshalSnapshot(entityID, "after", after),
		Source:     actx.Source,
		RequestID:  actx.RequestID,
		IPAddress:  actx.IPAddress,
		UserAgent:  actx.UserAgent,
	}
	if actx.ActorID != "" {
		actor := actx.ActorID
		record.ActorID = &actor
	}

	var err error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if err = a.store.Append(ctx, record); err == nil {
			return
		}
	}
	a.logger.Warn("audit append failed",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("action", action),
		zap.Error(err),
	)
}

// Trail returns the audit history for one entity, oldest first.
func (a *AuditRecorder) Trail(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditRecord, error) {
	return a.store.ListForEntity(ctx, entityType, entityID, limit)
}

func (a *AuditRecorder) marshalSnapshot(entityID, kind string, snapshot interface{}) []byte {
	if snapshot == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		a.logger.Warn("marshal audit snapshot",
			zap.String("entity_id", entityID),
			zap.String("snapshot", kind),
			zap.Error(err),
		)
		return nil
	}
	return payload
}
