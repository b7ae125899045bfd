package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gleamops/fieldops-api/internal/models"
)

// AuditRepository appends immutable audit records. There are no update or
// delete paths.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit record.
func (r *AuditRepository) Append(ctx context.Context, record *models.AuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_records
		(id, entity_type, entity_id, action, before_snapshot, after_snapshot, actor_id, source, request_id, ip_address, user_agent, created_at)
		VALUES (:id, :entity_type, :entity_id, :action, :before_snapshot, :after_snapshot, :actor_id, :source, :request_id, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}

// ListForEntity returns the audit trail for one entity, oldest first.
func (r *AuditRepository) ListForEntity(ctx context.Context, entityType, entityID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const query = `SELECT id, entity_type, entity_id, action, before_snapshot, after_snapshot,
	       actor_id, source, request_id, ip_address, user_agent, created_at
		FROM audit_records
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
		LIMIT $3`
	var records []models.AuditRecord
	if err := r.db.SelectContext(ctx, &records, query, entityType, entityID, limit); err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	return records, nil
}
