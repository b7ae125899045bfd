package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gleamops/fieldops-api/internal/models"
)

// ConflictRepository persists detector output for reporting. The detector
// itself never writes; orchestrators record snapshots here.
type ConflictRepository struct {
	db *sqlx.DB
}

// NewConflictRepository constructs the repository.
func NewConflictRepository(db *sqlx.DB) *ConflictRepository {
	return &ConflictRepository{db: db}
}

const conflictColumns = `id, period_id, conflict_type, is_blocking, description,
       affected_staff_id, affected_ticket_id, detected_at, resolved_at, resolved_by, resolution`

// RecordBatch inserts a batch of detected conflicts.
func (r *ConflictRepository) RecordBatch(ctx context.Context, conflicts []models.ScheduleConflict) error {
	now := time.Now().UTC()
	for i := range conflicts {
		if conflicts[i].ID == "" {
			conflicts[i].ID = uuid.NewString()
		}
		if conflicts[i].DetectedAt.IsZero() {
			conflicts[i].DetectedAt = now
		}
		// Detector ids are content-derived, so re-running a sweep over an
		// unchanged schedule produces the same rows.
		const query = `INSERT INTO schedule_conflicts
			(id, period_id, conflict_type, is_blocking, description, affected_staff_id, affected_ticket_id, detected_at)
			VALUES (:id, :period_id, :conflict_type, :is_blocking, :description, :affected_staff_id, :affected_ticket_id, :detected_at)
			ON CONFLICT (id) DO NOTHING`
		if _, err := r.db.NamedExecContext(ctx, query, conflicts[i]); err != nil {
			return fmt.Errorf("record conflict: %w", err)
		}
	}
	return nil
}

// MarkResolved stamps a resolution on a set of conflicts.
func (r *ConflictRepository) MarkResolved(ctx context.Context, ids []string, resolvedBy, resolution string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(ids)+3)
	args = append(args, time.Now().UTC(), resolvedBy, resolution)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf(`UPDATE schedule_conflicts
		SET resolved_at = $1, resolved_by = $2, resolution = $3
		WHERE id IN (%s)`, strings.Join(placeholders, ","))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark conflicts resolved: %w", err)
	}
	return nil
}

// List returns conflicts matching the filter, in detector priority order.
func (r *ConflictRepository) List(ctx context.Context, filter models.ConflictFilter) ([]models.ScheduleConflict, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM schedule_conflicts`, conflictColumns))

	conditions := make([]string, 0, 3)
	if filter.PeriodID != "" {
		args = append(args, filter.PeriodID)
		conditions = append(conditions, fmt.Sprintf("period_id = $%d", len(args)))
	}
	if filter.BlockingOnly {
		conditions = append(conditions, "is_blocking = TRUE")
	}
	if filter.Unresolved {
		conditions = append(conditions, "resolved_at IS NULL")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY detected_at DESC, id ASC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var conflicts []models.ScheduleConflict
	if err := r.db.SelectContext(ctx, &conflicts, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list schedule conflicts: %w", err)
	}
	return conflicts, nil
}
