package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gleamops/fieldops-api/internal/models"
)

// PeriodRepository persists schedule periods.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository constructs the repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

const periodColumns = `id, site_id, name, period_start, period_end, status,
       published_at, published_by, locked_at, locked_by, archived_at, version_etag, created_at`

// Create inserts a new DRAFT period.
func (r *PeriodRepository) Create(ctx context.Context, period *models.SchedulePeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	if period.Status == "" {
		period.Status = models.PeriodStatusDraft
	}
	if period.CreatedAt.IsZero() {
		period.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO schedule_periods
		(id, site_id, name, period_start, period_end, status, version_etag, created_at)
		VALUES (:id, :site_id, :name, :period_start, :period_end, :status, 1, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("create schedule period: %w", err)
	}
	return nil
}

// GetByID fetches a period.
func (r *PeriodRepository) GetByID(ctx context.Context, id string) (*models.SchedulePeriod, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_periods WHERE id = $1`, periodColumns)
	var period models.SchedulePeriod
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// List returns periods matching the filter, newest first.
func (r *PeriodRepository) List(ctx context.Context, filter models.PeriodFilter) ([]models.SchedulePeriod, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM schedule_periods`, periodColumns))

	conditions := make([]string, 0, 2)
	if filter.SiteID != "" {
		args = append(args, filter.SiteID)
		conditions = append(conditions, fmt.Sprintf("site_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY period_start DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var periods []models.SchedulePeriod
	if err := r.db.SelectContext(ctx, &periods, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list schedule periods: %w", err)
	}
	return periods, nil
}

// TransitionParams groups a status transition write.
type TransitionParams struct {
	ID      string
	From    models.PeriodStatus
	To      models.PeriodStatus
	ActorID string
	At      time.Time
}

// Transition moves a period to its next status. The WHERE clause pins the
// expected current status, so a concurrent transition loses with zero rows.
func (r *PeriodRepository) Transition(ctx context.Context, params TransitionParams) error {
	setParts := []string{"status = $1", "version_etag = version_etag + 1"}
	args := []interface{}{params.To}
	switch params.To {
	case models.PeriodStatusPublished:
		args = append(args, params.At)
		setParts = append(setParts, fmt.Sprintf("published_at = $%d", len(args)))
		args = append(args, params.ActorID)
		setParts = append(setParts, fmt.Sprintf("published_by = $%d", len(args)))
	case models.PeriodStatusLocked:
		args = append(args, params.At)
		setParts = append(setParts, fmt.Sprintf("locked_at = $%d", len(args)))
		args = append(args, params.ActorID)
		setParts = append(setParts, fmt.Sprintf("locked_by = $%d", len(args)))
	case models.PeriodStatusArchived:
		args = append(args, params.At)
		setParts = append(setParts, fmt.Sprintf("archived_at = $%d", len(args)))
	}
	args = append(args, params.ID)
	idPos := len(args)
	args = append(args, params.From)
	query := fmt.Sprintf("UPDATE schedule_periods SET %s WHERE id = $%d AND status = $%d",
		strings.Join(setParts, ", "), idPos, idPos+1)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition schedule period: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check period transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
