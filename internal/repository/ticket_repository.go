package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gleamops/fieldops-api/internal/models"
)

// TicketRepository persists live work tickets. The assignment columns are
// the schedule's source of truth: every write is gated on version_etag.
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository constructs the repository.
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `id, site_id, period_id, service_date, starts_at, ends_at, status,
       assignee_staff_id, assignee_subcontractor_id, required_role, version_etag, created_at, updated_at`

// GetByID fetches a ticket with its current version token.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*models.WorkTicket, error) {
	query := fmt.Sprintf(`SELECT %s FROM work_tickets WHERE id = $1`, ticketColumns)
	var ticket models.WorkTicket
	if err := r.db.GetContext(ctx, &ticket, query, id); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// UpdateAssignmentParams groups the version-gated assignment write.
type UpdateAssignmentParams struct {
	ID                      string
	Version                 int64
	AssigneeStaffID         *string
	AssigneeSubcontractorID *string
}

// UpdateAssignment performs the conditional assignment write. Zero rows
// affected means another writer bumped the version first; the caller must
// re-read and re-decide, never retry blindly.
func (r *TicketRepository) UpdateAssignment(ctx context.Context, params UpdateAssignmentParams) error {
	const query = `UPDATE work_tickets
		SET assignee_staff_id = $1,
		    assignee_subcontractor_id = $2,
		    version_etag = version_etag + 1,
		    updated_at = $3
		WHERE id = $4 AND version_etag = $5`
	result, err := r.db.ExecContext(ctx, query,
		params.AssigneeStaffID,
		params.AssigneeSubcontractorID,
		time.Now().UTC(),
		params.ID,
		params.Version,
	)
	if err != nil {
		return fmt.Errorf("update ticket assignment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check ticket update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListActiveAssignmentsForStaffOnDate returns every non-cancelled ticket
// held by the staff member on the given date, ordered by start time then
// ticket id so detector output stays deterministic.
func (r *TicketRepository) ListActiveAssignmentsForStaffOnDate(ctx context.Context, staffID, date string) ([]models.Assignment, error) {
	const query = `SELECT id AS ticket_id, assignee_staff_id AS staff_id, site_id, starts_at, ends_at
		FROM work_tickets
		WHERE assignee_staff_id = $1 AND service_date = $2 AND status <> $3
		ORDER BY starts_at ASC, id ASC`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, staffID, date, models.TicketStatusCancelled); err != nil {
		return nil, fmt.Errorf("list assignments for staff %s on %s: %w", staffID, date, err)
	}
	return assignments, nil
}

// ListForPeriod returns all tickets inside a schedule period, ordered for
// deterministic validation sweeps.
func (r *TicketRepository) ListForPeriod(ctx context.Context, periodID string) ([]models.WorkTicket, error) {
	query := fmt.Sprintf(`SELECT %s FROM work_tickets WHERE period_id = $1 ORDER BY service_date ASC, starts_at ASC, id ASC`, ticketColumns)
	var tickets []models.WorkTicket
	if err := r.db.SelectContext(ctx, &tickets, query, periodID); err != nil {
		return nil, fmt.Errorf("list tickets for period %s: %w", periodID, err)
	}
	return tickets, nil
}
