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

// TradeRepository persists shift trade requests.
type TradeRepository struct {
	db *sqlx.DB
}

// NewTradeRepository constructs the repository.
func NewTradeRepository(db *sqlx.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `id, ticket_id, request_type, initiator_staff_id, target_staff_id, status,
       initiator_note, manager_note, version_etag, requested_at, accepted_at, approved_at, applied_at, closed_at`

// Create inserts a new trade request.
func (r *TradeRepository) Create(ctx context.Context, trade *models.ShiftTradeRequest) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.Status == "" {
		trade.Status = models.TradeStatusRequested
	}
	if trade.RequestedAt.IsZero() {
		trade.RequestedAt = time.Now().UTC()
	}
	const query = `INSERT INTO shift_trade_requests
		(id, ticket_id, request_type, initiator_staff_id, target_staff_id, status, initiator_note, version_etag, requested_at)
		VALUES (:id, :ticket_id, :request_type, :initiator_staff_id, :target_staff_id, :status, :initiator_note, 1, :requested_at)`
	if _, err := r.db.NamedExecContext(ctx, query, trade); err != nil {
		return fmt.Errorf("create shift trade: %w", err)
	}
	return nil
}

// GetByID fetches one trade request.
func (r *TradeRepository) GetByID(ctx context.Context, id string) (*models.ShiftTradeRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM shift_trade_requests WHERE id = $1`, tradeColumns)
	var trade models.ShiftTradeRequest
	if err := r.db.GetContext(ctx, &trade, query, id); err != nil {
		return nil, err
	}
	return &trade, nil
}

// List returns trades matching the filter, newest first.
func (r *TradeRepository) List(ctx context.Context, filter models.TradeFilter) ([]models.ShiftTradeRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM shift_trade_requests`, tradeColumns))

	conditions := make([]string, 0, 4)
	if filter.PeriodID != "" {
		args = append(args, filter.PeriodID)
		conditions = append(conditions, fmt.Sprintf("ticket_id IN (SELECT id FROM work_tickets WHERE period_id = $%d)", len(args)))
	}
	if filter.TicketID != "" {
		args = append(args, filter.TicketID)
		conditions = append(conditions, fmt.Sprintf("ticket_id = $%d", len(args)))
	}
	if filter.StaffID != "" {
		args = append(args, filter.StaffID)
		pos := len(args)
		conditions = append(conditions, fmt.Sprintf("(initiator_staff_id = $%d OR target_staff_id = $%d)", pos, pos))
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
	builder.WriteString(" ORDER BY requested_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var trades []models.ShiftTradeRequest
	if err := r.db.SelectContext(ctx, &trades, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list shift trades: %w", err)
	}
	return trades, nil
}

// TradeTransitionParams groups a status transition write.
type TradeTransitionParams struct {
	ID          string
	Version     int64
	From        models.TradeStatus
	To          models.TradeStatus
	ManagerNote *string
	At          time.Time
}

// Transition moves a trade to its next status under optimistic concurrency.
func (r *TradeRepository) Transition(ctx context.Context, params TradeTransitionParams) error {
	setParts := []string{"status = $1", "version_etag = version_etag + 1"}
	args := []interface{}{params.To}
	switch params.To {
	case models.TradeStatusAccepted:
		args = append(args, params.At)
		setParts = append(setParts, fmt.Sprintf("accepted_at = $%d", len(args)))
	case models.TradeStatusApproved:
		args = append(args, params.At)
		setParts = append(setParts, fmt.Sprintf("approved_at = $%d", len(args)))
	case models.TradeStatusApplied:
		args = append(args, params.At)
		setParts = append(setParts, fmt.Sprintf("applied_at = $%d", len(args)))
	case models.TradeStatusDenied, models.TradeStatusCanceled:
		args = append(args, params.At)
		setParts = append(setParts, fmt.Sprintf("closed_at = $%d", len(args)))
	}
	if params.ManagerNote != nil {
		args = append(args, params.ManagerNote)
		setParts = append(setParts, fmt.Sprintf("manager_note = $%d", len(args)))
	}
	args = append(args, params.ID)
	idPos := len(args)
	args = append(args, params.From, params.Version)
	query := fmt.Sprintf("UPDATE shift_trade_requests SET %s WHERE id = $%d AND status = $%d AND version_etag = $%d",
		strings.Join(setParts, ", "), idPos, idPos+1, idPos+2)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition shift trade: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check trade transition rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
