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

// PlanningRepository persists planning boards, items and proposals.
type PlanningRepository struct {
	db *sqlx.DB
}

// NewPlanningRepository constructs the repository.
func NewPlanningRepository(db *sqlx.DB) *PlanningRepository {
	return &PlanningRepository{db: db}
}

const boardItemColumns = `id, board_id, kind, ticket_id, current_assignee_staff_id,
       current_assignee_subcontractor_id, sync_state, version_etag, created_by, created_at, updated_at`

const proposalColumns = `id, board_item_id, proposed_staff_id, proposed_subcontractor_id,
       apply_state, justification, created_by, created_at, applied_at`

// ListBoards returns boards, newest date first.
func (r *PlanningRepository) ListBoards(ctx context.Context, boardDate string, limit, offset int) ([]models.PlanningBoard, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT id, board_date, site_id, name, created_by, created_at FROM planning_boards`)
	if boardDate != "" {
		args = append(args, boardDate)
		builder.WriteString(fmt.Sprintf(" WHERE board_date = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY board_date DESC, created_at DESC")
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var boards []models.PlanningBoard
	if err := r.db.SelectContext(ctx, &boards, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list planning boards: %w", err)
	}
	return boards, nil
}

// ListItems returns all items on a board, oldest first.
func (r *PlanningRepository) ListItems(ctx context.Context, boardID string) ([]models.PlanningBoardItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM planning_board_items WHERE board_id = $1 ORDER BY created_at ASC, id ASC`, boardItemColumns)
	var items []models.PlanningBoardItem
	if err := r.db.SelectContext(ctx, &items, query, boardID); err != nil {
		return nil, fmt.Errorf("list planning items: %w", err)
	}
	return items, nil
}

// GetItem fetches one board item scoped to its board.
func (r *PlanningRepository) GetItem(ctx context.Context, boardID, itemID string) (*models.PlanningBoardItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM planning_board_items WHERE id = $1 AND board_id = $2`, boardItemColumns)
	var item models.PlanningBoardItem
	if err := r.db.GetContext(ctx, &item, query, itemID, boardID); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateProposal inserts a new draft proposal for a board item.
func (r *PlanningRepository) CreateProposal(ctx context.Context, proposal *models.PlanningItemProposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.ApplyState == "" {
		proposal.ApplyState = models.ApplyStateDraft
	}
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO planning_item_proposals
		(id, board_item_id, proposed_staff_id, proposed_subcontractor_id, apply_state, justification, created_by, created_at)
		VALUES (:id, :board_item_id, :proposed_staff_id, :proposed_subcontractor_id, :apply_state, :justification, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, proposal); err != nil {
		return fmt.Errorf("create proposal: %w", err)
	}
	return nil
}

// GetProposal fetches a proposal scoped to its board item.
func (r *PlanningRepository) GetProposal(ctx context.Context, itemID, proposalID string) (*models.PlanningItemProposal, error) {
	query := fmt.Sprintf(`SELECT %s FROM planning_item_proposals WHERE id = $1 AND board_item_id = $2`, proposalColumns)
	var proposal models.PlanningItemProposal
	if err := r.db.GetContext(ctx, &proposal, query, proposalID, itemID); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// UpdateItemStateParams groups the version-gated item write.
type UpdateItemStateParams struct {
	ID              string
	Version         int64
	SyncState       models.SyncState
	StaffID         *string
	SubcontractorID *string
	SetAssignees    bool
}

// UpdateItemState transitions the item's sync state under optimistic
// concurrency, optionally recording the new current assignee.
func (r *PlanningRepository) UpdateItemState(ctx context.Context, params UpdateItemStateParams) error {
	setParts := []string{
		"sync_state = $1",
		"version_etag = version_etag + 1",
		"updated_at = $2",
	}
	args := []interface{}{params.SyncState, time.Now().UTC()}
	if params.SetAssignees {
		args = append(args, params.StaffID)
		setParts = append(setParts, fmt.Sprintf("current_assignee_staff_id = $%d", len(args)))
		args = append(args, params.SubcontractorID)
		setParts = append(setParts, fmt.Sprintf("current_assignee_subcontractor_id = $%d", len(args)))
	}
	args = append(args, params.ID)
	idPos := len(args)
	args = append(args, params.Version)
	query := fmt.Sprintf("UPDATE planning_board_items SET %s WHERE id = $%d AND version_etag = $%d",
		strings.Join(setParts, ", "), idPos, idPos+1)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update planning item state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check planning item update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkProposalApplied flips an active proposal to applied. The state guard
// in the WHERE clause serialises concurrent applies: the loser sees zero
// rows.
func (r *PlanningRepository) MarkProposalApplied(ctx context.Context, proposalID string) error {
	const query = `UPDATE planning_item_proposals
		SET apply_state = $1, applied_at = $2
		WHERE id = $3 AND apply_state IN ($4, $5)`
	result, err := r.db.ExecContext(ctx, query,
		models.ApplyStateApplied,
		time.Now().UTC(),
		proposalID,
		models.ApplyStateDraft,
		models.ApplyStateValidated,
	)
	if err != nil {
		return fmt.Errorf("mark proposal applied: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check proposal update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RejectActiveProposals marks every still-active proposal on an item as
// rejected. Used when a drift resolution accepts the schedule version.
func (r *PlanningRepository) RejectActiveProposals(ctx context.Context, itemID string) error {
	const query = `UPDATE planning_item_proposals
		SET apply_state = $1
		WHERE board_item_id = $2 AND apply_state IN ($3, $4)`
	if _, err := r.db.ExecContext(ctx, query,
		models.ApplyStateRejected, itemID, models.ApplyStateDraft, models.ApplyStateValidated); err != nil {
		return fmt.Errorf("reject active proposals: %w", err)
	}
	return nil
}
