package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/repository"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
)

type planningBoardStore interface {
	ListBoards(ctx context.Context, boardDate string, limit, offset int) ([]models.PlanningBoard, error)
	ListItems(ctx context.Context, boardID string) ([]models.PlanningBoardItem, error)
	GetItem(ctx context.Context, boardID, itemID string) (*models.PlanningBoardItem, error)
	CreateProposal(ctx context.Context, proposal *models.PlanningItemProposal) error
	UpdateItemState(ctx context.Context, params repository.UpdateItemStateParams) error
}

type planningDirectoryStore interface {
	GetStaff(ctx context.Context, id string) (*models.Staff, error)
	GetSubcontractor(ctx context.Context, id string) (*models.Subcontractor, error)
}

// CreateProposalCommand carries one proposal creation request.
type CreateProposalCommand struct {
	BoardID                 string
	ItemID                  string
	ProposedStaffID         *string
	ProposedSubcontractorID *string
	Justification           string
}

// BoardItemsView is a board's items plus a sync-state tally.
type BoardItemsView struct {
	Items       []models.PlanningBoardItem `json:"items"`
	StateCounts map[models.SyncState]int   `json:"state_counts"`
}

// PlanningService serves the planning board read surface and proposal
// creation. Applying a proposal belongs to PlanningApplyService.
type PlanningService struct {
	planning  planningBoardStore
	directory planningDirectoryStore
	gate      *RoleGate
	audit     *AuditRecorder
	logger    *zap.Logger
}

// NewPlanningService constructs the service.
func NewPlanningService(planning planningBoardStore, directory planningDirectoryStore, gate *RoleGate, audit *AuditRecorder, logger *zap.Logger) *PlanningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanningService{planning: planning, directory: directory, gate: gate, audit: audit, logger: logger}
}

// ListBoards returns planning boards, newest date first.
func (s *PlanningService) ListBoards(ctx context.Context, boardDate string, limit, offset int) ([]models.PlanningBoard, error) {
	boards, err := s.planning.ListBoards(ctx, boardDate, limit, offset)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return boards, nil
}

// ListItems returns a board's items with a sync-state tally.
func (s *PlanningService) ListItems(ctx context.Context, boardID string) (*BoardItemsView, error) {
	items, err := s.planning.ListItems(ctx, boardID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	counts := make(map[models.SyncState]int, 5)
	for _, item := range items {
		counts[item.SyncState]++
	}
	return &BoardItemsView{Items: items, StateCounts: counts}, nil
}

// CreateProposal stages a reassignment on a board item. The item moves to
// draft_change if it is not there already.
func (s *PlanningService) CreateProposal(ctx context.Context, cmd CreateProposalCommand, actor *models.JWTClaims, actx models.AuditContext) (*models.PlanningItemProposal, error) {
	if !s.gate.CanManageSchedule(actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	if (cmd.ProposedStaffID == nil) == (cmd.ProposedSubcontractorID == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of proposed_staff_id and proposed_subcontractor_id must be set")
	}

	item, err := s.planning.GetItem(ctx, cmd.BoardID, cmd.ItemID)
	if err != nil {
		return nil, notFoundOr(err, "planning item not found")
	}
	if item.Kind != models.PlanningItemTicket || item.TicketID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "planning item does not reference a ticket")
	}
	if item.SyncState != models.SyncStateDraftChange && !item.SyncState.CanTransitionTo(models.SyncStateDraftChange) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("item in state %s cannot accept a new proposal", item.SyncState))
	}

	if err := s.verifyAssignee(ctx, cmd); err != nil {
		return nil, err
	}

	proposal := &models.PlanningItemProposal{
		BoardItemID:             item.ID,
		ProposedStaffID:         cmd.ProposedStaffID,
		ProposedSubcontractorID: cmd.ProposedSubcontractorID,
		Justification:           cmd.Justification,
		CreatedBy:               actor.UserID,
	}
	if err := s.planning.CreateProposal(ctx, proposal); err != nil {
		return nil, appErrors.FromError(err)
	}

	if item.SyncState != models.SyncStateDraftChange {
		err := s.planning.UpdateItemState(ctx, repository.UpdateItemStateParams{
			ID:        item.ID,
			Version:   item.VersionETag,
			SyncState: models.SyncStateDraftChange,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrVersionConflict
			}
			return nil, appErrors.FromError(err)
		}
	}

	s.audit.Record(ctx, entityPlanningItem, item.ID, models.AuditActionProposalCreate,
		map[string]interface{}{"sync_state": item.SyncState},
		map[string]interface{}{
			"sync_state":                models.SyncStateDraftChange,
			"proposal_id":               proposal.ID,
			"proposed_staff_id":         cmd.ProposedStaffID,
			"proposed_subcontractor_id": cmd.ProposedSubcontractorID,
		},
		actx)

	return proposal, nil
}

func (s *PlanningService) verifyAssignee(ctx context.Context, cmd CreateProposalCommand) error {
	if cmd.ProposedStaffID != nil {
		staff, err := s.directory.GetStaff(ctx, *cmd.ProposedStaffID)
		if err != nil {
			return notFoundOr(err, "proposed staff member not found")
		}
		if !staff.Active {
			return appErrors.Clone(appErrors.ErrValidation, "proposed staff member is inactive")
		}
		return nil
	}
	sub, err := s.directory.GetSubcontractor(ctx, *cmd.ProposedSubcontractorID)
	if err != nil {
		return notFoundOr(err, "proposed subcontractor not found")
	}
	if !sub.Active {
		return appErrors.Clone(appErrors.ErrValidation, "proposed subcontractor is inactive")
	}
	return nil
}
