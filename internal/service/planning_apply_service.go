package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/repository"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
)

const entityPlanningItem = "planning_board_item"

type applyPlanningStore interface {
	GetItem(ctx context.Context, boardID, itemID string) (*models.PlanningBoardItem, error)
	GetProposal(ctx context.Context, itemID, proposalID string) (*models.PlanningItemProposal, error)
	UpdateItemState(ctx context.Context, params repository.UpdateItemStateParams) error
	MarkProposalApplied(ctx context.Context, proposalID string) error
	RejectActiveProposals(ctx context.Context, itemID string) error
}

type applyTicketStore interface {
	GetByID(ctx context.Context, id string) (*models.WorkTicket, error)
	UpdateAssignment(ctx context.Context, params repository.UpdateAssignmentParams) error
}

type conflictDetector interface {
	Detect(ctx context.Context, ticket *models.WorkTicket, proposed models.AssigneeRef, overridePreAuthorized bool) ([]models.ScheduleConflict, error)
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type applyMetrics interface {
	RecordApplyOutcome(outcome string)
	RecordApplyInconsistency()
}

type noopApplyMetrics struct{}

func (noopApplyMetrics) RecordApplyOutcome(string) {}
func (noopApplyMetrics) RecordApplyInconsistency() {}

// ApplyStatus is the terminal state of one apply attempt.
type ApplyStatus string

const (
	ApplyStatusBlocked        ApplyStatus = "blocked"
	ApplyStatusAckRequired    ApplyStatus = "ack_required"
	ApplyStatusLockedOverride ApplyStatus = "locked_override"
	ApplyStatusSuccess        ApplyStatus = "success"
)

// ApplyCommand carries one apply request.
type ApplyCommand struct {
	BoardID                string
	ItemID                 string
	ProposalID             string
	AcknowledgedWarningIDs []string
	OverrideLockedPeriod   bool
	OverrideReason         string
}

// ApplyOutcome is the result of an apply attempt. Only Success means the
// live schedule changed; the other statuses tell the caller what stands in
// the way.
type ApplyOutcome struct {
	Status                   ApplyStatus               `json:"status"`
	Code                     string                    `json:"code,omitempty"`
	BlockingConflicts        []models.ScheduleConflict `json:"blocking_conflicts,omitempty"`
	Warnings                 []models.ScheduleConflict `json:"warnings,omitempty"`
	UnacknowledgedWarningIDs []string                  `json:"unacknowledged_warning_ids,omitempty"`
	Item                     *models.PlanningBoardItem `json:"item,omitempty"`
	Ticket                   *models.WorkTicket        `json:"ticket,omitempty"`
}

// ResolveDriftCommand carries one drift resolution request.
type ResolveDriftCommand struct {
	BoardID    string
	ItemID     string
	Resolution models.DriftResolution
}

// PlanningApplyService orchestrates pushing a board proposal into the live
// schedule. The ticket write is the source of truth and is version gated;
// item, proposal and audit writes follow it and are retried, never rolled
// back.
type PlanningApplyService struct {
	planning applyPlanningStore
	tickets  applyTicketStore
	detector conflictDetector
	gate     *RoleGate
	audit    *AuditRecorder
	cache    cacheInvalidator
	metrics  applyMetrics
	logger   *zap.Logger
	retries  int
}

// ApplyOption customises the apply service.
type ApplyOption func(*PlanningApplyService)

// WithApplyCache plugs in the assignment cache to invalidate after writes.
func WithApplyCache(cache cacheInvalidator) ApplyOption {
	return func(s *PlanningApplyService) { s.cache = cache }
}

// WithApplyMetrics plugs in the apply counters.
func WithApplyMetrics(metrics applyMetrics) ApplyOption {
	return func(s *PlanningApplyService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithApplyLogger sets the logger.
func WithApplyLogger(logger *zap.Logger) ApplyOption {
	return func(s *PlanningApplyService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDependentWriteRetries bounds retries of the writes that follow the
// ticket write.
func WithDependentWriteRetries(retries int) ApplyOption {
	return func(s *PlanningApplyService) {
		if retries >= 0 {
			s.retries = retries
		}
	}
}

// NewPlanningApplyService constructs the orchestrator.
func NewPlanningApplyService(planning applyPlanningStore, tickets applyTicketStore, detector conflictDetector, gate *RoleGate, audit *AuditRecorder, opts ...ApplyOption) *PlanningApplyService {
	s := &PlanningApplyService{
		planning: planning,
		tickets:  tickets,
		detector: detector,
		gate:     gate,
		audit:    audit,
		metrics:  noopApplyMetrics{},
		logger:   zap.NewNop(),
		retries:  3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply pushes one proposal into the live schedule, or reports why it
// cannot. Blocking, acknowledgment and override outcomes come back as a
// non-success ApplyOutcome with a nil error; hard failures (permissions,
// missing entities, version races) come back as typed errors.
func (s *PlanningApplyService) Apply(ctx context.Context, cmd ApplyCommand, actor *models.JWTClaims, actx models.AuditContext) (*ApplyOutcome, error) {
	if !s.gate.CanManageSchedule(actor.Role) {
		return nil, appErrors.ErrForbidden
	}

	item, err := s.planning.GetItem(ctx, cmd.BoardID, cmd.ItemID)
	if err != nil {
		return nil, notFoundOr(err, "planning item not found")
	}
	if item.Kind != models.PlanningItemTicket || item.TicketID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "planning item does not reference a ticket")
	}

	proposal, err := s.planning.GetProposal(ctx, item.ID, cmd.ProposalID)
	if err != nil {
		return nil, notFoundOr(err, "proposal not found")
	}
	switch proposal.ApplyState {
	case models.ApplyStateApplied:
		return nil, appErrors.ErrAlreadyApplied
	case models.ApplyStateRejected:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "proposal was rejected and cannot be applied")
	}

	if !item.SyncState.CanTransitionTo(models.SyncStateApplied) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("item in state %s cannot be applied", item.SyncState))
	}

	proposed, err := proposalAssignee(proposal)
	if err != nil {
		return nil, err
	}

	ticket, err := s.tickets.GetByID(ctx, *item.TicketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket not found")
	}
	if !ticket.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ticket is cancelled")
	}

	overrideCapable := s.gate.CanOverrideLockedPeriod(actor.Role)
	overrideReason := strings.TrimSpace(cmd.OverrideReason)
	preAuthorized := cmd.OverrideLockedPeriod && overrideCapable && overrideReason != ""

	conflicts, err := s.detector.Detect(ctx, ticket, proposed, preAuthorized)
	if err != nil {
		return nil, fmt.Errorf("detect conflicts: %w", err)
	}
	blocking, warnings := Partition(conflicts)

	if len(blocking) > 0 {
		if onlyLockedPeriod(blocking) && overrideCapable {
			s.metrics.RecordApplyOutcome(string(ApplyStatusLockedOverride))
			return &ApplyOutcome{
				Status:            ApplyStatusLockedOverride,
				Code:              appErrors.ErrOverrideRequired.Code,
				BlockingConflicts: blocking,
			}, nil
		}
		s.metrics.RecordApplyOutcome(string(ApplyStatusBlocked))
		return &ApplyOutcome{
			Status:            ApplyStatusBlocked,
			Code:              appErrors.ErrApplyBlocked.Code,
			BlockingConflicts: blocking,
		}, nil
	}

	if unacked := unacknowledged(warnings, cmd.AcknowledgedWarningIDs); len(unacked) > 0 {
		s.metrics.RecordApplyOutcome(string(ApplyStatusAckRequired))
		return &ApplyOutcome{
			Status:                   ApplyStatusAckRequired,
			Code:                     appErrors.ErrAckRequired.Code,
			Warnings:                 warnings,
			UnacknowledgedWarningIDs: unacked,
		}, nil
	}

	return s.commit(ctx, item, proposal, ticket, proposed, cmd, warnings, actor, actx)
}

func (s *PlanningApplyService) commit(ctx context.Context, item *models.PlanningBoardItem, proposal *models.PlanningItemProposal, ticket *models.WorkTicket, proposed models.AssigneeRef, cmd ApplyCommand, warnings []models.ScheduleConflict, actor *models.JWTClaims, actx models.AuditContext) (*ApplyOutcome, error) {
	before := assignmentSnapshot(ticket, item)

	newStaffID, newSubID := assigneeColumns(proposed)
	err := s.tickets.UpdateAssignment(ctx, repository.UpdateAssignmentParams{
		ID:                      ticket.ID,
		Version:                 ticket.VersionETag,
		AssigneeStaffID:         newStaffID,
		AssigneeSubcontractorID: newSubID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrVersionConflict
		}
		return nil, fmt.Errorf("commit ticket assignment: %w", err)
	}

	// From here the schedule has changed. Dependent writes are retried, and
	// a write that still fails is logged and counted, never rolled back.
	s.retryDependent(ctx, "item state", item.ID, func() error {
		return s.planning.UpdateItemState(ctx, repository.UpdateItemStateParams{
			ID:              item.ID,
			Version:         item.VersionETag,
			SyncState:       models.SyncStateApplied,
			StaffID:         newStaffID,
			SubcontractorID: newSubID,
			SetAssignees:    true,
		})
	})
	s.retryDependent(ctx, "proposal state", proposal.ID, func() error {
		return s.planning.MarkProposalApplied(ctx, proposal.ID)
	})

	s.invalidateAssignments(ctx, ticket.AssigneeStaffID, newStaffID)

	appliedTicket := *ticket
	appliedTicket.AssigneeStaffID = newStaffID
	appliedTicket.AssigneeSubcontractorID = newSubID
	appliedTicket.VersionETag = ticket.VersionETag + 1

	appliedItem := *item
	appliedItem.SyncState = models.SyncStateApplied
	appliedItem.CurrentAssigneeStaffID = newStaffID
	appliedItem.CurrentAssigneeSubcontractorID = newSubID
	appliedItem.VersionETag = item.VersionETag + 1

	after := assignmentSnapshot(&appliedTicket, &appliedItem)
	if cmd.OverrideLockedPeriod {
		after["override_reason"] = strings.TrimSpace(cmd.OverrideReason)
	}
	if len(cmd.AcknowledgedWarningIDs) > 0 {
		after["acknowledged_warning_ids"] = cmd.AcknowledgedWarningIDs
	}
	s.audit.Record(ctx, entityPlanningItem, item.ID, models.AuditActionApply, before, after, actx)

	s.metrics.RecordApplyOutcome(string(ApplyStatusSuccess))
	s.logger.Info("proposal applied",
		zap.String("item_id", item.ID),
		zap.String("proposal_id", proposal.ID),
		zap.String("ticket_id", ticket.ID),
		zap.String("actor_id", actor.UserID),
	)

	return &ApplyOutcome{
		Status:   ApplyStatusSuccess,
		Warnings: warnings,
		Item:     &appliedItem,
		Ticket:   &appliedTicket,
	}, nil
}

// DetectDrift re-checks one board item against the live ticket. When the
// schedule moved underneath the board, the item is pushed into conflict so
// a human can resolve it. Because a detected drift flips the sync state,
// the caller needs the manage-schedule capability.
func (s *PlanningApplyService) DetectDrift(ctx context.Context, boardID, itemID string, actor *models.JWTClaims) (*models.PlanningBoardItem, bool, error) {
	if !s.gate.CanManageSchedule(actor.Role) {
		return nil, false, appErrors.ErrForbidden
	}

	item, err := s.planning.GetItem(ctx, boardID, itemID)
	if err != nil {
		return nil, false, notFoundOr(err, "planning item not found")
	}
	if item.Kind != models.PlanningItemTicket || item.TicketID == nil {
		return item, false, nil
	}

	ticket, err := s.tickets.GetByID(ctx, *item.TicketID)
	if err != nil {
		return nil, false, notFoundOr(err, "ticket not found")
	}

	if !assigneesDiffer(item, ticket) || !item.SyncState.CanTransitionTo(models.SyncStateConflict) {
		return item, false, nil
	}

	err = s.planning.UpdateItemState(ctx, repository.UpdateItemStateParams{
		ID:        item.ID,
		Version:   item.VersionETag,
		SyncState: models.SyncStateConflict,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.ErrVersionConflict
		}
		return nil, false, fmt.Errorf("mark item conflicted: %w", err)
	}

	drifted := *item
	drifted.SyncState = models.SyncStateConflict
	drifted.VersionETag = item.VersionETag + 1
	return &drifted, true, nil
}

// ResolveDrift settles a conflicted item one way or the other. Neither
// resolution touches the live ticket.
func (s *PlanningApplyService) ResolveDrift(ctx context.Context, cmd ResolveDriftCommand, actor *models.JWTClaims, actx models.AuditContext) (*models.PlanningBoardItem, error) {
	if !s.gate.CanManageSchedule(actor.Role) {
		return nil, appErrors.ErrForbidden
	}

	item, err := s.planning.GetItem(ctx, cmd.BoardID, cmd.ItemID)
	if err != nil {
		return nil, notFoundOr(err, "planning item not found")
	}
	if item.SyncState != models.SyncStateConflict {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("item in state %s has no drift to resolve", item.SyncState))
	}

	params := repository.UpdateItemStateParams{
		ID:      item.ID,
		Version: item.VersionETag,
	}
	switch cmd.Resolution {
	case models.DriftUseBoardVersion:
		params.SyncState = models.SyncStateDraftChange
	case models.DriftAcceptScheduleVersion:
		params.SyncState = models.SyncStateDismissed
		if item.TicketID != nil {
			ticket, err := s.tickets.GetByID(ctx, *item.TicketID)
			if err != nil {
				return nil, notFoundOr(err, "ticket not found")
			}
			params.StaffID = ticket.AssigneeStaffID
			params.SubcontractorID = ticket.AssigneeSubcontractorID
			params.SetAssignees = true
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown drift resolution")
	}

	if err := s.planning.UpdateItemState(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrVersionConflict
		}
		return nil, fmt.Errorf("resolve drift: %w", err)
	}

	if cmd.Resolution == models.DriftAcceptScheduleVersion {
		if err := s.planning.RejectActiveProposals(ctx, item.ID); err != nil {
			s.logger.Warn("reject active proposals", zap.String("item_id", item.ID), zap.Error(err))
		}
	}

	resolved := *item
	resolved.SyncState = params.SyncState
	resolved.VersionETag = item.VersionETag + 1
	if params.SetAssignees {
		resolved.CurrentAssigneeStaffID = params.StaffID
		resolved.CurrentAssigneeSubcontractorID = params.SubcontractorID
	}

	s.audit.Record(ctx, entityPlanningItem, item.ID, models.AuditActionResolveDrift,
		map[string]interface{}{"sync_state": item.SyncState},
		map[string]interface{}{"sync_state": resolved.SyncState, "resolution": cmd.Resolution},
		actx)

	return &resolved, nil
}

func (s *PlanningApplyService) retryDependent(ctx context.Context, name, id string, write func() error) {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if err = write(); err == nil {
			return
		}
		if errors.Is(err, sql.ErrNoRows) {
			// A guard clause matched nothing; retrying cannot help.
			break
		}
	}
	s.metrics.RecordApplyInconsistency()
	s.logger.Error("dependent write failed after ticket commit",
		zap.String("write", name),
		zap.String("id", id),
		zap.Error(err),
	)
}

func (s *PlanningApplyService) invalidateAssignments(ctx context.Context, staffIDs ...*string) {
	if s.cache == nil {
		return
	}
	seen := make(map[string]struct{}, len(staffIDs))
	for _, staffID := range staffIDs {
		if staffID == nil {
			continue
		}
		if _, done := seen[*staffID]; done {
			continue
		}
		seen[*staffID] = struct{}{}
		pattern := fmt.Sprintf("assignments:%s:*", *staffID)
		if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Warn("invalidate assignment cache", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}

func proposalAssignee(proposal *models.PlanningItemProposal) (models.AssigneeRef, error) {
	switch {
	case proposal.ProposedStaffID != nil && proposal.ProposedSubcontractorID != nil:
		return models.AssigneeRef{}, appErrors.Clone(appErrors.ErrValidation, "proposal names both a staff member and a subcontractor")
	case proposal.ProposedStaffID != nil:
		return models.AssigneeRef{Type: models.AssigneeStaff, ID: *proposal.ProposedStaffID}, nil
	case proposal.ProposedSubcontractorID != nil:
		return models.AssigneeRef{Type: models.AssigneeSubcontractor, ID: *proposal.ProposedSubcontractorID}, nil
	default:
		return models.AssigneeRef{}, appErrors.Clone(appErrors.ErrValidation, "proposal names no assignee")
	}
}

func assigneeColumns(ref models.AssigneeRef) (staffID, subID *string) {
	id := ref.ID
	if ref.Type == models.AssigneeStaff {
		return &id, nil
	}
	return nil, &id
}

func onlyLockedPeriod(blocking []models.ScheduleConflict) bool {
	for _, c := range blocking {
		if c.ConflictType != models.ConflictLockedPeriod {
			return false
		}
	}
	return len(blocking) > 0
}

func unacknowledged(warnings []models.ScheduleConflict, acked []string) []string {
	ackSet := make(map[string]struct{}, len(acked))
	for _, id := range acked {
		ackSet[id] = struct{}{}
	}
	var missing []string
	for _, w := range warnings {
		if _, ok := ackSet[w.ID]; !ok {
			missing = append(missing, w.ID)
		}
	}
	return missing
}

func assigneesDiffer(item *models.PlanningBoardItem, ticket *models.WorkTicket) bool {
	return !ptrEqual(item.CurrentAssigneeStaffID, ticket.AssigneeStaffID) ||
		!ptrEqual(item.CurrentAssigneeSubcontractorID, ticket.AssigneeSubcontractorID)
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func assignmentSnapshot(ticket *models.WorkTicket, item *models.PlanningBoardItem) map[string]interface{} {
	return map[string]interface{}{
		"ticket_id":                 ticket.ID,
		"ticket_version":            ticket.VersionETag,
		"assignee_staff_id":         ticket.AssigneeStaffID,
		"assignee_subcontractor_id": ticket.AssigneeSubcontractorID,
		"sync_state":                item.SyncState,
	}
}

func notFoundOr(err error, detail string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, detail)
	}
	return appErrors.FromError(err)
}
