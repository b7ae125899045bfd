package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/repository"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
)

const entityShiftTrade = "shift_trade_request"

type tradeStore interface {
	Create(ctx context.Context, trade *models.ShiftTradeRequest) error
	GetByID(ctx context.Context, id string) (*models.ShiftTradeRequest, error)
	List(ctx context.Context, filter models.TradeFilter) ([]models.ShiftTradeRequest, error)
	Transition(ctx context.Context, params repository.TradeTransitionParams) error
}

type tradeDirectoryStore interface {
	GetStaff(ctx context.Context, id string) (*models.Staff, error)
}

type tradeMetrics interface {
	RecordTradeTransition(status string)
}

type noopTradeMetrics struct{}

func (noopTradeMetrics) RecordTradeTransition(string) {}

// RequestTradeCommand carries one trade creation request.
type RequestTradeCommand struct {
	TicketID      string           `validate:"required"`
	RequestType   models.TradeType `validate:"required,oneof=GIVE_AWAY SWAP"`
	TargetStaffID string           `validate:"required"`
	Note          *string
}

// ShiftTradeService drives the shift trade lifecycle. Staff request and
// accept; supervisors and up approve, apply or deny. Applying a trade
// reruns the conflict detector and then commits the ticket reassignment
// through the same version gate as the apply workflow.
type ShiftTradeService struct {
	trades    tradeStore
	tickets   applyTicketStore
	directory tradeDirectoryStore
	detector  conflictDetector
	gate      *RoleGate
	audit     *AuditRecorder
	cache     cacheInvalidator
	metrics   tradeMetrics
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// TradeOption customises the trade service.
type TradeOption func(*ShiftTradeService)

// WithTradeCache plugs in the assignment cache to invalidate after applies.
func WithTradeCache(cache cacheInvalidator) TradeOption {
	return func(s *ShiftTradeService) { s.cache = cache }
}

// WithTradeMetrics plugs in trade transition counters.
func WithTradeMetrics(metrics tradeMetrics) TradeOption {
	return func(s *ShiftTradeService) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithTradeLogger sets the logger.
func WithTradeLogger(logger *zap.Logger) TradeOption {
	return func(s *ShiftTradeService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewShiftTradeService constructs the service.
func NewShiftTradeService(trades tradeStore, tickets applyTicketStore, directory tradeDirectoryStore, detector conflictDetector, gate *RoleGate, audit *AuditRecorder, opts ...TradeOption) *ShiftTradeService {
	s := &ShiftTradeService{
		trades:    trades,
		tickets:   tickets,
		directory: directory,
		detector:  detector,
		gate:      gate,
		audit:     audit,
		metrics:   noopTradeMetrics{},
		validate:  validator.New(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns trades matching the filter.
func (s *ShiftTradeService) List(ctx context.Context, filter models.TradeFilter) ([]models.ShiftTradeRequest, error) {
	trades, err := s.trades.List(ctx, filter)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return trades, nil
}

// Get returns one trade.
func (s *ShiftTradeService) Get(ctx context.Context, id string) (*models.ShiftTradeRequest, error) {
	trade, err := s.trades.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "shift trade not found")
	}
	return trade, nil
}

// Request opens a trade. Only the staff member currently holding the ticket
// may initiate one.
func (s *ShiftTradeService) Request(ctx context.Context, cmd RequestTradeCommand, actor *models.JWTClaims, actx models.AuditContext) (*models.ShiftTradeRequest, error) {
	if actor.StaffID == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff accounts can request trades")
	}
	if err := s.validate.Struct(cmd); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trade request")
	}

	ticket, err := s.tickets.GetByID(ctx, cmd.TicketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket not found")
	}
	if !ticket.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ticket is cancelled")
	}
	if ticket.AssigneeStaffID == nil || *ticket.AssigneeStaffID != actor.StaffID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the assigned staff member can trade this ticket")
	}
	if cmd.TargetStaffID == actor.StaffID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot trade a ticket to yourself")
	}

	target, err := s.directory.GetStaff(ctx, cmd.TargetStaffID)
	if err != nil {
		return nil, notFoundOr(err, "target staff member not found")
	}
	if !target.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target staff member is inactive")
	}

	trade := &models.ShiftTradeRequest{
		TicketID:         cmd.TicketID,
		RequestType:      cmd.RequestType,
		InitiatorStaffID: actor.StaffID,
		TargetStaffID:    cmd.TargetStaffID,
		InitiatorNote:    cmd.Note,
	}
	if err := s.trades.Create(ctx, trade); err != nil {
		return nil, appErrors.FromError(err)
	}

	s.metrics.RecordTradeTransition(string(models.TradeStatusRequested))
	s.audit.Record(ctx, entityShiftTrade, trade.ID, models.AuditActionTradeRequest,
		nil, trade, actx)
	return trade, nil
}

// Accept is the target staff member agreeing to take the ticket.
func (s *ShiftTradeService) Accept(ctx context.Context, tradeID string, actor *models.JWTClaims, actx models.AuditContext) (*models.ShiftTradeRequest, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, notFoundOr(err, "shift trade not found")
	}
	if actor.StaffID == "" || actor.StaffID != trade.TargetStaffID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the target staff member can accept this trade")
	}
	return s.transition(ctx, trade, models.TradeStatusAccepted, models.AuditActionTradeAccept, nil, actx)
}

// Approve is a manager signing off an accepted trade without yet touching
// the schedule.
func (s *ShiftTradeService) Approve(ctx context.Context, tradeID string, actor *models.JWTClaims, actx models.AuditContext) (*models.ShiftTradeRequest, []models.ScheduleConflict, error) {
	if !s.gate.CanApproveTrade(actor.Role) {
		return nil, nil, appErrors.ErrForbidden
	}
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, nil, notFoundOr(err, "shift trade not found")
	}

	blocking, err := s.recheck(ctx, trade)
	if err != nil {
		return nil, nil, err
	}
	if len(blocking) > 0 {
		return nil, blocking, appErrors.ErrTradeBlocked
	}

	updated, err := s.transition(ctx, trade, models.TradeStatusApproved, models.AuditActionTradeApprove, nil, actx)
	return updated, nil, err
}

// Apply commits an accepted or approved trade: the ticket moves to the
// target staff member under the usual version gate.
func (s *ShiftTradeService) Apply(ctx context.Context, tradeID string, actor *models.JWTClaims, actx models.AuditContext) (*models.ShiftTradeRequest, []models.ScheduleConflict, error) {
	if !s.gate.CanApproveTrade(actor.Role) {
		return nil, nil, appErrors.ErrForbidden
	}
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, nil, notFoundOr(err, "shift trade not found")
	}
	if !trade.Status.CanTransitionTo(models.TradeStatusApplied) {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("trade in status %s cannot be applied", trade.Status))
	}

	blocking, err := s.recheck(ctx, trade)
	if err != nil {
		return nil, nil, err
	}
	if len(blocking) > 0 {
		return nil, blocking, appErrors.ErrTradeBlocked
	}

	ticket, err := s.tickets.GetByID(ctx, trade.TicketID)
	if err != nil {
		return nil, nil, notFoundOr(err, "ticket not found")
	}

	targetID := trade.TargetStaffID
	err = s.tickets.UpdateAssignment(ctx, repository.UpdateAssignmentParams{
		ID:              ticket.ID,
		Version:         ticket.VersionETag,
		AssigneeStaffID: &targetID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrVersionConflict
		}
		return nil, nil, fmt.Errorf("commit trade assignment: %w", err)
	}

	s.invalidateAssignments(ctx, trade.InitiatorStaffID, trade.TargetStaffID)

	updated, err := s.transition(ctx, trade, models.TradeStatusApplied, models.AuditActionTradeApply, nil, actx)
	return updated, nil, err
}

// Deny closes a requested trade with a mandatory manager note.
func (s *ShiftTradeService) Deny(ctx context.Context, tradeID, note string, actor *models.JWTClaims, actx models.AuditContext) (*models.ShiftTradeRequest, error) {
	if !s.gate.CanApproveTrade(actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	if note == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a manager note is required to deny a trade")
	}
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, notFoundOr(err, "shift trade not found")
	}
	return s.transition(ctx, trade, models.TradeStatusDenied, models.AuditActionTradeDeny, &note, actx)
}

// Cancel withdraws a requested trade. The initiator or a manager may cancel.
func (s *ShiftTradeService) Cancel(ctx context.Context, tradeID string, actor *models.JWTClaims, actx models.AuditContext) (*models.ShiftTradeRequest, error) {
	trade, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return nil, notFoundOr(err, "shift trade not found")
	}
	if actor.StaffID != trade.InitiatorStaffID && !s.gate.CanApproveTrade(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the initiator or a manager can cancel this trade")
	}
	return s.transition(ctx, trade, models.TradeStatusCanceled, models.AuditActionTradeCancel, nil, actx)
}

func (s *ShiftTradeService) transition(ctx context.Context, trade *models.ShiftTradeRequest, target models.TradeStatus, action string, managerNote *string, actx models.AuditContext) (*models.ShiftTradeRequest, error) {
	if !trade.Status.CanTransitionTo(target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("trade cannot move from %s to %s", trade.Status, target))
	}

	at := s.now().UTC()
	err := s.trades.Transition(ctx, repository.TradeTransitionParams{
		ID:          trade.ID,
		Version:     trade.VersionETag,
		From:        trade.Status,
		To:          target,
		ManagerNote: managerNote,
		At:          at,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrVersionConflict
		}
		return nil, appErrors.FromError(err)
	}

	updated := *trade
	updated.Status = target
	updated.VersionETag = trade.VersionETag + 1
	if managerNote != nil {
		updated.ManagerNote = managerNote
	}
	switch target {
	case models.TradeStatusAccepted:
		updated.AcceptedAt = &at
	case models.TradeStatusApproved:
		updated.ApprovedAt = &at
	case models.TradeStatusApplied:
		updated.AppliedAt = &at
	case models.TradeStatusDenied, models.TradeStatusCanceled:
		updated.ClosedAt = &at
	}

	s.metrics.RecordTradeTransition(string(target))
	s.audit.Record(ctx, entityShiftTrade, trade.ID, action,
		map[string]interface{}{"status": trade.Status},
		map[string]interface{}{"status": target},
		actx)
	return &updated, nil
}

// recheck reruns the detector for the trade's target against the current
// schedule. Warnings do not block trades; blocking conflicts do.
func (s *ShiftTradeService) recheck(ctx context.Context, trade *models.ShiftTradeRequest) ([]models.ScheduleConflict, error) {
	ticket, err := s.tickets.GetByID(ctx, trade.TicketID)
	if err != nil {
		return nil, notFoundOr(err, "ticket not found")
	}
	if !ticket.Status.Active() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "ticket is cancelled")
	}

	proposed := models.AssigneeRef{Type: models.AssigneeStaff, ID: trade.TargetStaffID}
	conflicts, err := s.detector.Detect(ctx, ticket, proposed, false)
	if err != nil {
		return nil, fmt.Errorf("detect trade conflicts: %w", err)
	}
	blocking, _ := Partition(conflicts)
	return blocking, nil
}

func (s *ShiftTradeService) invalidateAssignments(ctx context.Context, staffIDs ...string) {
	if s.cache == nil {
		return
	}
	for _, staffID := range staffIDs {
		if staffID == "" {
			continue
		}
		pattern := fmt.Sprintf("assignments:%s:*", staffID)
		if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Warn("invalidate assignment cache", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}
