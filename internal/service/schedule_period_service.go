package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/repository"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
)

const entitySchedulePeriod = "schedule_period"

type periodStore interface {
	Create(ctx context.Context, period *models.SchedulePeriod) error
	GetByID(ctx context.Context, id string) (*models.SchedulePeriod, error)
	List(ctx context.Context, filter models.PeriodFilter) ([]models.SchedulePeriod, error)
	Transition(ctx context.Context, params repository.TransitionParams) error
}

type periodTicketStore interface {
	ListForPeriod(ctx context.Context, periodID string) ([]models.WorkTicket, error)
}

type conflictStore interface {
	RecordBatch(ctx context.Context, conflicts []models.ScheduleConflict) error
	MarkResolved(ctx context.Context, ids []string, resolvedBy, resolution string) error
	List(ctx context.Context, filter models.ConflictFilter) ([]models.ScheduleConflict, error)
}

type dbObserver interface {
	ObserveDBQuery(operation string, duration time.Duration)
}

// CreatePeriodCommand carries one period creation request.
type CreatePeriodCommand struct {
	SiteID      string `validate:"required"`
	Name        string `validate:"required"`
	PeriodStart string `validate:"required,datetime=2006-01-02"`
	PeriodEnd   string `validate:"required,datetime=2006-01-02"`
}

// ValidationReport summarises a detector sweep over a period.
type ValidationReport struct {
	PeriodID      string                    `json:"period_id"`
	TicketCount   int                       `json:"ticket_count"`
	BlockingCount int                       `json:"blocking_count"`
	WarningCount  int                       `json:"warning_count"`
	Conflicts     []models.ScheduleConflict `json:"conflicts"`
}

// SchedulePeriodService drives the period lifecycle and validation sweeps.
// Transitions are one-way; a period never returns to a more mutable state.
type SchedulePeriodService struct {
	periods   periodStore
	tickets   periodTicketStore
	conflicts conflictStore
	detector  conflictDetector
	gate      *RoleGate
	audit     *AuditRecorder
	validate  *validator.Validate
	logger    *zap.Logger
	metrics   dbObserver
	now       func() time.Time
}

// PeriodOption customises the period service.
type PeriodOption func(*SchedulePeriodService)

// WithPeriodMetrics plugs in query timing for the validation sweep.
func WithPeriodMetrics(metrics dbObserver) PeriodOption {
	return func(s *SchedulePeriodService) { s.metrics = metrics }
}

// NewSchedulePeriodService constructs the service.
func NewSchedulePeriodService(periods periodStore, tickets periodTicketStore, conflicts conflictStore, detector conflictDetector, gate *RoleGate, audit *AuditRecorder, logger *zap.Logger, opts ...PeriodOption) *SchedulePeriodService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SchedulePeriodService{
		periods:   periods,
		tickets:   tickets,
		conflicts: conflicts,
		detector:  detector,
		gate:      gate,
		audit:     audit,
		validate:  validator.New(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a new DRAFT period.
func (s *SchedulePeriodService) Create(ctx context.Context, cmd CreatePeriodCommand, actor *models.JWTClaims) (*models.SchedulePeriod, error) {
	if !s.gate.CanManageSchedule(actor.Role) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validate.Struct(cmd); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid period payload")
	}
	if cmd.PeriodEnd < cmd.PeriodStart {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period_end precedes period_start")
	}
	period := &models.SchedulePeriod{
		SiteID:      cmd.SiteID,
		Name:        cmd.Name,
		PeriodStart: cmd.PeriodStart,
		PeriodEnd:   cmd.PeriodEnd,
		VersionETag: 1,
	}
	if err := s.periods.Create(ctx, period); err != nil {
		return nil, appErrors.FromError(err)
	}
	return period, nil
}

// List returns periods matching the filter.
func (s *SchedulePeriodService) List(ctx context.Context, filter models.PeriodFilter) ([]models.SchedulePeriod, error) {
	periods, err := s.periods.List(ctx, filter)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return periods, nil
}

// Publish moves a DRAFT period to PUBLISHED.
func (s *SchedulePeriodService) Publish(ctx context.Context, periodID string, actor *models.JWTClaims, actx models.AuditContext) (*models.SchedulePeriod, error) {
	return s.transition(ctx, periodID, models.PeriodStatusPublished, models.AuditActionPeriodPublish, actor, actx)
}

// Lock moves a PUBLISHED period to LOCKED.
func (s *SchedulePeriodService) Lock(ctx context.Context, periodID string, actor *models.JWTClaims, actx models.AuditContext) (*models.SchedulePeriod, error) {
	return s.transition(ctx, periodID, models.PeriodStatusLocked, models.AuditActionPeriodLock, actor, actx)
}

// Archive retires a period. Legal from every status except ARCHIVED itself.
func (s *SchedulePeriodService) Archive(ctx context.Context, periodID string, actor *models.JWTClaims, actx models.AuditContext) (*models.SchedulePeriod, error) {
	return s.transition(ctx, periodID, models.PeriodStatusArchived, models.AuditActionPeriodArchive, actor, actx)
}

func (s *SchedulePeriodService) transition(ctx context.Context, periodID string, target models.PeriodStatus, action string, actor *models.JWTClaims, actx models.AuditContext) (*models.SchedulePeriod, error) {
	if !s.gate.CanPublishSchedule(actor.Role) {
		return nil, appErrors.ErrForbidden
	}

	period, err := s.periods.GetByID(ctx, periodID)
	if err != nil {
		return nil, notFoundOr(err, "schedule period not found")
	}
	if !period.Status.CanTransitionTo(target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("period cannot move from %s to %s", period.Status, target))
	}

	at := s.now().UTC()
	err = s.periods.Transition(ctx, repository.TransitionParams{
		ID:      period.ID,
		From:    period.Status,
		To:      target,
		ActorID: actor.UserID,
		At:      at,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrVersionConflict
		}
		return nil, appErrors.FromError(err)
	}

	updated := *period
	updated.Status = target
	updated.VersionETag = period.VersionETag + 1
	actorID := actor.UserID
	switch target {
	case models.PeriodStatusPublished:
		updated.PublishedAt = &at
		updated.PublishedBy = &actorID
	case models.PeriodStatusLocked:
		updated.LockedAt = &at
		updated.LockedBy = &actorID
	case models.PeriodStatusArchived:
		updated.ArchivedAt = &at
	}

	s.audit.Record(ctx, entitySchedulePeriod, period.ID, action,
		map[string]interface{}{"status": period.Status},
		map[string]interface{}{"status": target},
		actx)

	return &updated, nil
}

// Validate sweeps every assigned ticket in the period through the detector
// and records a snapshot of the findings. The period's own lock status is
// not re-reported per ticket; validation is about the assignments.
func (s *SchedulePeriodService) Validate(ctx context.Context, periodID string, actor *models.JWTClaims) (*ValidationReport, error) {
	if !s.gate.CanManageSchedule(actor.Role) {
		return nil, appErrors.ErrForbidden
	}

	period, err := s.periods.GetByID(ctx, periodID)
	if err != nil {
		return nil, notFoundOr(err, "schedule period not found")
	}

	start := s.now()
	tickets, err := s.tickets.ListForPeriod(ctx, period.ID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("period_tickets", time.Since(start))
	}

	report := &ValidationReport{PeriodID: period.ID, TicketCount: len(tickets)}
	for i := range tickets {
		ticket := &tickets[i]
		if !ticket.Status.Active() {
			continue
		}
		ref, ok := currentAssignee(ticket)
		if !ok {
			continue
		}
		conflicts, err := s.detector.Detect(ctx, ticket, ref, true)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		report.Conflicts = append(report.Conflicts, conflicts...)
	}

	for _, c := range report.Conflicts {
		if c.IsBlocking {
			report.BlockingCount++
		} else {
			report.WarningCount++
		}
	}

	if len(report.Conflicts) > 0 {
		if err := s.conflicts.RecordBatch(ctx, report.Conflicts); err != nil {
			s.logger.Warn("record validation conflicts", zap.String("period_id", period.ID), zap.Error(err))
		}
	}
	return report, nil
}

// ResolveConflicts marks recorded conflicts as handled, with a note on how.
func (s *SchedulePeriodService) ResolveConflicts(ctx context.Context, ids []string, resolution string, actor *models.JWTClaims, actx models.AuditContext) error {
	if !s.gate.CanManageSchedule(actor.Role) {
		return appErrors.ErrForbidden
	}
	if len(ids) == 0 || resolution == "" {
		return appErrors.Clone(appErrors.ErrValidation, "conflict ids and a resolution note are required")
	}
	if err := s.conflicts.MarkResolved(ctx, ids, actor.UserID, resolution); err != nil {
		return appErrors.FromError(err)
	}
	s.audit.Record(ctx, "schedule_conflict", strings.Join(ids, ","), models.AuditActionConflictResolve,
		nil, map[string]interface{}{"resolution": resolution}, actx)
	return nil
}

// ListConflicts returns recorded conflicts matching the filter.
func (s *SchedulePeriodService) ListConflicts(ctx context.Context, filter models.ConflictFilter) ([]models.ScheduleConflict, error) {
	conflicts, err := s.conflicts.List(ctx, filter)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	return conflicts, nil
}

func currentAssignee(ticket *models.WorkTicket) (models.AssigneeRef, bool) {
	switch {
	case ticket.AssigneeStaffID != nil:
		return models.AssigneeRef{Type: models.AssigneeStaff, ID: *ticket.AssigneeStaffID}, true
	case ticket.AssigneeSubcontractorID != nil:
		return models.AssigneeRef{Type: models.AssigneeSubcontractor, ID: *ticket.AssigneeSubcontractorID}, true
	default:
		return models.AssigneeRef{}, false
	}
}
