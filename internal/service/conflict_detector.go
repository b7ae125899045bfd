package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gleamops/fieldops-api/internal/models"
)

type detectorTicketStore interface {
	ListActiveAssignmentsForStaffOnDate(ctx context.Context, staffID, date string) ([]models.Assignment, error)
}

type detectorPeriodStore interface {
	GetByID(ctx context.Context, id string) (*models.SchedulePeriod, error)
}

type detectorDirectoryStore interface {
	GetStaff(ctx context.Context, id string) (*models.Staff, error)
	GetSubcontractor(ctx context.Context, id string) (*models.Subcontractor, error)
	ListAvailabilityRules(ctx context.Context, staffID string) ([]models.AvailabilityRule, error)
}

type detectorCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ConflictDetector classifies every clash a proposed assignment would cause
// against the live schedule. It is read-only and side-effect free: the same
// ticket, proposed assignee and schedule snapshot always produce the same
// conflict list in the same order. Policy (what blocks, what merely warns at
// apply time) lives in the orchestrators, not here.
type ConflictDetector struct {
	tickets   detectorTicketStore
	periods   detectorPeriodStore
	directory detectorDirectoryStore
	cache     detectorCache

	travelBuffer time.Duration
	timeout      time.Duration
	cacheTTL     time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// DetectorOption customises a ConflictDetector.
type DetectorOption func(*ConflictDetector)

// WithDetectorCache plugs in a cache for directory and assignment lookups.
func WithDetectorCache(cache detectorCache, ttl time.Duration) DetectorOption {
	return func(d *ConflictDetector) {
		d.cache = cache
		if ttl > 0 {
			d.cacheTTL = ttl
		}
	}
}

// WithTravelBuffer overrides the minimum gap between cross-site assignments.
func WithTravelBuffer(buffer time.Duration) DetectorOption {
	return func(d *ConflictDetector) {
		if buffer > 0 {
			d.travelBuffer = buffer
		}
	}
}

// WithDetectorTimeout bounds each live-schedule lookup.
func WithDetectorTimeout(timeout time.Duration) DetectorOption {
	return func(d *ConflictDetector) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithDetectorLogger sets the logger.
func WithDetectorLogger(logger *zap.Logger) DetectorOption {
	return func(d *ConflictDetector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDetectorClock overrides the clock, for tests.
func WithDetectorClock(now func() time.Time) DetectorOption {
	return func(d *ConflictDetector) {
		if now != nil {
			d.now = now
		}
	}
}

// NewConflictDetector constructs a detector with the default 30 minute
// travel buffer and 5 second lookup timeout.
func NewConflictDetector(tickets detectorTicketStore, periods detectorPeriodStore, directory detectorDirectoryStore, opts ...DetectorOption) *ConflictDetector {
	d := &ConflictDetector{
		tickets:      tickets,
		periods:      periods,
		directory:    directory,
		travelBuffer: 30 * time.Minute,
		timeout:      5 * time.Second,
		cacheTTL:     10 * time.Minute,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect evaluates assigning the proposed assignee to the ticket. When
// overridePreAuthorized is true the caller has already cleared the locked
// period gate, so no locked_period conflict is emitted for it.
func (d *ConflictDetector) Detect(ctx context.Context, ticket *models.WorkTicket, proposed models.AssigneeRef, overridePreAuthorized bool) ([]models.ScheduleConflict, error) {
	conflicts := make([]models.ScheduleConflict, 0, 4)

	lockConflict, err := d.checkLockedPeriod(ctx, ticket, overridePreAuthorized)
	if err != nil {
		return nil, err
	}
	if lockConflict != nil {
		conflicts = append(conflicts, *lockConflict)
	}

	switch proposed.Type {
	case models.AssigneeStaff:
		staffConflicts, err := d.checkStaff(ctx, ticket, proposed.ID)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, staffConflicts...)
	case models.AssigneeSubcontractor:
		subConflict, err := d.checkSubcontractor(ctx, ticket, proposed.ID)
		if err != nil {
			return nil, err
		}
		if subConflict != nil {
			conflicts = append(conflicts, *subConflict)
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].ConflictType.Priority() != conflicts[j].ConflictType.Priority() {
			return conflicts[i].ConflictType.Priority() < conflicts[j].ConflictType.Priority()
		}
		return conflicts[i].ID < conflicts[j].ID
	})
	return conflicts, nil
}

func (d *ConflictDetector) checkLockedPeriod(ctx context.Context, ticket *models.WorkTicket, overridePreAuthorized bool) (*models.ScheduleConflict, error) {
	if ticket.PeriodID == nil || overridePreAuthorized {
		return nil, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	period, err := d.periods.GetByID(lookupCtx, *ticket.PeriodID)
	if err != nil {
		return nil, fmt.Errorf("load period %s: %w", *ticket.PeriodID, err)
	}
	if period.Status != models.PeriodStatusLocked {
		return nil, nil
	}
	c := d.newConflict(models.ConflictLockedPeriod, true, ticket,
		fmt.Sprintf("ticket %s sits in locked period %s", ticket.ID, period.ID))
	return &c, nil
}

func (d *ConflictDetector) checkStaff(ctx context.Context, ticket *models.WorkTicket, staffID string) ([]models.ScheduleConflict, error) {
	staff, err := d.loadStaff(ctx, staffID)
	if err != nil {
		return nil, err
	}

	conflicts := make([]models.ScheduleConflict, 0, 3)

	if !staff.Active {
		c := d.newConflict(models.ConflictUnavailable, true, ticket,
			fmt.Sprintf("staff %s is inactive", staffID))
		c.AffectedStaffID = &staff.ID
		conflicts = append(conflicts, c)
	}

	if ticket.RequiredRole != nil && staff.Role.Rank() < ticket.RequiredRole.Rank() {
		c := d.newConflict(models.ConflictSkillMismatch, true, ticket,
			fmt.Sprintf("staff role %s does not meet required role %s", staff.Role, *ticket.RequiredRole))
		c.AffectedStaffID = &staff.ID
		conflicts = append(conflicts, c)
	}

	overlapConflicts, err := d.checkAssignments(ctx, ticket, staffID)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, overlapConflicts...)

	availabilityConflicts, err := d.checkAvailability(ctx, ticket, staffID)
	if err != nil {
		return nil, err
	}
	conflicts = append(conflicts, availabilityConflicts...)

	return conflicts, nil
}

func (d *ConflictDetector) checkAssignments(ctx context.Context, ticket *models.WorkTicket, staffID string) ([]models.ScheduleConflict, error) {
	assignments, err := d.loadAssignments(ctx, staffID, ticket.ServiceDate)
	if err != nil {
		return nil, err
	}

	conflicts := make([]models.ScheduleConflict, 0, 2)
	for _, existing := range assignments {
		if existing.TicketID == ticket.ID {
			continue
		}
		if existing.Overlaps(ticket.StartsAt, ticket.EndsAt) {
			c := d.newConflict(models.ConflictDoubleBooking, true, ticket,
				fmt.Sprintf("overlaps existing assignment on ticket %s", existing.TicketID))
			c.AffectedStaffID = &existing.StaffID
			conflicts = append(conflicts, c)
			continue
		}
		if existing.SiteID == ticket.SiteID {
			continue
		}
		gap := gapBetween(existing, ticket)
		if gap >= 0 && gap < d.travelBuffer {
			c := d.newConflict(models.ConflictTravelBuffer, false, ticket,
				fmt.Sprintf("only %s between this ticket and ticket %s at another site", gap, existing.TicketID))
			c.AffectedStaffID = &existing.StaffID
			conflicts = append(conflicts, c)
		}
	}
	return conflicts, nil
}

// gapBetween returns the idle time between the existing assignment and the
// ticket's window, or -1 when they touch or overlap.
func gapBetween(existing models.Assignment, ticket *models.WorkTicket) time.Duration {
	if !existing.EndsAt.After(ticket.StartsAt) {
		return ticket.StartsAt.Sub(existing.EndsAt)
	}
	if !ticket.EndsAt.After(existing.StartsAt) {
		return existing.StartsAt.Sub(ticket.EndsAt)
	}
	return -1
}

func (d *ConflictDetector) checkAvailability(ctx context.Context, ticket *models.WorkTicket, staffID string) ([]models.ScheduleConflict, error) {
	rules, err := d.loadAvailabilityRules(ctx, staffID)
	if err != nil {
		return nil, err
	}

	conflicts := make([]models.ScheduleConflict, 0, 1)
	for _, rule := range rules {
		if !ruleMatches(rule, ticket) {
			continue
		}
		staff := staffID
		switch rule.RuleType {
		case models.AvailabilityRuleUnavailable:
			c := d.newConflict(models.ConflictUnavailable, true, ticket,
				fmt.Sprintf("staff %s is unavailable during this window", staffID))
			c.AffectedStaffID = &staff
			conflicts = append(conflicts, c)
		case models.AvailabilityRuleNotPreferred:
			c := d.newConflict(models.ConflictNotPreferred, false, ticket,
				fmt.Sprintf("staff %s prefers not to work during this window", staffID))
			c.AffectedStaffID = &staff
			conflicts = append(conflicts, c)
		}
	}
	return conflicts, nil
}

// ruleMatches reports whether an availability rule covers the ticket's
// window. A dated rule beats a weekday rule; a rule without times covers the
// whole day.
func ruleMatches(rule models.AvailabilityRule, ticket *models.WorkTicket) bool {
	if rule.Date != nil {
		if *rule.Date != ticket.ServiceDate {
			return false
		}
	} else if rule.DayOfWeek != nil {
		day, err := time.Parse("2006-01-02", ticket.ServiceDate)
		if err != nil || int(day.Weekday()) != *rule.DayOfWeek {
			return false
		}
	} else {
		return false
	}

	if rule.StartsAt == nil || rule.EndsAt == nil {
		return true
	}
	ticketStart := ticket.StartsAt.Format("15:04")
	ticketEnd := ticket.EndsAt.Format("15:04")
	return *rule.StartsAt < ticketEnd && ticketStart < *rule.EndsAt
}

func (d *ConflictDetector) checkSubcontractor(ctx context.Context, ticket *models.WorkTicket, subID string) (*models.ScheduleConflict, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	sub, err := d.directory.GetSubcontractor(lookupCtx, subID)
	if err != nil {
		return nil, fmt.Errorf("load subcontractor %s: %w", subID, err)
	}
	if sub.Active {
		return nil, nil
	}
	c := d.newConflict(models.ConflictUnavailable, true, ticket,
		fmt.Sprintf("subcontractor %s is inactive", subID))
	return &c, nil
}

func (d *ConflictDetector) loadStaff(ctx context.Context, staffID string) (*models.Staff, error) {
	key := fmt.Sprintf("directory:staff:%s", staffID)
	var cached models.Staff
	if d.cache != nil && d.cache.Get(ctx, key, &cached) == nil {
		return &cached, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	staff, err := d.directory.GetStaff(lookupCtx, staffID)
	if err != nil {
		return nil, fmt.Errorf("load staff %s: %w", staffID, err)
	}
	if d.cache != nil {
		if err := d.cache.Set(ctx, key, staff, d.cacheTTL); err != nil {
			d.logger.Warn("cache staff entry", zap.String("staff_id", staffID), zap.Error(err))
		}
	}
	return staff, nil
}

func (d *ConflictDetector) loadAvailabilityRules(ctx context.Context, staffID string) ([]models.AvailabilityRule, error) {
	key := fmt.Sprintf("availability:staff:%s", staffID)
	var cached []models.AvailabilityRule
	if d.cache != nil && d.cache.Get(ctx, key, &cached) == nil {
		return cached, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	rules, err := d.directory.ListAvailabilityRules(lookupCtx, staffID)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		if err := d.cache.Set(ctx, key, rules, d.cacheTTL); err != nil {
			d.logger.Warn("cache availability rules", zap.String("staff_id", staffID), zap.Error(err))
		}
	}
	return rules, nil
}

func (d *ConflictDetector) loadAssignments(ctx context.Context, staffID, date string) ([]models.Assignment, error) {
	key := fmt.Sprintf("assignments:%s:%s", staffID, date)
	var cached []models.Assignment
	if d.cache != nil && d.cache.Get(ctx, key, &cached) == nil {
		return cached, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	assignments, err := d.tickets.ListActiveAssignmentsForStaffOnDate(lookupCtx, staffID, date)
	if err != nil {
		return nil, err
	}
	if d.cache != nil {
		if err := d.cache.Set(ctx, key, assignments, d.cacheTTL); err != nil {
			d.logger.Warn("cache assignments", zap.String("staff_id", staffID), zap.Error(err))
		}
	}
	return assignments, nil
}

// newConflict builds a conflict with a content-derived id, so re-running the
// detector over an unchanged schedule yields the same ids. Warning
// acknowledgments from a previous attempt stay valid on resubmission.
func (d *ConflictDetector) newConflict(kind models.ConflictType, blocking bool, ticket *models.WorkTicket, description string) models.ScheduleConflict {
	seed := fmt.Sprintf("%s|%s|%s", kind, ticket.ID, description)
	return models.ScheduleConflict{
		ID:               uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String(),
		PeriodID:         ticket.PeriodID,
		ConflictType:     kind,
		IsBlocking:       blocking,
		Description:      description,
		AffectedTicketID: &ticket.ID,
		DetectedAt:       d.now().UTC(),
	}
}

// Partition splits a conflict list into blocking conflicts and warnings,
// preserving detector order.
func Partition(conflicts []models.ScheduleConflict) (blocking, warnings []models.ScheduleConflict) {
	for _, c := range conflicts {
		if c.IsBlocking {
			blocking = append(blocking, c)
		} else {
			warnings = append(warnings, c)
		}
	}
	return blocking, warnings
}
