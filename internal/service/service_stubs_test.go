package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/repository"
)

// Hand-rolled in-memory fakes shared by the service tests. They enforce the
// same version and status guards as the SQL repositories so concurrency
// paths can be exercised without a database.

func strPtr(s string) *string { return &s }

func rolePtr(r models.UserRole) *models.UserRole { return &r }

type fakeTicketStore struct {
	tickets     map[string]*models.WorkTicket
	assignments map[string][]models.Assignment // staffID|date
	updateErr   error
	updates     []repository.UpdateAssignmentParams
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{
		tickets:     make(map[string]*models.WorkTicket),
		assignments: make(map[string][]models.Assignment),
	}
}

func (f *fakeTicketStore) GetByID(_ context.Context, id string) (*models.WorkTicket, error) {
	ticket, ok := f.tickets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (f *fakeTicketStore) UpdateAssignment(_ context.Context, params repository.UpdateAssignmentParams) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	ticket, ok := f.tickets[params.ID]
	if !ok || ticket.VersionETag != params.Version {
		return sql.ErrNoRows
	}
	ticket.AssigneeStaffID = params.AssigneeStaffID
	ticket.AssigneeSubcontractorID = params.AssigneeSubcontractorID
	ticket.VersionETag++
	f.updates = append(f.updates, params)
	return nil
}

func (f *fakeTicketStore) ListActiveAssignmentsForStaffOnDate(_ context.Context, staffID, date string) ([]models.Assignment, error) {
	return f.assignments[staffID+"|"+date], nil
}

func (f *fakeTicketStore) ListForPeriod(_ context.Context, periodID string) ([]models.WorkTicket, error) {
	var tickets []models.WorkTicket
	for _, ticket := range f.tickets {
		if ticket.PeriodID != nil && *ticket.PeriodID == periodID {
			tickets = append(tickets, *ticket)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
	return tickets, nil
}

type fakePlanningStore struct {
	boards         []models.PlanningBoard
	items          map[string]*models.PlanningBoardItem
	proposals      map[string]*models.PlanningItemProposal
	itemStateErr   error
	markAppliedErr error
	stateUpdates   []repository.UpdateItemStateParams
	rejectedItems  []string
}

func newFakePlanningStore() *fakePlanningStore {
	return &fakePlanningStore{
		items:     make(map[string]*models.PlanningBoardItem),
		proposals: make(map[string]*models.PlanningItemProposal),
	}
}

func (f *fakePlanningStore) ListBoards(_ context.Context, boardDate string, _, _ int) ([]models.PlanningBoard, error) {
	if boardDate == "" {
		return f.boards, nil
	}
	var boards []models.PlanningBoard
	for _, b := range f.boards {
		if b.BoardDate == boardDate {
			boards = append(boards, b)
		}
	}
	return boards, nil
}

func (f *fakePlanningStore) ListItems(_ context.Context, boardID string) ([]models.PlanningBoardItem, error) {
	var items []models.PlanningBoardItem
	for _, item := range f.items {
		if item.BoardID == boardID {
			items = append(items, *item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (f *fakePlanningStore) GetItem(_ context.Context, boardID, itemID string) (*models.PlanningBoardItem, error) {
	item, ok := f.items[itemID]
	if !ok || item.BoardID != boardID {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (f *fakePlanningStore) CreateProposal(_ context.Context, proposal *models.PlanningItemProposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.ApplyState == "" {
		proposal.ApplyState = models.ApplyStateDraft
	}
	clone := *proposal
	f.proposals[proposal.ID] = &clone
	return nil
}

func (f *fakePlanningStore) GetProposal(_ context.Context, itemID, proposalID string) (*models.PlanningItemProposal, error) {
	proposal, ok := f.proposals[proposalID]
	if !ok || proposal.BoardItemID != itemID {
		return nil, sql.ErrNoRows
	}
	clone := *proposal
	return &clone, nil
}

func (f *fakePlanningStore) UpdateItemState(_ context.Context, params repository.UpdateItemStateParams) error {
	if f.itemStateErr != nil {
		return f.itemStateErr
	}
	item, ok := f.items[params.ID]
	if !ok || item.VersionETag != params.Version {
		return sql.ErrNoRows
	}
	item.SyncState = params.SyncState
	item.VersionETag++
	if params.SetAssignees {
		item.CurrentAssigneeStaffID = params.StaffID
		item.CurrentAssigneeSubcontractorID = params.SubcontractorID
	}
	f.stateUpdates = append(f.stateUpdates, params)
	return nil
}

func (f *fakePlanningStore) MarkProposalApplied(_ context.Context, proposalID string) error {
	if f.markAppliedErr != nil {
		return f.markAppliedErr
	}
	proposal, ok := f.proposals[proposalID]
	if !ok || !proposal.ApplyState.Active() {
		return sql.ErrNoRows
	}
	proposal.ApplyState = models.ApplyStateApplied
	now := time.Now().UTC()
	proposal.AppliedAt = &now
	return nil
}

func (f *fakePlanningStore) RejectActiveProposals(_ context.Context, itemID string) error {
	for _, proposal := range f.proposals {
		if proposal.BoardItemID == itemID && proposal.ApplyState.Active() {
			proposal.ApplyState = models.ApplyStateRejected
		}
	}
	f.rejectedItems = append(f.rejectedItems, itemID)
	return nil
}

type fakePeriodStore struct {
	periods map[string]*models.SchedulePeriod
}

func newFakePeriodStore() *fakePeriodStore {
	return &fakePeriodStore{periods: make(map[string]*models.SchedulePeriod)}
}

func (f *fakePeriodStore) Create(_ context.Context, period *models.SchedulePeriod) error {
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	if period.Status == "" {
		period.Status = models.PeriodStatusDraft
	}
	clone := *period
	f.periods[period.ID] = &clone
	return nil
}

func (f *fakePeriodStore) GetByID(_ context.Context, id string) (*models.SchedulePeriod, error) {
	period, ok := f.periods[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *period
	return &clone, nil
}

func (f *fakePeriodStore) List(_ context.Context, filter models.PeriodFilter) ([]models.SchedulePeriod, error) {
	var periods []models.SchedulePeriod
	for _, period := range f.periods {
		if filter.SiteID != "" && period.SiteID != filter.SiteID {
			continue
		}
		periods = append(periods, *period)
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].ID < periods[j].ID })
	return periods, nil
}

func (f *fakePeriodStore) Transition(_ context.Context, params repository.TransitionParams) error {
	period, ok := f.periods[params.ID]
	if !ok || period.Status != params.From {
		return sql.ErrNoRows
	}
	period.Status = params.To
	period.VersionETag++
	return nil
}

type fakeTradeStore struct {
	trades map[string]*models.ShiftTradeRequest
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{trades: make(map[string]*models.ShiftTradeRequest)}
}

func (f *fakeTradeStore) Create(_ context.Context, trade *models.ShiftTradeRequest) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.Status == "" {
		trade.Status = models.TradeStatusRequested
	}
	if trade.VersionETag == 0 {
		trade.VersionETag = 1
	}
	clone := *trade
	f.trades[trade.ID] = &clone
	return nil
}

func (f *fakeTradeStore) GetByID(_ context.Context, id string) (*models.ShiftTradeRequest, error) {
	trade, ok := f.trades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *trade
	return &clone, nil
}

func (f *fakeTradeStore) List(_ context.Context, filter models.TradeFilter) ([]models.ShiftTradeRequest, error) {
	var trades []models.ShiftTradeRequest
	for _, trade := range f.trades {
		if filter.TicketID != "" && trade.TicketID != filter.TicketID {
			continue
		}
		trades = append(trades, *trade)
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].ID < trades[j].ID })
	return trades, nil
}

func (f *fakeTradeStore) Transition(_ context.Context, params repository.TradeTransitionParams) error {
	trade, ok := f.trades[params.ID]
	if !ok || trade.Status != params.From || trade.VersionETag != params.Version {
		return sql.ErrNoRows
	}
	trade.Status = params.To
	trade.VersionETag++
	if params.ManagerNote != nil {
		trade.ManagerNote = params.ManagerNote
	}
	return nil
}

type fakeDirectoryStore struct {
	staff map[string]*models.Staff
	subs  map[string]*models.Subcontractor
	rules map[string][]models.AvailabilityRule
}

func newFakeDirectoryStore() *fakeDirectoryStore {
	return &fakeDirectoryStore{
		staff: make(map[string]*models.Staff),
		subs:  make(map[string]*models.Subcontractor),
		rules: make(map[string][]models.AvailabilityRule),
	}
}

func (f *fakeDirectoryStore) GetStaff(_ context.Context, id string) (*models.Staff, error) {
	staff, ok := f.staff[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *staff
	return &clone, nil
}

func (f *fakeDirectoryStore) GetSubcontractor(_ context.Context, id string) (*models.Subcontractor, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *sub
	return &clone, nil
}

func (f *fakeDirectoryStore) ListAvailabilityRules(_ context.Context, staffID string) ([]models.AvailabilityRule, error) {
	return f.rules[staffID], nil
}

type fakeAuditStore struct {
	records     []*models.AuditRecord
	failuresLeft int
}

func (f *fakeAuditStore) Append(_ context.Context, record *models.AuditRecord) error {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("audit store unavailable")
	}
	clone := *record
	f.records = append(f.records, &clone)
	return nil
}

func (f *fakeAuditStore) ListForEntity(_ context.Context, entityType, entityID string, _ int) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	for _, record := range f.records {
		if record.EntityType == entityType && record.EntityID == entityID {
			records = append(records, *record)
		}
	}
	return records, nil
}

type fakeConflictStore struct {
	recorded []models.ScheduleConflict
	listed   []models.ScheduleConflict
	resolved []string
}

func (f *fakeConflictStore) RecordBatch(_ context.Context, conflicts []models.ScheduleConflict) error {
	f.recorded = append(f.recorded, conflicts...)
	return nil
}

func (f *fakeConflictStore) MarkResolved(_ context.Context, ids []string, _, _ string) error {
	f.resolved = append(f.resolved, ids...)
	return nil
}

func (f *fakeConflictStore) List(_ context.Context, _ models.ConflictFilter) ([]models.ScheduleConflict, error) {
	return f.listed, nil
}

type fakeCacheInvalidator struct {
	patterns []string
}

func (f *fakeCacheInvalidator) DeleteByPattern(_ context.Context, pattern string) error {
	f.patterns = append(f.patterns, pattern)
	return nil
}

type stubDetector struct {
	conflicts []models.ScheduleConflict
	err       error
	calls     []bool // preAuthorized flag per call
}

func (s *stubDetector) Detect(_ context.Context, _ *models.WorkTicket, _ models.AssigneeRef, preAuthorized bool) ([]models.ScheduleConflict, error) {
	s.calls = append(s.calls, preAuthorized)
	if s.err != nil {
		return nil, s.err
	}
	if preAuthorized {
		var filtered []models.ScheduleConflict
		for _, c := range s.conflicts {
			if c.ConflictType != models.ConflictLockedPeriod {
				filtered = append(filtered, c)
			}
		}
		return filtered, nil
	}
	return s.conflicts, nil
}

type metricsRecorder struct {
	outcomes        []string
	inconsistencies int
	transitions     []string
}

func (m *metricsRecorder) RecordApplyOutcome(outcome string) { m.outcomes = append(m.outcomes, outcome) }
func (m *metricsRecorder) RecordApplyInconsistency()         { m.inconsistencies++ }
func (m *metricsRecorder) RecordTradeTransition(status string) {
	m.transitions = append(m.transitions, status)
}

func managerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "mgr-1", Role: models.RoleManager}
}

func supervisorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "sup-1", Role: models.RoleSupervisor}
}

func staffClaims(staffID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "usr-" + staffID, Role: models.RoleCleaner, StaffID: staffID}
}

func testAuditContext() models.AuditContext {
	return models.AuditContext{
		ActorID:   "mgr-1",
		Source:    "api",
		RequestID: "req-1",
		IPAddress: "10.0.0.1",
		UserAgent: "test-agent",
	}
}
