package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gleamops/fieldops-api/internal/models"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
)

type tradeFixture struct {
	service   *ShiftTradeService
	trades    *fakeTradeStore
	tickets   *fakeTicketStore
	directory *fakeDirectoryStore
	detector  *stubDetector
	audits    *fakeAuditStore
	metrics   *metricsRecorder
	cache     *fakeCacheInvalidator
}

func newTradeFixture() *tradeFixture {
	trades := newFakeTradeStore()
	tickets := newFakeTicketStore()
	directory := newFakeDirectoryStore()
	detector := &stubDetector{}
	audits := &fakeAuditStore{}
	metrics := &metricsRecorder{}
	cache := &fakeCacheInvalidator{}

	tickets.tickets["tkt-1"] = &models.WorkTicket{
		ID: "tkt-1", SiteID: "site-a", ServiceDate: "2025-06-02",
		StartsAt: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
		Status:   models.TicketStatusScheduled,
		AssigneeStaffID: strPtr("staff-a"), VersionETag: 2,
	}
	directory.staff["staff-b"] = &models.Staff{ID: "staff-b", Role: models.RoleCleaner, Active: true}

	service := NewShiftTradeService(trades, tickets, directory, detector,
		NewRoleGate(), NewAuditRecorder(audits, nil, 1),
		WithTradeMetrics(metrics), WithTradeCache(cache))
	return &tradeFixture{service: service, trades: trades, tickets: tickets,
		directory: directory, detector: detector, audits: audits, metrics: metrics, cache: cache}
}

func (f *tradeFixture) request(t *testing.T) *models.ShiftTradeRequest {
	t.Helper()
	trade, err := f.service.Request(context.Background(), RequestTradeCommand{
		TicketID: "tkt-1", RequestType: models.TradeGiveAway, TargetStaffID: "staff-b",
	}, staffClaims("staff-a"), testAuditContext())
	require.NoError(t, err)
	return trade
}

func TestTradeRequest(t *testing.T) {
	f := newTradeFixture()

	trade := f.request(t)
	require.Equal(t, models.TradeStatusRequested, trade.Status)
	require.Equal(t, "staff-a", trade.InitiatorStaffID)
	require.Len(t, f.audits.records, 1)
	require.Equal(t, models.AuditActionTradeRequest, f.audits.records[0].Action)
}

func TestTradeRequestOnlyByAssignee(t *testing.T) {
	f := newTradeFixture()

	_, err := f.service.Request(context.Background(), RequestTradeCommand{
		TicketID: "tkt-1", RequestType: models.TradeGiveAway, TargetStaffID: "staff-b",
	}, staffClaims("staff-x"), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.service.Request(context.Background(), RequestTradeCommand{
		TicketID: "tkt-1", RequestType: models.TradeGiveAway, TargetStaffID: "staff-a",
	}, staffClaims("staff-a"), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestTradeAcceptOnlyByTarget(t *testing.T) {
	f := newTradeFixture()
	trade := f.request(t)

	_, err := f.service.Accept(context.Background(), trade.ID, staffClaims("staff-a"), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	accepted, err := f.service.Accept(context.Background(), trade.ID, staffClaims("staff-b"), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, models.TradeStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)
}

func TestTradeApplyCommitsAssignment(t *testing.T) {
	f := newTradeFixture()
	trade := f.request(t)
	accepted, err := f.service.Accept(context.Background(), trade.ID, staffClaims("staff-b"), testAuditContext())
	require.NoError(t, err)

	applied, conflicts, err := f.service.Apply(context.Background(), accepted.ID, supervisorClaims(), testAuditContext())
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.Equal(t, models.TradeStatusApplied, applied.Status)

	ticket := f.tickets.tickets["tkt-1"]
	require.Equal(t, "staff-b", *ticket.AssigneeStaffID)
	require.Equal(t, int64(3), ticket.VersionETag)
	require.Contains(t, f.cache.patterns, "assignments:staff-a:*")
	require.Contains(t, f.cache.patterns, "assignments:staff-b:*")
	require.Contains(t, f.metrics.transitions, "applied")
}

func TestTradeApplyBlockedByConflicts(t *testing.T) {
	f := newTradeFixture()
	trade := f.request(t)
	accepted, err := f.service.Accept(context.Background(), trade.ID, staffClaims("staff-b"), testAuditContext())
	require.NoError(t, err)

	f.detector.conflicts = []models.ScheduleConflict{blockingConflict(models.ConflictDoubleBooking)}
	_, conflicts, err := f.service.Apply(context.Background(), accepted.ID, supervisorClaims(), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrTradeBlocked)
	require.Equal(t, "TRADE_BLOCKED", appErrors.FromError(err).Code)
	require.Len(t, conflicts, 1)
	require.Equal(t, "staff-a", *f.tickets.tickets["tkt-1"].AssigneeStaffID)
}

func TestTradeApproveThenApply(t *testing.T) {
	f := newTradeFixture()
	trade := f.request(t)
	_, err := f.service.Accept(context.Background(), trade.ID, staffClaims("staff-b"), testAuditContext())
	require.NoError(t, err)

	approved, conflicts, err := f.service.Approve(context.Background(), trade.ID, managerClaims(), testAuditContext())
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.Equal(t, models.TradeStatusApproved, approved.Status)

	applied, _, err := f.service.Apply(context.Background(), trade.ID, managerClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, models.TradeStatusApplied, applied.Status)
}

func TestTradeDenyRequiresNoteAndRole(t *testing.T) {
	f := newTradeFixture()
	trade := f.request(t)

	_, err := f.service.Deny(context.Background(), trade.ID, "", managerClaims(), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.service.Deny(context.Background(), trade.ID, "coverage needed", staffClaims("staff-b"), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	denied, err := f.service.Deny(context.Background(), trade.ID, "coverage needed", managerClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, models.TradeStatusDenied, denied.Status)
	require.Equal(t, "coverage needed", *denied.ManagerNote)
	require.NotNil(t, denied.ClosedAt)
}

func TestTradeCancel(t *testing.T) {
	f := newTradeFixture()
	trade := f.request(t)

	_, err := f.service.Cancel(context.Background(), trade.ID, staffClaims("staff-b"), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	canceled, err := f.service.Cancel(context.Background(), trade.ID, staffClaims("staff-a"), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, models.TradeStatusCanceled, canceled.Status)
}

func TestTradeTerminalStatesRejectTransitions(t *testing.T) {
	f := newTradeFixture()
	trade := f.request(t)
	_, err := f.service.Deny(context.Background(), trade.ID, "no", managerClaims(), testAuditContext())
	require.NoError(t, err)

	_, err = f.service.Accept(context.Background(), trade.ID, staffClaims("staff-b"), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)

	_, _, err = f.service.Apply(context.Background(), trade.ID, managerClaims(), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}
