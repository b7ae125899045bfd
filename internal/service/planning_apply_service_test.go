package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gleamops/fieldops-api/internal/models"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
)

type applyFixture struct {
	service  *PlanningApplyService
	planning *fakePlanningStore
	tickets  *fakeTicketStore
	detector *stubDetector
	audits   *fakeAuditStore
	metrics  *metricsRecorder
	cache    *fakeCacheInvalidator
}

func newApplyFixture() *applyFixture {
	planning := newFakePlanningStore()
	tickets := newFakeTicketStore()
	detector := &stubDetector{}
	audits := &fakeAuditStore{}
	metrics := &metricsRecorder{}
	cache := &fakeCacheInvalidator{}

	tickets.tickets["tkt-1"] = &models.WorkTicket{
		ID:              "tkt-1",
		SiteID:          "site-a",
		ServiceDate:     "2025-06-02",
		StartsAt:        time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndsAt:          time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
		Status:          models.TicketStatusScheduled,
		AssigneeStaffID: strPtr("staff-a"),
		VersionETag:     5,
	}
	planning.items["item-1"] = &models.PlanningBoardItem{
		ID:                     "item-1",
		BoardID:                "board-1",
		Kind:                   models.PlanningItemTicket,
		TicketID:               strPtr("tkt-1"),
		CurrentAssigneeStaffID: strPtr("staff-a"),
		SyncState:              models.SyncStateDraftChange,
		VersionETag:            3,
	}
	planning.proposals["prop-1"] = &models.PlanningItemProposal{
		ID:              "prop-1",
		BoardItemID:     "item-1",
		ProposedStaffID: strPtr("staff-b"),
		ApplyState:      models.ApplyStateDraft,
		Justification:   "covering absence",
	}

	service := NewPlanningApplyService(planning, tickets, detector, NewRoleGate(),
		NewAuditRecorder(audits, nil, 1),
		WithApplyMetrics(metrics),
		WithApplyCache(cache),
		WithDependentWriteRetries(1),
	)
	return &applyFixture{
		service: service, planning: planning, tickets: tickets,
		detector: detector, audits: audits, metrics: metrics, cache: cache,
	}
}

func applyCmd() ApplyCommand {
	return ApplyCommand{BoardID: "board-1", ItemID: "item-1", ProposalID: "prop-1"}
}

func warningConflict(id string) models.ScheduleConflict {
	return models.ScheduleConflict{
		ID: id, ConflictType: models.ConflictTravelBuffer, IsBlocking: false,
		Description: "tight connection",
	}
}

func blockingConflict(kind models.ConflictType) models.ScheduleConflict {
	return models.ScheduleConflict{
		ID: "blk-" + string(kind), ConflictType: kind, IsBlocking: true,
		Description: string(kind),
	}
}

func TestApplySuccess(t *testing.T) {
	f := newApplyFixture()

	outcome, err := f.service.Apply(context.Background(), applyCmd(), supervisorClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, ApplyStatusSuccess, outcome.Status)

	ticket := f.tickets.tickets["tkt-1"]
	require.Equal(t, "staff-b", *ticket.AssigneeStaffID)
	require.Equal(t, int64(6), ticket.VersionETag)

	item := f.planning.items["item-1"]
	require.Equal(t, models.SyncStateApplied, item.SyncState)
	require.Equal(t, "staff-b", *item.CurrentAssigneeStaffID)

	require.Equal(t, models.ApplyStateApplied, f.planning.proposals["prop-1"].ApplyState)

	require.Len(t, f.audits.records, 1)
	require.Equal(t, models.AuditActionApply, f.audits.records[0].Action)
	require.Equal(t, []string{"success"}, f.metrics.outcomes)
	require.Contains(t, f.cache.patterns, "assignments:staff-a:*")
	require.Contains(t, f.cache.patterns, "assignments:staff-b:*")
}

func TestApplyForbiddenRole(t *testing.T) {
	f := newApplyFixture()

	_, err := f.service.Apply(context.Background(), applyCmd(), staffClaims("staff-a"), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	require.Empty(t, f.tickets.updates)
}

func TestApplyBlocked(t *testing.T) {
	f := newApplyFixture()
	f.detector.conflicts = []models.ScheduleConflict{blockingConflict(models.ConflictDoubleBooking)}

	outcome, err := f.service.Apply(context.Background(), applyCmd(), managerClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, ApplyStatusBlocked, outcome.Status)
	require.Equal(t, "PLANNING_APPLY_BLOCKED", outcome.Code)
	require.Len(t, outcome.BlockingConflicts, 1)
	require.Empty(t, f.tickets.updates)
	require.Equal(t, models.SyncStateDraftChange, f.planning.items["item-1"].SyncState)
}

func TestApplyLockedPeriodOverridePath(t *testing.T) {
	f := newApplyFixture()
	f.detector.conflicts = []models.ScheduleConflict{blockingConflict(models.ConflictLockedPeriod)}

	// A manager without an override request gets asked for one.
	outcome, err := f.service.Apply(context.Background(), applyCmd(), managerClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, ApplyStatusLockedOverride, outcome.Status)
	require.Equal(t, "PLANNING_OVERRIDE_REQUIRED", outcome.Code)
	require.Empty(t, f.tickets.updates)

	// A supervisor cannot override at all: plain blocked.
	outcome, err = f.service.Apply(context.Background(), applyCmd(), supervisorClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, ApplyStatusBlocked, outcome.Status)

	// Manager with override flag and reason goes through pre-authorized.
	cmd := applyCmd()
	cmd.OverrideLockedPeriod = true
	cmd.OverrideReason = "client emergency"
	outcome, err = f.service.Apply(context.Background(), cmd, managerClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, ApplyStatusSuccess, outcome.Status)
	require.True(t, f.detector.calls[len(f.detector.calls)-1])
	require.Len(t, f.audits.records, 1)
	require.Contains(t, string(f.audits.records[0].After), "client emergency")
}

func TestApplyMixedBlockingNotOverrideEligible(t *testing.T) {
	f := newApplyFixture()
	f.detector.conflicts = []models.ScheduleConflict{
		blockingConflict(models.ConflictLockedPeriod),
		blockingConflict(models.ConflictDoubleBooking),
	}

	outcome, err := f.service.Apply(context.Background(), applyCmd(), managerClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, ApplyStatusBlocked, outcome.Status)
}

func TestApplyWarningAcknowledgment(t *testing.T) {
	f := newApplyFixture()
	f.detector.conflicts = []models.ScheduleConflict{warningConflict("warn-1")}

	outcome, err := f.service.Apply(context.Background(), applyCmd(), supervisorClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, ApplyStatusAckRequired, outcome.Status)
	require.Equal(t, "PLANNING_ACK_REQUIRED", outcome.Code)
	require.Equal(t, []string{"warn-1"}, outcome.UnacknowledgedWarningIDs)
	require.Empty(t, f.tickets.updates)

	cmd := applyCmd()
	cmd.AcknowledgedWarningIDs = []string{"warn-1"}
	outcome, err = f.service.Apply(context.Background(), cmd, supervisorClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, ApplyStatusSuccess, outcome.Status)
}

func TestApplyVersionConflict(t *testing.T) {
	f := newApplyFixture()
	f.tickets.updateErr = sql.ErrNoRows

	_, err := f.service.Apply(context.Background(), applyCmd(), managerClaims(), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrVersionConflict)
}

func TestApplyAlreadyApplied(t *testing.T) {
	f := newApplyFixture()
	f.planning.proposals["prop-1"].ApplyState = models.ApplyStateApplied

	_, err := f.service.Apply(context.Background(), applyCmd(), managerClaims(), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrAlreadyApplied)
}

func TestApplyInvalidItemState(t *testing.T) {
	f := newApplyFixture()
	f.planning.items["item-1"].SyncState = models.SyncStateSynced

	_, err := f.service.Apply(context.Background(), applyCmd(), managerClaims(), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestApplyDependentWriteFailureStillSucceeds(t *testing.T) {
	f := newApplyFixture()
	f.planning.itemStateErr = errors.New("item table offline")

	outcome, err := f.service.Apply(context.Background(), applyCmd(), managerClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, ApplyStatusSuccess, outcome.Status)
	// Ticket write committed even though the item write kept failing.
	require.Equal(t, "staff-b", *f.tickets.tickets["tkt-1"].AssigneeStaffID)
	require.Equal(t, 1, f.metrics.inconsistencies)
}

func TestDetectDrift(t *testing.T) {
	f := newApplyFixture()
	item := f.planning.items["item-1"]
	item.SyncState = models.SyncStateApplied
	item.CurrentAssigneeStaffID = strPtr("staff-b")
	// The schedule moved on without the board.
	f.tickets.tickets["tkt-1"].AssigneeStaffID = strPtr("staff-c")

	drifted, changed, err := f.service.DetectDrift(context.Background(), "board-1", "item-1", supervisorClaims())
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, models.SyncStateConflict, drifted.SyncState)

	// In-sync items stay put.
	f.planning.items["item-1"].SyncState = models.SyncStateApplied
	f.planning.items["item-1"].CurrentAssigneeStaffID = strPtr("staff-c")
	_, changed, err = f.service.DetectDrift(context.Background(), "board-1", "item-1", supervisorClaims())
	require.NoError(t, err)
	require.False(t, changed)
}

func TestDetectDriftForbiddenRole(t *testing.T) {
	f := newApplyFixture()
	item := f.planning.items["item-1"]
	item.SyncState = models.SyncStateApplied
	item.CurrentAssigneeStaffID = strPtr("staff-b")
	f.tickets.tickets["tkt-1"].AssigneeStaffID = strPtr("staff-c")

	_, _, err := f.service.DetectDrift(context.Background(), "board-1", "item-1", staffClaims("staff-a"))
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	// The drifted item was not flipped.
	require.Equal(t, models.SyncStateApplied, f.planning.items["item-1"].SyncState)
}

func TestResolveDriftUseBoardVersion(t *testing.T) {
	f := newApplyFixture()
	f.planning.items["item-1"].SyncState = models.SyncStateConflict

	resolved, err := f.service.ResolveDrift(context.Background(), ResolveDriftCommand{
		BoardID: "board-1", ItemID: "item-1", Resolution: models.DriftUseBoardVersion,
	}, supervisorClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, models.SyncStateDraftChange, resolved.SyncState)
	// The live ticket was never touched.
	require.Equal(t, "staff-a", *f.tickets.tickets["tkt-1"].AssigneeStaffID)
	require.Empty(t, f.tickets.updates)
}

func TestResolveDriftAcceptScheduleVersion(t *testing.T) {
	f := newApplyFixture()
	f.planning.items["item-1"].SyncState = models.SyncStateConflict
	f.tickets.tickets["tkt-1"].AssigneeStaffID = strPtr("staff-c")

	resolved, err := f.service.ResolveDrift(context.Background(), ResolveDriftCommand{
		BoardID: "board-1", ItemID: "item-1", Resolution: models.DriftAcceptScheduleVersion,
	}, supervisorClaims(), testAuditContext())
	require.NoError(t, err)
	require.Equal(t, models.SyncStateDismissed, resolved.SyncState)
	require.Equal(t, "staff-c", *resolved.CurrentAssigneeStaffID)
	require.Equal(t, models.ApplyStateRejected, f.planning.proposals["prop-1"].ApplyState)
	require.Contains(t, f.planning.rejectedItems, "item-1")
}

func TestResolveDriftRequiresConflictState(t *testing.T) {
	f := newApplyFixture()

	_, err := f.service.ResolveDrift(context.Background(), ResolveDriftCommand{
		BoardID: "board-1", ItemID: "item-1", Resolution: models.DriftUseBoardVersion,
	}, supervisorClaims(), testAuditContext())
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestAuditRecorderRetries(t *testing.T) {
	audits := &fakeAuditStore{failuresLeft: 1}
	recorder := NewAuditRecorder(audits, nil, 2)

	recorder.Record(context.Background(), "planning_board_item", "item-1", models.AuditActionApply,
		nil, map[string]interface{}{"sync_state": "applied"}, testAuditContext())
	require.Len(t, audits.records, 1)
	require.Equal(t, "req-1", audits.records[0].RequestID)
}
