package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/repository"
	"github.com/gleamops/fieldops-api/internal/service"
)

type planningStoreStub struct {
	item     *models.PlanningBoardItem
	proposal *models.PlanningItemProposal
}

func (s *planningStoreStub) ListBoards(context.Context, string, int, int) ([]models.PlanningBoard, error) {
	return nil, nil
}

func (s *planningStoreStub) ListItems(context.Context, string) ([]models.PlanningBoardItem, error) {
	return []models.PlanningBoardItem{*s.item}, nil
}

func (s *planningStoreStub) GetItem(_ context.Context, boardID, itemID string) (*models.PlanningBoardItem, error) {
	if s.item == nil || s.item.BoardID != boardID || s.item.ID != itemID {
		return nil, sql.ErrNoRows
	}
	clone := *s.item
	return &clone, nil
}

func (s *planningStoreStub) CreateProposal(_ context.Context, proposal *models.PlanningItemProposal) error {
	proposal.ID = "prop-new"
	return nil
}

func (s *planningStoreStub) GetProposal(_ context.Context, itemID, proposalID string) (*models.PlanningItemProposal, error) {
	if s.proposal == nil || s.proposal.BoardItemID != itemID || s.proposal.ID != proposalID {
		return nil, sql.ErrNoRows
	}
	clone := *s.proposal
	return &clone, nil
}

func (s *planningStoreStub) UpdateItemState(_ context.Context, params repository.UpdateItemStateParams) error {
	s.item.SyncState = params.SyncState
	s.item.VersionETag++
	return nil
}

func (s *planningStoreStub) MarkProposalApplied(context.Context, string) error {
	s.proposal.ApplyState = models.ApplyStateApplied
	return nil
}

func (s *planningStoreStub) RejectActiveProposals(context.Context, string) error { return nil }

type ticketStoreStub struct {
	ticket *models.WorkTicket
}

func (s *ticketStoreStub) GetByID(_ context.Context, id string) (*models.WorkTicket, error) {
	if s.ticket == nil || s.ticket.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *s.ticket
	return &clone, nil
}

func (s *ticketStoreStub) UpdateAssignment(_ context.Context, params repository.UpdateAssignmentParams) error {
	if s.ticket.VersionETag != params.Version {
		return sql.ErrNoRows
	}
	s.ticket.AssigneeStaffID = params.AssigneeStaffID
	s.ticket.AssigneeSubcontractorID = params.AssigneeSubcontractorID
	s.ticket.VersionETag++
	return nil
}

type detectorStub struct {
	conflicts []models.ScheduleConflict
}

func (s *detectorStub) Detect(context.Context, *models.WorkTicket, models.AssigneeRef, bool) ([]models.ScheduleConflict, error) {
	return s.conflicts, nil
}

type auditStoreStub struct{}

func (auditStoreStub) Append(context.Context, *models.AuditRecord) error { return nil }
func (auditStoreStub) ListForEntity(context.Context, string, string, int) ([]models.AuditRecord, error) {
	return nil, nil
}

func applyTestRouter(detector *detectorStub) (*gin.Engine, *ticketStoreStub) {
	gin.SetMode(gin.TestMode)

	planning := &planningStoreStub{
		item: &models.PlanningBoardItem{
			ID: "item-1", BoardID: "board-1", Kind: models.PlanningItemTicket,
			TicketID: ticketID("tkt-1"), SyncState: models.SyncStateDraftChange, VersionETag: 1,
		},
		proposal: &models.PlanningItemProposal{
			ID: "prop-1", BoardItemID: "item-1", ProposedStaffID: ticketID("staff-b"),
			ApplyState: models.ApplyStateDraft,
		},
	}
	tickets := &ticketStoreStub{ticket: &models.WorkTicket{
		ID: "tkt-1", SiteID: "site-a", ServiceDate: "2025-06-02",
		StartsAt: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
		Status:   models.TicketStatusScheduled, VersionETag: 4,
	}}

	applySvc := service.NewPlanningApplyService(planning, tickets, detector,
		service.NewRoleGate(), service.NewAuditRecorder(auditStoreStub{}, nil, 0))
	h := NewPlanningHandler(nil, applySvc)

	router := gin.New()
	router.POST("/planning/boards/:boardId/items/:itemId/apply", func(c *gin.Context) {
		c.Set("auth_claims", &models.JWTClaims{UserID: "sup-1", Role: models.RoleSupervisor})
	}, h.Apply)
	return router, tickets
}

func ticketID(id string) *string { return &id }

func postApply(t *testing.T, router *gin.Engine, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/planning/boards/board-1/items/item-1/apply", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestApplyEndpointSuccess(t *testing.T) {
	router, tickets := applyTestRouter(&detectorStub{})

	rec := postApply(t, router, map[string]interface{}{"proposal_id": "prop-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "staff-b", *tickets.ticket.AssigneeStaffID)

	var envelope struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, "success", envelope.Data.Status)
}

func TestApplyEndpointBlockedPayload(t *testing.T) {
	router, tickets := applyTestRouter(&detectorStub{conflicts: []models.ScheduleConflict{{
		ID: "blk-1", ConflictType: models.ConflictDoubleBooking, IsBlocking: true,
		Description: "overlaps existing assignment",
	}}})

	rec := postApply(t, router, map[string]interface{}{"proposal_id": "prop-1"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Nil(t, tickets.ticket.AssigneeStaffID)

	var payload struct {
		Code              string                    `json:"code"`
		BlockingConflicts []models.ScheduleConflict `json:"blocking_conflicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "PLANNING_APPLY_BLOCKED", payload.Code)
	require.Len(t, payload.BlockingConflicts, 1)
}

func TestApplyEndpointAckRequiredPayload(t *testing.T) {
	router, _ := applyTestRouter(&detectorStub{conflicts: []models.ScheduleConflict{{
		ID: "warn-1", ConflictType: models.ConflictTravelBuffer, IsBlocking: false,
		Description: "tight connection",
	}}})

	rec := postApply(t, router, map[string]interface{}{"proposal_id": "prop-1"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var payload struct {
		Code       string   `json:"code"`
		WarningIDs []string `json:"warning_conflict_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "PLANNING_ACK_REQUIRED", payload.Code)
	require.Equal(t, []string{"warn-1"}, payload.WarningIDs)

	// Acknowledging the warning lets the apply through.
	rec = postApply(t, router, map[string]interface{}{
		"proposal_id":              "prop-1",
		"acknowledged_warning_ids": []string{"warn-1"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestApplyEndpointValidation(t *testing.T) {
	router, _ := applyTestRouter(&detectorStub{})

	// Missing proposal_id fails binding.
	rec := postApply(t, router, map[string]interface{}{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Override without a reason fails binding too.
	rec = postApply(t, router, map[string]interface{}{
		"proposal_id":            "prop-1",
		"override_locked_period": true,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
