package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gleamops/fieldops-api/internal/dto"
	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/service"
	"github.com/gleamops/fieldops-api/pkg/response"
)

// PlanningHandler serves the planning board surface: board reads, proposal
// creation, the apply workflow and drift handling.
type PlanningHandler struct {
	planning *service.PlanningService
	apply    *service.PlanningApplyService
}

// NewPlanningHandler constructs the handler.
func NewPlanningHandler(planning *service.PlanningService, apply *service.PlanningApplyService) *PlanningHandler {
	return &PlanningHandler{planning: planning, apply: apply}
}

// ListBoards handles GET /planning/boards.
func (h *PlanningHandler) ListBoards(c *gin.Context) {
	var query dto.ListBoardsQuery
	if !bindQuery(c, &query) {
		return
	}
	boards, err := h.planning.ListBoards(c.Request.Context(), query.BoardDate, query.Limit, query.Offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, boards, nil)
}

// ListItems handles GET /planning/boards/:boardId/items.
func (h *PlanningHandler) ListItems(c *gin.Context) {
	view, err := h.planning.ListItems(c.Request.Context(), c.Param("boardId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// CreateProposal handles POST /planning/boards/:boardId/items/:itemId/proposals.
func (h *PlanningHandler) CreateProposal(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.CreateProposalRequest
	if !bindJSON(c, &req) {
		return
	}

	proposal, err := h.planning.CreateProposal(c.Request.Context(), service.CreateProposalCommand{
		BoardID:                 c.Param("boardId"),
		ItemID:                  c.Param("itemId"),
		ProposedStaffID:         req.ProposedStaffID,
		ProposedSubcontractorID: req.ProposedSubcontractorID,
		Justification:           req.Justification,
	}, claims, auditContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// Apply handles POST /planning/boards/:boardId/items/:itemId/apply.
func (h *PlanningHandler) Apply(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.ApplyRequest
	if !bindJSON(c, &req) {
		return
	}

	outcome, err := h.apply.Apply(c.Request.Context(), service.ApplyCommand{
		BoardID:                c.Param("boardId"),
		ItemID:                 c.Param("itemId"),
		ProposalID:             req.ProposalID,
		AcknowledgedWarningIDs: req.AcknowledgedWarningIDs,
		OverrideLockedPeriod:   req.OverrideLockedPeriod,
		OverrideReason:         req.OverrideReason,
	}, claims, auditContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}

	if outcome.Status != service.ApplyStatusSuccess {
		response.Conflict(c, applyConflictPayload(outcome))
		return
	}
	response.JSON(c, http.StatusOK, outcome, nil)
}

// Drift handles GET /planning/boards/:boardId/items/:itemId/drift.
func (h *PlanningHandler) Drift(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	item, drifted, err := h.apply.DetectDrift(c.Request.Context(), c.Param("boardId"), c.Param("itemId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"item": item, "drifted": drifted}, nil)
}

// ResolveDrift handles POST /planning/boards/:boardId/items/:itemId/resolve-drift.
func (h *PlanningHandler) ResolveDrift(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.ResolveDriftRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.apply.ResolveDrift(c.Request.Context(), service.ResolveDriftCommand{
		BoardID:    c.Param("boardId"),
		ItemID:     c.Param("itemId"),
		Resolution: models.DriftResolution(req.Resolution),
	}, claims, auditContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// applyConflictPayload shapes the 409 body: a stable code plus either the
// blocking conflict list or the warning ids awaiting acknowledgment.
func applyConflictPayload(outcome *service.ApplyOutcome) gin.H {
	payload := gin.H{
		"code":   outcome.Code,
		"status": outcome.Status,
	}
	if len(outcome.BlockingConflicts) > 0 {
		payload["blocking_conflicts"] = outcome.BlockingConflicts
	}
	if len(outcome.UnacknowledgedWarningIDs) > 0 {
		payload["warning_conflict_ids"] = outcome.UnacknowledgedWarningIDs
		payload["warnings"] = outcome.Warnings
	}
	return payload
}
