package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gleamops/fieldops-api/internal/dto"
	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/service"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
	"github.com/gleamops/fieldops-api/pkg/response"
)

// ShiftTradeHandler serves the shift trade lifecycle.
type ShiftTradeHandler struct {
	trades *service.ShiftTradeService
}

// NewShiftTradeHandler constructs the handler.
func NewShiftTradeHandler(trades *service.ShiftTradeService) *ShiftTradeHandler {
	return &ShiftTradeHandler{trades: trades}
}

// List handles GET /schedule/trades.
func (h *ShiftTradeHandler) List(c *gin.Context) {
	var query dto.ListTradesQuery
	if !bindQuery(c, &query) {
		return
	}
	filter := models.TradeFilter{
		PeriodID: query.PeriodID,
		TicketID: query.TicketID,
		StaffID:  query.StaffID,
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	for _, status := range query.Status {
		filter.Status = append(filter.Status, models.TradeStatus(status))
	}
	trades, err := h.trades.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trades, nil)
}

// Create handles POST /schedule/trades.
func (h *ShiftTradeHandler) Create(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.CreateTradeRequest
	if !bindJSON(c, &req) {
		return
	}
	trade, err := h.trades.Request(c.Request.Context(), service.RequestTradeCommand{
		TicketID:      req.TicketID,
		RequestType:   models.TradeType(req.RequestType),
		TargetStaffID: req.TargetStaffID,
		Note:          req.Note,
	}, claims, auditContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, trade)
}

// Accept handles POST /schedule/trades/:id/accept.
func (h *ShiftTradeHandler) Accept(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	trade, err := h.trades.Accept(c.Request.Context(), c.Param("id"), claims, auditContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trade, nil)
}

// Approve handles POST /schedule/trades/:id/approve.
func (h *ShiftTradeHandler) Approve(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	trade, blocking, err := h.trades.Approve(c.Request.Context(), c.Param("id"), claims, auditContext(c, claims))
	if err != nil {
		h.tradeError(c, blocking, err)
		return
	}
	response.JSON(c, http.StatusOK, trade, nil)
}

// Apply handles POST /schedule/trades/:id/apply.
func (h *ShiftTradeHandler) Apply(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	trade, blocking, err := h.trades.Apply(c.Request.Context(), c.Param("id"), claims, auditContext(c, claims))
	if err != nil {
		h.tradeError(c, blocking, err)
		return
	}
	response.JSON(c, http.StatusOK, trade, nil)
}

// Deny handles POST /schedule/trades/:id/deny.
func (h *ShiftTradeHandler) Deny(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.DenyTradeRequest
	if !bindJSON(c, &req) {
		return
	}
	trade, err := h.trades.Deny(c.Request.Context(), c.Param("id"), req.Note, claims, auditContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trade, nil)
}

// Cancel handles POST /schedule/trades/:id/cancel.
func (h *ShiftTradeHandler) Cancel(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	trade, err := h.trades.Cancel(c.Request.Context(), c.Param("id"), claims, auditContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trade, nil)
}

// tradeError shapes blocked trades as a 409 with the conflict list; all
// other errors go out as problem details.
func (h *ShiftTradeHandler) tradeError(c *gin.Context, blocking []models.ScheduleConflict, err error) {
	if errors.Is(err, appErrors.ErrTradeBlocked) && len(blocking) > 0 {
		response.Conflict(c, gin.H{
			"code":               appErrors.ErrTradeBlocked.Code,
			"blocking_conflicts": blocking,
		})
		return
	}
	response.Error(c, err)
}
