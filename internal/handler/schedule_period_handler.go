package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gleamops/fieldops-api/internal/dto"
	"github.com/gleamops/fieldops-api/internal/models"
	"github.com/gleamops/fieldops-api/internal/service"
	"github.com/gleamops/fieldops-api/pkg/response"
)

// SchedulePeriodHandler serves the period lifecycle, validation sweeps and
// conflict reporting.
type SchedulePeriodHandler struct {
	periods *service.SchedulePeriodService
	reports *service.ConflictReportService
}

// NewSchedulePeriodHandler constructs the handler.
func NewSchedulePeriodHandler(periods *service.SchedulePeriodService, reports *service.ConflictReportService) *SchedulePeriodHandler {
	return &SchedulePeriodHandler{periods: periods, reports: reports}
}

// List handles GET /schedule/periods.
func (h *SchedulePeriodHandler) List(c *gin.Context) {
	var query dto.ListPeriodsQuery
	if !bindQuery(c, &query) {
		return
	}
	filter := models.PeriodFilter{
		SiteID: query.SiteID,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	for _, status := range query.Status {
		filter.Status = append(filter.Status, models.PeriodStatus(status))
	}
	periods, err := h.periods.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, periods, nil)
}

// Create handles POST /schedule/periods.
func (h *SchedulePeriodHandler) Create(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.CreatePeriodRequest
	if !bindJSON(c, &req) {
		return
	}
	period, err := h.periods.Create(c.Request.Context(), service.CreatePeriodCommand{
		SiteID:      req.SiteID,
		Name:        req.Name,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
	}, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// Publish handles POST /schedule/periods/:id/publish.
func (h *SchedulePeriodHandler) Publish(c *gin.Context) {
	h.transition(c, h.periods.Publish)
}

// Lock handles POST /schedule/periods/:id/lock.
func (h *SchedulePeriodHandler) Lock(c *gin.Context) {
	h.transition(c, h.periods.Lock)
}

// Archive handles POST /schedule/periods/:id/archive.
func (h *SchedulePeriodHandler) Archive(c *gin.Context) {
	h.transition(c, h.periods.Archive)
}

type periodTransition func(ctx context.Context, periodID string, actor *models.JWTClaims, actx models.AuditContext) (*models.SchedulePeriod, error)

func (h *SchedulePeriodHandler) transition(c *gin.Context, op periodTransition) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	period, err := op(c.Request.Context(), c.Param("id"), claims, auditContext(c, claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

// Validate handles GET /schedule/periods/:id/validate.
func (h *SchedulePeriodHandler) Validate(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	report, err := h.periods.Validate(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ListConflicts handles GET /schedule/conflicts.
func (h *SchedulePeriodHandler) ListConflicts(c *gin.Context) {
	var query dto.ListConflictsQuery
	if !bindQuery(c, &query) {
		return
	}
	conflicts, err := h.periods.ListConflicts(c.Request.Context(), models.ConflictFilter{
		PeriodID:     query.PeriodID,
		BlockingOnly: query.BlockingOnly,
		Unresolved:   query.Unresolved,
		Limit:        query.Limit,
		Offset:       query.Offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, nil)
}

// ResolveConflicts handles POST /schedule/conflicts/resolve.
func (h *SchedulePeriodHandler) ResolveConflicts(c *gin.Context) {
	claims, ok := mustClaims(c)
	if !ok {
		return
	}
	var req dto.ResolveConflictsRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.periods.ResolveConflicts(c.Request.Context(), req.ConflictIDs, req.Resolution, claims, auditContext(c, claims)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportConflicts handles GET /schedule/conflicts/export.
func (h *SchedulePeriodHandler) ExportConflicts(c *gin.Context) {
	var query dto.ExportConflictsQuery
	if !bindQuery(c, &query) {
		return
	}
	report, err := h.reports.Export(c.Request.Context(), models.ConflictFilter{
		PeriodID:     query.PeriodID,
		BlockingOnly: query.BlockingOnly,
		Unresolved:   query.Unresolved,
	}, service.ReportFormat(query.Format))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	c.Data(http.StatusOK, report.ContentType, report.Content)
}
