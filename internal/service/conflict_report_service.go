package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gleamops/fieldops-api/internal/models"
	appErrors "github.com/gleamops/fieldops-api/pkg/errors"
	"github.com/gleamops/fieldops-api/pkg/export"
)

// ReportFormat names a supported export format.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ConflictReport is a rendered export plus the metadata the handler needs
// to serve it as a download.
type ConflictReport struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ConflictReportService renders recorded conflicts as CSV or PDF downloads.
type ConflictReportService struct {
	conflicts conflictStore
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	enabled   bool
	now       func() time.Time
}

// NewConflictReportService constructs the service.
func NewConflictReportService(conflicts conflictStore, enabled bool) *ConflictReportService {
	return &ConflictReportService{
		conflicts: conflicts,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		enabled:   enabled,
		now:       time.Now,
	}
}

// Export renders the conflicts matching the filter in the requested format.
func (s *ConflictReportService) Export(ctx context.Context, filter models.ConflictFilter, format ReportFormat) (*ConflictReport, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report exports are disabled")
	}

	conflicts, err := s.conflicts.List(ctx, filter)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	dataset := conflictDataset(conflicts)

	stamp := s.now().UTC().Format("2006-01-02")
	switch format {
	case ReportFormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		return &ConflictReport{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("schedule-conflicts-%s.csv", stamp),
		}, nil
	case ReportFormatPDF:
		footer := fmt.Sprintf("Generated %s, %d conflicts", stamp, len(conflicts))
		content, err := s.pdf.Render(dataset, "Schedule conflicts", footer)
		if err != nil {
			return nil, appErrors.FromError(err)
		}
		return &ConflictReport{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("schedule-conflicts-%s.pdf", stamp),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func conflictDataset(conflicts []models.ScheduleConflict) export.Dataset {
	headers := []string{"Type", "Blocking", "Ticket", "Staff", "Description", "Detected", "Resolved"}
	rows := make([]map[string]string, 0, len(conflicts))
	for _, c := range conflicts {
		row := map[string]string{
			"Type":        string(c.ConflictType),
			"Blocking":    fmt.Sprintf("%t", c.IsBlocking),
			"Description": c.Description,
			"Detected":    c.DetectedAt.UTC().Format(time.RFC3339),
		}
		if c.AffectedTicketID != nil {
			row["Ticket"] = *c.AffectedTicketID
		}
		if c.AffectedStaffID != nil {
			row["Staff"] = *c.AffectedStaffID
		}
		if c.ResolvedAt != nil {
			row["Resolved"] = c.ResolvedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
