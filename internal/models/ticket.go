package models

import "time"

// TicketStatus enumerates the live states of a work ticket.
type TicketStatus string

const (
	TicketStatusScheduled  TicketStatus = "SCHEDULED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// WorkTicket is the live, scheduled unit of work. Assignment fields are
// mutated only through the orchestrated apply/trade paths.
type WorkTicket struct {
	ID                      string       `db:"id" json:"id"`
	SiteID                  string       `db:"site_id" json:"site_id"`
	PeriodID                *string      `db:"period_id" json:"period_id,omitempty"`
	ServiceDate             string       `db:"service_date" json:"service_date"` // YYYY-MM-DD
	StartsAt                time.Time    `db:"starts_at" json:"starts_at"`
	EndsAt                  time.Time    `db:"ends_at" json:"ends_at"`
	Status                  TicketStatus `db:"status" json:"status"`
	AssigneeStaffID         *string      `db:"assignee_staff_id" json:"assignee_staff_id,omitempty"`
	AssigneeSubcontractorID *string      `db:"assignee_subcontractor_id" json:"assignee_subcontractor_id,omitempty"`
	RequiredRole            *UserRole    `db:"required_role" json:"required_role,omitempty"`
	VersionETag             int64        `db:"version_etag" json:"version_etag"`
	CreatedAt               time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time    `db:"updated_at" json:"updated_at"`
}

// Active reports whether the ticket still occupies its time window.
func (t TicketStatus) Active() bool {
	return t != TicketStatusCancelled
}

// AssigneeType discriminates the two kinds of assignee.
type AssigneeType string

const (
	AssigneeStaff         AssigneeType = "staff"
	AssigneeSubcontractor AssigneeType = "subcontractor"
)

// AssigneeRef identifies a proposed assignee: staff XOR subcontractor.
type AssigneeRef struct {
	Type AssigneeType `json:"type"`
	ID   string       `json:"id"`
}

// Assignment is a read model row: one active ticket held by a staff member
// on a given date, used for overlap detection.
type Assignment struct {
	TicketID string    `db:"ticket_id" json:"ticket_id"`
	StaffID  string    `db:"staff_id" json:"staff_id"`
	SiteID   string    `db:"site_id" json:"site_id"`
	StartsAt time.Time `db:"starts_at" json:"starts_at"`
	EndsAt   time.Time `db:"ends_at" json:"ends_at"`
}

// Overlaps reports whether the assignment's window intersects [start, end).
func (a Assignment) Overlaps(start, end time.Time) bool {
	return a.StartsAt.Before(end) && start.Before(a.EndsAt)
}
