package models

import "time"

// PeriodStatus is the lifecycle of a schedule period. Once published there
// is no path back to a more mutable state; the only route is a new period.
type PeriodStatus string

const (
	PeriodStatusDraft     PeriodStatus = "DRAFT"
	PeriodStatusPublished PeriodStatus = "PUBLISHED"
	PeriodStatusLocked    PeriodStatus = "LOCKED"
	PeriodStatusArchived  PeriodStatus = "ARCHIVED"
)

var periodTransitions = map[PeriodStatus][]PeriodStatus{
	PeriodStatusDraft:     {PeriodStatusPublished, PeriodStatusArchived},
	PeriodStatusPublished: {PeriodStatusLocked, PeriodStatusArchived},
	PeriodStatusLocked:    {PeriodStatusArchived},
	PeriodStatusArchived:  {},
}

// CanTransitionTo reports whether the period lifecycle permits the edge.
func (s PeriodStatus) CanTransitionTo(next PeriodStatus) bool {
	for _, allowed := range periodTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SchedulePeriod is a bounded, lockable window of the live schedule for a
// site. Tickets in a LOCKED period may only be reassigned via an explicit
// override that records a reason.
type SchedulePeriod struct {
	ID          string       `db:"id" json:"id"`
	SiteID      string       `db:"site_id" json:"site_id"`
	Name        string       `db:"name" json:"name"`
	PeriodStart string       `db:"period_start" json:"period_start"` // YYYY-MM-DD
	PeriodEnd   string       `db:"period_end" json:"period_end"`     // YYYY-MM-DD
	Status      PeriodStatus `db:"status" json:"status"`
	PublishedAt *time.Time   `db:"published_at" json:"published_at,omitempty"`
	PublishedBy *string      `db:"published_by" json:"published_by,omitempty"`
	LockedAt    *time.Time   `db:"locked_at" json:"locked_at,omitempty"`
	LockedBy    *string      `db:"locked_by" json:"locked_by,omitempty"`
	ArchivedAt  *time.Time   `db:"archived_at" json:"archived_at,omitempty"`
	VersionETag int64        `db:"version_etag" json:"version_etag"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
}

// PeriodFilter constrains period listing queries.
type PeriodFilter struct {
	SiteID string
	Status []PeriodStatus
	Limit  int
	Offset int
}
