package models

import "time"

// ConflictType enumerates the clashes the detector can produce.
type ConflictType string

const (
	ConflictLockedPeriod  ConflictType = "locked_period"
	ConflictDoubleBooking ConflictType = "double_booking"
	ConflictTravelBuffer  ConflictType = "travel_buffer"
	ConflictSkillMismatch ConflictType = "skill_mismatch"
	ConflictUnavailable   ConflictType = "unavailable"
	ConflictNotPreferred  ConflictType = "not_preferred"
)

// conflictPriority fixes the detector's output ordering. Lower sorts first.
var conflictPriority = map[ConflictType]int{
	ConflictLockedPeriod:  1,
	ConflictDoubleBooking: 2,
	ConflictTravelBuffer:  3,
	ConflictSkillMismatch: 4,
	ConflictUnavailable:   5,
	ConflictNotPreferred:  6,
}

// Priority returns the sort rank for the conflict type.
func (t ConflictType) Priority() int {
	if p, ok := conflictPriority[t]; ok {
		return p
	}
	return 99
}

// ScheduleConflict describes one detected clash. The detector returns the
// full classified list; policy decisions belong to the orchestrators.
type ScheduleConflict struct {
	ID               string       `db:"id" json:"id"`
	PeriodID         *string      `db:"period_id" json:"period_id,omitempty"`
	ConflictType     ConflictType `db:"conflict_type" json:"conflict_type"`
	IsBlocking       bool         `db:"is_blocking" json:"is_blocking"`
	Description      string       `db:"description" json:"description"`
	AffectedStaffID  *string      `db:"affected_staff_id" json:"affected_staff_id,omitempty"`
	AffectedTicketID *string      `db:"affected_ticket_id" json:"affected_ticket_id,omitempty"`
	DetectedAt       time.Time    `db:"detected_at" json:"detected_at"`
	ResolvedAt       *time.Time   `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy       *string      `db:"resolved_by" json:"resolved_by,omitempty"`
	Resolution       *string      `db:"resolution" json:"resolution,omitempty"`
}

// ConflictFilter constrains conflict listing queries.
type ConflictFilter struct {
	PeriodID     string
	BlockingOnly bool
	Unresolved   bool
	Limit        int
	Offset       int
}
