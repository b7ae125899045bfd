package models

import "time"

// SyncState tracks a planning board item's lifecycle against the live
// schedule.
type SyncState string

const (
	SyncStateSynced      SyncState = "synced"
	SyncStateDraftChange SyncState = "draft_change"
	SyncStateApplied     SyncState = "applied"
	SyncStateConflict    SyncState = "conflict"
	SyncStateDismissed   SyncState = "dismissed"
)

// syncTransitions is the full lifecycle graph. Any pair not listed is
// illegal; there are no self-loops.
var syncTransitions = map[SyncState][]SyncState{
	SyncStateSynced:      {SyncStateDraftChange, SyncStateConflict},
	SyncStateDraftChange: {SyncStateApplied, SyncStateConflict, SyncStateSynced, SyncStateDismissed},
	SyncStateApplied:     {SyncStateSynced, SyncStateConflict},
	SyncStateConflict:    {SyncStateDraftChange, SyncStateDismissed, SyncStateSynced},
	SyncStateDismissed:   {SyncStateDraftChange, SyncStateSynced},
}

// CanTransitionTo reports whether the sync lifecycle permits moving from s
// to next. The machine knows nothing about why a transition happens.
func (s SyncState) CanTransitionTo(next SyncState) bool {
	for _, allowed := range syncTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PlanningItemKind categorises entries on a planning board.
type PlanningItemKind string

const (
	PlanningItemTicket PlanningItemKind = "TICKET"
	PlanningItemNote   PlanningItemKind = "NOTE"
	PlanningItemTask   PlanningItemKind = "TASK"
)

// PlanningBoard is a per-date draft surface where supervisors stage
// reassignments before pushing them to the live schedule.
type PlanningBoard struct {
	ID        string    `db:"id" json:"id"`
	BoardDate string    `db:"board_date" json:"board_date"` // YYYY-MM-DD
	SiteID    *string   `db:"site_id" json:"site_id,omitempty"`
	Name      string    `db:"name" json:"name"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PlanningBoardItem stages one proposed change. Items are never physically
// deleted, only superseded by state.
type PlanningBoardItem struct {
	ID                              string           `db:"id" json:"id"`
	BoardID                         string           `db:"board_id" json:"board_id"`
	Kind                            PlanningItemKind `db:"kind" json:"kind"`
	TicketID                        *string          `db:"ticket_id" json:"ticket_id,omitempty"`
	CurrentAssigneeStaffID          *string          `db:"current_assignee_staff_id" json:"current_assignee_staff_id,omitempty"`
	CurrentAssigneeSubcontractorID  *string          `db:"current_assignee_subcontractor_id" json:"current_assignee_subcontractor_id,omitempty"`
	SyncState                       SyncState        `db:"sync_state" json:"sync_state"`
	VersionETag                     int64            `db:"version_etag" json:"version_etag"`
	CreatedBy                       string           `db:"created_by" json:"created_by"`
	CreatedAt                       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt                       time.Time        `db:"updated_at" json:"updated_at"`
}

// ApplyState tracks a proposal's progress through the apply workflow.
type ApplyState string

const (
	ApplyStateDraft     ApplyState = "draft"
	ApplyStateValidated ApplyState = "validated"
	ApplyStateApplied   ApplyState = "applied"
	ApplyStateRejected  ApplyState = "rejected"
)

// Active reports whether the proposal can still be applied.
func (s ApplyState) Active() bool {
	return s == ApplyStateDraft || s == ApplyStateValidated
}

// PlanningItemProposal is a candidate reassignment attached to a board item.
// Exactly one of ProposedStaffID / ProposedSubcontractorID is set.
type PlanningItemProposal struct {
	ID                      string     `db:"id" json:"id"`
	BoardItemID             string     `db:"board_item_id" json:"board_item_id"`
	ProposedStaffID         *string    `db:"proposed_staff_id" json:"proposed_staff_id,omitempty"`
	ProposedSubcontractorID *string    `db:"proposed_subcontractor_id" json:"proposed_subcontractor_id,omitempty"`
	ApplyState              ApplyState `db:"apply_state" json:"apply_state"`
	Justification           string     `db:"justification" json:"justification"`
	CreatedBy               string     `db:"created_by" json:"created_by"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	AppliedAt               *time.Time `db:"applied_at" json:"applied_at,omitempty"`
}

// DriftResolution names the two terminal choices when a board item has
// drifted from the live schedule. Partial merges are not supported: a human
// picks one side.
type DriftResolution string

const (
	DriftUseBoardVersion       DriftResolution = "use_board_version"
	DriftAcceptScheduleVersion DriftResolution = "accept_schedule_version"
)
