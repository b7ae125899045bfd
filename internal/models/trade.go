package models

import "time"

// TradeType enumerates shift trade categories.
type TradeType string

const (
	TradeGiveAway TradeType = "GIVE_AWAY"
	TradeSwap     TradeType = "SWAP"
)

// TradeStatus is the shift trade lifecycle.
type TradeStatus string

const (
	TradeStatusRequested TradeStatus = "requested"
	TradeStatusAccepted  TradeStatus = "accepted"
	TradeStatusApproved  TradeStatus = "approved"
	TradeStatusApplied   TradeStatus = "applied"
	TradeStatusDenied    TradeStatus = "denied"
	TradeStatusCanceled  TradeStatus = "canceled"
)

var tradeTransitions = map[TradeStatus][]TradeStatus{
	TradeStatusRequested: {TradeStatusAccepted, TradeStatusDenied, TradeStatusCanceled},
	TradeStatusAccepted:  {TradeStatusApproved, TradeStatusApplied},
	TradeStatusApproved:  {TradeStatusApplied},
	TradeStatusApplied:   {},
	TradeStatusDenied:    {},
	TradeStatusCanceled:  {},
}

// CanTransitionTo reports whether the trade lifecycle permits the edge.
func (s TradeStatus) CanTransitionTo(next TradeStatus) bool {
	for _, allowed := range tradeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s TradeStatus) Terminal() bool {
	return len(tradeTransitions[s]) == 0
}

// ShiftTradeRequest tracks one staff member handing a ticket to another.
type ShiftTradeRequest struct {
	ID               string      `db:"id" json:"id"`
	TicketID         string      `db:"ticket_id" json:"ticket_id"`
	RequestType      TradeType   `db:"request_type" json:"request_type"`
	InitiatorStaffID string      `db:"initiator_staff_id" json:"initiator_staff_id"`
	TargetStaffID    string      `db:"target_staff_id" json:"target_staff_id"`
	Status           TradeStatus `db:"status" json:"status"`
	InitiatorNote    *string     `db:"initiator_note" json:"initiator_note,omitempty"`
	ManagerNote      *string     `db:"manager_note" json:"manager_note,omitempty"`
	VersionETag      int64       `db:"version_etag" json:"version_etag"`
	RequestedAt      time.Time   `db:"requested_at" json:"requested_at"`
	AcceptedAt       *time.Time  `db:"accepted_at" json:"accepted_at,omitempty"`
	ApprovedAt       *time.Time  `db:"approved_at" json:"approved_at,omitempty"`
	AppliedAt        *time.Time  `db:"applied_at" json:"applied_at,omitempty"`
	ClosedAt         *time.Time  `db:"closed_at" json:"closed_at,omitempty"`
}

// TradeFilter constrains trade listing queries.
type TradeFilter struct {
	PeriodID string
	TicketID string
	StaffID  string
	Status   []TradeStatus
	Limit    int
	Offset   int
}
