package dto

// ApplyRequest is the body for applying a proposal to the live schedule.
type ApplyRequest struct {
	ProposalID             string   `json:"proposal_id" binding:"required"`
	AcknowledgedWarningIDs []string `json:"acknowledged_warning_ids"`
	OverrideLockedPeriod   bool     `json:"override_locked_period"`
	OverrideReason         string   `json:"override_reason" binding:"required_if=OverrideLockedPeriod true"`
}

// CreateProposalRequest stages a reassignment on a board item. Exactly one
// of the two assignee fields must be set; the service enforces the XOR.
type CreateProposalRequest struct {
	ProposedStaffID         *string `json:"proposed_staff_id"`
	ProposedSubcontractorID *string `json:"proposed_subcontractor_id"`
	Justification           string  `json:"justification" binding:"required"`
}

// ResolveDriftRequest settles a conflicted board item.
type ResolveDriftRequest struct {
	Resolution string `json:"resolution" binding:"required,oneof=use_board_version accept_schedule_version"`
}

// ListBoardsQuery filters the board listing.
type ListBoardsQuery struct {
	BoardDate string `form:"board_date" binding:"omitempty,datetime=2006-01-02"`
	Limit     int    `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset    int    `form:"offset" binding:"omitempty,min=0"`
}
