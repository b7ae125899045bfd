package dto

// CreateTradeRequest opens a shift trade.
type CreateTradeRequest struct {
	TicketID      string  `json:"ticket_id" binding:"required"`
	RequestType   string  `json:"request_type" binding:"required,oneof=GIVE_AWAY SWAP"`
	TargetStaffID string  `json:"target_staff_id" binding:"required"`
	Note          *string `json:"note"`
}

// DenyTradeRequest closes a trade with a mandatory manager note.
type DenyTradeRequest struct {
	Note string `json:"note" binding:"required"`
}

// ListTradesQuery filters the trade listing.
type ListTradesQuery struct {
	PeriodID string   `form:"period_id"`
	TicketID string   `form:"ticket_id"`
	StaffID  string   `form:"staff_id"`
	Status   []string `form:"status" binding:"omitempty,dive,oneof=requested accepted approved applied denied canceled"`
	Limit    int      `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset   int      `form:"offset" binding:"omitempty,min=0"`
}
