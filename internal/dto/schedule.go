package dto

// CreatePeriodRequest opens a new DRAFT schedule period.
type CreatePeriodRequest struct {
	SiteID      string `json:"site_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	PeriodStart string `json:"period_start" binding:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end" binding:"required,datetime=2006-01-02"`
}

// ListPeriodsQuery filters the period listing.
type ListPeriodsQuery struct {
	SiteID string   `form:"site_id"`
	Status []string `form:"status" binding:"omitempty,dive,oneof=DRAFT PUBLISHED LOCKED ARCHIVED"`
	Limit  int      `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int      `form:"offset" binding:"omitempty,min=0"`
}

// ListConflictsQuery filters recorded schedule conflicts.
type ListConflictsQuery struct {
	PeriodID     string `form:"period_id"`
	BlockingOnly bool   `form:"blocking_only"`
	Unresolved   bool   `form:"unresolved"`
	Limit        int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset       int    `form:"offset" binding:"omitempty,min=0"`
}

// ResolveConflictsRequest closes out recorded conflicts with a note.
type ResolveConflictsRequest struct {
	ConflictIDs []string `json:"conflict_ids" binding:"required,min=1"`
	Resolution  string   `json:"resolution" binding:"required"`
}

// ExportConflictsQuery selects the report format and scope.
type ExportConflictsQuery struct {
	Format       string `form:"format" binding:"required,oneof=csv pdf"`
	PeriodID     string `form:"period_id"`
	BlockingOnly bool   `form:"blocking_only"`
	Unresolved   bool   `form:"unresolved"`
}
