package models

import "time"

// UserRole represents the available roles for the RBAC system, highest
// privilege first.
type UserRole string

const (
	RoleOwnerAdmin UserRole = "OWNER_ADMIN"
	RoleManager    UserRole = "MANAGER"
	RoleSupervisor UserRole = "SUPERVISOR"
	RoleInspector  UserRole = "INSPECTOR"
	RoleCleaner    UserRole = "CLEANER"
	RoleSales      UserRole = "SALES"
)

// roleRank orders roles for IsAtLeast comparisons. Higher is more privileged.
var roleRank = map[UserRole]int{
	RoleOwnerAdmin: 6,
	RoleManager:    5,
	RoleSupervisor: 4,
	RoleInspector:  3,
	RoleCleaner:    2,
	RoleSales:      1,
}

// Rank returns the privilege rank of the role, 0 for unknown roles.
func (r UserRole) Rank() int {
	return roleRank[r]
}

// Staff is a read-only directory entry for an employed field worker.
type Staff struct {
	ID       string   `db:"id" json:"id"`
	UserID   *string  `db:"user_id" json:"user_id,omitempty"`
	FullName string   `db:"full_name" json:"full_name"`
	Role     UserRole `db:"role" json:"role"`
	Active   bool     `db:"active" json:"active"`
}

// Subcontractor is a read-only directory entry for an external crew.
type Subcontractor struct {
	ID          string `db:"id" json:"id"`
	CompanyName string `db:"company_name" json:"company_name"`
	Active      bool   `db:"active" json:"active"`
}

// AvailabilityRule describes when a staff member can or prefers not to work.
type AvailabilityRule struct {
	ID        string    `db:"id" json:"id"`
	StaffID   string    `db:"staff_id" json:"staff_id"`
	RuleType  string    `db:"rule_type" json:"rule_type"` // UNAVAILABLE or NOT_PREFERRED
	DayOfWeek *int      `db:"day_of_week" json:"day_of_week,omitempty"`
	Date      *string   `db:"date" json:"date,omitempty"` // YYYY-MM-DD, overrides DayOfWeek
	StartsAt  *string   `db:"starts_at" json:"starts_at,omitempty"`
	EndsAt    *string   `db:"ends_at" json:"ends_at,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	AvailabilityRuleUnavailable  = "UNAVAILABLE"
	AvailabilityRuleNotPreferred = "NOT_PREFERRED"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
