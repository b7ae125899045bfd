package service

import "github.com/gleamops/fieldops-api/internal/models"

// Capability names a gated operation. Services consult the RoleGate instead
// of re-deriving boolean role logic per call site.
type Capability string

const (
	CapabilityManageSchedule       Capability = "manage_schedule"
	CapabilityPublishSchedule      Capability = "publish_schedule"
	CapabilityApproveTrade         Capability = "approve_trade"
	CapabilityOverrideLockedPeriod Capability = "override_locked_period"
)

// RoleGate maps capabilities to the role sets that hold them.
type RoleGate struct {
	grants map[Capability]map[models.UserRole]struct{}
}

// NewRoleGate builds the default capability table.
func NewRoleGate() *RoleGate {
	return &RoleGate{grants: map[Capability]map[models.UserRole]struct{}{
		CapabilityManageSchedule: roleSet(
			models.RoleOwnerAdmin, models.RoleManager, models.RoleSupervisor,
		),
		CapabilityPublishSchedule: roleSet(
			models.RoleOwnerAdmin, models.RoleManager,
		),
		CapabilityApproveTrade: roleSet(
			models.RoleOwnerAdmin, models.RoleManager, models.RoleSupervisor,
		),
		CapabilityOverrideLockedPeriod: roleSet(
			models.RoleOwnerAdmin, models.RoleManager,
		),
	}}
}

func roleSet(roles ...models.UserRole) map[models.UserRole]struct{} {
	set := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		set[role] = struct{}{}
	}
	return set
}

// Has reports whether the role holds the capability.
func (g *RoleGate) Has(role models.UserRole, capability Capability) bool {
	granted, ok := g.grants[capability]
	if !ok {
		return false
	}
	_, ok = granted[role]
	return ok
}

// CanManageSchedule reports whether the role may change assignments.
func (g *RoleGate) CanManageSchedule(role models.UserRole) bool {
	return g.Has(role, CapabilityManageSchedule)
}

// CanPublishSchedule reports whether the role may publish or lock periods.
func (g *RoleGate) CanPublishSchedule(role models.UserRole) bool {
	return g.Has(role, CapabilityPublishSchedule)
}

// CanApproveTrade reports whether the role may approve, apply or deny
// shift trades.
func (g *RoleGate) CanApproveTrade(role models.UserRole) bool {
	return g.Has(role, CapabilityApproveTrade)
}

// CanOverrideLockedPeriod reports whether the role may push a change into a
// locked period (with a recorded reason).
func (g *RoleGate) CanOverrideLockedPeriod(role models.UserRole) bool {
	return g.Has(role, CapabilityOverrideLockedPeriod)
}

// IsAtLeast reports whether role sits at or above the reference role in the
// privilege hierarchy.
func (g *RoleGate) IsAtLeast(role, reference models.UserRole) bool {
	return role.Rank() >= reference.Rank() && role.Rank() > 0
}
