package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionApply           = "APPLY"
	AuditActionResolveDrift    = "RESOLVE_DRIFT"
	AuditActionProposalCreate  = "PROPOSAL_CREATE"
	AuditActionPeriodPublish   = "PERIOD_PUBLISH"
	AuditActionPeriodLock      = "PERIOD_LOCK"
	AuditActionPeriodArchive   = "PERIOD_ARCHIVE"
	AuditActionConflictResolve = "CONFLICT_RESOLVE"
	AuditActionTradeRequest    = "TRADE_REQUEST"
	AuditActionTradeAccept     = "TRADE_ACCEPT"
	AuditActionTradeApply      = "TRADE_APPLY"
	AuditActionTradeApprove    = "TRADE_APPROVE"
	AuditActionTradeDeny       = "TRADE_DENY"
	AuditActionTradeCancel     = "TRADE_CANCEL"
)

// AuditRecord is an immutable before/after snapshot of a mutating
// operation. Append-only; rows are never updated or deleted.
type AuditRecord struct {
	ID         string    `db:"id" json:"id"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Action     string    `db:"action" json:"action"`
	Before     []byte    `db:"before_snapshot" json:"before,omitempty"`
	After      []byte    `db:"after_snapshot" json:"after,omitempty"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Source     string    `db:"source" json:"source"`
	RequestID  string    `db:"request_id" json:"request_id"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditContext carries request-scoped metadata into audit records. It is
// passed explicitly, never stored in ambient state.
type AuditContext struct {
	ActorID   string
	Source    string
	RequestID string
	IPAddress string
	UserAgent string
}
