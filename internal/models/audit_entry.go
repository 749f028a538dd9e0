package models

import "time"

// Audit actions written by the ledger.
const (
	AuditActionPortfolioOpen = "portfolio.open"
	AuditActionFill          = "order.fill"
	AuditActionReserve       = "order.reserve"
	AuditActionRelease       = "order.release"
	AuditActionCancel        = "order.cancel"
	AuditActionReject        = "order.reject"
	AuditActionTrigger       = "order.trigger"
)

// Detail keys read back when an audit trail is replayed.
const (
	AuditDetailTradingPair   = "trading_pair"
	AuditDetailSide          = "side"
	AuditDetailAmount        = "amount"
	AuditDetailFillPrice     = "fill_price"
	AuditDetailReason        = "reason"
	AuditDetailCashDelta     = "cash_delta"
	AuditDetailAsset         = "asset"
	AuditDetailAssetDelta    = "asset_delta"
	AuditDetailReservedDelta = "reserved_delta"
)

// AuditEntry is an immutable record of one ledger mutation.
type AuditEntry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Status     string         `json:"status"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditQuery filters the compliance view of the audit log.
type AuditQuery struct {
	UserID string
	Action string
	From   time.Time // inclusive, zero means unbounded
	To     time.Time // exclusive, zero means unbounded
	Limit  int
	Offset int
}

// AuditPage is one page of audit entries, oldest first.
type AuditPage struct {
	Entries    []AuditEntry `json:"entries"`
	NextOffset int          `json:"next_offset,omitempty"` // zero when there is no further page
}
