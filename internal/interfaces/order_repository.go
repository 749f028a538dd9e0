package interfaces

import (
	"context"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

// OrderRepository is the read side of order storage. Writes go through LedgerTx.
type OrderRepository interface {
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	ListOrders(ctx context.Context, userID string, filter models.OrderFilter) ([]models.Order, error)
	// ActiveTradingPairs lists pairs that have at least one pending or triggered order.
	ActiveTradingPairs(ctx context.Context) ([]string, error)
	// ActiveOrdersByPair lists pending and triggered orders on pair, oldest first.
	ActiveOrdersByPair(ctx context.Context, pair string) ([]models.Order, error)
}

// AuditLog is the read-only compliance view of audit entries.
type AuditLog interface {
	QueryAudit(ctx context.Context, query models.AuditQuery) (models.AuditPage, error)
}
