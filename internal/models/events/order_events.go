package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types published on the orders topic.
const (
	OrderCreated   = "order.created"
	OrderTriggered = "order.triggered"
	OrderCompleted = "order.completed"
	OrderRejected  = "order.rejected"
	OrderCancelled = "order.cancelled"
)

// OrderEvent is emitted after an order mutation commits.
type OrderEvent struct {
	Type        string           `json:"type"`
	OrderID     string           `json:"order_id"`
	UserID      string           `json:"user_id"`
	TradingPair string           `json:"trading_pair"`
	OrderType   string           `json:"order_type"`
	Side        string           `json:"side"`
	Amount      decimal.Decimal  `json:"amount"`
	Status      string           `json:"status"`
	FillPrice   *decimal.Decimal `json:"fill_price,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}
