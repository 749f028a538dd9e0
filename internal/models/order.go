package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the closed set of order variants the engine understands.
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeStopLoss   OrderType = "stop_loss"
	OrderTypeTakeProfit OrderType = "take_profit"
	OrderTypeStopLimit  OrderType = "stop_limit"
)

// Valid reports whether t is one of the known order types.
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStopLoss, OrderTypeTakeProfit, OrderTypeStopLimit:
		return true
	}
	return false
}

// RequiresLimitPrice reports whether the type needs a limit price.
func (t OrderType) RequiresLimitPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RequiresStopPrice reports whether the type needs a stop price.
func (t OrderType) RequiresStopPrice() bool {
	return t == OrderTypeStopLoss || t == OrderTypeTakeProfit || t == OrderTypeStopLimit
}

// Conditional reports whether the order waits for a price condition before executing.
func (t OrderType) Conditional() bool {
	return t.RequiresStopPrice()
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC" // good till cancelled
	TimeInForceIOC TimeInForce = "IOC" // immediate or cancel
	TimeInForceFOK TimeInForce = "FOK" // fill or kill
)

func (t TimeInForce) Valid() bool {
	switch t {
	case TimeInForceGTC, TimeInForceIOC, TimeInForceFOK:
		return true
	}
	return false
}

// Immediate reports whether an order with this time in force must resolve at placement.
func (t TimeInForce) Immediate() bool {
	return t == TimeInForceIOC || t == TimeInForceFOK
}

// Order is a user's instruction to buy or sell an asset of a trading pair.
type Order struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	TradingPair    string           `json:"trading_pair"`
	Type           OrderType        `json:"order_type"`
	Side           Side             `json:"side"`
	Amount         decimal.Decimal  `json:"amount"`
	LimitPrice     *decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice      *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce    TimeInForce      `json:"time_in_force"`
	Status         OrderStatus      `json:"status"`
	ReservedAmount decimal.Decimal  `json:"reserved_amount"` // cash held while the order rests
	FillPrice      *decimal.Decimal `json:"fill_price,omitempty"`
	RejectReason   string           `json:"reject_reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Active reports whether the order can still execute.
func (o Order) Active() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusTriggered
}

// Notional returns amount × price.
func (o Order) Notional(price decimal.Decimal) decimal.Decimal {
	return o.Amount.Mul(price)
}

// OrderFilter narrows order listings. Zero values mean "any".
type OrderFilter struct {
	Status      OrderStatus
	TradingPair string
	Limit       int
	Offset      int
}
