package orders

import (
	"fmt"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// Action is what an order should do at a given price.
type Action int

const (
	// ActionHold leaves the order resting.
	ActionHold Action = iota
	// ActionArm moves a stop-limit order from pending to triggered without filling it.
	ActionArm
	// ActionFill executes the order at Decision.FillPrice.
	ActionFill
)

func (a Action) String() string {
	switch a {
	case ActionHold:
		return "hold"
	case ActionArm:
		return "arm"
	case ActionFill:
		return "fill"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Decision is the outcome of evaluating an order against a price.
type Decision struct {
	Action    Action
	FillPrice decimal.Decimal
}

// Evaluate decides what order should do when the market trades at price.
// It is shared by placement (IOC/FOK) and the conditional order monitor; every order type
// is handled explicitly.
func Evaluate(order models.Order, price decimal.Decimal) Decision {
	hold := Decision{Action: ActionHold}
	if !order.Active() && order.Status != "" {
		return hold
	}

	switch order.Type {
	case models.OrderTypeMarket:
		return Decision{Action: ActionFill, FillPrice: price}

	case models.OrderTypeLimit:
		if marketable(order, price) {
			return Decision{Action: ActionFill, FillPrice: *order.LimitPrice}
		}
		return hold

	case models.OrderTypeStopLoss:
		// a sell stop protects a long position, a buy stop protects a short one
		if crossed(order, price, true) {
			return Decision{Action: ActionFill, FillPrice: price}
		}
		return hold

	case models.OrderTypeTakeProfit:
		if crossed(order, price, false) {
			return Decision{Action: ActionFill, FillPrice: price}
		}
		return hold

	case models.OrderTypeStopLimit:
		if order.Status == models.OrderStatusTriggered {
			if marketable(order, price) {
				return Decision{Action: ActionFill, FillPrice: *order.LimitPrice}
			}
			return hold
		}
		if crossed(order, price, true) {
			return Decision{Action: ActionArm}
		}
		return hold

	default:
		return hold
	}
}

// EvaluateImmediate resolves an order that must act now: a stop-limit that arms is
// evaluated again as the triggered limit order it becomes.
func EvaluateImmediate(order models.Order, price decimal.Decimal) Decision {
	d := Evaluate(order, price)
	if d.Action != ActionArm {
		return d
	}
	order.Status = models.OrderStatusTriggered
	d = Evaluate(order, price)
	if d.Action == ActionFill {
		return d
	}
	return Decision{Action: ActionHold}
}

// crossed reports whether price reached the stop. With sellBelow a sell triggers at or
// under the stop and a buy at or over it; without it the comparisons are swapped.
func crossed(order models.Order, price decimal.Decimal, sellBelow bool) bool {
	if order.StopPrice == nil {
		return false
	}
	below := price.LessThanOrEqual(*order.StopPrice)
	above := price.GreaterThanOrEqual(*order.StopPrice)
	if (order.Side == models.SideSell) == sellBelow {
		return below
	}
	return above
}

// marketable reports whether a limit price can trade against price.
func marketable(order models.Order, price decimal.Decimal) bool {
	if order.LimitPrice == nil {
		return false
	}
	if order.Side == models.SideBuy {
		return price.LessThanOrEqual(*order.LimitPrice)
	}
	return price.GreaterThanOrEqual(*order.LimitPrice)
}
