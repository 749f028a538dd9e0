package orders

import (
	"strings"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// CreateOrderRequest is a user's order submission.
type CreateOrderRequest struct {
	UserID      string
	TradingPair string
	Type        models.OrderType
	Side        models.Side
	Amount      decimal.Decimal
	LimitPrice  *decimal.Decimal
	StopPrice   *decimal.Decimal
	TimeInForce models.TimeInForce
}

func (s *Service) validate(req CreateOrderRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return &models.ValidationError{Field: "user_id", Reason: "is required"}
	}
	if _, known := s.pairs[req.TradingPair]; !known {
		return &models.ValidationError{Field: "trading_pair", Reason: "unknown trading pair " + req.TradingPair}
	}
	if !req.Type.Valid() {
		return &models.ValidationError{Field: "order_type", Reason: "must be one of market, limit, stop_loss, take_profit, stop_limit"}
	}
	if !req.Side.Valid() {
		return &models.ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	if !req.Amount.IsPositive() {
		return &models.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if req.TimeInForce != "" && !req.TimeInForce.Valid() {
		return &models.ValidationError{Field: "time_in_force", Reason: "must be GTC, IOC or FOK"}
	}

	if req.Type.RequiresLimitPrice() {
		if req.LimitPrice == nil {
			return &models.ValidationError{Field: "limit_price", Reason: "is required for " + string(req.Type)}
		}
		if !req.LimitPrice.IsPositive() {
			return &models.ValidationError{Field: "limit_price", Reason: "must be greater than zero"}
		}
	} else if req.LimitPrice != nil {
		return &models.ValidationError{Field: "limit_price", Reason: "not allowed for " + string(req.Type)}
	}

	if req.Type.RequiresStopPrice() {
		if req.StopPrice == nil {
			return &models.ValidationError{Field: "stop_price", Reason: "is required for " + string(req.Type)}
		}
		if !req.StopPrice.IsPositive() {
			return &models.ValidationError{Field: "stop_price", Reason: "must be greater than zero"}
		}
	} else if req.StopPrice != nil {
		return &models.ValidationError{Field: "stop_price", Reason: "not allowed for " + string(req.Type)}
	}
	return nil
}
