// Package orders places, cancels and executes orders against the portfolio ledger.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/ledger"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models/events"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/telemetry"
	"github.com/shopspring/decimal"
)

// Reject reasons recorded on orders.
const (
	ReasonNotMarketable     = "not_marketable"
	ReasonInsufficientFunds = "insufficient_funds"
)

const (
	defaultTopic     = "orders"
	defaultListLimit = 50
	maxListLimit     = 500
)

// Config holds service settings.
type Config struct {
	// TradingPairs are the BASE/QUOTE pairs orders may be placed on.
	TradingPairs []string
	// EventTopic is where order events are published. Defaults to "orders".
	EventTopic string
	Logger     *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

// WithRateLimiter gates CreateOrder per user.
func WithRateLimiter(limiter interfaces.RateLimiter) Option {
	return func(s *Service) { s.limiter = limiter }
}

// WithPublisher publishes order events after each committed change.
func WithPublisher(publisher interfaces.EventPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithMetrics(metrics interfaces.MetricsRecorder) Option {
	return func(s *Service) { s.metrics = metrics }
}

// Service is the order placement service.
type Service struct {
	ledger    *ledger.Ledger
	orders    interfaces.OrderRepository
	oracle    interfaces.PriceOracle
	limiter   interfaces.RateLimiter
	publisher interfaces.EventPublisher
	metrics   interfaces.MetricsRecorder
	pairs     map[string]struct{}
	topic     string
	logger    *slog.Logger
}

// NewService creates an order placement service.
func NewService(cfg Config, l *ledger.Ledger, orders interfaces.OrderRepository, oracle interfaces.PriceOracle, opts ...Option) (*Service, error) {
	if l == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if orders == nil {
		return nil, fmt.Errorf("order repository cannot be nil")
	}
	if oracle == nil {
		return nil, fmt.Errorf("price oracle cannot be nil")
	}
	if len(cfg.TradingPairs) == 0 {
		return nil, fmt.Errorf("at least one trading pair is required")
	}

	pairs := make(map[string]struct{}, len(cfg.TradingPairs))
	for _, pair := range cfg.TradingPairs {
		if _, _, ok := models.SplitPair(pair); !ok {
			return nil, fmt.Errorf("%w: %q", models.ErrUnknownTradingPair, pair)
		}
		pairs[pair] = struct{}{}
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = defaultTopic
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Service{
		ledger:  l,
		orders:  orders,
		oracle:  oracle,
		metrics: telemetry.Nop(),
		pairs:   pairs,
		topic:   cfg.EventTopic,
		logger:  cfg.Logger.With("component", "order-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateOrder admits the request through the rate limiter and places it.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (models.Order, error) {
	if err := s.CheckRateLimit(ctx, req.UserID); err != nil {
		return models.Order{}, err
	}
	return s.PlaceOrder(ctx, req)
}

// CheckRateLimit consumes one submission slot for userID. Callers that retry PlaceOrder
// call it once per request, not once per attempt. A limiter backend error lets the
// request through.
func (s *Service) CheckRateLimit(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", "user_id", userID, "error", err)
		return nil
	}
	if !allowed {
		s.metrics.RecordRateLimited(ctx)
		return models.ErrRateLimited
	}
	return nil
}

// PlaceOrder validates and places an order without consulting the rate limiter.
// Market and IOC/FOK orders resolve immediately; other orders rest as pending.
// Either everything is persisted or nothing is.
func (s *Service) PlaceOrder(ctx context.Context, req CreateOrderRequest) (models.Order, error) {
	if err := s.validate(req); err != nil {
		return models.Order{}, err
	}
	if req.TimeInForce == "" {
		req.TimeInForce = models.TimeInForceGTC
	}

	// quotes are fetched before taking the lock so a slow oracle never holds a portfolio
	var quote models.PriceQuote
	immediate := req.Type == models.OrderTypeMarket || req.TimeInForce.Immediate()
	if immediate {
		q, err := s.oracle.GetPrice(ctx, req.TradingPair)
		if err != nil {
			s.metrics.RecordPriceUnavailable(ctx, req.TradingPair)
			if errors.Is(err, models.ErrPriceUnavailable) {
				return models.Order{}, err
			}
			return models.Order{}, fmt.Errorf("%w: %s: %v", models.ErrPriceUnavailable, req.TradingPair, err)
		}
		quote = q
	}

	now := s.ledger.Now()
	order := models.Order{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		TradingPair:    req.TradingPair,
		Type:           req.Type,
		Side:           req.Side,
		Amount:         req.Amount,
		LimitPrice:     req.LimitPrice,
		StopPrice:      req.StopPrice,
		TimeInForce:    req.TimeInForce,
		ReservedAmount: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var emitted []events.OrderEvent
	err := s.ledger.WithPortfolio(ctx, req.UserID, func(tx *ledger.Tx) error {
		emitted = emitted[:0]
		placed := order

		if immediate {
			d := EvaluateImmediate(placed, quote.Price)
			if d.Action != ActionFill {
				placed.Status = models.OrderStatusRejected
				placed.RejectReason = ReasonNotMarketable
				if err := tx.InsertOrder(ctx, placed); err != nil {
					return err
				}
				if err := auditReject(ctx, tx, placed); err != nil {
					return err
				}
				order = placed
				emitted = append(emitted, orderEvent(events.OrderRejected, placed, now))
				return nil
			}
			if err := s.fillNew(ctx, tx, &placed, d.FillPrice); err != nil {
				return err
			}
			order = placed
			emitted = append(emitted, orderEvent(events.OrderCompleted, placed, now))
			return nil
		}

		if err := s.rest(ctx, tx, &placed); err != nil {
			return err
		}
		order = placed
		emitted = append(emitted, orderEvent(events.OrderCreated, placed, now))
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInsufficientFunds) {
			s.metrics.RecordOrderRejected(ctx, ReasonInsufficientFunds)
		}
		return models.Order{}, err
	}

	s.metrics.RecordOrderPlaced(ctx, string(order.Type), string(order.Status))
	s.logger.Info("order placed",
		"order_id", order.ID,
		"user_id", order.UserID,
		"trading_pair", order.TradingPair,
		"order_type", order.Type,
		"side", order.Side,
		"status", order.Status)
	s.publish(ctx, emitted)
	return order, nil
}

// fillNew executes a brand-new order in full and inserts it as completed.
// The ledger mutation comes first so a failed insert rolls the fill back with it.
func (s *Service) fillNew(ctx context.Context, tx *ledger.Tx, order *models.Order, price decimal.Decimal) error {
	if err := checkFunds(tx, *order, price); err != nil {
		return err
	}
	if err := tx.ApplyFill(ctx, *order, price); err != nil {
		return err
	}
	order.Status = models.OrderStatusCompleted
	order.FillPrice = &price
	return tx.InsertOrder(ctx, *order)
}

// rest inserts a GTC order as pending. Buy orders with a limit price hold their maximum
// cost so a later trigger cannot be starved by spending elsewhere.
func (s *Service) rest(ctx context.Context, tx *ledger.Tx, order *models.Order) error {
	order.Status = models.OrderStatusPending

	var reserve decimal.Decimal
	switch {
	case order.Side == models.SideBuy && order.Type.RequiresLimitPrice():
		reserve = order.Notional(*order.LimitPrice)
		if err := checkFunds(tx, *order, *order.LimitPrice); err != nil {
			return err
		}
		order.ReservedAmount = reserve
	case order.Side == models.SideBuy:
		// stop_loss / take_profit buys fill at the market price once triggered; the stop
		// price is the best estimate of that cost available now
		if err := checkFunds(tx, *order, *order.StopPrice); err != nil {
			return err
		}
	default:
		if err := checkFunds(tx, *order, decimal.Zero); err != nil {
			return err
		}
	}

	if err := tx.InsertOrder(ctx, *order); err != nil {
		return err
	}
	return tx.Reserve(ctx, *order, reserve)
}

// CancelOrder cancels a pending order owned by userID and releases any held cash.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID string) (models.Order, error) {
	var cancelled models.Order
	err := s.ledger.WithPortfolio(ctx, userID, func(tx *ledger.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return &models.NotCancellableError{OrderID: order.ID, Status: order.Status}
		}
		if err := tx.Release(ctx, order); err != nil {
			return err
		}
		order.ReservedAmount = decimal.Zero
		if err := tx.Transition(ctx, &order, models.OrderStatusCancelled); err != nil {
			return err
		}
		if err := tx.Audit(ctx, models.AuditEntry{
			Action:     models.AuditActionCancel,
			Resource:   "order",
			ResourceID: order.ID,
			Status:     "success",
			Details:    map[string]any{models.AuditDetailTradingPair: order.TradingPair},
		}); err != nil {
			return err
		}
		cancelled = order
		return nil
	})
	if errors.Is(err, models.ErrPortfolioNotFound) {
		return models.Order{}, models.ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("order cancelled", "order_id", cancelled.ID, "user_id", userID)
	s.publish(ctx, []events.OrderEvent{orderEvent(events.OrderCancelled, cancelled, cancelled.UpdatedAt)})
	return cancelled, nil
}

// ProcessTrigger re-evaluates an active order against quote under its portfolio lock and
// performs whatever the evaluation calls for. It reports whether the order changed.
// An order that is no longer active (cancelled, or already executed by another
// instance) is left alone.
func (s *Service) ProcessTrigger(ctx context.Context, orderID, userID string, quote models.PriceQuote) (models.Order, bool, error) {
	var result models.Order
	var changed bool
	var emitted []events.OrderEvent

	err := s.ledger.WithPortfolio(ctx, userID, func(tx *ledger.Tx) error {
		changed = false
		emitted = emitted[:0]

		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		result = order
		if !order.Active() {
			return nil
		}

		d := Evaluate(order, quote.Price)
		if d.Action == ActionArm {
			if err := tx.Transition(ctx, &order, models.OrderStatusTriggered); err != nil {
				return err
			}
			if err := auditTrigger(ctx, tx, order, quote.Price); err != nil {
				return err
			}
			changed = true
			result = order
			emitted = append(emitted, orderEvent(events.OrderTriggered, order, order.UpdatedAt))
			d = Evaluate(order, quote.Price)
		}
		if d.Action != ActionFill {
			return nil
		}

		if err := s.execute(ctx, tx, &order, d.FillPrice, quote.Price); err != nil {
			return err
		}
		changed = true
		result = order
		if order.Status == models.OrderStatusCompleted {
			emitted = append(emitted, orderEvent(events.OrderCompleted, order, order.UpdatedAt))
		} else {
			emitted = append(emitted, orderEvent(events.OrderRejected, order, order.UpdatedAt))
		}
		return nil
	})
	if err != nil {
		return models.Order{}, false, err
	}

	if changed {
		s.metrics.RecordTrigger(ctx, string(result.Type))
		s.logger.Info("order triggered",
			"order_id", result.ID,
			"user_id", userID,
			"status", result.Status,
			"price", quote.Price.String())
		s.publish(ctx, emitted)
	}
	return result, changed, nil
}

// execute fills a resting order. Stop-loss and take-profit orders pass through triggered
// on the way. If the portfolio can no longer cover the fill the order is rejected.
func (s *Service) execute(ctx context.Context, tx *ledger.Tx, order *models.Order, fillPrice, marketPrice decimal.Decimal) error {
	// held cash is returned first so it counts towards the fill
	if err := tx.Release(ctx, *order); err != nil {
		return err
	}
	order.ReservedAmount = decimal.Zero

	if order.Status == models.OrderStatusPending && order.Type.Conditional() {
		if err := tx.Transition(ctx, order, models.OrderStatusTriggered); err != nil {
			return err
		}
		if err := auditTrigger(ctx, tx, *order, marketPrice); err != nil {
			return err
		}
	}

	if err := checkFunds(tx, *order, fillPrice); err != nil {
		if !errors.Is(err, models.ErrInsufficientFunds) {
			return err
		}
		order.RejectReason = ReasonInsufficientFunds
		if err := tx.Transition(ctx, order, models.OrderStatusRejected); err != nil {
			return err
		}
		s.metrics.RecordOrderRejected(ctx, ReasonInsufficientFunds)
		return auditReject(ctx, tx, *order)
	}

	if err := tx.ApplyFill(ctx, *order, fillPrice); err != nil {
		return err
	}
	order.FillPrice = &fillPrice
	return tx.Transition(ctx, order, models.OrderStatusCompleted)
}

func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.UserID != userID {
		return models.Order{}, models.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID string, filter models.OrderFilter) ([]models.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &models.ValidationError{Field: "status", Reason: "unknown status " + string(filter.Status)}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.orders.ListOrders(ctx, userID, filter)
}

func (s *Service) GetPortfolio(ctx context.Context, userID string) (models.Portfolio, error) {
	return s.ledger.GetPortfolio(ctx, userID)
}

// OpenPortfolio funds a new portfolio for userID.
func (s *Service) OpenPortfolio(ctx context.Context, userID string, initialCash decimal.Decimal) (models.Portfolio, error) {
	return s.ledger.OpenPortfolio(ctx, userID, initialCash)
}

// QueryAudit returns a page of the audit trail. Limit defaults to 50 and is capped at 500.
func (s *Service) QueryAudit(ctx context.Context, query models.AuditQuery) (models.AuditPage, error) {
	if query.Limit <= 0 {
		query.Limit = defaultListLimit
	}
	if query.Limit > maxListLimit {
		query.Limit = maxListLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	if !query.From.IsZero() && !query.To.IsZero() && query.To.Before(query.From) {
		return models.AuditPage{}, &models.ValidationError{Field: "to", Reason: "must not be before from"}
	}
	return s.ledger.QueryAudit(ctx, query)
}

func (s *Service) publish(ctx context.Context, emitted []events.OrderEvent) {
	if s.publisher == nil {
		return
	}
	for _, evt := range emitted {
		if err := s.publisher.Publish(ctx, s.topic, evt.UserID, evt); err != nil {
			s.logger.Warn("failed to publish order event", "type", evt.Type, "order_id", evt.OrderID, "error", err)
		}
	}
}

// checkFunds verifies the portfolio can cover order at price: available cash for buys,
// holdings of the base asset for sells.
func checkFunds(tx *ledger.Tx, order models.Order, price decimal.Decimal) error {
	switch order.Side {
	case models.SideBuy:
		cost := order.Notional(price)
		if available := tx.AvailableCash(); available.LessThan(cost) {
			return fmt.Errorf("%w: need %s, available %s", models.ErrInsufficientFunds, cost, available)
		}
	case models.SideSell:
		base, _, _ := models.SplitPair(order.TradingPair)
		if held := tx.Portfolio().Holding(base); held.LessThan(order.Amount) {
			return fmt.Errorf("%w: need %s %s, holding %s", models.ErrInsufficientFunds, order.Amount, base, held)
		}
	}
	return nil
}

func auditReject(ctx context.Context, tx *ledger.Tx, order models.Order) error {
	return tx.Audit(ctx, models.AuditEntry{
		Action:     models.AuditActionReject,
		Resource:   "order",
		ResourceID: order.ID,
		Status:     "rejected",
		Details: map[string]any{
			models.AuditDetailTradingPair: order.TradingPair,
			models.AuditDetailReason:      order.RejectReason,
		},
	})
}

func auditTrigger(ctx context.Context, tx *ledger.Tx, order models.Order, price decimal.Decimal) error {
	return tx.Audit(ctx, models.AuditEntry{
		Action:     models.AuditActionTrigger,
		Resource:   "order",
		ResourceID: order.ID,
		Status:     "success",
		Details: map[string]any{
			models.AuditDetailTradingPair: order.TradingPair,
			"trigger_price":               price.String(),
		},
	})
}

func orderEvent(kind string, order models.Order, at time.Time) events.OrderEvent {
	return events.OrderEvent{
		Type:        kind,
		OrderID:     order.ID,
		UserID:      order.UserID,
		TradingPair: order.TradingPair,
		OrderType:   string(order.Type),
		Side:        string(order.Side),
		Amount:      order.Amount,
		Status:      string(order.Status),
		FillPrice:   order.FillPrice,
		Reason:      order.RejectReason,
		OccurredAt:  at,
	}
}
