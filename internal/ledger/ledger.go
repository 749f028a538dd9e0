package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/shopspring/decimal"
)

const defaultLockTimeout = 5 * time.Second

// Config holds ledger settings.
type Config struct {
	// LockTimeout bounds how long a caller waits for a portfolio lock.
	LockTimeout time.Duration
	Logger      *slog.Logger
	// Now is the clock used for audit timestamps. Defaults to time.Now in UTC.
	Now func() time.Time
}

// Ledger is the only component allowed to mutate portfolios.
// Every mutation happens under the portfolio's lock and writes an audit entry in the
// same transaction.
type Ledger struct {
	store       interfaces.LedgerStore
	audit       interfaces.AuditLog
	lockTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewLedger creates a Ledger on top of a storage implementation (memory, postgres, ...).
func NewLedger(store interfaces.LedgerStore, audit interfaces.AuditLog, cfg Config) *Ledger {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{
		store:       store,
		audit:       audit,
		lockTimeout: cfg.LockTimeout,
		logger:      cfg.Logger.With("component", "ledger"),
		now:         cfg.Now,
	}
}

// Now returns the ledger clock.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// WithPortfolio runs fn with exclusive access to userID's portfolio.
// fn returning an error rolls back every change made through the Tx.
func (l *Ledger) WithPortfolio(ctx context.Context, userID string, fn func(tx *Tx) error) error {
	err := l.store.WithPortfolioLock(ctx, userID, l.lockTimeout, func(raw interfaces.LedgerTx) error {
		return fn(&Tx{
			raw:       raw,
			userID:    userID,
			portfolio: raw.Portfolio(),
			ledger:    l,
		})
	})
	if errors.Is(err, models.ErrLedgerInvariantViolation) {
		l.logger.Error("ledger transaction aborted", "user_id", userID, "error", err, "alert", true)
	}
	return err
}

// OpenPortfolio creates a portfolio funded with initialCash. The opening balance is
// recorded as an audit entry so the trail replays to the current balance.
func (l *Ledger) OpenPortfolio(ctx context.Context, userID string, initialCash decimal.Decimal) (models.Portfolio, error) {
	if userID == "" {
		return models.Portfolio{}, &models.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if initialCash.IsNegative() {
		return models.Portfolio{}, &models.ValidationError{Field: "cash_balance", Reason: "must not be negative"}
	}

	now := l.now()
	portfolio := models.Portfolio{
		ID:           uuid.New().String(),
		UserID:       userID,
		CashBalance:  initialCash,
		ReservedCash: decimal.Zero,
		Holdings:     map[string]decimal.Decimal{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	opening := models.AuditEntry{
		ID:         uuid.New().String(),
		UserID:     userID,
		Action:     models.AuditActionPortfolioOpen,
		Resource:   "portfolio",
		ResourceID: portfolio.ID,
		Status:     "success",
		Details: map[string]any{
			models.AuditDetailCashDelta: initialCash.String(),
		},
		CreatedAt: now,
	}
	if err := l.store.CreatePortfolio(ctx, portfolio, opening); err != nil {
		return models.Portfolio{}, err
	}
	l.logger.Info("portfolio opened", "user_id", userID, "cash_balance", initialCash.String())
	return portfolio, nil
}

func (l *Ledger) GetPortfolio(ctx context.Context, userID string) (models.Portfolio, error) {
	return l.store.GetPortfolio(ctx, userID)
}

// QueryAudit exposes the audit log to compliance consumers.
func (l *Ledger) QueryAudit(ctx context.Context, query models.AuditQuery) (models.AuditPage, error) {
	return l.audit.QueryAudit(ctx, query)
}

// Tx is a locked, transactional handle on one portfolio.
type Tx struct {
	raw       interfaces.LedgerTx
	userID    string
	portfolio models.Portfolio
	ledger    *Ledger
}

// Portfolio returns a copy of the portfolio as seen by this transaction.
func (t *Tx) Portfolio() models.Portfolio {
	return t.portfolio.Clone()
}

func (t *Tx) AvailableCash() decimal.Decimal {
	return t.portfolio.AvailableCash()
}

// Now returns the ledger clock.
func (t *Tx) Now() time.Time {
	return t.ledger.now()
}

// ApplyFill executes order in full at fillPrice: it moves cash and holdings and writes one
// order.fill audit entry. It refuses any result that breaks a balance invariant.
func (t *Tx) ApplyFill(ctx context.Context, order models.Order, fillPrice decimal.Decimal) error {
	if order.UserID != t.userID {
		return fmt.Errorf("%w: order %s belongs to another portfolio", models.ErrLedgerInvariantViolation, order.ID)
	}
	if !order.Amount.IsPositive() || !fillPrice.IsPositive() {
		return fmt.Errorf("%w: fill of %s at %s", models.ErrLedgerInvariantViolation, order.Amount, fillPrice)
	}
	base, _, ok := models.SplitPair(order.TradingPair)
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownTradingPair, order.TradingPair)
	}

	next := t.portfolio.Clone()
	notional := order.Notional(fillPrice)
	var cashDelta, assetDelta decimal.Decimal
	switch order.Side {
	case models.SideBuy:
		cashDelta = notional.Neg()
		assetDelta = order.Amount
	case models.SideSell:
		cashDelta = notional
		assetDelta = order.Amount.Neg()
	default:
		return fmt.Errorf("%w: unknown side %q", models.ErrLedgerInvariantViolation, order.Side)
	}
	next.CashBalance = next.CashBalance.Add(cashDelta)
	next.Holdings[base] = next.Holding(base).Add(assetDelta)

	if err := t.save(ctx, next); err != nil {
		return err
	}
	return t.Audit(ctx, models.AuditEntry{
		Action:     models.AuditActionFill,
		Resource:   "order",
		ResourceID: order.ID,
		Status:     "success",
		Details: map[string]any{
			models.AuditDetailTradingPair: order.TradingPair,
			models.AuditDetailSide:        string(order.Side),
			models.AuditDetailAmount:      order.Amount.String(),
			models.AuditDetailFillPrice:   fillPrice.String(),
			models.AuditDetailCashDelta:   cashDelta.String(),
			models.AuditDetailAsset:       base,
			models.AuditDetailAssetDelta:  assetDelta.String(),
		},
	})
}

// Reserve holds amount of available cash for a resting order.
func (t *Tx) Reserve(ctx context.Context, order models.Order, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return nil
	}
	next := t.portfolio.Clone()
	next.ReservedCash = next.ReservedCash.Add(amount)
	if err := t.save(ctx, next); err != nil {
		return err
	}
	return t.Audit(ctx, models.AuditEntry{
		Action:     models.AuditActionReserve,
		Resource:   "order",
		ResourceID: order.ID,
		Status:     "success",
		Details: map[string]any{
			models.AuditDetailReservedDelta: amount.String(),
		},
	})
}

// Release returns the cash held for order. Callers clear order.ReservedAmount afterwards.
func (t *Tx) Release(ctx context.Context, order models.Order) error {
	if !order.ReservedAmount.IsPositive() {
		return nil
	}
	next := t.portfolio.Clone()
	next.ReservedCash = next.ReservedCash.Sub(order.ReservedAmount)
	if err := t.save(ctx, next); err != nil {
		return err
	}
	return t.Audit(ctx, models.AuditEntry{
		Action:     models.AuditActionRelease,
		Resource:   "order",
		ResourceID: order.ID,
		Status:     "success",
		Details: map[string]any{
			models.AuditDetailReservedDelta: order.ReservedAmount.Neg().String(),
		},
	})
}

// Audit appends entry, filling in identity and timestamp.
func (t *Tx) Audit(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.UserID = t.userID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.ledger.now()
	}
	return t.raw.AppendAudit(ctx, entry)
}

// InsertOrder stores a new order. Only entry states are accepted.
func (t *Tx) InsertOrder(ctx context.Context, order models.Order) error {
	if order.UserID != t.userID {
		return fmt.Errorf("%w: order for %s inserted under %s", models.ErrLedgerInvariantViolation, order.UserID, t.userID)
	}
	switch order.Status {
	case models.OrderStatusPending, models.OrderStatusCompleted, models.OrderStatusRejected:
	default:
		return fmt.Errorf("%w: cannot create order in %s", models.ErrInvalidTransition, order.Status)
	}
	return t.raw.InsertOrder(ctx, order)
}

// GetOrder loads an order owned by this portfolio. Other users' orders are reported missing.
func (t *Tx) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	order, err := t.raw.GetOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.UserID != t.userID {
		return models.Order{}, models.ErrOrderNotFound
	}
	return order, nil
}

// Transition moves order to status `to` with a compare-and-set on its current status.
// On success order is updated in place.
func (t *Tx) Transition(ctx context.Context, order *models.Order, to models.OrderStatus) error {
	from := order.Status
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	next := *order
	next.Status = to
	next.UpdatedAt = t.ledger.now()
	if err := t.raw.CompareAndSetOrder(ctx, next, from); err != nil {
		return err
	}
	*order = next
	return nil
}

func (t *Tx) save(ctx context.Context, next models.Portfolio) error {
	if err := checkInvariants(next); err != nil {
		return err
	}
	next.UpdatedAt = t.ledger.now()
	if err := t.raw.SavePortfolio(ctx, next); err != nil {
		return err
	}
	t.portfolio = next
	return nil
}

func checkInvariants(p models.Portfolio) error {
	if p.CashBalance.IsNegative() {
		return fmt.Errorf("%w: cash balance would be %s", models.ErrLedgerInvariantViolation, p.CashBalance)
	}
	if p.ReservedCash.IsNegative() {
		return fmt.Errorf("%w: reserved cash would be %s", models.ErrLedgerInvariantViolation, p.ReservedCash)
	}
	if p.ReservedCash.GreaterThan(p.CashBalance) {
		return fmt.Errorf("%w: reserved cash %s exceeds balance %s", models.ErrLedgerInvariantViolation, p.ReservedCash, p.CashBalance)
	}
	for symbol, amount := range p.Holdings {
		if amount.IsNegative() {
			return fmt.Errorf("%w: %s holding would be %s", models.ErrLedgerInvariantViolation, symbol, amount)
		}
	}
	return nil
}
