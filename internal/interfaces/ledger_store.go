package interfaces

import (
	"context"
	"time"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

// LedgerStore owns portfolios and gives out exclusive, transactional access to one at a time.
type LedgerStore interface {
	// WithPortfolioLock locks userID's portfolio, waiting at most timeout, and runs fn inside
	// one transaction. If fn returns an error nothing it wrote is persisted.
	WithPortfolioLock(ctx context.Context, userID string, timeout time.Duration, fn func(tx LedgerTx) error) error
	CreatePortfolio(ctx context.Context, portfolio models.Portfolio, opening models.AuditEntry) error
	GetPortfolio(ctx context.Context, userID string) (models.Portfolio, error)
}

// LedgerTx is the view of storage available while a portfolio lock is held.
type LedgerTx interface {
	// Portfolio returns the locked portfolio including saves made earlier in this transaction.
	Portfolio() models.Portfolio
	SavePortfolio(ctx context.Context, portfolio models.Portfolio) error
	AppendAudit(ctx context.Context, entry models.AuditEntry) error
	InsertOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, orderID string) (models.Order, error)
	// CompareAndSetOrder persists order only if the stored status still equals expected,
	// otherwise it returns models.ErrOrderStatusConflict.
	CompareAndSetOrder(ctx context.Context, order models.Order, expected models.OrderStatus) error
}
