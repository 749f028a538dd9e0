package memory

import (
	"context"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

// memoryTx stages every write until the surrounding WithPortfolioLock commits.
type memoryTx struct {
	store       *MemoryLedgerStore
	userID      string
	portfolio   models.Portfolio
	dirty       bool
	orders      map[string]models.Order // staged inserts and updates
	newOrderIDs []string
	entries     []models.AuditEntry
}

func (tx *memoryTx) Portfolio() models.Portfolio {
	return tx.portfolio.Clone()
}

func (tx *memoryTx) SavePortfolio(ctx context.Context, portfolio models.Portfolio) error {
	tx.portfolio = portfolio.Clone()
	tx.dirty = true
	return nil
}

func (tx *memoryTx) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	tx.entries = append(tx.entries, entry)
	return nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order models.Order) error {
	if _, err := tx.GetOrder(ctx, order.ID); err == nil {
		return models.ErrOrderStatusConflict
	}
	tx.orders[order.ID] = order
	tx.newOrderIDs = append(tx.newOrderIDs, order.ID)
	return nil
}

func (tx *memoryTx) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	if order, staged := tx.orders[orderID]; staged {
		return order, nil
	}
	return tx.store.GetOrder(ctx, orderID)
}

func (tx *memoryTx) CompareAndSetOrder(ctx context.Context, order models.Order, expected models.OrderStatus) error {
	current, err := tx.GetOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if current.UserID != tx.userID {
		return models.ErrOrderNotFound
	}
	if current.Status != expected {
		return models.ErrOrderStatusConflict
	}
	tx.orders[order.ID] = order
	return nil
}

var _ interfaces.LedgerTx = (*memoryTx)(nil)
