package memory

import (
	"context" // standard Go package for request-scoped context (timeouts, cancellation)
	"sort"
	"sync" // standard Go package for concurrency primitives like Mutex
	"time"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

const defaultPageSize = 50

// MemoryLedgerStore is an in-memory implementation of the ledger, order and audit ports.
// Portfolio access is serialized by a keyed lock table; the data maps are guarded by mu
// and only touched for short reads or a transaction's final commit.
type MemoryLedgerStore struct {
	mu         sync.RWMutex                // protects the maps and slices below
	portfolios map[string]models.Portfolio // keyed by user id
	orders     map[string]models.Order     // keyed by order id
	orderIDs   []string                    // insertion order, used for listings
	entries    []models.AuditEntry         // append-only audit log
	locks      *lockTable                  // one lock per portfolio
}

// NewMemoryLedgerStore creates and returns a new MemoryLedgerStore instance
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		portfolios: make(map[string]models.Portfolio),
		orders:     make(map[string]models.Order),
		entries:    make([]models.AuditEntry, 0),
		locks:      newLockTable(),
	}
}

// WithPortfolioLock takes the portfolio's lock and runs fn against a staged copy.
// Staged writes are applied in one step only when fn succeeds.
func (m *MemoryLedgerStore) WithPortfolioLock(ctx context.Context, userID string, timeout time.Duration, fn func(tx interfaces.LedgerTx) error) error {
	release, err := m.locks.acquire(ctx, userID, timeout)
	if err != nil {
		return err
	}
	defer release() // runs even if fn panics, staged writes are simply dropped

	m.mu.RLock()
	portfolio, exists := m.portfolios[userID]
	m.mu.RUnlock()
	if !exists {
		return models.ErrPortfolioNotFound
	}

	tx := &memoryTx{
		store:     m,
		userID:    userID,
		portfolio: portfolio.Clone(),
		orders:    make(map[string]models.Order),
	}
	if err := fn(tx); err != nil {
		return err // nothing was written to the store, rollback is free
	}

	m.commit(tx)
	return nil
}

func (m *MemoryLedgerStore) commit(tx *memoryTx) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.dirty {
		m.portfolios[tx.userID] = tx.portfolio.Clone()
	}
	m.orderIDs = append(m.orderIDs, tx.newOrderIDs...)
	for id, order := range tx.orders {
		m.orders[id] = order
	}
	m.entries = append(m.entries, tx.entries...)
}

// CreatePortfolio stores a new portfolio together with its opening audit entry.
func (m *MemoryLedgerStore) CreatePortfolio(ctx context.Context, portfolio models.Portfolio, opening models.AuditEntry) error {
	m.mu.Lock()         // lock the mutex to prevent concurrent writes
	defer m.mu.Unlock() // unlock automatically when function exits (even if error occurs)

	if _, exists := m.portfolios[portfolio.UserID]; exists {
		return models.ErrPortfolioExists
	}
	m.portfolios[portfolio.UserID] = portfolio.Clone()
	m.entries = append(m.entries, opening)
	return nil
}

func (m *MemoryLedgerStore) GetPortfolio(ctx context.Context, userID string) (models.Portfolio, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	portfolio, exists := m.portfolios[userID]
	if !exists {
		return models.Portfolio{}, models.ErrPortfolioNotFound
	}
	return portfolio.Clone(), nil // copy so callers can't modify internal state
}

func (m *MemoryLedgerStore) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, exists := m.orders[orderID]
	if !exists {
		return models.Order{}, models.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns userID's orders, newest first.
func (m *MemoryLedgerStore) ListOrders(ctx context.Context, userID string, filter models.OrderFilter) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.Order
	for i := len(m.orderIDs) - 1; i >= 0; i-- {
		order := m.orders[m.orderIDs[i]]
		if order.UserID != userID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.TradingPair != "" && order.TradingPair != filter.TradingPair {
			continue
		}
		matched = append(matched, order)
	}
	return paginate(matched, filter.Offset, filter.Limit), nil
}

func (m *MemoryLedgerStore) ActiveTradingPairs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, order := range m.orders {
		if order.Active() {
			seen[order.TradingPair] = struct{}{}
		}
	}
	pairs := make([]string, 0, len(seen))
	for pair := range seen {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)
	return pairs, nil
}

func (m *MemoryLedgerStore) ActiveOrdersByPair(ctx context.Context, pair string) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []models.Order
	for _, id := range m.orderIDs {
		order := m.orders[id]
		if order.TradingPair == pair && order.Active() {
			active = append(active, order)
		}
	}
	return active, nil
}

// QueryAudit returns a page of audit entries matching query, oldest first.
func (m *MemoryLedgerStore) QueryAudit(ctx context.Context, query models.AuditQuery) (models.AuditPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []models.AuditEntry
	for _, e := range m.entries {
		if query.UserID != "" && e.UserID != query.UserID {
			continue
		}
		if query.Action != "" && e.Action != query.Action {
			continue
		}
		if !query.From.IsZero() && e.CreatedAt.Before(query.From) {
			continue
		}
		if !query.To.IsZero() && !e.CreatedAt.Before(query.To) {
			continue
		}
		matched = append(matched, e)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	page := paginate(matched, query.Offset, limit)
	next := 0
	if query.Offset+len(page) < len(matched) {
		next = query.Offset + len(page)
	}
	return models.AuditPage{Entries: page, NextOffset: next}, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	// create a new slice so external code can't modify internal state
	copied := make([]T, len(items))
	copy(copied, items)
	return copied
}

// Compile-time check: ensure MemoryLedgerStore implements the storage ports
var (
	_ interfaces.LedgerStore     = (*MemoryLedgerStore)(nil)
	_ interfaces.OrderRepository = (*MemoryLedgerStore)(nil)
	_ interfaces.AuditLog        = (*MemoryLedgerStore)(nil)
)
