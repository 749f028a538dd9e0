package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedPortfolio(t *testing.T, m *MemoryLedgerStore, userID string) {
	t.Helper()
	err := m.CreatePortfolio(context.Background(), models.Portfolio{
		ID:          "p-" + userID,
		UserID:      userID,
		CashBalance: decimal.NewFromInt(1000),
		Holdings:    map[string]decimal.Decimal{},
	}, models.AuditEntry{ID: "open-" + userID, UserID: userID, Action: models.AuditActionPortfolioOpen, CreatedAt: t0})
	require.NoError(t, err)
}

func testOrder(id, userID, pair string, status models.OrderStatus) models.Order {
	return models.Order{
		ID:          id,
		UserID:      userID,
		TradingPair: pair,
		Type:        models.OrderTypeLimit,
		Side:        models.SideBuy,
		Amount:      decimal.NewFromInt(1),
		Status:      status,
	}
}

func insert(t *testing.T, m *MemoryLedgerStore, orders ...models.Order) {
	t.Helper()
	for _, o := range orders {
		err := m.WithPortfolioLock(context.Background(), o.UserID, time.Second, func(tx interfaces.LedgerTx) error {
			return tx.InsertOrder(context.Background(), o)
		})
		require.NoError(t, err)
	}
}

func TestCreatePortfolio(t *testing.T) {
	m := NewMemoryLedgerStore()
	seedPortfolio(t, m, "alice")

	err := m.CreatePortfolio(context.Background(), models.Portfolio{UserID: "alice"}, models.AuditEntry{})
	assert.ErrorIs(t, err, models.ErrPortfolioExists)

	p, err := m.GetPortfolio(context.Background(), "alice")
	require.NoError(t, err)
	p.Holdings["BTC"] = decimal.NewFromInt(9)

	again, err := m.GetPortfolio(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, again.Holding("BTC").IsZero(), "callers get copies")

	_, err = m.GetPortfolio(context.Background(), "bob")
	assert.ErrorIs(t, err, models.ErrPortfolioNotFound)
}

func TestWithPortfolioLock_CommitsOnlyOnSuccess(t *testing.T) {
	m := NewMemoryLedgerStore()
	seedPortfolio(t, m, "alice")
	ctx := context.Background()

	err := m.WithPortfolioLock(ctx, "alice", time.Second, func(tx interfaces.LedgerTx) error {
		p := tx.Portfolio()
		p.CashBalance = decimal.NewFromInt(1)
		require.NoError(t, tx.SavePortfolio(ctx, p))
		require.NoError(t, tx.InsertOrder(ctx, testOrder("o-1", "alice", "BTC/USD", models.OrderStatusPending)))
		require.NoError(t, tx.AppendAudit(ctx, models.AuditEntry{ID: "a-1", UserID: "alice"}))
		// staged writes are visible inside the transaction
		assert.True(t, tx.Portfolio().CashBalance.Equal(decimal.NewFromInt(1)))
		_, err := tx.GetOrder(ctx, "o-1")
		assert.NoError(t, err)
		return errors.New("abort")
	})
	require.Error(t, err)

	p, _ := m.GetPortfolio(ctx, "alice")
	assert.True(t, p.CashBalance.Equal(decimal.NewFromInt(1000)))
	_, err = m.GetOrder(ctx, "o-1")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
	page, _ := m.QueryAudit(ctx, models.AuditQuery{UserID: "alice"})
	assert.Len(t, page.Entries, 1)

	insert(t, m, testOrder("o-1", "alice", "BTC/USD", models.OrderStatusPending))
	_, err = m.GetOrder(ctx, "o-1")
	assert.NoError(t, err)
}

func TestWithPortfolioLock_Timeout(t *testing.T) {
	m := NewMemoryLedgerStore()
	seedPortfolio(t, m, "alice")
	seedPortfolio(t, m, "bob")
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = m.WithPortfolioLock(ctx, "alice", time.Second, func(tx interfaces.LedgerTx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	err := m.WithPortfolioLock(ctx, "alice", 20*time.Millisecond, func(tx interfaces.LedgerTx) error { return nil })
	assert.ErrorIs(t, err, models.ErrConcurrencyTimeout)

	// other portfolios are unaffected
	err = m.WithPortfolioLock(ctx, "bob", 20*time.Millisecond, func(tx interfaces.LedgerTx) error { return nil })
	assert.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = m.WithPortfolioLock(cancelled, "alice", time.Second, func(tx interfaces.LedgerTx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithPortfolioLock_ReleasesOnPanic(t *testing.T) {
	m := NewMemoryLedgerStore()
	seedPortfolio(t, m, "alice")

	assert.Panics(t, func() {
		_ = m.WithPortfolioLock(context.Background(), "alice", time.Second, func(tx interfaces.LedgerTx) error {
			panic("boom")
		})
	})
	err := m.WithPortfolioLock(context.Background(), "alice", 20*time.Millisecond, func(tx interfaces.LedgerTx) error { return nil })
	assert.NoError(t, err)
}

func TestCompareAndSetOrder(t *testing.T) {
	m := NewMemoryLedgerStore()
	seedPortfolio(t, m, "alice")
	seedPortfolio(t, m, "bob")
	ctx := context.Background()
	insert(t, m, testOrder("o-1", "alice", "BTC/USD", models.OrderStatusPending))

	err := m.WithPortfolioLock(ctx, "alice", time.Second, func(tx interfaces.LedgerTx) error {
		o := testOrder("o-1", "alice", "BTC/USD", models.OrderStatusCancelled)
		return tx.CompareAndSetOrder(ctx, o, models.OrderStatusTriggered)
	})
	assert.ErrorIs(t, err, models.ErrOrderStatusConflict)

	err = m.WithPortfolioLock(ctx, "bob", time.Second, func(tx interfaces.LedgerTx) error {
		o := testOrder("o-1", "alice", "BTC/USD", models.OrderStatusCancelled)
		return tx.CompareAndSetOrder(ctx, o, models.OrderStatusPending)
	})
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	err = m.WithPortfolioLock(ctx, "alice", time.Second, func(tx interfaces.LedgerTx) error {
		o := testOrder("o-1", "alice", "BTC/USD", models.OrderStatusCancelled)
		return tx.CompareAndSetOrder(ctx, o, models.OrderStatusPending)
	})
	require.NoError(t, err)

	o, err := m.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)

	err = m.WithPortfolioLock(ctx, "alice", time.Second, func(tx interfaces.LedgerTx) error {
		return tx.InsertOrder(ctx, o)
	})
	assert.ErrorIs(t, err, models.ErrOrderStatusConflict, "ids are unique")
}

func TestListOrders(t *testing.T) {
	m := NewMemoryLedgerStore()
	seedPortfolio(t, m, "alice")
	seedPortfolio(t, m, "bob")
	insert(t, m,
		testOrder("o-1", "alice", "BTC/USD", models.OrderStatusPending),
		testOrder("o-2", "alice", "ETH/USD", models.OrderStatusCompleted),
		testOrder("o-3", "bob", "BTC/USD", models.OrderStatusPending),
		testOrder("o-4", "alice", "BTC/USD", models.OrderStatusRejected),
	)
	ctx := context.Background()

	all, err := m.ListOrders(ctx, "alice", models.OrderFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"o-4", "o-2", "o-1"}, ids(all))

	btc, err := m.ListOrders(ctx, "alice", models.OrderFilter{TradingPair: "BTC/USD"})
	require.NoError(t, err)
	assert.Equal(t, []string{"o-4", "o-1"}, ids(btc))

	pending, err := m.ListOrders(ctx, "alice", models.OrderFilter{Status: models.OrderStatusPending})
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1"}, ids(pending))

	page, err := m.ListOrders(ctx, "alice", models.OrderFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"o-2"}, ids(page))

	beyond, err := m.ListOrders(ctx, "alice", models.OrderFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestActiveOrders(t *testing.T) {
	m := NewMemoryLedgerStore()
	seedPortfolio(t, m, "alice")
	seedPortfolio(t, m, "bob")
	insert(t, m,
		testOrder("o-1", "alice", "ETH/USD", models.OrderStatusPending),
		testOrder("o-2", "bob", "BTC/USD", models.OrderStatusPending),
		testOrder("o-3", "alice", "SOL/USD", models.OrderStatusCompleted),
		testOrder("o-4", "alice", "BTC/USD", models.OrderStatusPending),
	)
	ctx := context.Background()

	pairs, err := m.ActiveTradingPairs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/USD", "ETH/USD"}, pairs)

	active, err := m.ActiveOrdersByPair(ctx, "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, []string{"o-2", "o-4"}, ids(active), "oldest first")
}

func TestQueryAudit(t *testing.T) {
	m := NewMemoryLedgerStore()
	seedPortfolio(t, m, "alice")
	seedPortfolio(t, m, "bob")
	ctx := context.Background()

	require.NoError(t, m.WithPortfolioLock(ctx, "alice", time.Second, func(tx interfaces.LedgerTx) error {
		for i := 1; i <= 5; i++ {
			if err := tx.AppendAudit(ctx, models.AuditEntry{
				ID:        fmt.Sprintf("fill-%d", i),
				UserID:    "alice",
				Action:    models.AuditActionFill,
				CreatedAt: t0.Add(time.Duration(i) * time.Minute),
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	page, err := m.QueryAudit(ctx, models.AuditQuery{UserID: "alice", Action: models.AuditActionFill, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"fill-1", "fill-2"}, entryIDs(page.Entries))
	assert.Equal(t, 2, page.NextOffset)

	page, err = m.QueryAudit(ctx, models.AuditQuery{UserID: "alice", Action: models.AuditActionFill, Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, []string{"fill-5"}, entryIDs(page.Entries))
	assert.Zero(t, page.NextOffset)

	page, err = m.QueryAudit(ctx, models.AuditQuery{From: t0.Add(2 * time.Minute), To: t0.Add(4 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{"fill-2", "fill-3"}, entryIDs(page.Entries))

	page, err = m.QueryAudit(ctx, models.AuditQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 7)
}

func ids(orders []models.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func entryIDs(entries []models.AuditEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}
