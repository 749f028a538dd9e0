package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/ledger"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models/events"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/oracle"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type harness struct {
	store   *memory.MemoryLedgerStore
	ledger  *ledger.Ledger
	oracle  *oracle.StaticOracle
	service *Service
	events  *recordingPublisher
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event.(events.OrderEvent))
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixedLimiter struct{ allow bool }

func (l fixedLimiter) Allow(ctx context.Context, key string) (bool, error) { return l.allow, nil }

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, errors.New("redis down")
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	store := memory.NewMemoryLedgerStore()
	return newHarnessWithStore(t, store, store, opts...)
}

func newHarnessWithStore(t *testing.T, ls interfaces.LedgerStore, store *memory.MemoryLedgerStore, opts ...Option) *harness {
	t.Helper()
	l := ledger.NewLedger(ls, store, ledger.Config{LockTimeout: 2 * time.Second})
	o := oracle.NewStaticOracle(map[string]decimal.Decimal{
		"BTC/USD": d("50000"),
		"ETH/USD": d("3000"),
	})
	pub := &recordingPublisher{}
	opts = append([]Option{WithPublisher(pub)}, opts...)
	svc, err := NewService(Config{TradingPairs: []string{"BTC/USD", "ETH/USD"}}, l, store, o, opts...)
	require.NoError(t, err)
	return &harness{store: store, ledger: l, oracle: o, service: svc, events: pub}
}

func (h *harness) open(t *testing.T, userID, cash string) {
	t.Helper()
	_, err := h.service.OpenPortfolio(context.Background(), userID, d(cash))
	require.NoError(t, err)
}

func (h *harness) portfolio(t *testing.T, userID string) models.Portfolio {
	t.Helper()
	p, err := h.service.GetPortfolio(context.Background(), userID)
	require.NoError(t, err)
	return p
}

// assertConsistent checks the balance invariants and that the audit trail replays to
// the stored portfolio.
func (h *harness) assertConsistent(t *testing.T, userID string) {
	t.Helper()
	p := h.portfolio(t, userID)
	assert.False(t, p.CashBalance.IsNegative(), "cash %s", p.CashBalance)
	assert.False(t, p.ReservedCash.IsNegative(), "reserved %s", p.ReservedCash)
	assert.True(t, p.ReservedCash.LessThanOrEqual(p.CashBalance), "reserved %s > cash %s", p.ReservedCash, p.CashBalance)
	for symbol, amount := range p.Holdings {
		assert.False(t, amount.IsNegative(), "%s holding %s", symbol, amount)
	}

	page, err := h.ledger.QueryAudit(context.Background(), models.AuditQuery{UserID: userID, Limit: 100000})
	require.NoError(t, err)
	rebuilt, err := ledger.Reconstruct(page.Entries)
	require.NoError(t, err)
	assert.True(t, rebuilt.Matches(p), "audit replay %+v does not match portfolio %+v", rebuilt, p)
}

func marketBuy(userID, amount string) CreateOrderRequest {
	return CreateOrderRequest{
		UserID:      userID,
		TradingPair: "BTC/USD",
		Type:        models.OrderTypeMarket,
		Side:        models.SideBuy,
		Amount:      d(amount),
	}
}

func TestNewService_Validation(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	l := ledger.NewLedger(store, store, ledger.Config{})
	o := oracle.NewStaticOracle(nil)

	_, err := NewService(Config{}, l, store, o)
	assert.Error(t, err, "trading pairs required")
	_, err = NewService(Config{TradingPairs: []string{"BTCUSD"}}, l, store, o)
	assert.ErrorIs(t, err, models.ErrUnknownTradingPair)
	_, err = NewService(Config{TradingPairs: []string{"BTC/USD"}}, nil, store, o)
	assert.Error(t, err)
	_, err = NewService(Config{TradingPairs: []string{"BTC/USD"}}, l, nil, o)
	assert.Error(t, err)
	_, err = NewService(Config{TradingPairs: []string{"BTC/USD"}}, l, store, nil)
	assert.Error(t, err)
}

func TestCreateOrder_MarketBuyEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "1000")
	ctx := context.Background()

	order, err := h.service.CreateOrder(ctx, marketBuy("alice", "0.01"))
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, models.TimeInForceGTC, order.TimeInForce)
	require.NotNil(t, order.FillPrice)
	assert.True(t, order.FillPrice.Equal(d("50000")))

	p := h.portfolio(t, "alice")
	assert.True(t, p.CashBalance.Equal(d("500")))
	assert.True(t, p.Holding("BTC").Equal(d("0.01")))

	fills, err := h.ledger.QueryAudit(ctx, models.AuditQuery{UserID: "alice", Action: models.AuditActionFill})
	require.NoError(t, err)
	require.Len(t, fills.Entries, 1)
	assert.Equal(t, order.ID, fills.Entries[0].ResourceID)

	stored, err := h.service.GetOrder(ctx, "alice", order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, stored.Status)

	assert.Equal(t, []string{events.OrderCompleted}, h.events.types())
	h.assertConsistent(t, "alice")
}

func TestCreateOrder_MarketSell(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "1000")
	ctx := context.Background()

	_, err := h.service.CreateOrder(ctx, marketBuy("alice", "0.01"))
	require.NoError(t, err)
	h.oracle.SetPrice("BTC/USD", d("60000"))

	sell := marketBuy("alice", "0.01")
	sell.Side = models.SideSell
	order, err := h.service.CreateOrder(ctx, sell)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)

	p := h.portfolio(t, "alice")
	assert.True(t, p.CashBalance.Equal(d("1100")))
	assert.True(t, p.Holding("BTC").IsZero())
	h.assertConsistent(t, "alice")
}

func TestCreateOrder_Validation(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "1000")

	tests := []struct {
		name  string
		req   CreateOrderRequest
		field string
	}{
		{"missing user", CreateOrderRequest{TradingPair: "BTC/USD", Type: models.OrderTypeMarket, Side: models.SideBuy, Amount: d("1")}, "user_id"},
		{"unknown pair", CreateOrderRequest{UserID: "alice", TradingPair: "DOGE/USD", Type: models.OrderTypeMarket, Side: models.SideBuy, Amount: d("1")}, "trading_pair"},
		{"unknown type", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: "iceberg", Side: models.SideBuy, Amount: d("1")}, "order_type"},
		{"unknown side", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeMarket, Side: "hold", Amount: d("1")}, "side"},
		{"zero amount", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeMarket, Side: models.SideBuy, Amount: d("0")}, "amount"},
		{"negative amount", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeMarket, Side: models.SideBuy, Amount: d("-1")}, "amount"},
		{"bad time in force", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeMarket, Side: models.SideBuy, Amount: d("1"), TimeInForce: "DAY"}, "time_in_force"},
		{"limit without price", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeLimit, Side: models.SideBuy, Amount: d("1")}, "limit_price"},
		{"limit with zero price", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeLimit, Side: models.SideBuy, Amount: d("1"), LimitPrice: dp("0")}, "limit_price"},
		{"market with limit price", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeMarket, Side: models.SideBuy, Amount: d("1"), LimitPrice: dp("1")}, "limit_price"},
		{"stop loss without stop", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeStopLoss, Side: models.SideSell, Amount: d("1")}, "stop_price"},
		{"stop limit without limit", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeStopLimit, Side: models.SideSell, Amount: d("1"), StopPrice: dp("1")}, "limit_price"},
		{"limit with stop price", CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeLimit, Side: models.SideBuy, Amount: d("1"), LimitPrice: dp("1"), StopPrice: dp("1")}, "stop_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.service.CreateOrder(context.Background(), tt.req)
			require.ErrorIs(t, err, models.ErrValidation)
			var ve *models.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	list, err := h.service.ListOrders(context.Background(), "alice", models.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "validation has no side effects")
	assert.Empty(t, h.events.types())
}

func TestCreateOrder_InsufficientFunds(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "100")
	ctx := context.Background()

	_, err := h.service.CreateOrder(ctx, marketBuy("alice", "0.01"))
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	sell := marketBuy("alice", "1")
	sell.Side = models.SideSell
	_, err = h.service.CreateOrder(ctx, sell)
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	limitBuy := CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeLimit, Side: models.SideBuy, Amount: d("1"), LimitPrice: dp("101")}
	_, err = h.service.CreateOrder(ctx, limitBuy)
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	stopBuy := CreateOrderRequest{UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeStopLoss, Side: models.SideBuy, Amount: d("1"), StopPrice: dp("101")}
	_, err = h.service.CreateOrder(ctx, stopBuy)
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	list, err := h.service.ListOrders(ctx, "alice", models.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.True(t, h.portfolio(t, "alice").CashBalance.Equal(d("100")))
	h.assertConsistent(t, "alice")
}

func TestCreateOrder_UnknownPortfolio(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.CreateOrder(context.Background(), marketBuy("ghost", "1"))
	assert.ErrorIs(t, err, models.ErrPortfolioNotFound)
}

func TestCreateOrder_PriceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "1000")
	h.oracle.Remove("BTC/USD")

	_, err := h.service.CreateOrder(context.Background(), marketBuy("alice", "0.01"))
	require.ErrorIs(t, err, models.ErrPriceUnavailable)

	// resting orders do not need a quote
	order, err := h.service.CreateOrder(context.Background(), CreateOrderRequest{
		UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeLimit, Side: models.SideBuy,
		Amount: d("0.01"), LimitPrice: dp("40000"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestCreateOrder_RateLimited(t *testing.T) {
	h := newHarness(t, WithRateLimiter(fixedLimiter{allow: false}))
	h.open(t, "alice", "1000")

	// the limiter is consulted before validation
	_, err := h.service.CreateOrder(context.Background(), CreateOrderRequest{UserID: "alice"})
	require.ErrorIs(t, err, models.ErrRateLimited)
	assert.True(t, h.portfolio(t, "alice").CashBalance.Equal(d("1000")))
}

type countingLimiter struct {
	mu    sync.Mutex
	calls int
	limit int
}

func (l *countingLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.calls <= l.limit, nil
}

func TestPlaceOrder_DoesNotConsumeRateLimit(t *testing.T) {
	limiter := &countingLimiter{limit: 1}
	h := newHarness(t, WithRateLimiter(limiter))
	h.open(t, "alice", "1000")
	ctx := context.Background()

	require.NoError(t, h.service.CheckRateLimit(ctx, "alice"))
	for i := 0; i < 3; i++ {
		_, err := h.service.PlaceOrder(ctx, marketBuy("alice", "0.001"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, limiter.calls, "placement attempts share the request's slot")

	_, err := h.service.CreateOrder(ctx, marketBuy("alice", "0.001"))
	require.ErrorIs(t, err, models.ErrRateLimited)
	assert.Equal(t, 2, limiter.calls)
}

func TestCreateOrder_LimiterFailureFailsOpen(t *testing.T) {
	h := newHarness(t, WithRateLimiter(brokenLimiter{}))
	h.open(t, "alice", "1000")

	_, err := h.service.CreateOrder(context.Background(), marketBuy("alice", "0.01"))
	assert.NoError(t, err)
}

func TestCreateOrder_ImmediateOrders(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "1000")
	ctx := context.Background()

	nonMarketable := CreateOrderRequest{
		UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeLimit, Side: models.SideBuy,
		Amount: d("0.01"), LimitPrice: dp("49000"), TimeInForce: models.TimeInForceIOC,
	}
	order, err := h.service.CreateOrder(ctx, nonMarketable)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRejected, order.Status)
	assert.Equal(t, ReasonNotMarketable, order.RejectReason)
	assert.True(t, h.portfolio(t, "alice").CashBalance.Equal(d("1000")))

	marketable := nonMarketable
	marketable.LimitPrice = dp("51000")
	marketable.TimeInForce = models.TimeInForceFOK
	order, err = h.service.CreateOrder(ctx, marketable)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.True(t, order.FillPrice.Equal(d("51000")), "limit orders fill at their limit price")
	assert.True(t, h.portfolio(t, "alice").CashBalance.Equal(d("490")))

	assert.Equal(t, []string{events.OrderRejected, events.OrderCompleted}, h.events.types())
	h.assertConsistent(t, "alice")
}

func TestCreateOrder_RestingBuyReservesCash(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "1000")
	ctx := context.Background()

	order, err := h.service.CreateOrder(ctx, CreateOrderRequest{
		UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeLimit, Side: models.SideBuy,
		Amount: d("0.015"), LimitPrice: dp("40000"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.True(t, order.ReservedAmount.Equal(d("600")))

	p := h.portfolio(t, "alice")
	assert.True(t, p.CashBalance.Equal(d("1000")))
	assert.True(t, p.ReservedCash.Equal(d("600")))

	// reserved cash cannot be spent twice
	_, err = h.service.CreateOrder(ctx, marketBuy("alice", "0.01"))
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	cancelled, err := h.service.CancelOrder(ctx, order.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.ReservedAmount.IsZero())
	assert.True(t, h.portfolio(t, "alice").ReservedCash.IsZero())

	_, err = h.service.CreateOrder(ctx, marketBuy("alice", "0.01"))
	require.NoError(t, err)

	assert.Equal(t, []string{events.OrderCreated, events.OrderCancelled, events.OrderCompleted}, h.events.types())
	h.assertConsistent(t, "alice")
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "1000")
	h.open(t, "bob", "1000")
	ctx := context.Background()

	resting, err := h.service.CreateOrder(ctx, CreateOrderRequest{
		UserID: "alice", TradingPair: "BTC/USD", Type: models.OrderTypeLimit, Side: models.SideBuy,
		Amount: d("0.01"), LimitPrice: dp("40000"),
	})
	require.NoError(t, err)

	_, err = h.service.CancelOrder(ctx, resting.ID, "bob")
	assert.ErrorIs(t, err, models.ErrOrderNotFound, "other users' orders are invisible")
	_, err = h.service.CancelOrder(ctx, "missing", "alice")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
	_, err = h.service.CancelOrder(ctx, resting.ID, "ghost")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	_, err = h.service.CancelOrder(ctx, resting.ID, "alice")
	require.NoError(t, err)

	_, err = h.service.CancelOrder(ctx, resting.ID, "alice")
	require.ErrorIs(t, err, models.ErrOrderNotCancellable)
	var nc *models.NotCancellableError
	require.True(t, errors.As(err, &nc))
	assert.Equal(t, models.OrderStatusCancelled, nc.Status)

	filled, err := h.service.CreateOrder(ctx, marketBuy("alice", "0.001"))
	require.NoError(t, err)
	_, err = h.service.CancelOrder(ctx, filled.ID, "alice")
	assert.ErrorIs(t, err, models.ErrOrderNotCancellable)

	cancels, err := h.ledger.QueryAudit(ctx, models.AuditQuery{Action: models.AuditActionCancel})
	require.NoError(t, err)
	assert.Len(t, cancels.Entries, 1)
	h.assertConsistent(t, "alice")
}

func TestConcurrentContention(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "500")
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 2)
	start := make(chan struct{})
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = h.service.CreateOrder(ctx, marketBuy("alice", "0.01"))
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded, rejected := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrInsufficientFunds):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	p := h.portfolio(t, "alice")
	assert.True(t, p.CashBalance.IsZero())
	assert.True(t, p.Holding("BTC").Equal(d("0.01")))
	h.assertConsistent(t, "alice")
}

func TestConcurrentOrdersAcrossPortfolios(t *testing.T) {
	h := newHarness(t)
	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		h.open(t, u, "20000")
	}

	var wg sync.WaitGroup
	for _, u := range users {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				_, err := h.service.CreateOrder(context.Background(), marketBuy(u, "0.01"))
				assert.NoError(t, err)
			}(u)
		}
	}
	wg.Wait()

	for _, u := range users {
		p := h.portfolio(t, u)
		assert.True(t, p.CashBalance.Equal(d("7500")), "user %s cash %s", u, p.CashBalance)
		assert.True(t, p.Holding("BTC").Equal(d("0.25")))
		h.assertConsistent(t, u)
	}
}

// faultyStore fails every order insert, after the ledger has already been mutated.
type faultyStore struct {
	*memory.MemoryLedgerStore
}

type faultyTx struct {
	interfaces.LedgerTx
}

func (faultyTx) InsertOrder(ctx context.Context, order models.Order) error {
	return errors.New("disk full")
}

func (s faultyStore) WithPortfolioLock(ctx context.Context, userID string, timeout time.Duration, fn func(tx interfaces.LedgerTx) error) error {
	return s.MemoryLedgerStore.WithPortfolioLock(ctx, userID, timeout, func(tx interfaces.LedgerTx) error {
		return fn(faultyTx{tx})
	})
}

func TestCreateOrder_AtomicOnStorageFailure(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	h := newHarnessWithStore(t, faultyStore{store}, store)
	h.open(t, "alice", "1000")

	_, err := h.service.CreateOrder(context.Background(), marketBuy("alice", "0.01"))
	require.ErrorContains(t, err, "disk full")

	p := h.portfolio(t, "alice")
	assert.True(t, p.CashBalance.Equal(d("1000")))
	assert.True(t, p.Holding("BTC").IsZero())

	page, err := h.ledger.QueryAudit(context.Background(), models.AuditQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 1, "only the opening entry")
	assert.Empty(t, h.events.types(), "nothing is published for a rolled back order")
}

func TestListOrders_Filters(t *testing.T) {
	h := newHarness(t)
	h.open(t, "alice", "100000")
	ctx := context.Background()

	_, err := h.service.CreateOrder(ctx, marketBuy("alice", "0.1"))
	require.NoError(t, err)
	eth := marketBuy("alice", "1")
	eth.TradingPair = "ETH/USD"
	_, err = h.service.CreateOrder(ctx, eth)
	require.NoError(t, err)

	list, err := h.service.ListOrders(ctx, "alice", models.OrderFilter{TradingPair: "ETH/USD"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ETH/USD", list[0].TradingPair)

	_, err = h.service.ListOrders(ctx, "alice", models.OrderFilter{Status: "open"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = h.service.GetOrder(ctx, "bob", list[0].ID)
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestQueryAudit_Bounds(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	_, err := h.service.QueryAudit(context.Background(), models.AuditQuery{From: now, To: now.Add(-time.Hour)})
	assert.ErrorIs(t, err, models.ErrValidation)
}
