// Package monitor watches resting orders and executes them when the market reaches their price.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"
	"time"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/orders"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/telemetry"
)

// Executor performs the locked re-evaluation and execution of one order.
type Executor interface {
	ProcessTrigger(ctx context.Context, orderID, userID string, quote models.PriceQuote) (models.Order, bool, error)
}

// Config holds monitor settings.
type Config struct {
	// Interval between ticks. Defaults to 2s.
	Interval time.Duration
	// PriceTimeout bounds each oracle call. Defaults to 1s.
	PriceTimeout time.Duration
	// Partitions and PartitionIndex split trading pairs across instances:
	// this instance owns pairs where fnv32a(pair) % Partitions == PartitionIndex.
	Partitions     int
	PartitionIndex int
	Logger         *slog.Logger
	Metrics        interfaces.MetricsRecorder
}

// ConfigDefaults returns the default monitor configuration.
func ConfigDefaults() Config {
	return Config{
		Interval:     2 * time.Second,
		PriceTimeout: time.Second,
		Partitions:   1,
	}
}

// TickResult summarizes one pass.
type TickResult struct {
	Pairs     int // pairs owned by this instance with active orders
	Skipped   int // pairs without a usable price
	Evaluated int
	Changed   int
	Failed    int
}

// Monitor polls the oracle and drives resting orders through the order service.
// It holds no order state between ticks, so a restart simply resumes from storage.
type Monitor struct {
	config   Config
	orders   interfaces.OrderRepository
	oracle   interfaces.PriceOracle
	executor Executor
	metrics  interfaces.MetricsRecorder
	logger   *slog.Logger
	running  atomic.Bool
}

// New creates a monitor.
func New(cfg Config, repo interfaces.OrderRepository, oracle interfaces.PriceOracle, executor Executor) (*Monitor, error) {
	if repo == nil {
		return nil, fmt.Errorf("order repository cannot be nil")
	}
	if oracle == nil {
		return nil, fmt.Errorf("price oracle cannot be nil")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}

	defaults := ConfigDefaults()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = defaults.PriceTimeout
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = defaults.Partitions
	}
	if cfg.PartitionIndex < 0 || cfg.PartitionIndex >= cfg.Partitions {
		return nil, fmt.Errorf("partition index %d out of range for %d partitions", cfg.PartitionIndex, cfg.Partitions)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.Nop()
	}

	return &Monitor{
		config:   cfg,
		orders:   repo,
		oracle:   oracle,
		executor: executor,
		metrics:  cfg.Metrics,
		logger: cfg.Logger.With(
			"component", "order-monitor",
			"partition", cfg.PartitionIndex,
			"partitions", cfg.Partitions,
		),
	}, nil
}

// Run ticks until ctx is cancelled. It returns ctx's error, or an error straight away if
// the monitor is already running.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("monitor already running")
	}
	defer m.running.Store(false)

	m.logger.Info("order monitor started", "interval", m.config.Interval)
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		m.Tick(ctx)
		select {
		case <-ctx.Done():
			m.logger.Info("order monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one pass over every owned trading pair.
func (m *Monitor) Tick(ctx context.Context) TickResult {
	start := time.Now()
	var result TickResult
	defer func() {
		m.metrics.RecordTickDuration(ctx, time.Since(start))
	}()

	pairs, err := m.orders.ActiveTradingPairs(ctx)
	if err != nil {
		m.logger.Error("failed to list active trading pairs", "error", err)
		result.Failed++
		return result
	}

	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		if !m.Owns(pair) {
			continue
		}
		result.Pairs++
		m.tickPair(ctx, pair, &result)
	}

	if result.Changed > 0 || result.Failed > 0 {
		m.logger.Info("monitor tick",
			"pairs", result.Pairs,
			"evaluated", result.Evaluated,
			"changed", result.Changed,
			"failed", result.Failed,
			"skipped", result.Skipped,
			"duration", time.Since(start))
	}
	return result
}

func (m *Monitor) tickPair(ctx context.Context, pair string, result *TickResult) {
	priceCtx, cancel := context.WithTimeout(ctx, m.config.PriceTimeout)
	quote, err := m.oracle.GetPrice(priceCtx, pair)
	cancel()
	if err != nil {
		m.metrics.RecordPriceUnavailable(ctx, pair)
		m.logger.Warn("price unavailable, skipping pair", "pair", pair, "error", err)
		result.Skipped++
		return
	}

	active, err := m.orders.ActiveOrdersByPair(ctx, pair)
	if err != nil {
		m.logger.Error("failed to load active orders", "pair", pair, "error", err)
		result.Failed++
		return
	}

	for _, order := range active {
		result.Evaluated++
		// cheap pre-check on the snapshot; the executor re-evaluates under the lock
		if orders.Evaluate(order, quote.Price).Action == orders.ActionHold {
			continue
		}

		updated, changed, err := m.executor.ProcessTrigger(ctx, order.ID, order.UserID, quote)
		switch {
		case err == nil && changed:
			result.Changed++
			m.logger.Debug("order executed", "order_id", order.ID, "pair", pair, "status", updated.Status)
		case err == nil:
		case errors.Is(err, models.ErrConcurrencyTimeout):
			// the portfolio is busy; the order stays active and is retried next tick
			m.logger.Warn("portfolio busy, will retry", "order_id", order.ID, "user_id", order.UserID)
			result.Failed++
		default:
			m.logger.Error("failed to process order", "order_id", order.ID, "user_id", order.UserID, "error", err)
			result.Failed++
		}
	}
}

// Owns reports whether pair belongs to this instance's partition.
func (m *Monitor) Owns(pair string) bool {
	return Partition(pair, m.config.Partitions) == m.config.PartitionIndex
}

// Partition returns the partition index of pair.
func Partition(pair string, partitions int) int {
	if partitions <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(pair))
	return int(h.Sum32() % uint32(partitions))
}
