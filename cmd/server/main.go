// Package main runs the order placement and portfolio ledger server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/api"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/config"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/events/kafka"
	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/ledger"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/monitor"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/oracle"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/orders"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/ratelimit"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/storage/postgres"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/telemetry"
)

// store is everything the server needs from a storage backend.
type store interface {
	interfaces.LedgerStore
	interfaces.OrderRepository
	interfaces.AuditLog
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("close failed", "error", err)
			}
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		closers = append(closers, db)
	}

	metrics, err := telemetry.NewMetrics("portfolio-order-ledger")
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	priceOracle, err := openOracle(cfg, logger)
	if err != nil {
		return err
	}
	if c, ok := priceOracle.(io.Closer); ok {
		closers = append(closers, c)
	}

	var wg sync.WaitGroup
	opts := []orders.Option{orders.WithMetrics(metrics)}

	switch cfg.RateLimitBackend {
	case config.BackendRedis:
		limiter, err := ratelimit.NewRedisSlidingWindow(
			ratelimit.Config{Limit: cfg.RateLimit, Window: cfg.RateWindow, Logger: logger},
			ratelimit.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		)
		if err != nil {
			return fmt.Errorf("creating rate limiter: %w", err)
		}
		closers = append(closers, limiter)
		opts = append(opts, orders.WithRateLimiter(limiter))
	default:
		limiter := ratelimit.NewSlidingWindow(ratelimit.Config{Limit: cfg.RateLimit, Window: cfg.RateWindow, Logger: logger})
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Run(ctx, time.Minute)
		}()
		opts = append(opts, orders.WithRateLimiter(limiter))
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := kafka.NewPublisher(kafka.Config{Brokers: cfg.KafkaBrokers, Logger: logger})
		if err != nil {
			return fmt.Errorf("creating kafka publisher: %w", err)
		}
		closers = append(closers, publisher)
		opts = append(opts, orders.WithPublisher(publisher))
	}

	l := ledger.NewLedger(st, st, ledger.Config{LockTimeout: cfg.LockTimeout, Logger: logger})
	service, err := orders.NewService(orders.Config{
		TradingPairs: cfg.TradingPairs,
		EventTopic:   cfg.KafkaTopic,
		Logger:       logger,
	}, l, st, priceOracle, opts...)
	if err != nil {
		return fmt.Errorf("creating order service: %w", err)
	}

	if err := seed(ctx, service, cfg, logger); err != nil {
		return err
	}

	mon, err := monitor.New(monitor.Config{
		Interval:       cfg.MonitorInterval,
		PriceTimeout:   cfg.OracleTimeout,
		Partitions:     cfg.MonitorPartitions,
		PartitionIndex: cfg.MonitorPartitionIndex,
		Logger:         logger,
		Metrics:        metrics,
	}, st, priceOracle, service)
	if err != nil {
		return fmt.Errorf("creating monitor: %w", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("monitor exited", "error", err)
		}
	}()

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(service, api.Config{
			AuditToken: cfg.AuditToken,
			Logger:     logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr, "store", cfg.Store, "oracle", cfg.Oracle)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	cancel()
	wg.Wait()
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store, *sql.DB, error) {
	if cfg.Store != config.StorePostgres {
		return memory.NewMemoryLedgerStore(), nil, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database unreachable: %w", err)
	}

	st := postgres.NewPostgresLedgerStore(db, logger)
	if err := st.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}
	return st, db, nil
}

func openOracle(cfg config.Config, logger *slog.Logger) (interfaces.PriceOracle, error) {
	switch cfg.Oracle {
	case config.OracleHTTP:
		o, err := oracle.NewHTTPOracle(oracle.HTTPConfig{
			BaseURL:         cfg.OracleURL,
			Timeout:         cfg.OracleTimeout,
			MaxAge:          cfg.OracleMaxAge,
			RateLimitPerMin: cfg.OracleRatePerMin,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating http oracle: %w", err)
		}
		return o, nil
	case config.OracleRedis:
		o, err := oracle.NewRedisOracle(oracle.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			MaxAge:   cfg.OracleMaxAge,
		})
		if err != nil {
			return nil, fmt.Errorf("creating redis oracle: %w", err)
		}
		return o, nil
	default:
		return oracle.NewStaticOracle(cfg.StaticPrices), nil
	}
}

func seed(ctx context.Context, service *orders.Service, cfg config.Config, logger *slog.Logger) error {
	for userID, cash := range cfg.SeedPortfolios {
		_, err := service.OpenPortfolio(ctx, userID, cash)
		switch {
		case err == nil:
		case errors.Is(err, models.ErrPortfolioExists):
			logger.Debug("portfolio already seeded", "user_id", userID)
		default:
			return fmt.Errorf("seeding portfolio %s: %w", userID, err)
		}
	}
	return nil
}
