// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	BackendMemory = "memory"
	BackendRedis  = "redis"

	OracleStatic = "static"
	OracleHTTP   = "http"
	OracleRedis  = "redis"
)

// Config holds every server setting.
type Config struct {
	HTTPAddr string
	LogLevel slog.Level

	Store       string
	DatabaseURL string
	LockTimeout time.Duration

	TradingPairs []string

	RateLimit        int
	RateWindow       time.Duration
	RateLimitBackend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Oracle           string
	OracleURL        string
	OracleTimeout    time.Duration
	OracleMaxAge     time.Duration
	OracleRatePerMin int
	StaticPrices     map[string]decimal.Decimal

	MonitorInterval       time.Duration
	MonitorPartitions     int
	MonitorPartitionIndex int

	KafkaBrokers []string
	KafkaTopic   string

	// AuditToken, when set, must be presented as a bearer token on /audit.
	AuditToken string

	// SeedPortfolios opens these portfolios at startup if they do not exist.
	SeedPortfolios map[string]decimal.Decimal
}

// ConfigDefaults returns the settings used when a variable is unset.
func ConfigDefaults() Config {
	return Config{
		HTTPAddr:         ":8080",
		LogLevel:         slog.LevelInfo,
		Store:            StoreMemory,
		LockTimeout:      5 * time.Second,
		TradingPairs:     []string{"BTC/USD", "ETH/USD"},
		RateLimit:        20,
		RateWindow:       time.Second,
		RateLimitBackend: BackendMemory,
		RedisAddr:        "localhost:6379",
		Oracle:           OracleStatic,
		OracleTimeout:    time.Second,
		OracleMaxAge:     30 * time.Second,
		OracleRatePerMin: 600,
		StaticPrices: map[string]decimal.Decimal{
			"BTC/USD": decimal.NewFromInt(50000),
			"ETH/USD": decimal.NewFromInt(3000),
		},
		MonitorInterval:   2 * time.Second,
		MonitorPartitions: 1,
		KafkaTopic:        "orders",
		SeedPortfolios:    map[string]decimal.Decimal{},
	}
}

// Load reads envFile (if it exists) into the process environment and parses it.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults and validating the result.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := ConfigDefaults()
	p := parser{getenv: getenv}

	cfg.HTTPAddr = p.str("HTTP_ADDR", cfg.HTTPAddr)
	if v := getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			p.fail("LOG_LEVEL", err)
		}
	}

	cfg.Store = strings.ToLower(p.str("STORE", cfg.Store))
	cfg.DatabaseURL = p.str("DATABASE_URL", cfg.DatabaseURL)
	cfg.LockTimeout = p.duration("LOCK_TIMEOUT", cfg.LockTimeout)
	cfg.TradingPairs = p.list("TRADING_PAIRS", cfg.TradingPairs)

	cfg.RateLimit = p.integer("RATE_LIMIT", cfg.RateLimit)
	cfg.RateWindow = p.duration("RATE_WINDOW", cfg.RateWindow)
	cfg.RateLimitBackend = strings.ToLower(p.str("RATE_LIMIT_BACKEND", cfg.RateLimitBackend))

	cfg.RedisAddr = p.str("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = p.str("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = p.integer("REDIS_DB", cfg.RedisDB)

	cfg.Oracle = strings.ToLower(p.str("ORACLE", cfg.Oracle))
	cfg.OracleURL = p.str("ORACLE_URL", cfg.OracleURL)
	cfg.OracleTimeout = p.duration("ORACLE_TIMEOUT", cfg.OracleTimeout)
	cfg.OracleMaxAge = p.duration("ORACLE_MAX_AGE", cfg.OracleMaxAge)
	cfg.OracleRatePerMin = p.integer("ORACLE_RATE_PER_MIN", cfg.OracleRatePerMin)
	cfg.StaticPrices = p.amounts("STATIC_PRICES", cfg.StaticPrices)

	cfg.MonitorInterval = p.duration("MONITOR_INTERVAL", cfg.MonitorInterval)
	cfg.MonitorPartitions = p.integer("MONITOR_PARTITIONS", cfg.MonitorPartitions)
	cfg.MonitorPartitionIndex = p.integer("MONITOR_PARTITION_INDEX", cfg.MonitorPartitionIndex)

	cfg.KafkaBrokers = p.list("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = p.str("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.AuditToken = p.str("AUDIT_TOKEN", cfg.AuditToken)
	cfg.SeedPortfolios = p.amounts("SEED_PORTFOLIOS", cfg.SeedPortfolios)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE must be %s or %s, got %q", StoreMemory, StorePostgres, c.Store))
	}

	if len(c.TradingPairs) == 0 {
		errs = append(errs, errors.New("TRADING_PAIRS must list at least one pair"))
	}
	for _, pair := range c.TradingPairs {
		if _, _, ok := models.SplitPair(pair); !ok {
			errs = append(errs, fmt.Errorf("TRADING_PAIRS: %q is not BASE/QUOTE", pair))
		}
	}

	switch c.RateLimitBackend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be %s or %s, got %q", BackendMemory, BackendRedis, c.RateLimitBackend))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_WINDOW must be positive"))
	}

	switch c.Oracle {
	case OracleStatic, OracleRedis:
	case OracleHTTP:
		if c.OracleURL == "" {
			errs = append(errs, errors.New("ORACLE_URL is required when ORACLE=http"))
		}
	default:
		errs = append(errs, fmt.Errorf("ORACLE must be %s, %s or %s, got %q", OracleStatic, OracleHTTP, OracleRedis, c.Oracle))
	}

	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_TIMEOUT must be positive"))
	}
	if c.MonitorInterval <= 0 {
		errs = append(errs, errors.New("MONITOR_INTERVAL must be positive"))
	}
	if c.MonitorPartitions < 1 {
		errs = append(errs, errors.New("MONITOR_PARTITIONS must be at least 1"))
	}
	if c.MonitorPartitionIndex < 0 || c.MonitorPartitionIndex >= c.MonitorPartitions {
		errs = append(errs, fmt.Errorf("MONITOR_PARTITION_INDEX must be in [0, %d)", c.MonitorPartitions))
	}

	return errors.Join(errs...)
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

// list parses a comma separated value, dropping empty items.
func (p *parser) list(key string, def []string) []string {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// amounts parses "name=amount,name=amount".
func (p *parser) amounts(key string, def map[string]decimal.Decimal) map[string]decimal.Decimal {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	out := make(map[string]decimal.Decimal)
	for _, item := range p.list(key, nil) {
		name, raw, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(name) == "" {
			p.fail(key, fmt.Errorf("%q is not name=amount", item))
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			p.fail(key, fmt.Errorf("%q: %w", item, err))
			continue
		}
		out[strings.TrimSpace(name)] = amount
	}
	return out
}
