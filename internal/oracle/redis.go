package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

// RedisConfig holds settings for the shared quote cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// MaxAge is both the key TTL and the staleness bound on reads.
	MaxAge    time.Duration
	KeyPrefix string
}

// RedisConfigDefaults returns sensible defaults.
func RedisConfigDefaults() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		MaxAge:    30 * time.Second,
		KeyPrefix: "price",
	}
}

// RedisOracle reads quotes that a market data process writes into Redis.
type RedisOracle struct {
	client    redis.UniversalClient
	maxAge    time.Duration
	keyPrefix string
	now       func() time.Time
}

type storedQuote struct {
	Price string    `json:"price"`
	AsOf  time.Time `json:"as_of"`
}

// NewRedisOracle connects to Redis.
func NewRedisOracle(cfg RedisConfig) (*RedisOracle, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisOracleWithClient(client, cfg), nil
}

// NewRedisOracleWithClient builds an oracle on an existing client.
func NewRedisOracleWithClient(client redis.UniversalClient, cfg RedisConfig) *RedisOracle {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = RedisConfigDefaults().KeyPrefix
	}
	return &RedisOracle{
		client:    client,
		maxAge:    cfg.MaxAge,
		keyPrefix: cfg.KeyPrefix,
		now:       time.Now,
	}
}

// key returns prefix:BASE/QUOTE
func (o *RedisOracle) key(pair string) string {
	return o.keyPrefix + ":" + pair
}

func (o *RedisOracle) GetPrice(ctx context.Context, pair string) (models.PriceQuote, error) {
	data, err := o.client.Get(ctx, o.key(pair)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.PriceQuote{}, fmt.Errorf("%w: no quote for %s", models.ErrPriceUnavailable, pair)
	}
	if err != nil {
		return models.PriceQuote{}, fmt.Errorf("%w: %s: %v", models.ErrPriceUnavailable, pair, err)
	}

	var stored storedQuote
	if err := json.Unmarshal(data, &stored); err != nil {
		return models.PriceQuote{}, fmt.Errorf("%w: %s: corrupt quote: %v", models.ErrPriceUnavailable, pair, err)
	}
	quote, err := parseQuote(pair, stored.Price, stored.AsOf)
	if err != nil {
		return models.PriceQuote{}, fmt.Errorf("%w: %s: %v", models.ErrPriceUnavailable, pair, err)
	}
	if stale(quote, o.maxAge, o.now()) {
		return models.PriceQuote{}, fmt.Errorf("%w: %s: stale quote", models.ErrPriceUnavailable, pair)
	}
	return quote, nil
}

// Publish stores quote so every engine instance sees it.
func (o *RedisOracle) Publish(ctx context.Context, quote models.PriceQuote) error {
	data, err := json.Marshal(storedQuote{Price: quote.Price.String(), AsOf: quote.AsOf})
	if err != nil {
		return err
	}
	if err := o.client.Set(ctx, o.key(quote.TradingPair), data, o.maxAge).Err(); err != nil {
		return fmt.Errorf("failed to publish quote: %w", err)
	}
	return nil
}

func (o *RedisOracle) Ping(ctx context.Context) error {
	return o.client.Ping(ctx).Err()
}

func (o *RedisOracle) Close() error {
	return o.client.Close()
}

var _ interfaces.PriceOracle = (*RedisOracle)(nil)
