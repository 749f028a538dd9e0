package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
)

// slidingWindowScript trims the key's sorted set to the window, then adds the request only
// if the set is below the limit. It runs atomically so instances sharing Redis agree.
//
// KEYS[1] key, ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] limit, ARGV[4] member
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return 1
`)

// RedisConfig holds connection settings for the shared limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix is prepended to every limiter key.
	KeyPrefix string
}

// RedisSlidingWindow is a sliding-window-log limiter shared across instances through Redis.
type RedisSlidingWindow struct {
	client    redis.UniversalClient
	limit     int
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

// NewRedisSlidingWindow connects a limiter to Redis.
func NewRedisSlidingWindow(cfg Config, rc RedisConfig) (*RedisSlidingWindow, error) {
	if rc.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	return NewRedisSlidingWindowWithClient(cfg, client, rc.KeyPrefix), nil
}

// NewRedisSlidingWindowWithClient builds a limiter on an existing client.
func NewRedisSlidingWindowWithClient(cfg Config, client redis.UniversalClient, keyPrefix string) *RedisSlidingWindow {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if keyPrefix == "" {
		keyPrefix = "ratelimit"
	}
	return &RedisSlidingWindow{
		client:    client,
		limit:     cfg.Limit,
		window:    cfg.Window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (l *RedisSlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	now := l.now().UnixMilli()
	allowed, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.keyPrefix + ":" + key},
		now, l.window.Milliseconds(), l.limit, fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return allowed == 1, nil
}

func (l *RedisSlidingWindow) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisSlidingWindow) Close() error {
	return l.client.Close()
}

var _ interfaces.RateLimiter = (*RedisSlidingWindow)(nil)
