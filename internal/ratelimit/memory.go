// Package ratelimit caps how many orders a user may submit in a rolling window.
package ratelimit

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
)

const shardCount = 64

// Config holds limiter settings shared by every backend.
type Config struct {
	// Limit is the number of requests allowed per Window. Zero or less disables limiting.
	Limit  int
	Window time.Duration
	Logger *slog.Logger
}

type shard struct {
	mu   sync.Mutex
	hits map[string][]time.Time // request times inside the window, oldest first
}

// SlidingWindow is an in-process sliding-window-log limiter. Keys are spread across
// shards so unrelated users do not contend on one mutex.
type SlidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
	shards [shardCount]*shard
}

// NewSlidingWindow creates an in-memory limiter.
func NewSlidingWindow(cfg Config) *SlidingWindow {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := &SlidingWindow{
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    time.Now,
		logger: cfg.Logger.With("component", "rate-limiter"),
	}
	for i := range l.shards {
		l.shards[i] = &shard{hits: make(map[string][]time.Time)}
	}
	return l
}

// Allow records a request for key and reports whether it fits in the window.
// Denied requests are not recorded.
func (l *SlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}
	now := l.now()
	s := l.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	hits := expire(s.hits[key], now.Add(-l.window))
	if len(hits) >= l.limit {
		s.hits[key] = hits
		return false, nil
	}
	s.hits[key] = append(hits, now)
	return true, nil
}

// Sweep drops keys with no request inside the window.
func (l *SlidingWindow) Sweep() int {
	cutoff := l.now().Add(-l.window)
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for key, hits := range s.hits {
			if len(expire(hits, cutoff)) == 0 {
				delete(s.hits, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (l *SlidingWindow) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("swept idle rate limit keys", "removed", n)
			}
		}
	}
}

func (l *SlidingWindow) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// expire drops times at or before cutoff from the front of hits.
func expire(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

var _ interfaces.RateLimiter = (*SlidingWindow)(nil)
