// Package oracle provides price sources for trading pairs.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// StaticOracle serves prices set in process. Used for local runs and tests.
type StaticOracle struct {
	mu     sync.RWMutex
	quotes map[string]models.PriceQuote
	now    func() time.Time
}

// NewStaticOracle creates an oracle seeded with prices.
func NewStaticOracle(prices map[string]decimal.Decimal) *StaticOracle {
	o := &StaticOracle{
		quotes: make(map[string]models.PriceQuote, len(prices)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for pair, price := range prices {
		o.SetPrice(pair, price)
	}
	return o
}

// SetPrice replaces the quote for pair.
func (o *StaticOracle) SetPrice(pair string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[pair] = models.PriceQuote{TradingPair: pair, Price: price, AsOf: o.now()}
}

// Remove makes pair unavailable.
func (o *StaticOracle) Remove(pair string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.quotes, pair)
}

func (o *StaticOracle) GetPrice(ctx context.Context, pair string) (models.PriceQuote, error) {
	if err := ctx.Err(); err != nil {
		return models.PriceQuote{}, fmt.Errorf("%w: %s: %v", models.ErrPriceUnavailable, pair, err)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	quote, ok := o.quotes[pair]
	if !ok || !quote.Price.IsPositive() {
		return models.PriceQuote{}, fmt.Errorf("%w: no quote for %s", models.ErrPriceUnavailable, pair)
	}
	return quote, nil
}

var _ interfaces.PriceOracle = (*StaticOracle)(nil)
