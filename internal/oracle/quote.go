package oracle

import (
	"fmt"
	"time"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/shopspring/decimal"
)

func parseQuote(pair, price string, asOf time.Time) (models.PriceQuote, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return models.PriceQuote{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if !p.IsPositive() {
		return models.PriceQuote{}, fmt.Errorf("non-positive price %s", p)
	}
	return models.PriceQuote{TradingPair: pair, Price: p, AsOf: asOf}, nil
}

func stale(quote models.PriceQuote, maxAge time.Duration, now time.Time) bool {
	return maxAge > 0 && now.Sub(quote.AsOf) > maxAge
}
