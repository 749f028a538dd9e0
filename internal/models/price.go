package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is the oracle's price for a trading pair at a point in time.
type PriceQuote struct {
	TradingPair string          `json:"trading_pair"`
	Price       decimal.Decimal `json:"price"`
	AsOf        time.Time       `json:"as_of"`
}
