package interfaces

import (
	"context"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

// PriceOracle supplies the current price of a trading pair. Implementations return an error
// wrapping models.ErrPriceUnavailable when no usable quote exists.
type PriceOracle interface {
	GetPrice(ctx context.Context, pair string) (models.PriceQuote, error)
}
