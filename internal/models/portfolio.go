package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is a user's cash balance and asset holdings.
type Portfolio struct {
	ID           string                     `json:"id"`
	UserID       string                     `json:"user_id"`
	CashBalance  decimal.Decimal            `json:"cash_balance"`
	ReservedCash decimal.Decimal            `json:"reserved_cash"` // held for resting buy orders
	Holdings     map[string]decimal.Decimal `json:"holdings"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

// AvailableCash is the cash that is not held by a resting order.
func (p Portfolio) AvailableCash() decimal.Decimal {
	return p.CashBalance.Sub(p.ReservedCash)
}

// Holding returns the amount held of symbol, zero when absent.
func (p Portfolio) Holding(symbol string) decimal.Decimal {
	return p.Holdings[symbol]
}

// Clone returns a deep copy so a transaction can work on its own snapshot.
func (p Portfolio) Clone() Portfolio {
	c := p
	c.Holdings = make(map[string]decimal.Decimal, len(p.Holdings))
	for k, v := range p.Holdings {
		c.Holdings[k] = v
	}
	return c
}

// SplitPair splits "BTC/USD" into its base and quote symbols.
func SplitPair(pair string) (base, quote string, ok bool) {
	base, quote, ok = strings.Cut(pair, "/")
	if !ok || base == "" || quote == "" {
		return "", "", false
	}
	return base, quote, true
}
