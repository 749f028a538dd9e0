package ledger

import (
	"fmt"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// Balances is the state rebuilt from an audit trail.
type Balances struct {
	CashBalance  decimal.Decimal
	ReservedCash decimal.Decimal
	Holdings     map[string]decimal.Decimal
}

// Reconstruct replays audit entries, oldest first, into balances. Entries without
// balance details (cancel, reject, trigger) contribute nothing.
func Reconstruct(entries []models.AuditEntry) (Balances, error) {
	out := Balances{
		CashBalance:  decimal.Zero,
		ReservedCash: decimal.Zero,
		Holdings:     map[string]decimal.Decimal{},
	}
	for _, entry := range entries {
		cash, err := detailDecimal(entry.Details, models.AuditDetailCashDelta)
		if err != nil {
			return Balances{}, fmt.Errorf("audit entry %s: %w", entry.ID, err)
		}
		out.CashBalance = out.CashBalance.Add(cash)

		reserved, err := detailDecimal(entry.Details, models.AuditDetailReservedDelta)
		if err != nil {
			return Balances{}, fmt.Errorf("audit entry %s: %w", entry.ID, err)
		}
		out.ReservedCash = out.ReservedCash.Add(reserved)

		asset, _ := entry.Details[models.AuditDetailAsset].(string)
		if asset == "" {
			continue
		}
		delta, err := detailDecimal(entry.Details, models.AuditDetailAssetDelta)
		if err != nil {
			return Balances{}, fmt.Errorf("audit entry %s: %w", entry.ID, err)
		}
		out.Holdings[asset] = out.Holdings[asset].Add(delta)
	}
	return out, nil
}

// Matches reports whether the rebuilt balances equal the portfolio. Zero holdings
// and absent holdings are treated alike.
func (b Balances) Matches(p models.Portfolio) bool {
	if !b.CashBalance.Equal(p.CashBalance) || !b.ReservedCash.Equal(p.ReservedCash) {
		return false
	}
	for symbol, amount := range b.Holdings {
		if !amount.Equal(p.Holding(symbol)) {
			return false
		}
	}
	for symbol, amount := range p.Holdings {
		if !amount.Equal(b.Holdings[symbol]) {
			return false
		}
	}
	return true
}

func detailDecimal(details map[string]any, key string) (decimal.Decimal, error) {
	raw, ok := details[key]
	if !ok || raw == nil {
		return decimal.Zero, nil
	}
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse %s: %w", key, err)
		}
		return d, nil
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected %s type %T", key, raw)
	}
}
