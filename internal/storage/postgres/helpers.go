package postgres

import (
	"errors"

	"github.com/lib/pq"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation  = "23505"
	codeCheckViolation   = "23514"
	codeLockNotAvailable = "55P03"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (models.Order, error) {
	var o models.Order
	var orderType, side, tif, status string
	var limitPrice, stopPrice, fillPrice decimal.NullDecimal
	err := row.Scan(&o.ID, &o.UserID, &o.TradingPair, &orderType, &side, &o.Amount, &limitPrice,
		&stopPrice, &tif, &status, &o.ReservedAmount, &fillPrice, &o.RejectReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return models.Order{}, err
	}
	o.Type = models.OrderType(orderType)
	o.Side = models.Side(side)
	o.TimeInForce = models.TimeInForce(tif)
	o.Status = models.OrderStatus(status)
	o.LimitPrice = decimalPtr(limitPrice)
	o.StopPrice = decimalPtr(stopPrice)
	o.FillPrice = decimalPtr(fillPrice)
	return o, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// mapError turns driver errors into the engine's sentinel errors where one applies.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeLockNotAvailable:
		return models.ErrConcurrencyTimeout
	case codeCheckViolation:
		// the schema's CHECK constraints mirror the ledger invariants
		return errors.Join(models.ErrLedgerInvariantViolation, err)
	default:
		return err
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
