package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// pgTx writes straight into the open database transaction; the row lock on the
// portfolio is held until commit or rollback.
type pgTx struct {
	tx        *sql.Tx
	portfolio models.Portfolio
}

func (t *pgTx) Portfolio() models.Portfolio {
	return t.portfolio.Clone()
}

func (t *pgTx) SavePortfolio(ctx context.Context, portfolio models.Portfolio) error {
	const query = `UPDATE portfolios SET cash_balance = $1, reserved_cash = $2, updated_at = $3
	WHERE id = $4`
	if _, err := t.tx.ExecContext(ctx, query, portfolio.CashBalance, portfolio.ReservedCash,
		portfolio.UpdatedAt, t.portfolio.ID); err != nil {
		return mapError(err)
	}

	for symbol, amount := range portfolio.Holdings {
		if previous, ok := t.portfolio.Holdings[symbol]; ok && previous.Equal(amount) {
			continue
		}
		if err := upsertHolding(ctx, t.tx, t.portfolio.ID, symbol, amount); err != nil {
			return mapError(err)
		}
	}

	t.portfolio = portfolio.Clone()
	return nil
}

func (t *pgTx) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	return insertAudit(ctx, t.tx, entry)
}

func (t *pgTx) InsertOrder(ctx context.Context, o models.Order) error {
	const query = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := t.tx.ExecContext(ctx, query, o.ID, o.UserID, o.TradingPair, string(o.Type), string(o.Side),
		o.Amount, nullDecimal(o.LimitPrice), nullDecimal(o.StopPrice), string(o.TimeInForce),
		string(o.Status), o.ReservedAmount, nullDecimal(o.FillPrice), o.RejectReason, o.CreatedAt, o.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: order %s already exists", models.ErrOrderStatusConflict, o.ID)
	}
	return err
}

func (t *pgTx) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	return getOrder(ctx, t.tx, orderID)
}

func (t *pgTx) CompareAndSetOrder(ctx context.Context, o models.Order, expected models.OrderStatus) error {
	const query = `UPDATE orders
	SET status = $1, reserved_amount = $2, fill_price = $3, reject_reason = $4, updated_at = $5
	WHERE id = $6 AND user_id = $7 AND status = $8`

	res, err := t.tx.ExecContext(ctx, query, string(o.Status), o.ReservedAmount, nullDecimal(o.FillPrice),
		o.RejectReason, o.UpdatedAt, o.ID, o.UserID, string(expected))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrOrderStatusConflict
	}
	return nil
}

func upsertHolding(ctx context.Context, q querier, portfolioID, symbol string, amount decimal.Decimal) error {
	const query = `INSERT INTO holdings (portfolio_id, symbol, amount) VALUES ($1, $2, $3)
	ON CONFLICT (portfolio_id, symbol) DO UPDATE SET amount = EXCLUDED.amount`
	_, err := q.ExecContext(ctx, query, portfolioID, symbol, amount)
	return err
}

func insertAudit(ctx context.Context, q querier, entry models.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	const query = `INSERT INTO audit_entries (id, user_id, action, resource, resource_id, status, details, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`
	_, err = q.ExecContext(ctx, query, entry.ID, entry.UserID, entry.Action, entry.Resource,
		entry.ResourceID, entry.Status, string(details), entry.CreatedAt)
	return err
}

var _ interfaces.LedgerTx = (*pgTx)(nil)
