package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	interfaces "github.com/sheikh-saqib/portfolio-order-ledger/internal/interfaces"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	defaultPageSize = 50

	orderColumns = `id, user_id, trading_pair, order_type, side, amount, limit_price, stop_price,
	time_in_force, status, reserved_amount, fill_price, reject_reason, created_at, updated_at`
)

// PostgresLedgerStore implements the ledger, order and audit ports on PostgreSQL.
// Portfolio exclusivity comes from a row lock (SELECT ... FOR UPDATE) held for the
// lifetime of the transaction.
type PostgresLedgerStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresLedgerStore(db *sql.DB, logger *slog.Logger) *PostgresLedgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLedgerStore{
		db:     db,
		logger: logger.With("component", "postgres-store"),
	}
}

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func (p *PostgresLedgerStore) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, name := range files {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		p.logger.Info("migration applied", "file", name)
	}
	return nil
}

// WithPortfolioLock opens a transaction, locks the portfolio row and runs fn.
// The transaction is rolled back if fn returns an error or panics.
func (p *PostgresLedgerStore) WithPortfolioLock(ctx context.Context, userID string, timeout time.Duration, fn func(tx interfaces.LedgerTx) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			if rbErr := dbTx.Rollback(); rbErr != nil {
				p.logger.Error("failed to rollback transaction after panic", "error", rbErr)
			}
			panic(r)
		}
		if err != nil {
			if rbErr := dbTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				p.logger.Error("failed to rollback transaction", "error", rbErr, "originalError", err)
			}
		}
	}()

	if timeout > 0 {
		// SET does not take bind parameters; the value is an integer we format ourselves.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
		if _, err = dbTx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	portfolio, err := loadPortfolio(ctx, dbTx, userID, true)
	if err != nil {
		return mapError(err)
	}

	tx := &pgTx{tx: dbTx, portfolio: portfolio}
	if err = fn(tx); err != nil {
		return err
	}

	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreatePortfolio inserts a portfolio, its holdings and the opening audit entry atomically.
func (p *PostgresLedgerStore) CreatePortfolio(ctx context.Context, portfolio models.Portfolio, opening models.AuditEntry) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			dbTx.Rollback()
		}
	}()

	const query = `INSERT INTO portfolios (id, user_id, cash_balance, reserved_cash, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = dbTx.ExecContext(ctx, query, portfolio.ID, portfolio.UserID, portfolio.CashBalance,
		portfolio.ReservedCash, portfolio.CreatedAt, portfolio.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrPortfolioExists
		}
		return err
	}
	for symbol, amount := range portfolio.Holdings {
		if err = upsertHolding(ctx, dbTx, portfolio.ID, symbol, amount); err != nil {
			return err
		}
	}
	if err = insertAudit(ctx, dbTx, opening); err != nil {
		return err
	}
	return dbTx.Commit()
}

func (p *PostgresLedgerStore) GetPortfolio(ctx context.Context, userID string) (models.Portfolio, error) {
	return loadPortfolio(ctx, p.db, userID, false)
}

func (p *PostgresLedgerStore) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	return getOrder(ctx, p.db, orderID)
}

// ListOrders returns userID's orders, newest first.
func (p *PostgresLedgerStore) ListOrders(ctx context.Context, userID string, filter models.OrderFilter) ([]models.Order, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TradingPair != "" {
		args = append(args, filter.TradingPair)
		where = append(where, fmt.Sprintf("trading_pair = $%d", len(args)))
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id`
	query, args = withPage(query, args, filter.Limit, filter.Offset)

	return queryOrders(ctx, p.db, query, args...)
}

func (p *PostgresLedgerStore) ActiveTradingPairs(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT trading_pair FROM orders
	WHERE status IN ('pending', 'triggered') ORDER BY trading_pair`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []string
	for rows.Next() {
		var pair string
		if err := rows.Scan(&pair); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func (p *PostgresLedgerStore) ActiveOrdersByPair(ctx context.Context, pair string) ([]models.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders
	WHERE trading_pair = $1 AND status IN ('pending', 'triggered')
	ORDER BY created_at, id`

	return queryOrders(ctx, p.db, query, pair)
}

// QueryAudit returns a page of audit entries matching query, oldest first.
func (p *PostgresLedgerStore) QueryAudit(ctx context.Context, q models.AuditQuery) (models.AuditPage, error) {
	var where []string
	var args []any
	if q.UserID != "" {
		args = append(args, q.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if q.Action != "" {
		args = append(args, q.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `SELECT id, user_id, action, resource, resource_id, status, details, created_at FROM audit_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY seq`

	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	// fetch one extra row to learn whether another page exists
	query, args = withPage(query, args, limit+1, q.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.AuditPage{}, err
	}
	defer rows.Close()

	entries := make([]models.AuditEntry, 0, limit)
	for rows.Next() {
		var entry models.AuditEntry
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.Resource,
			&entry.ResourceID, &entry.Status, &details, &entry.CreatedAt); err != nil {
			return models.AuditPage{}, err
		}
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			return models.AuditPage{}, fmt.Errorf("decode audit details %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return models.AuditPage{}, err
	}

	page := models.AuditPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.NextOffset = max(q.Offset, 0) + limit
	}
	return page, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadPortfolio(ctx context.Context, q querier, userID string, forUpdate bool) (models.Portfolio, error) {
	query := `SELECT id, user_id, cash_balance, reserved_cash, created_at, updated_at
	FROM portfolios WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var portfolio models.Portfolio
	err := q.QueryRowContext(ctx, query, userID).Scan(&portfolio.ID, &portfolio.UserID,
		&portfolio.CashBalance, &portfolio.ReservedCash, &portfolio.CreatedAt, &portfolio.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Portfolio{}, models.ErrPortfolioNotFound
	}
	if err != nil {
		return models.Portfolio{}, err
	}

	const holdingsQuery = `SELECT symbol, amount FROM holdings WHERE portfolio_id = $1`
	rows, err := q.QueryContext(ctx, holdingsQuery, portfolio.ID)
	if err != nil {
		return models.Portfolio{}, err
	}
	defer rows.Close()

	portfolio.Holdings = make(map[string]decimal.Decimal)
	for rows.Next() {
		var symbol string
		var amount decimal.Decimal
		if err := rows.Scan(&symbol, &amount); err != nil {
			return models.Portfolio{}, err
		}
		portfolio.Holdings[symbol] = amount
	}
	return portfolio, rows.Err()
}

func getOrder(ctx context.Context, q querier, orderID string) (models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID))
	if err == sql.ErrNoRows {
		return models.Order{}, models.ErrOrderNotFound
	}
	return order, err
}

func queryOrders(ctx context.Context, q querier, query string, args ...any) ([]models.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func withPage(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// Compile-time check: ensure PostgresLedgerStore implements the storage ports
var (
	_ interfaces.LedgerStore     = (*PostgresLedgerStore)(nil)
	_ interfaces.OrderRepository = (*PostgresLedgerStore)(nil)
	_ interfaces.AuditLog        = (*PostgresLedgerStore)(nil)
)
