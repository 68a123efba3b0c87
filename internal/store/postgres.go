package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/trading-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Trade transactions run under SERIALIZABLE isolation; a serialization
// failure surfaces as ErrTxConflict so the executor can retry.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *model.Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, balance, created_at)
		 VALUES ($1, $2::NUMERIC, $3)`,
		a.ID, a.Balance.String(), a.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx,
		`SELECT id, balance::TEXT, created_at FROM accounts WHERE id = $1`, id))
}

func (s *PostgresStore) ListHoldings(ctx context.Context, accountID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, symbol, quantity::TEXT, avg_price::TEXT
		 FROM holdings WHERE account_id = $1 ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var qty, avg string
		if err := rows.Scan(&h.AccountID, &h.Symbol, &qty, &avg); err != nil {
			return nil, err
		}
		h.Quantity, _ = decimal.NewFromString(qty)
		h.AvgPrice, _ = decimal.NewFromString(avg)
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

// sortColumns whitelists the sortable ledger columns. Anything else falls
// back to created_at.
var sortColumns = map[string]string{
	"created_at":   "created_at",
	"symbol":       "symbol",
	"price":        "price",
	"quantity":     "quantity",
	"total":        "total",
	"realized_pnl": "realized_pnl",
}

func (s *PostgresStore) QueryLedger(ctx context.Context, accountID string, q LedgerQuery) ([]model.LedgerEntry, int64, error) {
	where := `WHERE account_id = $1`
	args := []any{accountID}

	if q.Symbol != "" {
		args = append(args, "%"+q.Symbol+"%")
		where += fmt.Sprintf(` AND symbol ILIKE $%d`, len(args))
	}
	if q.Side != "" {
		args = append(args, string(q.Side))
		where += fmt.Sprintf(` AND side = $%d`, len(args))
	}

	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ledger_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col, ok := sortColumns[q.SortField]
	if !ok {
		col = "created_at"
	}
	if col == "realized_pnl" {
		// BUY rows carry NULL pnl; sort them as zero so ordering matches
		// the in-memory store instead of PostgreSQL's NULLS placement.
		col = "COALESCE(realized_pnl, 0)"
	}
	dir := "DESC"
	if q.Ascending {
		dir = "ASC"
	}

	args = append(args, q.Limit, q.Offset)
	query := fmt.Sprintf(
		`SELECT id, account_id, symbol, side, price::TEXT, quantity::TEXT,
		        total::TEXT, realized_pnl::TEXT, note, created_at
		 FROM ledger_entries %s
		 ORDER BY %s %s, id %s
		 LIMIT $%d OFFSET $%d`,
		where, col, dir, dir, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, accountID, entryID, note string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ledger_entries SET note = $3 WHERE id = $1 AND account_id = $2`,
		entryID, accountID, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteEntry(ctx context.Context, accountID, entryID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ledger_entries WHERE id = $1 AND account_id = $2`,
		entryID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteAllEntries(ctx context.Context, accountID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ledger_entries WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) BeginTrade(ctx context.Context, accountID string) (TradeTx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, err
	}
	return &pgTradeTx{tx: tx, accountID: accountID}, nil
}

// pgTradeTx wraps a serializable pgx transaction scoped to one account.
type pgTradeTx struct {
	tx        pgx.Tx
	accountID string
}

func (t *pgTradeTx) Account(ctx context.Context) (*model.Account, error) {
	return scanAccount(t.tx.QueryRow(ctx,
		`SELECT id, balance::TEXT, created_at FROM accounts WHERE id = $1`,
		t.accountID))
}

func (t *pgTradeTx) Holding(ctx context.Context, symbol string) (*model.Holding, error) {
	var h model.Holding
	var qty, avg string

	err := t.tx.QueryRow(ctx,
		`SELECT account_id, symbol, quantity::TEXT, avg_price::TEXT
		 FROM holdings WHERE account_id = $1 AND symbol = $2`,
		t.accountID, symbol).
		Scan(&h.AccountID, &h.Symbol, &qty, &avg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, txErr(err)
	}

	h.Quantity, _ = decimal.NewFromString(qty)
	h.AvgPrice, _ = decimal.NewFromString(avg)
	return &h, nil
}

func (t *pgTradeTx) SetBalance(ctx context.Context, balance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE accounts SET balance = $2::NUMERIC WHERE id = $1`,
		t.accountID, balance.String())
	return txErr(err)
}

func (t *pgTradeTx) PutHolding(ctx context.Context, h model.Holding) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO holdings (account_id, symbol, quantity, avg_price)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC)
		 ON CONFLICT (account_id, symbol)
		 DO UPDATE SET quantity = EXCLUDED.quantity, avg_price = EXCLUDED.avg_price`,
		h.AccountID, h.Symbol, h.Quantity.String(), h.AvgPrice.String())
	return txErr(err)
}

func (t *pgTradeTx) DeleteHolding(ctx context.Context, symbol string) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM holdings WHERE account_id = $1 AND symbol = $2`,
		t.accountID, symbol)
	return txErr(err)
}

func (t *pgTradeTx) AppendEntry(ctx context.Context, e *model.LedgerEntry) error {
	var pnl any
	if e.RealizedPnL != nil {
		pnl = e.RealizedPnL.String()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_entries
		   (id, account_id, symbol, side, price, quantity, total, realized_pnl, note, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		e.ID, e.AccountID, e.Symbol, string(e.Side),
		e.Price.String(), e.Quantity.String(), e.Total.String(),
		pnl, e.Note, e.CreatedAt)
	return txErr(err)
}

func (t *pgTradeTx) Commit(ctx context.Context) error {
	return txErr(t.tx.Commit(ctx))
}

func (t *pgTradeTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

// txErr translates PostgreSQL serialization failures (40001) and deadlocks
// (40P01) into ErrTxConflict so the executor retries them.
func txErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %s", ErrTxConflict, pgErr.Code)
		}
	}
	return err
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var balance string

	err := row.Scan(&a.ID, &balance, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Balance, _ = decimal.NewFromString(balance)
	return &a, nil
}

// scanLedgerEntries reads pgx rows into LedgerEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanLedgerEntries(rows pgxRows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var side, priceS, qtyS, totalS string
		var pnlS *string

		if err := rows.Scan(&e.ID, &e.AccountID, &e.Symbol, &side,
			&priceS, &qtyS, &totalS, &pnlS, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}

		e.Side = model.Side(side)
		e.Price, _ = decimal.NewFromString(priceS)
		e.Quantity, _ = decimal.NewFromString(qtyS)
		e.Total, _ = decimal.NewFromString(totalS)
		if pnlS != nil {
			pnl, _ := decimal.NewFromString(*pnlS)
			e.RealizedPnL = &pnl
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}
