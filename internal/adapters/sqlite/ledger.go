package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dhanpaper/internal/domain"
	"dhanpaper/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const enabledFlag = "paper_enabled"

// queryer is the subset of *sql.DB and *sql.Tx the ledger queries run against.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ledger implements the row-level operations of ports.TradeLedger against
// either a database handle or an open transaction.
type ledger struct {
	q      queryer
	logger ports.Logger
}

// Repository implements ports.TradeLedger and ports.EnablementStore using SQLite.
type Repository struct {
	*ledger
	db *sql.DB
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository opens (or creates) the paper-trades database and verifies the
// schema. Callers own the returned repository and must Close it.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paper_trades.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode lets listing queries proceed while a matching transaction is
	// in flight; busy_timeout covers the remaining write contention.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver behaves best with
	// a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{ledger: &ledger{q: db, logger: cfg.Logger}, db: db}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Paper-trades database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates the ledger tables if they don't exist. It is
// idempotent and returns an error instead of swallowing schema failures.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS paper_trades (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		security_id TEXT NOT NULL DEFAULT '',
		symbol TEXT NOT NULL,
		segment TEXT NOT NULL DEFAULT '',
		side TEXT NOT NULL,
		qty INTEGER NOT NULL,
		matched_qty INTEGER NOT NULL DEFAULT 0,
		order_type TEXT NOT NULL DEFAULT 'MARKET',
		entry_price REAL NOT NULL DEFAULT 0,
		entry_at TIMESTAMP DEFAULT NULL,
		exit_price REAL NOT NULL DEFAULT 0,
		exit_at TIMESTAMP DEFAULT NULL,
		gross_pnl REAL NOT NULL DEFAULT 0,
		fee REAL NOT NULL DEFAULT 0,
		net_pnl REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		price_source TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS paper_flags (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_paper_trades_symbol_side_status ON paper_trades (symbol, side, status);
	CREATE INDEX IF NOT EXISTS idx_paper_trades_status_created ON paper_trades (status, created_at);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing paper-trades database")
		return r.db.Close()
	}
	return nil
}

// InTransaction runs fn against a transaction-scoped ledger. Any error from
// fn rolls the whole transaction back.
func (r *Repository) InTransaction(ctx context.Context, fn func(tx ports.TradeLedger) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txl := &txLedger{ledger: &ledger{q: tx, logger: r.logger}}
	if err := fn(txl); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error(ctx, rbErr, "Transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txLedger is a ledger already scoped to a transaction. Nested InTransaction
// calls join the existing transaction.
type txLedger struct {
	*ledger
}

func (t *txLedger) InTransaction(ctx context.Context, fn func(tx ports.TradeLedger) error) error {
	return fn(t)
}

// --- TradeLedger row operations ---

const tradeColumns = `seq, id, created_at, request_id, security_id, symbol, segment, side, qty, matched_qty,
	       order_type, entry_price, entry_at, exit_price, exit_at, gross_pnl, fee, net_pnl, status, price_source`

// Insert saves a new trade row and fills in its assigned sequence number.
func (l *ledger) Insert(ctx context.Context, t *domain.Trade) error {
	const query = `
	INSERT INTO paper_trades (id, created_at, request_id, security_id, symbol, segment, side, qty, matched_qty,
	                          order_type, entry_price, entry_at, exit_price, exit_at, gross_pnl, fee, net_pnl, status, price_source)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := l.q.ExecContext(ctx, query,
		t.ID, t.CreatedAt, t.RequestID, t.SecurityID, t.Symbol, t.Segment, t.Side, t.Qty, t.MatchedQty,
		t.OrderType, t.EntryPrice, nullTime(t.EntryAt), t.ExitPrice, nullTime(t.ExitAt),
		t.GrossPnL, t.Fee, t.NetPnL, t.Status, t.PriceSource)
	if err != nil {
		return fmt.Errorf("failed to insert trade %s for symbol %s: %w (%v)", t.ID, t.Symbol, ports.ErrInsertFailed, err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get sequence for trade %s: %w", t.ID, err)
	}
	t.Seq = seq
	l.logger.Debug(ctx, "Trade row inserted", map[string]interface{}{"tradeID": t.ID, "symbol": t.Symbol, "status": t.Status})
	return nil
}

// UpdateMatched advances a row's matched quantity and status.
//
// The current row is re-read before writing so a blind overwrite can never
// shrink matched_qty or push it past the requested quantity. Callers hold the
// per-symbol critical section (or run inside InTransaction), which makes the
// read-then-write pair atomic with respect to other matchers.
func (l *ledger) UpdateMatched(ctx context.Context, id string, matchedQty int64, status domain.TradeStatus) error {
	row := l.q.QueryRowContext(ctx, `SELECT qty, matched_qty FROM paper_trades WHERE id = ?`, id)
	var qty, current int64
	if err := row.Scan(&qty, &current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("trade %s not found for matched update: %w", id, ports.ErrNotFound)
		}
		return fmt.Errorf("failed to read trade %s before matched update: %w (%v)", id, ports.ErrQueryFailed, err)
	}
	if matchedQty < current || matchedQty > qty {
		return fmt.Errorf("matched quantity %d outside [%d,%d] for trade %s: %w",
			matchedQty, current, qty, id, ports.ErrInternalInconsistency)
	}
	if status == domain.StatusClosed && matchedQty != qty {
		return fmt.Errorf("trade %s cannot close with matched quantity %d of %d: %w",
			id, matchedQty, qty, ports.ErrInternalInconsistency)
	}

	_, err := l.q.ExecContext(ctx, `UPDATE paper_trades SET matched_qty = ?, status = ? WHERE id = ?`,
		matchedQty, status, id)
	if err != nil {
		return fmt.Errorf("failed to update matched quantity for trade %s: %w (%v)", id, ports.ErrUpdateFailed, err)
	}
	l.logger.Debug(ctx, "Trade row matched quantity updated", map[string]interface{}{
		"tradeID": id, "matchedQty": matchedQty, "status": status,
	})
	return nil
}

// FindOpenBySymbol retrieves OPEN rows for a symbol and side, oldest first.
func (l *ledger) FindOpenBySymbol(ctx context.Context, symbol string, side domain.Side) ([]*domain.Trade, error) {
	const query = `
	SELECT ` + tradeColumns + `
	FROM paper_trades
	WHERE symbol = ? AND side = ? AND status = ?
	ORDER BY created_at ASC, seq ASC`

	return l.queryTrades(ctx, query, symbol, side, domain.StatusOpen)
}

// FindOpen retrieves all OPEN rows across symbols, oldest first.
func (l *ledger) FindOpen(ctx context.Context) ([]*domain.Trade, error) {
	const query = `
	SELECT ` + tradeColumns + `
	FROM paper_trades
	WHERE status = ?
	ORDER BY created_at ASC, seq ASC`

	return l.queryTrades(ctx, query, domain.StatusOpen)
}

// FindAll retrieves rows newest-first, optionally filtered by status.
func (l *ledger) FindAll(ctx context.Context, limit int, status *domain.TradeStatus) ([]*domain.Trade, error) {
	query := `
	SELECT ` + tradeColumns + `
	FROM paper_trades`
	args := make([]interface{}, 0, 2)
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC, seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return l.queryTrades(ctx, query, args...)
}

// Clear removes every trade row in a single statement.
func (l *ledger) Clear(ctx context.Context) error {
	if _, err := l.q.ExecContext(ctx, `DELETE FROM paper_trades`); err != nil {
		return fmt.Errorf("failed to clear paper trades: %w (%v)", ports.ErrDeleteFailed, err)
	}
	l.logger.Info(ctx, "Paper-trades ledger cleared")
	return nil
}

func (l *ledger) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.Trade, error) {
	rows, err := l.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query paper trades: %w (%v)", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// --- EnablementStore ---

// Enabled reads the persisted simulation gate. A store that has never been
// written reports false.
func (r *Repository) Enabled(ctx context.Context) (bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT value FROM paper_flags WHERE name = ?`, enabledFlag)
	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read enablement flag: %w (%v)", ports.ErrQueryFailed, err)
	}
	return value == "1", nil
}

// SetEnabled persists the simulation gate. The write is committed before the
// call returns.
func (r *Repository) SetEnabled(ctx context.Context, value bool) error {
	stored := "0"
	if value {
		stored = "1"
	}
	const query = `
	INSERT INTO paper_flags (name, value) VALUES (?, ?)
	ON CONFLICT(name) DO UPDATE SET value = excluded.value`
	if _, err := r.db.ExecContext(ctx, query, enabledFlag, stored); err != nil {
		return fmt.Errorf("failed to persist enablement flag: %w (%v)", ports.ErrUpdateFailed, err)
	}
	r.logger.Info(ctx, "Paper trading enablement updated", map[string]interface{}{"enabled": value})
	return nil
}

// --- Helper scan functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var entryAt, exitAt sql.NullTime
	var side, status, priceSource string
	err := s.Scan(
		&t.Seq, &t.ID, &t.CreatedAt, &t.RequestID, &t.SecurityID, &t.Symbol, &t.Segment, &side, &t.Qty, &t.MatchedQty,
		&t.OrderType, &t.EntryPrice, &entryAt, &t.ExitPrice, &exitAt, &t.GrossPnL, &t.Fee, &t.NetPnL, &status, &priceSource)
	if err != nil {
		return nil, err // sql.ErrNoRows handled by the caller
	}
	if entryAt.Valid {
		t.EntryAt = entryAt.Time
	}
	if exitAt.Valid {
		t.ExitAt = exitAt.Time
	}
	t.Side = domain.Side(side)
	t.Status = domain.TradeStatus(status)
	t.PriceSource = domain.PriceSource(priceSource)
	return t, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
