// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jsj9346/spock-sub005/internal/models"
)

// SQLiteStore persists bar series and backtest results using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// TradeFilter narrows a trade-log query.
type TradeFilter struct {
	RunID      string
	Instrument string
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent reads
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Bars table for historical OHLCV data
	CREATE TABLE IF NOT EXISTS bars (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	-- Backtest runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		strategy TEXT NOT NULL,
		instrument TEXT NOT NULL,
		bars INTEGER NOT NULL,
		total_return REAL,
		sharpe REAL,
		max_drawdown REAL,
		trade_count INTEGER
	);

	-- Closed trades per run
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT NOT NULL,
		run_id TEXT NOT NULL,
		instrument TEXT NOT NULL,
		direction TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		entry_time DATETIME NOT NULL,
		exit_time DATETIME NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		pnl REAL NOT NULL,
		pnl_percent REAL NOT NULL,
		commission REAL NOT NULL,
		tax REAL NOT NULL,
		slippage REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, id),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_bars_symbol_timeframe ON bars(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_bars_timestamp ON bars(timestamp);
	CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
	CREATE INDEX IF NOT EXISTS idx_trades_instrument ON trades(instrument);
	CREATE INDEX IF NOT EXISTS idx_runs_strategy ON runs(strategy);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBars saves a bar series to the database.
func (s *SQLiteStore) SaveBars(ctx context.Context, symbol, timeframe string, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, symbol, timeframe, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadBars retrieves a bar series ordered by timestamp.
func (s *SQLiteStore) LoadBars(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		var b models.Bar
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars: %w", err)
	}

	return bars, nil
}

// LatestBar returns the timestamp of the most recent stored bar.
func (s *SQLiteStore) LatestBar(ctx context.Context, symbol, timeframe string) (time.Time, error) {
	var timestamp sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM bars WHERE symbol = ? AND timeframe = ?
	`, symbol, timeframe).Scan(&timestamp)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get latest bar: %w", err)
	}
	if !timestamp.Valid {
		return time.Time{}, nil
	}
	return timestamp.Time, nil
}

// RunRecord summarizes one persisted backtest run.
type RunRecord struct {
	ID          string
	CreatedAt   time.Time
	Strategy    string
	Instrument  string
	Bars        int
	TotalReturn float64
	Sharpe      float64
	MaxDrawdown float64
	TradeCount  int
}

// SaveRun persists a run summary and its closed trades in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord, trades []models.Trade) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, strategy, instrument, bars, total_return, sharpe, max_drawdown, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt, run.Strategy, run.Instrument, run.Bars, run.TotalReturn, run.Sharpe, run.MaxDrawdown, run.TradeCount)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (id, run_id, instrument, direction, quantity, entry_time, exit_time, entry_price, exit_price, pnl, pnl_percent, commission, tax, slippage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err := stmt.ExecContext(ctx, t.ID, run.ID, t.Instrument, string(t.Direction), t.Quantity,
			t.EntryTime, t.ExitTime, t.EntryPrice, t.ExitPrice, t.PnL, t.PnLPercent,
			t.Costs.Commission, t.Costs.Tax, t.Costs.Slippage)
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadTrades retrieves closed trades matching the filter.
func (s *SQLiteStore) LoadTrades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	query := "SELECT id, instrument, direction, quantity, entry_time, exit_time, entry_price, exit_price, pnl, pnl_percent, commission, tax, slippage FROM trades WHERE 1=1"
	args := []interface{}{}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Instrument != "" {
		query += " AND instrument = ?"
		args = append(args, filter.Instrument)
	}
	if !filter.StartDate.IsZero() {
		query += " AND entry_time >= ?"
		args = append(args, filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		query += " AND exit_time <= ?"
		args = append(args, filter.EndDate)
	}

	query += " ORDER BY entry_time ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var t models.Trade
		var direction string
		var commission, tax, slippage float64

		if err := rows.Scan(&t.ID, &t.Instrument, &direction, &t.Quantity, &t.EntryTime, &t.ExitTime,
			&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.PnLPercent, &commission, &tax, &slippage); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		t.Direction = models.Side(direction)
		t.Costs = models.NewCostBreakdown(commission, tax, slippage)
		t.Hold = t.ExitTime.Sub(t.EntryTime)
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// ListRuns retrieves run summaries, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context, strategy string, limit int) ([]RunRecord, error) {
	query := "SELECT id, created_at, strategy, instrument, bars, total_return, sharpe, max_drawdown, trade_count FROM runs WHERE 1=1"
	args := []interface{}{}

	if strategy != "" {
		query += " AND strategy = ?"
		args = append(args, strategy)
	}

	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Strategy, &r.Instrument, &r.Bars,
			&r.TotalReturn, &r.Sharpe, &r.MaxDrawdown, &r.TradeCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}
