// Package store persists backtest results: a SQLite database holding runs,
// trades, and equity curves, plus CSV and JSON exports for downstream
// analysis.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/franalgaba/hyperliquid-backtesting/pkg/types"
)

// Store wraps the results database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the results database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open results db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping results db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate results db: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			coin              TEXT NOT NULL,
			start_ts_ms       INTEGER NOT NULL,
			end_ts_ms         INTEGER NOT NULL,
			initial_cash      REAL NOT NULL,
			final_equity      REAL NOT NULL,
			total_return      REAL NOT NULL,
			annualized_return REAL NOT NULL,
			sharpe_ratio      REAL NOT NULL,
			sortino_ratio     REAL NOT NULL,
			max_drawdown      REAL NOT NULL,
			win_rate          REAL NOT NULL,
			trade_count       INTEGER NOT NULL,
			fees_paid         REAL NOT NULL,
			funding_paid      REAL NOT NULL,
			event_count       INTEGER NOT NULL,
			started_at        TEXT NOT NULL,
			finished_at       TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS trades (
			run_id   TEXT NOT NULL REFERENCES runs(run_id),
			ts_ms    INTEGER NOT NULL,
			symbol   TEXT NOT NULL,
			side     TEXT NOT NULL,
			size     REAL NOT NULL,
			price    REAL NOT NULL,
			fee      REAL NOT NULL,
			order_id INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, ts_ms);
		CREATE TABLE IF NOT EXISTS equity (
			run_id         TEXT NOT NULL REFERENCES runs(run_id),
			ts_ms          INTEGER NOT NULL,
			equity         REAL NOT NULL,
			cash           REAL NOT NULL,
			position_value REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, ts_ms);
	`)
	return err
}

// SaveResult persists a full run (summary row, trades, equity curve) in one
// transaction.
func (s *Store) SaveResult(res *types.SimResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs (
			run_id, coin, start_ts_ms, end_ts_ms, initial_cash, final_equity,
			total_return, annualized_return, sharpe_ratio, sortino_ratio,
			max_drawdown, win_rate, trade_count, fees_paid, funding_paid,
			event_count, started_at, finished_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		res.RunID, res.Coin, res.StartTsMs, res.EndTsMs, res.InitialCash, res.FinalEquity,
		res.Metrics.TotalReturn, res.Metrics.AnnualizedReturn, res.Metrics.SharpeRatio,
		res.Metrics.SortinoRatio, res.Metrics.MaxDrawdown, res.Metrics.WinRate,
		res.Metrics.TradeCount, res.Metrics.FeesPaid, res.Metrics.FundingPaid,
		res.EventCount, res.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		res.FinishedAt.UTC().Format("2006-01-02T15:04:05Z"),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	tradeStmt, err := tx.Prepare(`INSERT INTO trades (run_id, ts_ms, symbol, side, size, price, fee, order_id)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare trades: %w", err)
	}
	defer tradeStmt.Close()
	for _, t := range res.Trades {
		if _, err := tradeStmt.Exec(res.RunID, t.TsMs, t.Symbol, string(t.Side), t.Size, t.Price, t.Fee, t.OrderID); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	eqStmt, err := tx.Prepare(`INSERT INTO equity (run_id, ts_ms, equity, cash, position_value)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare equity: %w", err)
	}
	defer eqStmt.Close()
	for _, p := range res.EquityCurve {
		if _, err := eqStmt.Exec(res.RunID, p.TsMs, p.Equity, p.Cash, p.PositionValue); err != nil {
			return fmt.Errorf("insert equity: %w", err)
		}
	}

	return tx.Commit()
}

// LoadTrades reads a run's trade log back in execution order.
func (s *Store) LoadTrades(runID string) ([]types.Trade, error) {
	rows, err := s.db.Query(`SELECT ts_ms, symbol, side, size, price, fee, order_id
		FROM trades WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []types.Trade
	for rows.Next() {
		var t types.Trade
		var side string
		if err := rows.Scan(&t.TsMs, &t.Symbol, &side, &t.Size, &t.Price, &t.Fee, &t.OrderID); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = types.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadEquity reads a run's equity curve back in time order.
func (s *Store) LoadEquity(runID string) ([]types.EquityPoint, error) {
	rows, err := s.db.Query(`SELECT ts_ms, equity, cash, position_value
		FROM equity WHERE run_id = ? ORDER BY ts_ms`, runID)
	if err != nil {
		return nil, fmt.Errorf("query equity: %w", err)
	}
	defer rows.Close()

	var out []types.EquityPoint
	for rows.Next() {
		var p types.EquityPoint
		if err := rows.Scan(&p.TsMs, &p.Equity, &p.Cash, &p.PositionValue); err != nil {
			return nil, fmt.Errorf("scan equity: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListRuns returns the ids of stored runs, newest first.
func (s *Store) ListRuns() ([]string, error) {
	rows, err := s.db.Query(`SELECT run_id FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
