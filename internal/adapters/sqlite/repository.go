package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"energyEngine/internal/domain"
	"energyEngine/internal/ports"

	"github.com/mattn/go-sqlite3"
)

// Repository implements the run, trade and session repositories using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

var (
	_ ports.RunRepository     = (*Repository)(nil)
	_ ports.TradeRepository   = (*Repository)(nil)
	_ ports.SessionRepository = (*Repository)(nil)
)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/energy_engine.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serialises writers from the paper loop and the runner.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		symbol TEXT NOT NULL,
		policy TEXT NOT NULL,
		detector TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP DEFAULT NULL,
		bars INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		trade_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		policy TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		exit_time TIMESTAMP NOT NULL,
		pnl REAL NOT NULL,
		exit_cause TEXT NOT NULL,
		mfe REAL NOT NULL,
		mae REAL NOT NULL,
		bars_held INTEGER NOT NULL,
		UNIQUE (run_id, trade_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		run_id TEXT NOT NULL,
		trade_id TEXT NOT NULL,
		state TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, trade_id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);
	CREATE INDEX IF NOT EXISTS idx_trades_run_exit_time ON trades (run_id, exit_time);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_exit_time ON trades (symbol, exit_time);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// classify maps driver errors onto the port errors.
func classify(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %w", ports.ErrDuplicateEntry, err)
		}
	}
	return fmt.Errorf("%w: %w", ports.ErrQueryFailed, err)
}

// --- RunRepository Implementation ---

// CreateRun saves a new run.
func (r *Repository) CreateRun(ctx context.Context, run *ports.Run) error {
	const query = `
	INSERT INTO runs (id, mode, symbol, policy, detector, started_at, bars)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query, run.ID, run.Mode, run.Symbol, run.Policy, run.Detector, run.StartedAt.UTC(), run.Bars)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, classify(err))
	}
	r.logger.Debug(ctx, "Run created", map[string]interface{}{"runID": run.ID, "mode": run.Mode})
	return nil
}

// FinishRun records the end time and processed bar count.
func (r *Repository) FinishRun(ctx context.Context, runID string, finishedAt time.Time, bars int) error {
	const query = `UPDATE runs SET finished_at = ?, bars = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, finishedAt.UTC(), bars, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, classify(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for run %s: %w", runID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("run %s not found: %w", runID, ports.ErrNotFound)
	}
	return nil
}

const runColumns = `id, mode, symbol, policy, detector, started_at, finished_at, bars`

// FindRun retrieves a run by id. Returns nil, nil if not found.
func (r *Repository) FindRun(ctx context.Context, runID string) (*ports.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	return run, nil
}

// LatestRun retrieves the most recently started run. Returns nil, nil if none exist.
func (r *Repository) LatestRun(ctx context.Context) (*ports.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return run, nil
}

// --- TradeRepository Implementation ---

const tradeColumns = `id, run_id, trade_id, symbol, direction, policy, entry_price, exit_price,
	       entry_time, exit_time, pnl, exit_cause, mfe, mae, bars_held`

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (run_id, trade_id, symbol, direction, policy, entry_price, exit_price,
	                    entry_time, exit_time, pnl, exit_cause, mfe, mae, bars_held)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.RunID, trade.TradeID, trade.Symbol, string(trade.Direction), trade.Policy,
		trade.EntryPrice, trade.ExitPrice, trade.EntryTime.UTC(), trade.ExitTime.UTC(),
		trade.PNL, string(trade.ExitCause), trade.MFE, trade.MAE, trade.BarsHeld)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade %s of run %s: %w", trade.TradeID, trade.RunID, classify(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.TradeID, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"id": id, "tradeID": trade.TradeID, "pnl": trade.PNL})
	return id, nil
}

// FindByRun retrieves all trades of a run ordered by exit time.
func (r *Repository) FindByRun(ctx context.Context, runID string) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE run_id = ? ORDER BY exit_time, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades of run %s: %w", runID, err)
	}
	return collectTrades(rows)
}

// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE symbol = ? ORDER BY exit_time DESC, id DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for symbol %s: %w", symbol, err)
	}
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// --- SessionRepository Implementation ---

// SaveSession inserts or replaces the snapshot for (runID, session.TradeID).
func (r *Repository) SaveSession(ctx context.Context, runID string, session *domain.TradeSession) error {
	const query = `
	INSERT INTO sessions (run_id, trade_id, state, snapshot, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (run_id, trade_id) DO UPDATE SET
		state = excluded.state,
		snapshot = excluded.snapshot,
		updated_at = excluded.updated_at`

	snapshot, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", session.TradeID, err)
	}
	_, err = r.db.ExecContext(ctx, query, runID, session.TradeID, string(session.State), string(snapshot), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save session %s of run %s: %w", session.TradeID, runID, classify(err))
	}
	return nil
}

// FindSession retrieves a snapshot. Returns nil, nil if not found.
func (r *Repository) FindSession(ctx context.Context, runID, tradeID string) (*domain.TradeSession, error) {
	var snapshot string
	err := r.db.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE run_id = ? AND trade_id = ?`, runID, tradeID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s of run %s: %w", tradeID, runID, err)
	}
	return decodeSession(snapshot)
}

// FindOpenSessions retrieves the snapshots of a run that are not CLOSED.
func (r *Repository) FindOpenSessions(ctx context.Context, runID string) ([]*domain.TradeSession, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT snapshot FROM sessions WHERE run_id = ? AND state != ? ORDER BY trade_id`, runID, string(domain.StateClosed))
	if err != nil {
		return nil, fmt.Errorf("failed to query open sessions of run %s: %w", runID, err)
	}
	defer rows.Close()

	sessions := make([]*domain.TradeSession, 0)
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s, err := decodeSession(snapshot)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}
	return sessions, nil
}

func decodeSession(snapshot string) (*domain.TradeSession, error) {
	var s domain.TradeSession
	if err := json.Unmarshal([]byte(snapshot), &s); err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	return &s, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*ports.Run, error) {
	run := &ports.Run{}
	var finishedAt sql.NullTime
	if err := s.Scan(&run.ID, &run.Mode, &run.Symbol, &run.Policy, &run.Detector, &run.StartedAt, &finishedAt, &run.Bars); err != nil {
		return nil, err
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return run, nil
}

func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var direction, cause string
	err := s.Scan(
		&t.ID, &t.RunID, &t.TradeID, &t.Symbol, &direction, &t.Policy, &t.EntryPrice, &t.ExitPrice,
		&t.EntryTime, &t.ExitTime, &t.PNL, &cause, &t.MFE, &t.MAE, &t.BarsHeld)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	t.ExitCause = domain.ExitCause(cause)
	return t, nil
}
