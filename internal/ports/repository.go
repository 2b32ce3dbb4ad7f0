package ports

import (
	"context"
	"time"

	"energyEngine/internal/domain"
)

// Run describes one backtest or paper session over a bar feed.
type Run struct {
	ID         string
	Mode       string // "backtest" or "paper"
	Symbol     string
	Policy     string
	Detector   string
	StartedAt  time.Time
	FinishedAt time.Time // Zero while running
	Bars       int
}

// RunRepository stores run metadata.
type RunRepository interface {
	// CreateRun saves a new run.
	CreateRun(ctx context.Context, run *Run) error
	// FinishRun records the end time and processed bar count.
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, bars int) error
	// FindRun retrieves a run by id. Returns nil, nil if not found.
	FindRun(ctx context.Context, runID string) (*Run, error)
	// LatestRun retrieves the most recently started run. Returns nil, nil if none exist.
	LatestRun(ctx context.Context) (*Run, error)
}

// TradeRepository defines the interface for storing and retrieving closed trades.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindByRun retrieves all trades of a run ordered by exit time.
	FindByRun(ctx context.Context, runID string) ([]*domain.Trade, error)
	// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
}

// SessionRepository stores snapshots of trade sessions.
type SessionRepository interface {
	// SaveSession inserts or replaces the snapshot for (runID, session.TradeID).
	SaveSession(ctx context.Context, runID string, session *domain.TradeSession) error
	// FindSession retrieves a snapshot. Returns nil, nil if not found.
	FindSession(ctx context.Context, runID, tradeID string) (*domain.TradeSession, error)
	// FindOpenSessions retrieves the snapshots of a run that are not CLOSED.
	FindOpenSessions(ctx context.Context, runID string) ([]*domain.TradeSession, error)
}
