package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"energyEngine/internal/domain"
	"energyEngine/internal/ports"
	"energyEngine/internal/strategy/analytics"
	"energyEngine/internal/strategy/backtesting"
)

const (
	ModeBacktest = "backtest"
	ModePaper    = "paper"
)

// BacktestService runs a bar series through a runner and records the outcome.
type BacktestService struct {
	logger   ports.Logger
	runs     ports.RunRepository
	trades   ports.TradeRepository
	sessions ports.SessionRepository // Optional
	now      func() time.Time
}

// NewBacktestService creates a backtest service. sessions may be nil to skip snapshots.
func NewBacktestService(logger ports.Logger, runs ports.RunRepository, trades ports.TradeRepository, sessions ports.SessionRepository) (*BacktestService, error) {
	if logger == nil || runs == nil || trades == nil {
		return nil, fmt.Errorf("missing required dependencies for BacktestService")
	}
	return &BacktestService{logger: logger, runs: runs, trades: trades, sessions: sessions, now: time.Now}, nil
}

// Run records a run row, processes bars, persists every closed trade with its final
// session snapshot and marks the run finished.
func (s *BacktestService) Run(ctx context.Context, runner *backtesting.Runner, bars []domain.Bar) (*backtesting.Result, error) {
	head := runner.Result()
	run := &ports.Run{
		ID:        runner.RunID(),
		Mode:      ModeBacktest,
		Symbol:    head.Symbol,
		Policy:    head.Policy,
		Detector:  head.Detector,
		StartedAt: s.now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	res, err := runner.Run(ctx, bars)
	if err != nil {
		s.logger.Error(ctx, err, "Backtest aborted", map[string]interface{}{"runID": run.ID})
		return nil, err
	}

	if err := persistTrades(ctx, s.trades, s.sessions, runner, res.Trades); err != nil {
		return nil, err
	}
	if err := s.runs.FinishRun(ctx, run.ID, s.now(), res.BarsProcessed); err != nil {
		return nil, fmt.Errorf("finishing run %s: %w", run.ID, err)
	}

	s.logger.Info(ctx, "Backtest summary", map[string]interface{}{
		"runID":      run.ID,
		"bars":       res.BarsProcessed,
		"trades":     res.Summary.Trades,
		"wins":       res.Summary.Wins,
		"winRate":    res.Summary.WinRate,
		"expectancy": res.Summary.Expectancy,
		"avgLoss":    res.Summary.AvgLoss,
		"totalPnL":   res.Summary.TotalPnL,
	})
	return res, nil
}

// RunAgainstBaseline runs runner through Run and baseline, typically the same setup with loss
// defense disabled, over the same bars in parallel. Only runner's results are persisted.
// The comparison reports runner minus baseline.
func (s *BacktestService) RunAgainstBaseline(ctx context.Context, runner, baseline *backtesting.Runner, bars []domain.Bar) (*backtesting.Result, analytics.Comparison, error) {
	var res, baseRes *backtesting.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res, err = s.Run(gctx, runner, bars)
		return err
	})
	g.Go(func() error {
		var err error
		baseRes, err = baseline.Run(gctx, bars)
		if err != nil {
			return fmt.Errorf("baseline run: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, analytics.Comparison{}, err
	}

	cmp := analytics.Compare(baseRes.Trades, res.Trades)
	s.logger.Info(ctx, "Baseline comparison", map[string]interface{}{
		"status":       cmp.Status,
		"winRateDiff":  cmp.WinRateDiff,
		"evDiff":       cmp.EVDiff,
		"avgLossDiff":  cmp.AvgLossDiff,
		"totalPnLDiff": cmp.TotalPnLDiff,
	})
	return res, cmp, nil
}

// persistTrades stores trades and, when a session repository is set, their session snapshots.
func persistTrades(ctx context.Context, trades ports.TradeRepository, sessions ports.SessionRepository, runner *backtesting.Runner, closed []*domain.Trade) error {
	for _, t := range closed {
		if _, err := trades.CreateTrade(ctx, t); err != nil {
			return fmt.Errorf("persisting trade %s: %w", t.TradeID, err)
		}
		if sessions == nil {
			continue
		}
		if err := saveSession(ctx, sessions, runner, t.TradeID); err != nil {
			return err
		}
	}
	return nil
}

func saveSession(ctx context.Context, sessions ports.SessionRepository, runner *backtesting.Runner, tradeID string) error {
	snap, err := runner.Session(tradeID)
	if err != nil {
		return fmt.Errorf("snapshot of %s: %w", tradeID, err)
	}
	if err := sessions.SaveSession(ctx, runner.RunID(), snap); err != nil {
		return fmt.Errorf("persisting session %s: %w", tradeID, err)
	}
	return nil
}
