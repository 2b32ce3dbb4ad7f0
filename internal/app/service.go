package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"energyEngine/internal/domain"
	"energyEngine/internal/ports"
	"energyEngine/internal/strategy/backtesting"
)

const defaultWarmupBars = 500

// PaperConfig holds the live feed settings.
type PaperConfig struct {
	Symbol          string
	Interval        string
	WarmupBars      int           // History fetched before streaming; at least the detector's requirement
	ShutdownTimeout time.Duration // Wait for the stream to close on shutdown
}

// PaperService drives a runner from a live bar stream. It only simulates; no orders are sent.
type PaperService struct {
	cfg      PaperConfig
	logger   ports.Logger
	source   ports.BarSource
	runner   *backtesting.Runner
	runs     ports.RunRepository
	trades   ports.TradeRepository
	sessions ports.SessionRepository // Optional

	// State fields
	mu       sync.Mutex // Serialises bar handling and shutdown
	lastTime time.Time
	closed   []*domain.Trade
	runErr   error         // First runner failure; no bars are stepped after it
	abort    chan struct{} // Closed when runErr is set
	now      func() time.Time
}

// NewPaperService creates a new paper trading service instance.
func NewPaperService(
	cfg PaperConfig,
	logger ports.Logger,
	source ports.BarSource,
	runner *backtesting.Runner,
	runs ports.RunRepository,
	trades ports.TradeRepository,
	sessions ports.SessionRepository,
) (*PaperService, error) {
	if logger == nil || source == nil || runner == nil || runs == nil || trades == nil {
		return nil, fmt.Errorf("missing required dependencies for PaperService")
	}
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("%w: symbol and interval are required", ports.ErrInvalidConfiguration)
	}
	if cfg.WarmupBars <= 0 {
		cfg.WarmupBars = defaultWarmupBars
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &PaperService{
		cfg:      cfg,
		logger:   logger,
		source:   source,
		runner:   runner,
		runs:     runs,
		trades:   trades,
		sessions: sessions,
		abort:    make(chan struct{}),
		now:      time.Now,
	}, nil
}

// Start warms the runner, streams final bars until ctx is cancelled, a shutdown signal
// arrives, the stream ends or the runner fails, then force-closes whatever is still open.
// A runner failure is returned wrapping the *backtesting.RunError.
func (s *PaperService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting paper service...", map[string]interface{}{"symbol": s.cfg.Symbol, "interval": s.cfg.Interval})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.source.Ping(ctx); err != nil {
		return fmt.Errorf("exchange not reachable: %w", err)
	}

	head := s.runner.Result()
	run := &ports.Run{
		ID:        s.runner.RunID(),
		Mode:      ModePaper,
		Symbol:    s.cfg.Symbol,
		Policy:    head.Policy,
		Detector:  head.Detector,
		StartedAt: s.now(),
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	if err := s.warm(ctx); err != nil {
		return err
	}

	doneCh, stopCh, err := s.source.StreamBars(ctx, s.cfg.Symbol, s.cfg.Interval, func(bar domain.Bar) {
		s.HandleBar(ctx, bar)
	}, s.handleStreamError)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start bar stream")
		return fmt.Errorf("failed to start bar stream: %w", err)
	}
	s.logger.Info(ctx, "Bar stream started", map[string]interface{}{"runID": run.ID})

	var streamErr error
	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Shutdown requested, stopping bar stream...")
		s.stopStream(ctx, stopCh, doneCh)
	case <-s.abort:
		s.logger.Warn(ctx, "Run failed, stopping bar stream...")
		s.stopStream(ctx, stopCh, doneCh)
	case <-doneCh:
		streamErr = fmt.Errorf("bar stream stopped unexpectedly: %w", ports.ErrExchangeUnavailable)
		s.logger.Error(ctx, streamErr, "Bar stream stopped")
	}
	s.mu.Lock()
	if s.runErr != nil {
		streamErr = fmt.Errorf("paper run aborted: %w", s.runErr)
	}
	s.mu.Unlock()

	if err := s.shutdown(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(streamErr, err)
	}
	s.logger.Info(ctx, "Paper service stopped.")
	return streamErr
}

func (s *PaperService) stopStream(ctx context.Context, stopCh, doneCh chan struct{}) {
	close(stopCh)
	select {
	case <-doneCh:
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn(ctx, "Timeout waiting for bar stream to shut down")
	}
}

// warm loads the most recent closed bars into the runner.
func (s *PaperService) warm(ctx context.Context) error {
	bars, err := s.source.GetBars(ctx, s.cfg.Symbol, s.cfg.Interval, s.cfg.WarmupBars)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load warm-up bars")
		return fmt.Errorf("failed to load warm-up bars: %w", err)
	}
	final := bars[:0:0]
	for _, b := range bars {
		if b.IsFinal {
			final = append(final, b)
		}
	}
	if err := s.runner.Warm(ctx, final); err != nil {
		return fmt.Errorf("warming runner: %w", err)
	}
	s.mu.Lock()
	if len(final) > 0 {
		s.lastTime = final[len(final)-1].Time
	}
	s.mu.Unlock()
	s.logger.Info(ctx, "Loaded warm-up bars", map[string]interface{}{"count": len(final)})
	return nil
}

// HandleBar steps the runner with one final bar and persists what changed.
// Bars at or before the last processed time are ignored. A runner failure stops the run:
// it is kept for Start to return and every later bar is dropped.
func (s *PaperService) HandleBar(ctx context.Context, bar domain.Bar) {
	if !bar.IsFinal {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runErr != nil {
		return
	}
	if !s.lastTime.IsZero() && !bar.Time.After(s.lastTime) {
		s.logger.Debug(ctx, "Skipping stale bar", map[string]interface{}{"time": bar.Time})
		return
	}

	closed, err := s.runner.Step(ctx, bar)
	if err != nil {
		if errors.Is(err, ports.ErrContextCanceled) {
			// Shutdown is already under way.
			return
		}
		s.logger.Error(ctx, err, "Failed to process bar, aborting run", map[string]interface{}{"time": bar.Time, "close": bar.Close})
		s.runErr = err
		close(s.abort)
		return
	}
	s.lastTime = bar.Time
	s.record(ctx, closed)
	s.snapshotOpen(ctx)
}

func (s *PaperService) record(ctx context.Context, closed []*domain.Trade) {
	for _, t := range closed {
		s.logger.Info(ctx, "Paper trade closed", map[string]interface{}{
			"tradeID": t.TradeID,
			"cause":   t.ExitCause,
			"pnl":     t.PNL,
			"bars":    t.BarsHeld,
		})
	}
	s.closed = append(s.closed, closed...)
	if err := persistTrades(ctx, s.trades, s.sessions, s.runner, closed); err != nil {
		s.logger.Error(ctx, err, "Failed to persist closed trades")
	}
}

func (s *PaperService) snapshotOpen(ctx context.Context) {
	if s.sessions == nil {
		return
	}
	for _, id := range s.runner.OpenTradeIDs() {
		if err := saveSession(ctx, s.sessions, s.runner, id); err != nil {
			s.logger.Error(ctx, err, "Failed to persist open session", map[string]interface{}{"tradeID": id})
		}
	}
}

// shutdown force-closes open sessions with END_OF_DATA and finishes the run row.
func (s *PaperService) shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed, err := s.runner.Finish(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to close open sessions")
		return err
	}
	s.record(ctx, closed)

	res := s.runner.Result()
	if err := s.runs.FinishRun(ctx, s.runner.RunID(), s.now(), res.BarsProcessed); err != nil {
		s.logger.Error(ctx, err, "Failed to finish run")
		return err
	}
	s.logger.Info(ctx, "Paper run summary", map[string]interface{}{
		"runID":    s.runner.RunID(),
		"bars":     res.BarsProcessed,
		"trades":   res.Summary.Trades,
		"winRate":  res.Summary.WinRate,
		"totalPnL": res.Summary.TotalPnL,
	})
	return nil
}

// handleStreamError logs errors reported by the stream. Reconnection is the adapter's job.
func (s *PaperService) handleStreamError(err error) {
	s.logger.Error(context.Background(), err, "Bar stream error reported")
}

// ClosedTrades returns the trades closed so far.
func (s *PaperService) ClosedTrades() []*domain.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Trade(nil), s.closed...)
}
