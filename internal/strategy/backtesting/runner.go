package backtesting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"energyEngine/internal/domain"
	"energyEngine/internal/engine"
	"energyEngine/internal/ports"
	"energyEngine/internal/risk"
)

const defaultHistoryLimit = 500

// Config holds configuration for a run.
type Config struct {
	Symbol       string
	HistoryLimit int // Prior bars handed to the entry detector; defaults to 500
}

// RunError reports the bar, and the trade when known, where a run failed.
type RunError struct {
	TradeID  string
	BarIndex int
	Err      error
}

func (e *RunError) Error() string {
	if e.TradeID == "" {
		return fmt.Sprintf("bar %d: %v", e.BarIndex, e.Err)
	}
	return fmt.Sprintf("trade %s at bar %d: %v", e.TradeID, e.BarIndex, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Summary holds the headline statistics of a run.
type Summary struct {
	Trades     int
	Wins       int
	Losses     int
	WinRate    float64
	Expectancy float64 // Mean realized PnL per trade
	AvgLoss    float64 // Mean PnL of losing trades, <= 0
	TotalPnL   float64
	ByCause    map[domain.ExitCause]int
}

// Result holds the outcome of a run.
type Result struct {
	RunID         string
	Symbol        string
	Policy        string
	Detector      string
	BarsProcessed int
	Trades        []*domain.Trade
	Exits         []domain.ExitRecord
	Summary       Summary
}

// Runner feeds bars through an entry detector, a risk gate and an engine.
// It is the only component that opens sessions and the only one that force-closes them at feed end.
type Runner struct {
	cfg      Config
	engine   *engine.Engine
	detector ports.EntryDetector
	signals  ports.SignalSource // Optional
	gate     *risk.Gate
	logger   ports.Logger

	runID    string
	nextID   int
	barIndex int
	history  []domain.Bar
	open     map[string]domain.Direction
	result   Result
	finished bool
}

// NewRunner creates a runner. A nil gate admits every entry; a nil signal source sends no aux signals.
func NewRunner(cfg Config, eng *engine.Engine, detector ports.EntryDetector, signals ports.SignalSource, gate *risk.Gate, logger ports.Logger) (*Runner, error) {
	if eng == nil || detector == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Runner")
	}
	if eng.Policy().RequiresSignals() && signals == nil {
		return nil, fmt.Errorf("%w: policy %s needs a signal source", ports.ErrMissingSignals, eng.Policy().Name())
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.HistoryLimit < detector.RequiredHistory() {
		cfg.HistoryLimit = detector.RequiredHistory()
	}
	if gate == nil {
		gate = risk.NewGate(risk.Config{})
	}
	runID := uuid.NewString()
	return &Runner{
		cfg:      cfg,
		engine:   eng,
		detector: detector,
		signals:  signals,
		gate:     gate,
		logger:   logger,
		runID:    runID,
		history:  make([]domain.Bar, 0, cfg.HistoryLimit+1),
		open:     make(map[string]domain.Direction),
		result: Result{
			RunID:    runID,
			Symbol:   cfg.Symbol,
			Policy:   eng.Policy().Name(),
			Detector: detector.Name(),
		},
	}, nil
}

// RunID returns the identifier stamped on every trade of this run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run processes bars in order and force-closes whatever is still open at the end.
func (r *Runner) Run(ctx context.Context, bars []domain.Bar) (*Result, error) {
	r.logger.Info(ctx, "Starting backtest run", map[string]interface{}{
		"runID":    r.runID,
		"symbol":   r.cfg.Symbol,
		"bars":     len(bars),
		"policy":   r.result.Policy,
		"detector": r.result.Detector,
	})
	for _, bar := range bars {
		if _, err := r.Step(ctx, bar); err != nil {
			return nil, err
		}
	}
	if _, err := r.Finish(ctx); err != nil {
		return nil, err
	}
	res := r.Result()
	r.logger.Info(ctx, "Backtest run finished", map[string]interface{}{
		"runID":    r.runID,
		"trades":   res.Summary.Trades,
		"winRate":  res.Summary.WinRate,
		"totalPnL": res.Summary.TotalPnL,
	})
	return res, nil
}

// Step processes one bar: signals, entry detection, then an update of every open session.
// It returns the trades closed on this bar.
func (r *Runner) Step(ctx context.Context, bar domain.Bar) ([]*domain.Trade, error) {
	if r.finished {
		return nil, &RunError{BarIndex: r.barIndex, Err: errors.New("runner already finished")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &RunError{BarIndex: r.barIndex, Err: fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)}
	}
	if err := bar.Validate(); err != nil {
		return nil, &RunError{BarIndex: r.barIndex, Err: err}
	}

	var aux domain.AuxSignals
	if r.signals != nil {
		aux = r.signals.Next(ctx, bar)
	}

	if dir := r.detector.DetectEntry(ctx, bar, r.history); dir != nil {
		if err := r.openSession(ctx, *dir, bar); err != nil {
			return nil, err
		}
	}

	var closed []*domain.Trade
	for _, id := range r.openIDs() {
		var (
			rec *domain.ExitRecord
			err error
		)
		if r.signals != nil {
			rec, err = r.engine.UpdatePositionWithSignals(ctx, id, bar, aux)
		} else {
			rec, err = r.engine.UpdatePosition(ctx, id, bar)
		}
		if err != nil {
			return nil, &RunError{TradeID: id, BarIndex: r.barIndex, Err: err}
		}
		if rec != nil {
			trade, err := r.record(id, *rec)
			if err != nil {
				return nil, &RunError{TradeID: id, BarIndex: r.barIndex, Err: err}
			}
			closed = append(closed, trade)
		}
	}

	r.pushHistory(bar)
	r.barIndex++
	r.result.BarsProcessed++
	return closed, nil
}

func (r *Runner) pushHistory(bar domain.Bar) {
	r.history = append(r.history, bar)
	if len(r.history) > r.cfg.HistoryLimit {
		r.history = append(r.history[:0], r.history[len(r.history)-r.cfg.HistoryLimit:]...)
	}
}

func (r *Runner) openSession(ctx context.Context, dir domain.Direction, bar domain.Bar) error {
	if err := r.gate.CheckEntry(ctx, dir, r.barIndex, bar.Time); err != nil {
		r.logger.Debug(ctx, "Entry skipped", map[string]interface{}{
			"bar":       r.barIndex,
			"direction": dir,
			"reason":    err.Error(),
		})
		return nil
	}
	r.nextID++
	id := "T" + strconv.Itoa(r.nextID)
	if _, err := r.engine.OpenPosition(ctx, id, dir, bar.Close, bar.Time); err != nil {
		return &RunError{TradeID: id, BarIndex: r.barIndex, Err: err}
	}
	r.gate.RecordOpen(dir, r.barIndex, bar.Time)
	r.open[id] = dir
	return nil
}

// record turns a closed session into a trade and releases its slot.
func (r *Runner) record(id string, rec domain.ExitRecord) (*domain.Trade, error) {
	s, err := r.engine.Session(id)
	if err != nil {
		return nil, err
	}
	trade := domain.NewTradeFromSession(r.runID, r.cfg.Symbol, r.result.Policy, s)
	r.gate.RecordClose(r.open[id], rec.RealizedPnL, rec.ExitTime)
	delete(r.open, id)
	r.result.Trades = append(r.result.Trades, trade)
	r.result.Exits = append(r.result.Exits, rec)
	return trade, nil
}

// Finish force-closes every open session with END_OF_DATA at its last close.
// No further bars are accepted afterwards.
func (r *Runner) Finish(ctx context.Context) ([]*domain.Trade, error) {
	var closed []*domain.Trade
	for _, id := range r.openIDs() {
		rec, err := r.engine.ClosePosition(ctx, id, domain.ExitEndOfData)
		if err != nil {
			return nil, &RunError{TradeID: id, BarIndex: r.barIndex, Err: err}
		}
		trade, err := r.record(id, rec)
		if err != nil {
			return nil, &RunError{TradeID: id, BarIndex: r.barIndex, Err: err}
		}
		closed = append(closed, trade)
	}
	r.finished = true
	return closed, nil
}

// Warm seeds the detector history and the signal source with bars that precede the feed.
// No sessions are opened and the bars do not count as processed.
func (r *Runner) Warm(ctx context.Context, bars []domain.Bar) error {
	if r.finished {
		return errors.New("runner already finished")
	}
	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			return fmt.Errorf("warm-up bar %d: %w", i, err)
		}
		if r.signals != nil {
			r.signals.Next(ctx, bar)
		}
		r.pushHistory(bar)
	}
	return nil
}

// Session returns a snapshot of a session opened by this runner.
func (r *Runner) Session(tradeID string) (*domain.TradeSession, error) {
	return r.engine.Session(tradeID)
}

// OpenTradeIDs returns the ids of the sessions this runner still holds open, sorted.
func (r *Runner) OpenTradeIDs() []string {
	return r.openIDs()
}

func (r *Runner) openIDs() []string {
	ids := make([]string, 0, len(r.open))
	for id := range r.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Result returns the trades so far together with their summary.
func (r *Runner) Result() *Result {
	res := r.result
	res.Trades = append([]*domain.Trade(nil), r.result.Trades...)
	res.Exits = append([]domain.ExitRecord(nil), r.result.Exits...)
	res.Summary = Summarize(res.Trades)
	return &res
}

// Summarize computes the headline statistics of trades. Sums are exact decimals.
func Summarize(trades []*domain.Trade) Summary {
	s := Summary{
		Trades:  len(trades),
		ByCause: make(map[domain.ExitCause]int),
	}
	total := decimal.Zero
	lossSum := decimal.Zero
	for _, t := range trades {
		pnl := decimal.NewFromFloat(t.PNL)
		total = total.Add(pnl)
		if t.IsWin() {
			s.Wins++
		} else {
			s.Losses++
			lossSum = lossSum.Add(pnl)
		}
		s.ByCause[t.ExitCause]++
	}
	s.TotalPnL = total.InexactFloat64()
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
		s.Expectancy = total.Div(decimal.NewFromInt(int64(s.Trades))).InexactFloat64()
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum.Div(decimal.NewFromInt(int64(s.Losses))).InexactFloat64()
	}
	return s
}
