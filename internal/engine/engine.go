package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"energyEngine/internal/domain"
	"energyEngine/internal/policy"
	"energyEngine/internal/ports"
)

// Engine owns a registry of trade sessions and advances them bar by bar.
// Closed sessions stay in the registry so their status remains queryable.
type Engine struct {
	cfg    Config
	policy ports.ExitPolicy
	logger ports.Logger

	mu       sync.Mutex // Protects sessions
	sessions map[string]*domain.TradeSession
}

// New validates cfg and creates an engine. A nil exitPolicy selects the threshold policy.
func New(cfg Config, exitPolicy ports.ExitPolicy, logger ports.Logger) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exitPolicy == nil {
		exitPolicy = policy.NewThresholdEnergyPolicy(cfg.ExitOnActivationBar)
	}
	return &Engine{
		cfg:      cfg,
		policy:   exitPolicy,
		logger:   logger,
		sessions: make(map[string]*domain.TradeSession),
	}, nil
}

// Config returns the engine constants.
func (e *Engine) Config() Config {
	return e.cfg
}

// Policy returns the exit policy governing this engine.
func (e *Engine) Policy() ports.ExitPolicy {
	return e.policy
}

// OpenPosition registers a new ACTIVE session with the default stop distance.
func (e *Engine) OpenPosition(ctx context.Context, tradeID string, direction domain.Direction, entryPrice float64, entryTime time.Time) (*domain.TradeSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.sessions[tradeID]; exists {
		return nil, fmt.Errorf("open %s: %w", tradeID, ports.ErrDuplicateTradeID)
	}
	s, err := domain.NewTradeSession(tradeID, direction, entryPrice, entryTime, e.cfg.DefaultStopDistance)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", tradeID, err)
	}
	e.sessions[tradeID] = s

	e.logger.Debug(ctx, "Session opened", map[string]interface{}{
		"tradeID":   tradeID,
		"direction": direction,
		"entry":     entryPrice,
		"stop":      s.StopLevel,
	})
	return s.Clone(), nil
}

// UpdatePosition advances a session by one bar. It returns a non-nil record when the bar closed the session.
func (e *Engine) UpdatePosition(ctx context.Context, tradeID string, bar domain.Bar) (*domain.ExitRecord, error) {
	return e.update(ctx, tradeID, bar, nil)
}

// UpdatePositionWithSignals is UpdatePosition for policies that consume aux signals.
func (e *Engine) UpdatePositionWithSignals(ctx context.Context, tradeID string, bar domain.Bar, aux domain.AuxSignals) (*domain.ExitRecord, error) {
	return e.update(ctx, tradeID, bar, &aux)
}

func (e *Engine) update(ctx context.Context, tradeID string, bar domain.Bar, aux *domain.AuxSignals) (*domain.ExitRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[tradeID]
	if !ok {
		return nil, fmt.Errorf("update %s: %w", tradeID, ports.ErrUnknownTradeID)
	}
	if s.IsClosed() {
		return nil, fmt.Errorf("update %s: %w", tradeID, ports.ErrClosedSession)
	}
	if err := bar.Validate(); err != nil {
		return nil, fmt.Errorf("update %s: %w", tradeID, err)
	}
	if aux == nil && e.policy.RequiresSignals() {
		return nil, fmt.Errorf("update %s with %s: %w", tradeID, e.policy.Name(), ports.ErrMissingSignals)
	}

	s.BarsElapsed++

	e.applyDefense(ctx, s)

	fav, err := s.FavorableExcursion(bar.High, bar.Low)
	if err != nil {
		return nil, err
	}
	adv, err := s.AdverseExcursion(bar.High, bar.Low)
	if err != nil {
		return nil, err
	}
	s.MFE = math.Max(s.MFE, fav)
	s.MAE = math.Max(s.MAE, adv)
	s.LastClose = bar.Close
	s.LastBarTime = bar.Time
	s.CurrentPnL = s.DirectionalPnL(bar.Close)

	sign := s.Direction.Sign()
	if s.State == domain.StateActive && s.MFE >= e.cfg.MFEActivationThreshold {
		s.State = domain.StateTrailing
		s.TrailingActive = true
		s.TrailingStop = s.EntryPrice + sign*(s.MFE-e.cfg.TrailOffset)
		s.ActivatedAtBar = s.BarsElapsed
		e.logger.Debug(ctx, "Trailing activated", map[string]interface{}{
			"tradeID":      tradeID,
			"bar":          s.BarsElapsed,
			"mfe":          s.MFE,
			"trailingStop": s.TrailingStop,
		})
	}

	if s.State == domain.StateTrailing {
		candidate := s.EntryPrice + sign*(s.MFE-e.cfg.TrailOffset)
		if sign*(candidate-s.TrailingStop) > 0 {
			s.TrailingStop = candidate
		}
	}

	shouldExit, cause := e.policy.Evaluate(ctx, s, bar, aux)
	if !shouldExit {
		return nil, nil
	}

	record := e.settle(s, cause, bar)
	e.logger.Info(ctx, "Session closed", map[string]interface{}{
		"tradeID":   tradeID,
		"cause":     record.Cause,
		"exitPrice": record.ExitPrice,
		"pnl":       record.RealizedPnL,
		"bars":      record.BarsElapsed,
		"mfe":       s.MFE,
	})
	out := record
	return &out, nil
}

// applyDefense tightens the hard stop of a stalling trade. It never widens it.
func (e *Engine) applyDefense(ctx context.Context, s *domain.TradeSession) {
	if !e.cfg.DefenseEnabled || s.BarsElapsed < e.cfg.DefenseTriggerBars || s.MFE >= e.cfg.DefenseMFECeiling {
		return
	}
	distance := math.Min(s.StopDistance(), e.cfg.DefenseStopDistance)
	s.StopLevel = s.EntryPrice - s.Direction.Sign()*distance
	if !s.DefenseActive {
		s.DefenseActive = true
		e.logger.Debug(ctx, "Loss defense engaged", map[string]interface{}{
			"tradeID": s.TradeID,
			"bar":     s.BarsElapsed,
			"mfe":     s.MFE,
			"stop":    s.StopLevel,
		})
	}
}

// settle closes s for a policy exit and returns the record.
func (e *Engine) settle(s *domain.TradeSession, cause domain.ExitCause, bar domain.Bar) domain.ExitRecord {
	var price, pnl float64
	switch cause {
	case domain.ExitTrailWin:
		price = s.TrailingStop
		pnl = math.Max(s.DirectionalPnL(price), e.cfg.MinPnLFloor)
	case domain.ExitLoss:
		price = s.StopLevel
		pnl = -s.StopDistance()
	default:
		price = bar.Close
		pnl = s.CurrentPnL
	}
	return e.close(s, cause, price, pnl)
}

// close must be called with e.mu held.
func (e *Engine) close(s *domain.TradeSession, cause domain.ExitCause, price, pnl float64) domain.ExitRecord {
	record := domain.ExitRecord{
		TradeID:     s.TradeID,
		Cause:       cause,
		ExitPrice:   price,
		RealizedPnL: pnl,
		ExitTime:    s.LastBarTime,
		BarsElapsed: s.BarsElapsed,
	}
	s.State = domain.StateClosed
	s.Exit = &record
	e.policy.Release(s.TradeID)
	return record
}

// ClosePosition force-closes an open session at its last known close.
// Used for END_OF_DATA at feed end and for MANUAL closes.
func (e *Engine) ClosePosition(ctx context.Context, tradeID string, cause domain.ExitCause) (domain.ExitRecord, error) {
	if !cause.Valid() {
		return domain.ExitRecord{}, fmt.Errorf("close %s: %w: unknown exit cause %q", tradeID, ports.ErrInvalidRequest, cause)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[tradeID]
	if !ok {
		return domain.ExitRecord{}, fmt.Errorf("close %s: %w", tradeID, ports.ErrUnknownTradeID)
	}
	if s.IsClosed() {
		return domain.ExitRecord{}, fmt.Errorf("close %s: %w", tradeID, ports.ErrClosedSession)
	}

	record := e.close(s, cause, s.LastClose, s.CurrentPnL)
	e.logger.Info(ctx, "Session force-closed", map[string]interface{}{
		"tradeID":   tradeID,
		"cause":     cause,
		"exitPrice": record.ExitPrice,
		"pnl":       record.RealizedPnL,
		"bars":      record.BarsElapsed,
	})
	return record, nil
}

// GetPositionStatus returns the status view of a session, closed sessions included.
func (e *Engine) GetPositionStatus(tradeID string) (domain.PositionStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[tradeID]
	if !ok {
		return domain.PositionStatus{}, fmt.Errorf("status %s: %w", tradeID, ports.ErrUnknownTradeID)
	}
	return s.Status(), nil
}

// Session returns a copy of the full session state.
func (e *Engine) Session(tradeID string) (*domain.TradeSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.sessions[tradeID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", tradeID, ports.ErrUnknownTradeID)
	}
	return s.Clone(), nil
}

// OpenTradeIDs returns the ids of sessions that are not CLOSED, sorted.
func (e *Engine) OpenTradeIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.sessions))
	for id, s := range e.sessions {
		if !s.IsClosed() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered sessions, closed ones included.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}
