package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"energyEngine/internal/domain"
)

// ErrEntryRejected is wrapped by every CheckEntry refusal.
var ErrEntryRejected = errors.New("entry rejected by risk gate")

// Rejection reasons, also used as keys of Stats.Rejections.
const (
	ReasonMaxOpen      = "max_open_sessions"
	ReasonMaxDirection = "max_open_per_direction"
	ReasonCooldown     = "cooldown"
	ReasonDailyLoss    = "daily_loss"
	ReasonDailyTrades  = "daily_trades"
)

// Config holds the entry gate limits. Zero disables a limit.
type Config struct {
	MaxOpenSessions     int     `yaml:"max_open_sessions"`      // Concurrent sessions across both directions
	MaxOpenPerDirection int     `yaml:"max_open_per_direction"` // Concurrent sessions per direction
	CooldownBars        int     `yaml:"cooldown_bars"`          // Bars that must pass after an entry before the next one
	MaxDailyLoss        float64 `yaml:"max_daily_loss"`         // Realized loss per UTC day, in price units, that stops new entries
	MaxDailyTrades      int     `yaml:"max_daily_trades"`       // Entries per UTC day
}

// DefaultConfig allows one session at a time with a ten bar cooldown.
func DefaultConfig() Config {
	return Config{
		MaxOpenSessions:     1,
		MaxOpenPerDirection: 1,
		CooldownBars:        10,
	}
}

// Stats holds entry gate statistics
type Stats struct {
	OpenSessions int
	OpenLong     int
	OpenShort    int
	DailyPnL     float64
	DailyTrades  int
	Day          time.Time // UTC day the daily counters belong to
	LastEntryBar int       // -1 before the first entry
	TotalEntries int
	Rejections   map[string]int
}

// Gate decides whether a new session may open.
type Gate struct {
	config Config

	mu    sync.Mutex
	stats Stats
}

// NewGate creates a new gate instance
func NewGate(config Config) *Gate {
	return &Gate{
		config: config,
		stats: Stats{
			LastEntryBar: -1,
			Rejections:   make(map[string]int),
		},
	}
}

// CheckEntry returns nil when a session in direction may open on bar barIndex.
func (g *Gate) CheckEntry(ctx context.Context, direction domain.Direction, barIndex int, barTime time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay(barTime)

	if g.config.MaxOpenSessions > 0 && g.stats.OpenSessions >= g.config.MaxOpenSessions {
		return g.reject(ReasonMaxOpen, "%d sessions open", g.stats.OpenSessions)
	}
	if g.config.MaxOpenPerDirection > 0 && g.openIn(direction) >= g.config.MaxOpenPerDirection {
		return g.reject(ReasonMaxDirection, "%d %s sessions open", g.openIn(direction), direction)
	}
	if g.config.CooldownBars > 0 && g.stats.LastEntryBar >= 0 && barIndex-g.stats.LastEntryBar < g.config.CooldownBars {
		return g.reject(ReasonCooldown, "%d bars since last entry, need %d", barIndex-g.stats.LastEntryBar, g.config.CooldownBars)
	}
	if g.config.MaxDailyLoss > 0 && g.stats.DailyPnL <= -g.config.MaxDailyLoss {
		return g.reject(ReasonDailyLoss, "daily pnl %.2f reached limit %.2f", g.stats.DailyPnL, -g.config.MaxDailyLoss)
	}
	if g.config.MaxDailyTrades > 0 && g.stats.DailyTrades >= g.config.MaxDailyTrades {
		return g.reject(ReasonDailyTrades, "%d entries today", g.stats.DailyTrades)
	}
	return nil
}

// RecordOpen registers a session opened on bar barIndex.
func (g *Gate) RecordOpen(direction domain.Direction, barIndex int, barTime time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay(barTime)
	g.stats.OpenSessions++
	if direction == domain.Short {
		g.stats.OpenShort++
	} else {
		g.stats.OpenLong++
	}
	g.stats.LastEntryBar = barIndex
	g.stats.DailyTrades++
	g.stats.TotalEntries++
}

// RecordClose releases the slot of a closed session and books its PnL.
func (g *Gate) RecordClose(direction domain.Direction, pnl float64, exitTime time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay(exitTime)
	if g.stats.OpenSessions > 0 {
		g.stats.OpenSessions--
	}
	if direction == domain.Short {
		if g.stats.OpenShort > 0 {
			g.stats.OpenShort--
		}
	} else if g.stats.OpenLong > 0 {
		g.stats.OpenLong--
	}
	g.stats.DailyPnL += pnl
}

// ResetDailyStats resets daily statistics
func (g *Gate) ResetDailyStats() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.DailyPnL = 0
	g.stats.DailyTrades = 0
}

// Stats returns a snapshot of the gate statistics.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats
	s.Rejections = make(map[string]int, len(g.stats.Rejections))
	for k, v := range g.stats.Rejections {
		s.Rejections[k] = v
	}
	return s
}

func (g *Gate) openIn(direction domain.Direction) int {
	if direction == domain.Short {
		return g.stats.OpenShort
	}
	return g.stats.OpenLong
}

func (g *Gate) reject(reason, format string, args ...interface{}) error {
	g.stats.Rejections[reason]++
	return fmt.Errorf("%w: %s: %s", ErrEntryRejected, reason, fmt.Sprintf(format, args...))
}

// rollDay resets the daily counters when t falls on a new UTC day. Bars without a timestamp never roll.
func (g *Gate) rollDay(t time.Time) {
	if t.IsZero() {
		return
	}
	day := t.UTC().Truncate(24 * time.Hour)
	if !day.Equal(g.stats.Day) {
		if !g.stats.Day.IsZero() && day.Before(g.stats.Day) {
			return
		}
		g.stats.Day = day
		g.stats.DailyPnL = 0
		g.stats.DailyTrades = 0
	}
}
