package ports

import (
	"context"
	"time"

	"energyEngine/internal/domain"
)

// BarSource supplies historical and live bars from an exchange.
type BarSource interface {
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetBars retrieves the most recent bars for the given symbol.
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]domain.Bar, error)

	// GetBarsRange retrieves all bars between start and end, paginating as needed.
	GetBarsRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error)

	// StreamBars starts a live stream. Only final bars are passed to handler.
	// doneCh is closed when the stream stops for good; closing or sending on stopCh stops it.
	StreamBars(ctx context.Context, symbol, interval string, handler func(bar domain.Bar), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
