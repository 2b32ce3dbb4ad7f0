package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"energyEngine/internal/domain"
	"energyEngine/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	maxKlinesPerRequest = 1500
)

// klineServeFunc matches futures.WsKlineServe.
type klineServeFunc func(symbol, interval string, handler futures.WsKlineHandler, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)

// Client implements ports.BarSource using the go-binance futures API.
// It only reads market data; no orders are ever sent.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectDelay    time.Duration
	maxReconnectAttempts int
	pageLimit            int
	serveKlines          klineServeFunc
}

var _ ports.BarSource = (*Client)(nil)

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string // Optional, market data endpoints are public
	SecretKey            string
	UseTestnet           bool
	BaseURL              string // Overrides the production/testnet URL when set
	Logger               ports.Logger
	ReconnectDelay       time.Duration // First reconnect delay (e.g., 1 * time.Second)
	MaxReconnectDelay    time.Duration // Backoff ceiling
	MaxReconnectAttempts int           // Consecutive failed attempts before giving up
	PageLimit            int           // Klines per range request, at most 1500
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxDelay := cfg.MaxReconnectDelay
	if maxDelay < reconnectDelay {
		maxDelay = 60 * time.Second
		if maxDelay < reconnectDelay {
			maxDelay = reconnectDelay
		}
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	pageLimit := cfg.PageLimit
	if pageLimit <= 0 || pageLimit > maxKlinesPerRequest {
		pageLimit = maxKlinesPerRequest
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectDelay:    maxDelay,
		maxReconnectAttempts: maxAttempts,
		pageLimit:            pageLimit,
		serveKlines:          futures.WsKlineServe,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1120, -1121, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(msg, "no such host"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrExchangeUnavailable, err)
	case strings.Contains(msg, "use of closed network connection"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.futuresClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetBars retrieves the most recent bars for the given symbol.
// The exchange includes the still-forming bar last; it is returned with IsFinal false.
func (c *Client) GetBars(ctx context.Context, symbol, interval string, limit int) ([]domain.Bar, error) {
	op := "GetBars"
	klines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := time.Now()
	bars := make([]domain.Bar, 0, len(klines))
	for _, k := range klines {
		bar, err := translateKline(k, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		bar.IsFinal = time.UnixMilli(k.CloseTime).Before(now)
		bars = append(bars, bar)
	}
	return bars, nil
}

// GetBarsRange fetches all bars for a symbol/interval whose open time lies in [start, end].
func (c *Client) GetBarsRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.Bar, error) {
	op := "GetBarsRange"
	var bars []domain.Bar
	from := start.UnixMilli()
	until := end.UnixMilli()

	for from <= until {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from).
			EndTime(until).
			Limit(c.pageLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			if k.OpenTime < from {
				continue
			}
			bar, err := translateKline(k, symbol, interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			bars = append(bars, bar)
		}
		c.logger.Debug(ctx, op+" page fetched", map[string]interface{}{"symbol": symbol, "count": len(klines), "total": len(bars)})
		if len(klines) < c.pageLimit {
			break
		}
		from = klines[len(klines)-1].OpenTime + 1
	}
	return bars, nil
}

// StreamBars starts a WebSocket kline stream with automatic reconnection.
// Only final bars reach handler.
func (c *Client) StreamBars(ctx context.Context, symbol, interval string, handler func(bar domain.Bar), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamBars"
	if handler == nil {
		return nil, nil, fmt.Errorf("%s: %w: handler is required", op, ports.ErrInvalidRequest)
	}
	wsCtx, cancelWs := context.WithCancel(ctx)
	fields := map[string]interface{}{"symbol": symbol, "interval": interval}

	binanceHandler := func(event *futures.WsKlineEvent) {
		bar, ok, err := translateWsKline(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": Failed to translate WebSocket kline event")
			return
		}
		if ok {
			handler(bar)
		}
	}

	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		if errHandler != nil {
			errHandler(translatedErr)
		}
	}

	b := &backoff.Backoff{
		Min:    c.reconnectDelay,
		Max:    c.maxReconnectDelay,
		Factor: 2,
		Jitter: true,
	}

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		defer close(doneCh)
		defer cancelWs()

		for {
			if wsCtx.Err() != nil {
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts.", fields)
				return
			}

			c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", map[string]interface{}{"symbol": symbol, "interval": interval, "attempt": int(b.Attempt()) + 1})
			innerDoneCh, innerStopCh, connectErr := c.serveKlines(symbol, interval, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				err := c.handleError(wsCtx, connectErr, op+" connection attempt")
				if int(b.Attempt())+1 >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up.", map[string]interface{}{"symbol": symbol, "interval": interval, "maxAttempts": c.maxReconnectAttempts})
					if errHandler != nil {
						errHandler(err)
					}
					return
				}
				delay := b.Duration()
				c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{"symbol": symbol, "interval": interval, "delay": delay.String()})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established.", fields)
			b.Reset()

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...", fields)
				select {
				case <-time.After(b.Duration()):
				case <-wsCtx.Done():
					return
				}
			case <-wsCtx.Done():
				close(innerStopCh)
				<-innerDoneCh
				c.logger.Info(wsCtx, op+": WebSocket stopped.", fields)
				return
			}
		}
	}()

	// Closing or sending on stopCh cancels the loop.
	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal.", fields)
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	return doneCh, stopCh, nil
}

// translateWsKline converts a stream event. ok is false for bars still forming.
func translateWsKline(event *futures.WsKlineEvent) (domain.Bar, bool, error) {
	if event == nil {
		return domain.Bar{}, false, errors.New("received nil kline event")
	}
	k := event.Kline
	if !k.IsFinal {
		return domain.Bar{}, false, nil
	}
	bar, err := parseOHLCV(k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return domain.Bar{}, false, err
	}
	bar.Time = time.UnixMilli(k.StartTime).UTC()
	bar.Symbol = k.Symbol
	bar.Interval = k.Interval
	bar.IsFinal = true
	return bar, true, nil
}

func translateKline(k *futures.Kline, symbol, interval string) (domain.Bar, error) {
	if k == nil {
		return domain.Bar{}, errors.New("received nil historical kline")
	}
	bar, err := parseOHLCV(k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return domain.Bar{}, err
	}
	bar.Time = time.UnixMilli(k.OpenTime).UTC()
	bar.Symbol = symbol
	bar.Interval = interval
	bar.IsFinal = true
	return bar, nil
}

func parseOHLCV(open, high, low, cls, volume string) (domain.Bar, error) {
	var bar domain.Bar
	for _, f := range [...]struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", open, &bar.Open},
		{"high", high, &bar.High},
		{"low", low, &bar.Low},
		{"close", cls, &bar.Close},
		{"volume", volume, &bar.Volume},
	} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parsing %s '%s': %w", f.name, f.raw, err)
		}
		*f.dst = v
	}
	return bar, nil
}
