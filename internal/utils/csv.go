package utils

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"energyEngine/internal/domain"
)

// ErrMalformedCSV is returned for any row or header that cannot be parsed.
var ErrMalformedCSV = errors.New("malformed csv")

var barHeader = []string{"time", "open", "high", "low", "close", "volume"}

var tradeHeader = []string{
	"run_id", "trade_id", "symbol", "direction", "policy",
	"entry_time", "entry_price", "exit_time", "exit_price",
	"pnl", "exit_cause", "mfe", "mae", "bars_held",
}

// ReadBarsFromCSV loads a bar feed from a file. See ReadBars for the accepted layouts.
func ReadBarsFromCSV(filename string) ([]domain.Bar, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadBars(file)
}

// ReadBars parses a bar feed. The header must name open, high, low and close columns
// and one time column ("time", "open_time" or "timestamp"). Times are RFC3339 or unix
// milliseconds. The legacy kline export with close_time, symbol and interval columns is accepted.
func ReadBars(r io.Reader) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: line 1: %w", ErrMalformedCSV, err)
	}
	cols := indexColumns(header)

	timeCol := -1
	for _, name := range []string{"time", "open_time", "timestamp"} {
		if i, ok := cols[name]; ok {
			timeCol = i
			break
		}
	}
	if timeCol < 0 {
		return nil, fmt.Errorf("%w: line 1: no time column in header %v", ErrMalformedCSV, header)
	}
	for _, name := range []string{"open", "high", "low", "close"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: line 1: missing column %q", ErrMalformedCSV, name)
		}
	}
	volCol, hasVol := cols["volume"]
	symCol, hasSym := cols["symbol"]
	intCol, hasInt := cols["interval"]

	var bars []domain.Bar
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err) // csv.ParseError carries the line
		}
		line, _ := reader.FieldPos(0)

		bar := domain.Bar{IsFinal: true}
		if bar.Time, err = parseTime(record[timeCol]); err != nil {
			return nil, fmt.Errorf("%w: line %d: time: %w", ErrMalformedCSV, line, err)
		}
		for _, f := range [...]struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close},
		} {
			if *f.dst, err = strconv.ParseFloat(record[cols[f.name]], 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %w", ErrMalformedCSV, line, f.name, err)
			}
		}
		if hasVol && record[volCol] != "" {
			if bar.Volume, err = strconv.ParseFloat(record[volCol], 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: volume: %w", ErrMalformedCSV, line, err)
			}
		}
		if hasSym {
			bar.Symbol = record[symCol]
		}
		if hasInt {
			bar.Interval = record[intCol]
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// WriteBarsToCSV writes bars with the canonical time,open,high,low,close,volume header.
func WriteBarsToCSV(bars []domain.Bar, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteBars(file, bars)
}

// WriteBars writes bars with the canonical header. Times are RFC3339 in UTC.
func WriteBars(w io.Writer, bars []domain.Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(barHeader); err != nil {
		return err
	}
	for _, b := range bars {
		if err := writer.Write([]string{
			b.Time.UTC().Format(time.RFC3339),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
			formatFloat(b.Volume),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTradesToCSV exports closed trades, one row per trade.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteTrades(file, trades)
}

// WriteTrades writes trades with the trade export header.
func WriteTrades(w io.Writer, trades []*domain.Trade) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := writer.Write([]string{
			t.RunID,
			t.TradeID,
			t.Symbol,
			string(t.Direction),
			t.Policy,
			t.EntryTime.UTC().Format(time.RFC3339Nano),
			formatFloat(t.EntryPrice),
			t.ExitTime.UTC().Format(time.RFC3339Nano),
			formatFloat(t.ExitPrice),
			formatFloat(t.PNL),
			string(t.ExitCause),
			formatFloat(t.MFE),
			formatFloat(t.MAE),
			strconv.Itoa(t.BarsHeld),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadTradesFromCSV loads trades written by WriteTradesToCSV.
func ReadTradesFromCSV(filename string) ([]*domain.Trade, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadTrades(file)
}

// ReadTrades parses a trade export. Columns are located by header name.
func ReadTrades(r io.Reader) ([]*domain.Trade, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedCSV)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: line 1: %w", ErrMalformedCSV, err)
	}
	cols := indexColumns(header)
	for _, name := range tradeHeader {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: line 1: missing column %q", ErrMalformedCSV, name)
		}
	}

	var trades []*domain.Trade
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedCSV, err) // csv.ParseError carries the line
		}
		line, _ := reader.FieldPos(0)
		field := func(name string) string { return record[cols[name]] }

		t := &domain.Trade{
			RunID:     field("run_id"),
			TradeID:   field("trade_id"),
			Symbol:    field("symbol"),
			Direction: domain.Direction(field("direction")),
			Policy:    field("policy"),
			ExitCause: domain.ExitCause(field("exit_cause")),
		}
		if !t.Direction.Valid() {
			return nil, fmt.Errorf("%w: line %d: direction %q", ErrMalformedCSV, line, t.Direction)
		}
		if !t.ExitCause.Valid() {
			return nil, fmt.Errorf("%w: line %d: exit_cause %q", ErrMalformedCSV, line, t.ExitCause)
		}
		for _, f := range [...]struct {
			name string
			dst  *time.Time
		}{
			{"entry_time", &t.EntryTime}, {"exit_time", &t.ExitTime},
		} {
			if *f.dst, err = parseTime(field(f.name)); err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %w", ErrMalformedCSV, line, f.name, err)
			}
		}
		for _, f := range [...]struct {
			name string
			dst  *float64
		}{
			{"entry_price", &t.EntryPrice}, {"exit_price", &t.ExitPrice}, {"pnl", &t.PNL}, {"mfe", &t.MFE}, {"mae", &t.MAE},
		} {
			if *f.dst, err = strconv.ParseFloat(field(f.name), 64); err != nil {
				return nil, fmt.Errorf("%w: line %d: %s: %w", ErrMalformedCSV, line, f.name, err)
			}
		}
		if t.BarsHeld, err = strconv.Atoi(field("bars_held")); err != nil {
			return nil, fmt.Errorf("%w: line %d: bars_held: %w", ErrMalformedCSV, line, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return cols
}

// parseTime accepts RFC3339 (with or without fractional seconds) or unix milliseconds.
func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
