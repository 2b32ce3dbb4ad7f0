package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"energyEngine/config"
	"energyEngine/internal/adapters/logger"
	"energyEngine/internal/ports"
	"energyEngine/internal/signals"
	"energyEngine/internal/strategy/optimization"
	"energyEngine/internal/strategy/strategies"
	"energyEngine/internal/utils"
)

const defaultSweep = "mfe_activation_threshold=5:9:1,trail_offset=1:3:0.5,defense_stop_distance=8:16:2"

func main() {
	barsFile := flag.String("bars", "", "CSV bar feed (defaults to BARS_FILE)")
	sweep := flag.String("sweep", defaultSweep, "comma separated name=min:max:step ranges over engine parameters")
	top := flag.Int("top", 10, "number of results to print")
	concurrency := flag.Int("concurrency", 0, "parallel runs (defaults to GOMAXPROCS)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	if *barsFile != "" {
		cfg.BarsFile = *barsFile
	}
	ranges, err := parseSweep(*sweep)
	if err != nil {
		log.Fatalf("FATAL: Invalid -sweep: %v", err)
	}

	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel.String())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	bars, err := utils.ReadBarsFromCSV(cfg.BarsFile)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading bars", map[string]interface{}{"file": cfg.BarsFile})
		os.Exit(1)
	}

	opts := cfg.Strategy
	opts.ExitOnActivationBar = cfg.Engine.ExitOnActivationBar
	components := optimization.Components{
		Policy: func() (ports.ExitPolicy, error) {
			set, err := strategies.New(opts, appLogger)
			if err != nil {
				return nil, err
			}
			return set.Policy, nil
		},
		Detector: func() (ports.EntryDetector, error) {
			set, err := strategies.New(opts, appLogger)
			if err != nil {
				return nil, err
			}
			return set.Detector, nil
		},
	}
	probe, err := strategies.New(opts, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to build strategy components")
		os.Exit(1)
	}
	if probe.Signals != nil {
		components.Signals = func() ports.SignalSource { return signals.NewEncoder(opts.Signals) }
	}

	optimizer, err := optimization.NewOptimizer(optimization.OptimizerConfig{
		Base:            cfg.Engine,
		ParameterRanges: ranges,
		Symbol:          cfg.Symbol,
		Concurrency:     *concurrency,
	}, components, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to initialize optimizer")
		os.Exit(1)
	}

	report, err := optimizer.Optimize(ctx, bars)
	if err != nil {
		appLogger.Error(ctx, err, "Optimization failed")
		os.Exit(1)
	}

	fmt.Printf("Evaluated %d combinations, skipped %d invalid\n\n", report.Evaluated, report.Skipped)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	header := []string{"Rank", "Score"}
	for _, r := range ranges {
		header = append(header, r.Name)
	}
	header = append(header, "Trades", "WinRate", "Expectancy", "TotalPnL", "MaxDD")
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for i, res := range report.Results {
		if i >= *top {
			break
		}
		row := []string{strconv.Itoa(i + 1), fmt.Sprintf("%.4f", res.Score)}
		for _, r := range ranges {
			row = append(row, strconv.FormatFloat(res.Parameters[r.Name], 'f', -1, 64))
		}
		row = append(row,
			strconv.Itoa(res.Summary.Trades),
			fmt.Sprintf("%.2f%%", res.Summary.WinRate*100),
			fmt.Sprintf("%.4f", res.Summary.Expectancy),
			fmt.Sprintf("%.4f", res.Summary.TotalPnL),
			fmt.Sprintf("%.4f", res.Metrics.MaxDrawdownPoints),
		)
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// parseSweep reads "name=min:max:step" items. defense_trigger_bars is swept as an integer.
func parseSweep(s string) ([]optimization.ParameterRange, error) {
	var ranges []optimization.ParameterRange
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, bounds, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("%q: expected name=min:max:step", item)
		}
		parts := strings.Split(bounds, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%q: expected min:max:step", item)
		}
		var vals [3]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", item, err)
			}
			vals[i] = v
		}
		ranges = append(ranges, optimization.ParameterRange{
			Name:  name,
			Min:   vals[0],
			Max:   vals[1],
			Step:  vals[2],
			IsInt: name == optimization.ParamDefenseTriggerBars,
		})
	}
	return ranges, nil
}
