package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"energyEngine/config"
	"energyEngine/internal/adapters/logger"
	"energyEngine/internal/adapters/sqlite"
	"energyEngine/internal/app"
	"energyEngine/internal/strategy/analytics"
	"energyEngine/internal/strategy/backtesting"
	"energyEngine/internal/utils"
)

func main() {
	barsFile := flag.String("bars", "", "CSV bar feed (defaults to BARS_FILE)")
	compareDefense := flag.Bool("compare-defense", false, "also run with loss defense disabled and print the difference")
	tradesOut := flag.String("trades-out", "", "write closed trades to this CSV file")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	if *barsFile != "" {
		cfg.BarsFile = *barsFile
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel.String())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	// 3. Load bars
	bars, err := utils.ReadBarsFromCSV(cfg.BarsFile)
	if err != nil {
		appLogger.Error(ctx, err, "Error loading bars", map[string]interface{}{"file": cfg.BarsFile})
		os.Exit(1)
	}
	appLogger.Info(ctx, "Loaded bars", map[string]interface{}{"file": cfg.BarsFile, "count": len(bars)})

	// 4. Initialize Repository
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "Failed to initialize database repository")
		os.Exit(1)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	svc, err := app.NewBacktestService(appLogger, repo, repo, repo)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to initialize backtest service")
		os.Exit(1)
	}

	// 5. Run
	runner, err := app.NewRunner(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to build runner")
		os.Exit(1)
	}

	var (
		res *backtesting.Result
		cmp analytics.Comparison
	)
	if *compareDefense {
		baseCfg := cfg.Engine
		baseCfg.DefenseEnabled = false
		baseline, err := app.NewRunnerWith(cfg.Symbol, baseCfg, cfg.Strategy, cfg.Risk, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "Failed to build baseline runner")
			os.Exit(1)
		}
		res, cmp, err = svc.RunAgainstBaseline(ctx, runner, baseline, bars)
		if err != nil {
			appLogger.Error(ctx, err, "Backtest failed")
			os.Exit(1)
		}
	} else {
		res, err = svc.Run(ctx, runner, bars)
		if err != nil {
			appLogger.Error(ctx, err, "Backtest failed")
			os.Exit(1)
		}
	}

	// 6. Report
	printSummary(res)
	if *compareDefense {
		printComparison(cmp)
	}

	if *tradesOut != "" {
		if err := utils.WriteTradesToCSV(res.Trades, *tradesOut); err != nil {
			appLogger.Error(ctx, err, "Error writing trades CSV", map[string]interface{}{"file": *tradesOut})
			os.Exit(1)
		}
		appLogger.Info(ctx, "Trades written", map[string]interface{}{"file": *tradesOut, "count": len(res.Trades)})
	}
}

func printSummary(res *backtesting.Result) {
	metrics := analytics.AnalyzePerformance(res.Trades, 0)

	fmt.Printf("\n=== Backtest %s ===\n", res.RunID)
	fmt.Printf("Symbol: %s  Detector: %s  Policy: %s  Bars: %d\n", res.Symbol, res.Detector, res.Policy, res.BarsProcessed)
	fmt.Printf("Trades: %d  Wins: %d  Win rate: %.2f%%\n", res.Summary.Trades, res.Summary.Wins, res.Summary.WinRate*100)
	fmt.Printf("Expectancy: %.4f  Avg loss: %.4f  Total PnL: %.4f\n", res.Summary.Expectancy, res.Summary.AvgLoss, res.Summary.TotalPnL)
	fmt.Printf("Profit factor: %.2f  Max drawdown: %.4f pts  Sharpe: %.3f\n", metrics.ProfitFactor, metrics.MaxDrawdownPoints, metrics.SharpeRatio)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nCause\tCount\tTotal\tAvg\tAvgBars\tAvgMFE")
	for _, cause := range metrics.Causes() {
		cs := metrics.ByCause[cause]
		fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.1f\t%.4f\n", cause, cs.Count, cs.TotalPnL, cs.AvgPnL, cs.AvgBars, cs.AvgMFE)
	}
	w.Flush()
}

func printComparison(cmp analytics.Comparison) {
	fmt.Printf("\n=== Loss defense vs disabled ===\n")
	if cmp.Status != analytics.StatusOK {
		fmt.Printf("Status: %s\n", cmp.Status)
		return
	}
	fmt.Printf("Win rate diff: %+.2f%%\n", cmp.WinRateDiff*100)
	fmt.Printf("EV diff:       %+.4f\n", cmp.EVDiff)
	fmt.Printf("Avg loss diff: %+.4f\n", cmp.AvgLossDiff)
	fmt.Printf("Total PnL diff: %+.4f\n", cmp.TotalPnLDiff)
}
