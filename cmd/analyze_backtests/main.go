package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"energyEngine/config"
	"energyEngine/internal/adapters/logger"
	"energyEngine/internal/adapters/sqlite"
	"energyEngine/internal/domain"
	"energyEngine/internal/ports"
	"energyEngine/internal/strategy/analytics"
	"energyEngine/internal/utils"
)

func main() {
	runID := flag.String("run", "", "run id to analyze (defaults to the latest run)")
	dir := flag.String("dir", "", "analyze every trades CSV in this directory instead of the database")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel.String())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}

	if *dir != "" {
		if err := analyzeFiles(os.Stdout, *dir); err != nil {
			log.Fatalf("Error analyzing trade files: %v", err)
		}
		return
	}

	ctx := context.Background()
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer repo.Close()

	run, err := findRun(ctx, repo, *runID)
	if err != nil {
		log.Fatalf("Error finding run: %v", err)
	}
	if run == nil {
		log.Println("No runs found. Run the backtest runner first.")
		return
	}

	trades, err := repo.FindByRun(ctx, run.ID)
	if err != nil {
		log.Fatalf("Error loading trades of run %s: %v", run.ID, err)
	}
	open, err := repo.FindOpenSessions(ctx, run.ID)
	if err != nil {
		log.Fatalf("Error loading open sessions of run %s: %v", run.ID, err)
	}

	printRun(os.Stdout, run, trades, open)
}

func findRun(ctx context.Context, runs ports.RunRepository, id string) (*ports.Run, error) {
	if id == "" {
		return runs.LatestRun(ctx)
	}
	run, err := runs.FindRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", id, ports.ErrNotFound)
	}
	return run, nil
}

func printRun(out io.Writer, run *ports.Run, trades []*domain.Trade, open []*domain.TradeSession) {
	fmt.Fprintf(out, "Run %s (%s) %s  detector=%s policy=%s bars=%d\n",
		run.ID, run.Mode, run.Symbol, run.Detector, run.Policy, run.Bars)
	if run.FinishedAt.IsZero() {
		fmt.Fprintln(out, "Run has not finished.")
	}

	m := analytics.AnalyzePerformance(trades, 0)
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Trades\tWinRate\tExpectancy\tAvgWin\tAvgLoss\tTotalPnL\tMaxDD pts\tPF\t")
	fmt.Fprintf(w, "%d\t%.2f\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t%.2f\t\n",
		m.TotalTrades,
		m.WinRate*100,
		m.Expectancy,
		m.AverageWin,
		m.AverageLoss,
		m.TotalProfit,
		m.MaxDrawdownPoints,
		m.ProfitFactor,
	)
	w.Flush()

	printCauses(out, m)

	if len(open) > 0 {
		fmt.Fprintf(out, "\n%d session(s) still open:\n", len(open))
		for _, s := range open {
			fmt.Fprintf(out, "  %s %s entry=%.4f mfe=%.4f mae=%.4f bars=%d state=%s\n",
				s.TradeID, s.Direction, s.EntryPrice, s.MFE, s.MAE, s.BarsElapsed, s.State)
		}
	}
}

func printCauses(out io.Writer, m *analytics.PerformanceMetrics) {
	fmt.Fprintln(out, "\n## Exit causes")
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Cause\tCount\tTotal PnL\tAvg PnL\tAvg Bars\tAvg MFE\t")
	for _, cause := range m.Causes() {
		cs := m.ByCause[cause]
		fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.1f\t%.4f\t\n", cause, cs.Count, cs.TotalPnL, cs.AvgPnL, cs.AvgBars, cs.AvgMFE)
	}
	w.Flush()
}

// analyzeFiles prints one summary row per trades CSV in dir, then the cause breakdown of each.
func analyzeFiles(out io.Writer, dir string) error {
	files, err := findTradeFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, "No trade files found. Run the backtest runner with -trades-out first.")
		return nil
	}

	type fileMetrics struct {
		name string
		m    *analytics.PerformanceMetrics
	}
	var all []fileMetrics

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "File\tTrades\tWinRate\tAvgWin\tAvgLoss\tTotalPnL\tMaxDD pts\t")
	for _, file := range files {
		trades, err := utils.ReadTradesFromCSV(file)
		if err != nil {
			log.Printf("Error reading trades from %s: %v", file, err)
			continue
		}
		m := analytics.AnalyzePerformance(trades, 0)
		all = append(all, fileMetrics{name: filepath.Base(file), m: m})
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.4f\t%.4f\t%.4f\t%.4f\t\n",
			filepath.Base(file),
			m.TotalTrades,
			m.WinRate*100,
			m.AverageWin,
			m.AverageLoss,
			m.TotalProfit,
			m.MaxDrawdownPoints,
		)
	}
	w.Flush()

	for _, f := range all {
		fmt.Fprintf(out, "\nFile: %s", f.name)
		printCauses(out, f.m)
	}
	return nil
}

// findTradeFiles lists the CSV files in dir, sorted by name.
func findTradeFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".csv") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
