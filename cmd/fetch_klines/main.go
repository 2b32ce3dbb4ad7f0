package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"energyEngine/config"
	"energyEngine/internal/adapters/binanceclient"
	"energyEngine/internal/adapters/logger"
	"energyEngine/internal/utils"
)

func main() {
	days := flag.Int("days", 90, "how many days back to fetch")
	out := flag.String("out", "", "output CSV (defaults to DATA_DIR/<symbol>_<interval>_<from>_to_<to>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger, err := logger.New(cfg.LogFormat, cfg.LogLevel.String())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	ctx := context.Background()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "Failed to initialize Binance client")
		os.Exit(1)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)

	appLogger.Info(ctx, "Fetching bars", map[string]interface{}{
		"symbol":   cfg.Symbol,
		"interval": cfg.Interval,
		"start":    start,
		"end":      end,
	})
	bars, err := binanceClient.GetBarsRange(ctx, cfg.Symbol, cfg.Interval, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching bars")
		os.Exit(1)
	}
	appLogger.Info(ctx, "Fetched bars", map[string]interface{}{"count": len(bars)})

	filename := *out
	if filename == "" {
		filename = filepath.Join(cfg.DataDir, fmt.Sprintf("%s_%s_%s_to_%s.csv", cfg.Symbol, cfg.Interval, start.Format("20060102"), end.Format("20060102")))
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		appLogger.Error(ctx, err, "Error creating output directory")
		os.Exit(1)
	}
	if err := utils.WriteBarsToCSV(bars, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		os.Exit(1)
	}
	appLogger.Info(ctx, "Saved bars", map[string]interface{}{"filename": filename})
}
