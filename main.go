package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"energyEngine/config"
	"energyEngine/internal/adapters/binanceclient"
	"energyEngine/internal/adapters/logger"
	"energyEngine/internal/adapters/sqlite"
	"energyEngine/internal/app"
)

func main() {
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
	if z, ok := appLogger.(*logger.ZapLogger); ok {
		defer z.Sync() //nolint:errcheck
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Initialize Runner (detector, exit policy, engine, entry gate)
	runner, err := app.NewRunner(cfg, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize runner")
		log.Fatalf("FATAL: Failed to initialize runner: %v", err)
	}
	appLogger.Info(context.Background(), "Runner initialized", map[string]interface{}{
		"runID":    runner.RunID(),
		"detector": cfg.Strategy.Detector,
		"policy":   cfg.Strategy.Policy,
	})

	// 6. Initialize Application Service
	paperService, err := app.NewPaperService(
		app.PaperConfig{
			Symbol:     cfg.Symbol,
			Interval:   cfg.Interval,
			WarmupBars: cfg.WarmupBars,
		},
		appLogger,
		binanceClient, // Pass the concrete implementation, service expects the interface
		runner,
		repo, // Runs
		repo, // Trades
		repo, // Session snapshots
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize paper service")
		log.Fatalf("FATAL: Failed to initialize paper service: %v", err)
	}

	// 7. Start the Service; it returns after SIGINT/SIGTERM or when the stream gives up
	if err := paperService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Paper service exited with error")
		log.Fatalf("FATAL: Paper service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
