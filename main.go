package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"dhanpaper/config"
	"dhanpaper/internal/adapters/binanceclient"
	"dhanpaper/internal/adapters/dhanclient"
	"dhanpaper/internal/adapters/logger"
	"dhanpaper/internal/adapters/sqlite"
	"dhanpaper/internal/api"
	"dhanpaper/internal/paper"
	"dhanpaper/internal/ports"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (ledger + enablement flag)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize ledger repository")
		log.Fatalf("FATAL: Failed to initialize ledger repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing ledger repository")
		}
	}()

	// 4. Initialize Quote Provider (optional market-order fallback)
	var quotes ports.QuoteProvider
	switch cfg.QuoteProvider {
	case config.QuoteProviderDhan:
		quotes, err = dhanclient.New(dhanclient.Config{
			BaseURL:     cfg.DhanBaseURL,
			ClientID:    cfg.DhanClientID,
			AccessToken: cfg.DhanAccessToken,
			Logger:      appLogger,
		})
	case config.QuoteProviderBinance:
		quotes, err = binanceclient.New(binanceclient.Config{
			APIKey:     cfg.BinanceAPIKey,
			SecretKey:  cfg.BinanceSecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
	}
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize quote provider")
		log.Fatalf("FATAL: Failed to initialize quote provider: %v", err)
	}
	if quotes == nil {
		appLogger.Warn(context.Background(), "No quote provider configured; market orders without an alert price will be rejected")
	}

	// 5. Initialize Matching Engine
	engine, err := paper.New(paper.Config{
		FeePerRoundTrip: cfg.FeePerRoundTrip,
		BuySlippage:     cfg.BuySlippage,
		SellSlippage:    cfg.SellSlippage,
		QuoteTimeout:    cfg.QuoteTimeout,
	}, repo, quotes, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize matching engine")
		log.Fatalf("FATAL: Failed to initialize matching engine: %v", err)
	}

	// 6. Initialize HTTP Server
	server, err := api.NewServer(api.Config{
		Addr:            cfg.HTTPAddr,
		WebhookAPIKey:   cfg.WebhookAPIKey,
		FeePerRoundTrip: cfg.FeePerRoundTrip,
		BuySlippage:     cfg.BuySlippage,
		SellSlippage:    cfg.SellSlippage,
	}, engine, repo, quotes, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize HTTP server")
		log.Fatalf("FATAL: Failed to initialize HTTP server: %v", err)
	}

	// 7. Run until interrupted
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		appLogger.Error(context.Background(), err, "HTTP server exited with error")
		log.Fatalf("FATAL: HTTP server exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
