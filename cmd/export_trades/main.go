package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"dhanpaper/config"
	"dhanpaper/internal/adapters/logger"
	"dhanpaper/internal/adapters/sqlite"
	"dhanpaper/internal/utils"
)

// Exports the paper-trades ledger to a CSV file.
func main() {
	out := flag.String("out", "paper_trades.csv", "output CSV path")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(logger.LevelWarn)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open ledger: %v", err)
	}
	defer repo.Close()

	trades, err := repo.FindAll(context.Background(), 0, nil)
	if err != nil {
		log.Fatalf("Error reading trades: %v", err)
	}

	if err := utils.WriteTradesToCSV(trades, *out); err != nil {
		log.Fatalf("Error writing CSV: %v", err)
	}
	fmt.Printf("Exported %d trades to %s\n", len(trades), *out)
}
