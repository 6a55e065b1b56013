package main

import (
	"context"
	"fmt"
	"log"

	"dhanpaper/config"
	"dhanpaper/internal/adapters/logger"
	"dhanpaper/internal/adapters/sqlite"
	"dhanpaper/internal/paper"
)

// Prints a portfolio summary of the paper-trades ledger.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger := logger.NewStdLogger(logger.LevelWarn) // keep tool output clean

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open ledger: %v", err)
	}
	defer repo.Close()

	engine, err := paper.New(paper.Config{
		FeePerRoundTrip: cfg.FeePerRoundTrip,
		BuySlippage:     cfg.BuySlippage,
		SellSlippage:    cfg.SellSlippage,
	}, repo, nil, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize engine: %v", err)
	}

	ctx := context.Background()
	summary, err := engine.Summarize(ctx)
	if err != nil {
		log.Fatalf("Error building summary: %v", err)
	}
	positions, err := engine.OpenPositions(ctx)
	if err != nil {
		log.Fatalf("Error loading positions: %v", err)
	}

	fmt.Println("=== Paper Trading Summary ===")
	fmt.Printf("Exits: %d (wins %d / losses %d, win rate %.2f%%, orphans %d)\n",
		summary.TotalExits, summary.WinningTrades, summary.LosingTrades, summary.WinRate, summary.OrphanExits)
	fmt.Printf("Gross PnL: %.2f  Fees: %.2f  Net PnL: %.2f\n", summary.GrossPnL, summary.TotalFees, summary.NetPnL)
	fmt.Printf("Profit factor: %.2f  Avg win: %.2f  Avg loss: %.2f  Max drawdown: %.2f\n",
		summary.ProfitFactor, summary.AverageWin, summary.AverageLoss, summary.MaxDrawdown)

	fmt.Println("\n=== Open Positions ===")
	if len(positions) == 0 {
		fmt.Println("(none)")
	}
	for _, p := range positions {
		fmt.Printf("%-20s %-4s qty=%-6d avg_cost=%.2f realized=%.2f\n",
			p.Symbol, p.Side, p.OpenQty, p.AvgCost, p.Realized)
	}
}
