package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"dhanpaper/internal/domain"
)

// WriteTradesToCSV dumps ledger rows to a CSV file, one row per trade.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{
		"id", "created_at", "request_id", "symbol", "segment", "side", "qty", "matched_qty",
		"entry_price", "exit_price", "gross_pnl", "fee", "net_pnl", "status", "price_source",
	})

	for _, t := range trades {
		exitPrice := ""
		if !t.ExitAt.IsZero() {
			exitPrice = strconv.FormatFloat(t.ExitPrice, 'f', -1, 64)
		}
		writer.Write([]string{
			t.ID,
			t.CreatedAt.Format(time.RFC3339),
			t.RequestID,
			t.Symbol,
			t.Segment,
			string(t.Side),
			strconv.FormatInt(t.Qty, 10),
			strconv.FormatInt(t.MatchedQty, 10),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			exitPrice,
			strconv.FormatFloat(t.GrossPnL, 'f', 2, 64),
			strconv.FormatFloat(t.Fee, 'f', 2, 64),
			strconv.FormatFloat(t.NetPnL, 'f', 2, 64),
			string(t.Status),
			string(t.PriceSource),
		})
	}
	return writer.Error()
}
