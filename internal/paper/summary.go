package paper

import (
	"context"
	"fmt"

	"dhanpaper/internal/domain"
)

// Summary holds portfolio-wide statistics derived from the closed rows of
// the ledger, oldest first.
type Summary struct {
	TotalExits    int     `json:"total_exits"` // closed match rows plus orphan exits
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"` // percent of exits with positive net P&L
	OrphanExits   int     `json:"orphan_exits"`
	GrossPnL      float64 `json:"gross_pnl"`
	TotalFees     float64 `json:"total_fees"`
	NetPnL        float64 `json:"net_pnl"`
	ProfitFactor  float64 `json:"profit_factor"` // gross wins over absolute gross losses, by net P&L
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	// MaxDrawdown is the largest peak-to-trough drop of the running
	// cumulative net P&L.
	MaxDrawdown float64 `json:"max_drawdown"`
}

// Summarize rolls the closed rows of the ledger up into portfolio statistics.
// Fully matched entry rows carry no P&L of their own and are excluded; the
// match rows they produced carry it instead.
func (e *Engine) Summarize(ctx context.Context) (*Summary, error) {
	closedStatus := domain.StatusClosed
	rows, err := e.ledger.FindAll(ctx, 0, &closedStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to load closed rows for summary: %w", err)
	}

	s := &Summary{}
	var winTotal, lossTotal, cumulative, peak, maxDrawdown float64
	// rows are newest-first; walk oldest-first so the drawdown tracks time.
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if row.ExitAt.IsZero() {
			continue // a closed entry row, not an exit
		}
		s.TotalExits++
		if row.MatchedQty == 0 {
			s.OrphanExits++
		}
		s.GrossPnL += row.GrossPnL
		s.TotalFees += row.Fee
		s.NetPnL += row.NetPnL

		switch {
		case row.NetPnL > 0:
			s.WinningTrades++
			winTotal += row.NetPnL
		case row.NetPnL < 0:
			s.LosingTrades++
			lossTotal += -row.NetPnL
		}

		cumulative += row.NetPnL
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	if s.TotalExits > 0 {
		s.WinRate = round2(float64(s.WinningTrades) / float64(s.TotalExits) * 100)
	}
	if lossTotal > 0 {
		s.ProfitFactor = round2(winTotal / lossTotal)
	}
	if s.WinningTrades > 0 {
		s.AverageWin = round2(winTotal / float64(s.WinningTrades))
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = round2(lossTotal / float64(s.LosingTrades))
	}
	s.GrossPnL = round2(s.GrossPnL)
	s.TotalFees = round2(s.TotalFees)
	s.NetPnL = round2(s.NetPnL)
	s.MaxDrawdown = round2(maxDrawdown)
	return s, nil
}
