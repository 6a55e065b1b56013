package paper

import (
	"math"

	"dhanpaper/internal/domain"
)

// slippageAdjusted turns a raw alert (or quoted) price into an execution
// price. Fills are always worse than quoted: a BUY pays the slippage on top,
// a SELL receives it less. This holds for both legs, so a covering BUY pays
// up just like an opening BUY.
func slippageAdjusted(raw float64, side domain.Side, buySlippage, sellSlippage float64) float64 {
	if side == domain.Buy {
		return raw + buySlippage
	}
	return raw - sellSlippage
}

// round2 rounds a money value to two decimals, half away from zero.
// Fee slices are rounded individually, not pre-divided, so the per-slice
// distribution is reproducible.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
