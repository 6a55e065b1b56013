package domain

// Position summarizes the open interest for one symbol.
//
// OpenQty and AvgCost are computed over the OPEN rows of the net side;
// Realized sums NetPnL over the symbol's CLOSED match rows.
type Position struct {
	Symbol   string   `json:"symbol"`
	Segment  string   `json:"segment,omitempty"`
	Side     Side     `json:"side"`     // net side (BUY = long, SELL = short)
	OpenQty  int64    `json:"open_qty"` // sum of remaining quantity on the net side
	AvgCost  float64  `json:"avg_cost"` // quantity-weighted mean entry price
	Realized float64  `json:"realized"`
	Rows     []*Trade `json:"rows,omitempty"` // the open rows backing this position
}

// Unrealized marks the open quantity to the supplied quote. The sign is
// flipped for a net-short position.
func (p *Position) Unrealized(quote float64) float64 {
	if p.OpenQty == 0 || quote <= 0 {
		return 0
	}
	if p.Side == Sell {
		return (p.AvgCost - quote) * float64(p.OpenQty)
	}
	return (quote - p.AvgCost) * float64(p.OpenQty)
}
