package domain

import "time"

// Trade is one row of the paper-trading ledger.
//
// A row is created either by an opening intent (an OPEN entry row) or by one
// unit of matching work during a closing intent (an immutable CLOSED match
// row). Entry rows are mutated only in MatchedQty/Status; everything else is
// written once at creation.
type Trade struct {
	ID          string      `json:"id"`          // UUID assigned at creation
	Seq         int64       `json:"-"`           // insertion sequence, FIFO tie-break
	CreatedAt   time.Time   `json:"created_at"`  // execution timestamp, authoritative for FIFO order
	RequestID   string      `json:"request_id,omitempty"`
	SecurityID  string      `json:"security_id,omitempty"`
	Symbol      string      `json:"symbol"`
	Segment     string      `json:"segment,omitempty"`
	Side        Side        `json:"side"`
	Qty         int64       `json:"qty"`         // quantity submitted with the intent
	MatchedQty  int64       `json:"matched_qty"` // cumulative quantity consumed by opposing matches
	OrderType   string      `json:"order_type,omitempty"`
	EntryPrice  float64     `json:"entry_price,omitempty"`
	EntryAt     time.Time   `json:"entry_at,omitempty"`
	ExitPrice   float64     `json:"exit_price,omitempty"`
	ExitAt      time.Time   `json:"exit_at,omitempty"`
	GrossPnL    float64     `json:"gross_pnl"`
	Fee         float64     `json:"fee"`
	NetPnL      float64     `json:"net_pnl"` // always GrossPnL - Fee
	Status      TradeStatus `json:"status"`
	PriceSource PriceSource `json:"price_source,omitempty"`
}

// RemainingQty is the quantity of this row still eligible for matching.
func (t *Trade) RemainingQty() int64 {
	return t.Qty - t.MatchedQty
}

// IsOpen checks if the row is still eligible for future matching.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// AnnotatedTrade is a ledger row decorated with running totals, as returned
// by trade listings. Cumulative sums are computed oldest-first over the
// returned window.
type AnnotatedTrade struct {
	*Trade
	CumulativeGross float64 `json:"cumulative_gross"`
	CumulativeNet   float64 `json:"cumulative_net"`
}

// TradeList is the result of a ledger listing.
type TradeList struct {
	Trades          []*AnnotatedTrade `json:"trades"`
	CumulativeGross float64           `json:"cumulative_gross"`
	CumulativeNet   float64           `json:"cumulative_net"`
}

// ExecutionResult is returned by the engine for every submitted intent.
type ExecutionResult struct {
	Status  string `json:"status"` // "ok" or "skipped"
	Message string `json:"message,omitempty"`
	// Records holds every row inserted during this call: the entry row for
	// an opening intent, or the match/orphan rows for a closing intent.
	Records []*Trade `json:"records"`
	// Aggregates for closing intents.
	MatchedTotal int64   `json:"matched_total,omitempty"`
	GrossTotal   float64 `json:"gross_total,omitempty"`
	NetTotal     float64 `json:"net_total,omitempty"`
}

const (
	ResultOK      = "ok"
	ResultSkipped = "skipped"
)
