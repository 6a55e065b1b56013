package domain

import "strings"

// Intent is a validated trade intent, constructed once at the boundary from
// an alert payload. The engine never re-interprets raw maps.
type Intent struct {
	Symbol     string
	SecurityID string
	Segment    string
	Side       Side
	Qty        int64
	// Price is the raw alert price. Zero (or negative) means "market": the
	// engine must resolve a quote before executing.
	Price float64
	// Action forces entry/exit classification when set; empty means "infer
	// from open opposite-side rows".
	Action    Action
	RequestID string
	OrderType string

	// Optional per-intent overrides of the configured defaults.
	BuySlippage  *float64
	SellSlippage *float64
	Fee          *float64
}

// Normalize canonicalizes case-insensitive fields in place.
func (in *Intent) Normalize() {
	in.Side = Side(strings.ToUpper(string(in.Side)))
	in.Action = Action(strings.ToLower(string(in.Action)))
	if in.OrderType == "" {
		in.OrderType = "MARKET"
	}
	if in.Symbol == "" {
		in.Symbol = in.SecurityID
	}
}
