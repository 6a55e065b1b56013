package domain

// Side represents the side of a trade (BUY or SELL).
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the opposing side. A SELL exit consumes BUY entries and
// vice versa.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// IsValid reports whether the side is one of the known values.
func (s Side) IsValid() bool {
	return s == Buy || s == Sell
}

// Action classifies an intent as opening or closing a position.
type Action string

const (
	ActionEntry Action = "entry"
	ActionExit  Action = "exit"
)

// TradeStatus represents the lifecycle state of a ledger row.
// A row moves OPEN -> CLOSED exactly once and never reverts.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// PriceSource records where the execution price of a row came from.
type PriceSource string

const (
	// PriceSourceAlert means the price arrived with the alert payload.
	PriceSourceAlert PriceSource = "alert"
	// PriceSourceQuote means the price was fetched from a market-data provider.
	PriceSourceQuote PriceSource = "quote"
)
