package ports

import "context"

// QuoteProvider fetches the last traded price for an instrument.
//
// Implementations must honor the context deadline supplied by the caller and
// return an error wrapping ErrQuoteUnavailable when no usable price exists;
// the engine turns that into a "skip, do not simulate" outcome.
type QuoteProvider interface {
	LastTradedPrice(ctx context.Context, symbol, securityID, segment string) (float64, error)
}
