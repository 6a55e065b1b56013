package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dhanpaper/internal/domain"
	"dhanpaper/internal/ports"

	"github.com/google/uuid"
)

// Config holds the simulation constants of the matching engine.
type Config struct {
	// FeePerRoundTrip is the flat simulated cost of one full round trip,
	// allocated proportionally across the matched slices of an exit.
	FeePerRoundTrip float64
	// BuySlippage and SellSlippage are price offsets in points applied to
	// simulate worse-than-quoted fills.
	BuySlippage  float64
	SellSlippage float64
	// QuoteTimeout bounds the market-data fallback for market orders.
	QuoteTimeout time.Duration
}

// Engine is the paper-trading matching and settlement engine.
//
// It classifies each intent as an opening or closing action, executes it at a
// slippage-adjusted price, FIFO-matches closing intents against open
// opposite-side rows and records the results in the ledger. Intents for the
// same symbol are serialized end to end; different symbols proceed
// independently.
type Engine struct {
	cfg    Config
	ledger ports.TradeLedger
	quotes ports.QuoteProvider // optional; nil disables the market-order fallback
	logger ports.Logger
	now    func() time.Time

	mu          sync.Mutex
	symbolLocks map[string]*sync.Mutex
}

// New creates a new matching engine instance.
func New(cfg Config, ledger ports.TradeLedger, quotes ports.QuoteProvider, logger ports.Logger) (*Engine, error) {
	if ledger == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for paper engine")
	}
	if cfg.FeePerRoundTrip < 0 {
		return nil, fmt.Errorf("FeePerRoundTrip cannot be negative: %w", ports.ErrConfigurationError)
	}
	if cfg.BuySlippage < 0 || cfg.SellSlippage < 0 {
		return nil, fmt.Errorf("slippage cannot be negative: %w", ports.ErrConfigurationError)
	}
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = 8 * time.Second
	}
	return &Engine{
		cfg:         cfg,
		ledger:      ledger,
		quotes:      quotes,
		logger:      logger,
		now:         time.Now,
		symbolLocks: make(map[string]*sync.Mutex),
	}, nil
}

// lockSymbol acquires the critical section for one symbol. Classification and
// matching must run under the same lock, otherwise two concurrent exits can
// observe the same available quantity on an entry row and double-match it.
func (e *Engine) lockSymbol(symbol string) func() {
	e.mu.Lock()
	l, ok := e.symbolLocks[symbol]
	if !ok {
		l = &sync.Mutex{}
		e.symbolLocks[symbol] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// SubmitIntent executes one trade intent against the ledger.
//
// Validation errors (ErrInvalidQuantity, ErrInvalidPrice, ErrInvalidRequest)
// are returned before any row is touched. An unavailable quote is not an
// error: the result is a "skipped" outcome with no ledger mutation. Storage
// failures roll back the whole call, leaving no partial match applied.
func (e *Engine) SubmitIntent(ctx context.Context, in domain.Intent) (*domain.ExecutionResult, error) {
	in.Normalize()

	if !in.Side.IsValid() {
		return nil, fmt.Errorf("side %q: %w", in.Side, ports.ErrInvalidRequest)
	}
	if in.Qty <= 0 {
		return nil, fmt.Errorf("qty %d: %w", in.Qty, ports.ErrInvalidQuantity)
	}
	if in.Action != "" && in.Action != domain.ActionEntry && in.Action != domain.ActionExit {
		return nil, fmt.Errorf("action %q: %w", in.Action, ports.ErrInvalidRequest)
	}
	if in.Symbol == "" {
		return nil, fmt.Errorf("symbol is required: %w", ports.ErrInvalidRequest)
	}
	if in.RequestID == "" {
		in.RequestID = uuid.NewString()[:12]
	}

	raw, source, err := e.resolveRawPrice(ctx, &in)
	if err != nil {
		if errors.Is(err, ports.ErrQuoteUnavailable) {
			e.logger.Warn(ctx, "Quote unavailable, trade not simulated", map[string]interface{}{
				"symbol": in.Symbol, "requestID": in.RequestID,
			})
			return &domain.ExecutionResult{
				Status:  domain.ResultSkipped,
				Message: "quote unavailable; trade skipped",
				Records: []*domain.Trade{},
			}, nil
		}
		return nil, err
	}

	unlock := e.lockSymbol(in.Symbol)
	defer unlock()

	action := in.Action
	if action == "" {
		action, err = e.classify(ctx, &in)
		if err != nil {
			return nil, err
		}
	}

	if action == domain.ActionEntry {
		return e.executeEntry(ctx, &in, raw, source)
	}
	return e.executeExit(ctx, &in, raw, source)
}

// resolveRawPrice returns the alert price when usable, otherwise falls back
// to the quote provider within the configured timeout.
func (e *Engine) resolveRawPrice(ctx context.Context, in *domain.Intent) (float64, domain.PriceSource, error) {
	if in.Price > 0 {
		return in.Price, domain.PriceSourceAlert, nil
	}
	if e.quotes == nil {
		return 0, "", fmt.Errorf("price %.2f and no quote provider configured: %w", in.Price, ports.ErrInvalidPrice)
	}

	quoteCtx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
	defer cancel()

	ltp, err := e.quotes.LastTradedPrice(quoteCtx, in.Symbol, in.SecurityID, in.Segment)
	if err != nil {
		return 0, "", fmt.Errorf("quote fetch for %s failed: %w", in.Symbol, ports.ErrQuoteUnavailable)
	}
	if ltp <= 0 {
		return 0, "", fmt.Errorf("quote for %s is not positive: %w", in.Symbol, ports.ErrQuoteUnavailable)
	}
	return ltp, domain.PriceSourceQuote, nil
}

// classify decides whether an intent opens or closes a position: if any
// opposite-side OPEN row still has remaining quantity the intent is an exit,
// otherwise an entry. A SELL with no prior BUY therefore opens a short
// implicitly.
func (e *Engine) classify(ctx context.Context, in *domain.Intent) (domain.Action, error) {
	open, err := e.ledger.FindOpenBySymbol(ctx, in.Symbol, in.Side.Opposite())
	if err != nil {
		return "", fmt.Errorf("action classification for %s failed: %w", in.Symbol, err)
	}
	for _, row := range open {
		if row.RemainingQty() > 0 {
			return domain.ActionExit, nil
		}
	}
	return domain.ActionEntry, nil
}

// feeAndSlippage resolves the effective simulation constants for one intent.
func (e *Engine) feeAndSlippage(in *domain.Intent) (fee, buySlip, sellSlip float64) {
	fee = e.cfg.FeePerRoundTrip
	if in.Fee != nil && *in.Fee >= 0 {
		fee = *in.Fee
	}
	buySlip = e.cfg.BuySlippage
	if in.BuySlippage != nil && *in.BuySlippage >= 0 {
		buySlip = *in.BuySlippage
	}
	sellSlip = e.cfg.SellSlippage
	if in.SellSlippage != nil && *in.SellSlippage >= 0 {
		sellSlip = *in.SellSlippage
	}
	return fee, buySlip, sellSlip
}

// Clear removes every row from the ledger. All-or-nothing.
func (e *Engine) Clear(ctx context.Context) error {
	return e.ledger.Clear(ctx)
}
