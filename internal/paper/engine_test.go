package paper

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dhanpaper/internal/adapters/sqlite"
	"dhanpaper/internal/domain"
	"dhanpaper/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noopLogger implements ports.Logger for testing
type noopLogger struct{}

func (l *noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (l *noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (l *noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// stubQuotes implements ports.QuoteProvider with a fixed answer.
type stubQuotes struct {
	price float64
	err   error
}

func (s *stubQuotes) LastTradedPrice(ctx context.Context, symbol, securityID, segment string) (float64, error) {
	return s.price, s.err
}

// setupEngine wires a real SQLite ledger in a temp dir behind the engine and
// replaces the clock with a strictly increasing one so FIFO order is
// deterministic.
func setupEngine(t *testing.T, cfg Config, quotes ports.QuoteProvider) (*Engine, *sqlite.Repository) {
	t.Helper()

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: &noopLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	e, err := New(cfg, repo, quotes, &noopLogger{})
	require.NoError(t, err)

	base := time.Date(2025, 6, 2, 9, 15, 0, 0, time.UTC)
	var tick int64
	e.now = func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second)
	}
	return e, repo
}

func defaultConfig() Config {
	return Config{
		FeePerRoundTrip: 50,
		BuySlippage:     1,
		SellSlippage:    1,
		QuoteTimeout:    time.Second,
	}
}

func intent(side domain.Side, qty int64, price float64) domain.Intent {
	return domain.Intent{
		Symbol:  "NIFTY",
		Segment: "NSE_FNO",
		Side:    side,
		Qty:     qty,
		Price:   price,
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(Config{FeePerRoundTrip: -1}, &sqlite.Repository{}, nil, &noopLogger{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(Config{BuySlippage: -1}, &sqlite.Repository{}, nil, &noopLogger{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = New(defaultConfig(), nil, nil, &noopLogger{})
	require.Error(t, err)
}

func TestSubmitIntent_RoundTrip(t *testing.T) {
	e, repo := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	entryRes, err := e.SubmitIntent(ctx, intent(domain.Buy, 10, 100))
	require.NoError(t, err)
	require.Equal(t, domain.ResultOK, entryRes.Status)
	require.Len(t, entryRes.Records, 1)

	entry := entryRes.Records[0]
	assert.Equal(t, 101.0, entry.EntryPrice, "buy pays the slippage on top")
	assert.Equal(t, domain.StatusOpen, entry.Status)
	assert.Equal(t, int64(0), entry.MatchedQty)
	assert.Equal(t, domain.PriceSourceAlert, entry.PriceSource)
	assert.NotEmpty(t, entry.RequestID, "request id is generated when absent")

	exitRes, err := e.SubmitIntent(ctx, intent(domain.Sell, 10, 110))
	require.NoError(t, err)
	require.Equal(t, domain.ResultOK, exitRes.Status)
	require.Len(t, exitRes.Records, 1)

	match := exitRes.Records[0]
	assert.Equal(t, 109.0, match.ExitPrice, "sell receives the slippage less")
	assert.Equal(t, 101.0, match.EntryPrice)
	assert.Equal(t, 80.0, match.GrossPnL)
	assert.Equal(t, 50.0, match.Fee)
	assert.Equal(t, 30.0, match.NetPnL)
	assert.Equal(t, domain.StatusClosed, match.Status)
	assert.Equal(t, int64(10), exitRes.MatchedTotal)
	assert.Equal(t, 80.0, exitRes.GrossTotal)
	assert.Equal(t, 30.0, exitRes.NetTotal)

	all, err := repo.FindAll(ctx, 0, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, row := range all {
		if row.ID == entry.ID {
			assert.Equal(t, domain.StatusClosed, row.Status)
			assert.Equal(t, int64(10), row.MatchedQty)
		}
	}
}

func TestSubmitIntent_PartialExits(t *testing.T) {
	e, repo := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	entryRes, err := e.SubmitIntent(ctx, intent(domain.Buy, 10, 100))
	require.NoError(t, err)
	entryID := entryRes.Records[0].ID

	// First exit covers 4 of 10. Each exit call carries a full round-trip fee
	// spread over its own quantity, so a full take pays the whole fee.
	first, err := e.SubmitIntent(ctx, intent(domain.Sell, 4, 110))
	require.NoError(t, err)
	require.Len(t, first.Records, 1)
	assert.Equal(t, 32.0, first.Records[0].GrossPnL) // (109-101)*4
	assert.Equal(t, 50.0, first.Records[0].Fee)
	assert.Equal(t, -18.0, first.Records[0].NetPnL)

	open, err := repo.FindOpenBySymbol(ctx, "NIFTY", domain.Buy)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, int64(4), open[0].MatchedQty)
	assert.Equal(t, domain.StatusOpen, open[0].Status)

	second, err := e.SubmitIntent(ctx, intent(domain.Sell, 6, 120))
	require.NoError(t, err)
	require.Len(t, second.Records, 1)
	assert.Equal(t, 108.0, second.Records[0].GrossPnL) // (119-101)*6
	assert.Equal(t, 58.0, second.Records[0].NetPnL)

	all, err := repo.FindAll(ctx, 0, nil)
	require.NoError(t, err)
	require.Len(t, all, 3, "one entry row plus two match rows")
	for _, row := range all {
		if row.ID == entryID {
			assert.Equal(t, int64(10), row.MatchedQty)
			assert.Equal(t, domain.StatusClosed, row.Status)
		}
	}
}

func TestSubmitIntent_FIFOMatchOrder(t *testing.T) {
	e, repo := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	oldest, err := e.SubmitIntent(ctx, intent(domain.Buy, 3, 100))
	require.NoError(t, err)
	newer, err := e.SubmitIntent(ctx, intent(domain.Buy, 5, 104))
	require.NoError(t, err)

	res, err := e.SubmitIntent(ctx, intent(domain.Sell, 6, 110))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	// Oldest entry is consumed in full before the newer one is touched.
	assert.Equal(t, int64(3), res.Records[0].Qty)
	assert.Equal(t, 101.0, res.Records[0].EntryPrice)
	assert.Equal(t, int64(3), res.Records[1].Qty)
	assert.Equal(t, 105.0, res.Records[1].EntryPrice)
	assert.Equal(t, int64(6), res.MatchedTotal)

	all, err := repo.FindAll(ctx, 0, nil)
	require.NoError(t, err)
	for _, row := range all {
		switch row.ID {
		case oldest.Records[0].ID:
			assert.Equal(t, domain.StatusClosed, row.Status)
			assert.Equal(t, int64(3), row.MatchedQty)
		case newer.Records[0].ID:
			assert.Equal(t, domain.StatusOpen, row.Status)
			assert.Equal(t, int64(3), row.MatchedQty)
		}
	}
}

func TestSubmitIntent_FeeRoundedPerSlice(t *testing.T) {
	cfg := defaultConfig()
	cfg.FeePerRoundTrip = 100
	e, _ := setupEngine(t, cfg, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.SubmitIntent(ctx, intent(domain.Buy, 1, 100))
		require.NoError(t, err)
	}

	res, err := e.SubmitIntent(ctx, intent(domain.Sell, 3, 110))
	require.NoError(t, err)
	require.Len(t, res.Records, 3)

	// 100/3 per unit slice rounds to 33.33 independently for each slice.
	var feeSum float64
	for _, match := range res.Records {
		assert.Equal(t, 33.33, match.Fee)
		feeSum += match.Fee
	}
	assert.InDelta(t, 100, feeSum, 0.01*float64(len(res.Records)))
}

func TestSubmitIntent_OrphanExit(t *testing.T) {
	e, repo := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	in := intent(domain.Sell, 5, 100)
	in.Action = domain.ActionExit

	res, err := e.SubmitIntent(ctx, in)
	require.NoError(t, err)
	require.Equal(t, domain.ResultOK, res.Status)
	require.Len(t, res.Records, 1)

	orphan := res.Records[0]
	assert.Equal(t, int64(5), orphan.Qty)
	assert.Equal(t, int64(0), orphan.MatchedQty)
	assert.Equal(t, 0.0, orphan.GrossPnL)
	assert.Equal(t, 50.0, orphan.Fee, "fully unmatched exit carries the whole round-trip fee")
	assert.Equal(t, -50.0, orphan.NetPnL)
	assert.Equal(t, domain.StatusClosed, orphan.Status)
	assert.Equal(t, int64(0), res.MatchedTotal)
	assert.Equal(t, -50.0, res.NetTotal)

	// The orphan settles immediately; nothing is left waiting for a future
	// entry.
	open, err := repo.FindOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSubmitIntent_ResidualBecomesOrphan(t *testing.T) {
	e, _ := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	_, err := e.SubmitIntent(ctx, intent(domain.Buy, 3, 100))
	require.NoError(t, err)

	res, err := e.SubmitIntent(ctx, intent(domain.Sell, 5, 110))
	require.NoError(t, err)
	require.Len(t, res.Records, 2)

	match, orphan := res.Records[0], res.Records[1]
	assert.Equal(t, int64(3), match.Qty)
	assert.Equal(t, 30.0, match.Fee) // 3/5 of 50

	assert.Equal(t, int64(2), orphan.Qty)
	assert.Equal(t, int64(0), orphan.MatchedQty)
	assert.Equal(t, 20.0, orphan.Fee, "partial remainder carries only its proportional share")
	assert.Equal(t, -20.0, orphan.NetPnL)
	assert.Equal(t, int64(3), res.MatchedTotal)
}

func TestSubmitIntent_ImplicitShortThenCover(t *testing.T) {
	e, repo := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	// A SELL with no open BUY rows opens a short instead of failing.
	shortRes, err := e.SubmitIntent(ctx, intent(domain.Sell, 10, 110))
	require.NoError(t, err)
	require.Len(t, shortRes.Records, 1)
	short := shortRes.Records[0]
	assert.Equal(t, domain.StatusOpen, short.Status)
	assert.Equal(t, 109.0, short.EntryPrice, "short entry receives the sell slippage less")

	coverRes, err := e.SubmitIntent(ctx, intent(domain.Buy, 10, 100))
	require.NoError(t, err)
	require.Len(t, coverRes.Records, 1)
	cover := coverRes.Records[0]
	assert.Equal(t, 101.0, cover.ExitPrice, "covering buy pays the buy slippage")
	assert.Equal(t, 80.0, cover.GrossPnL) // (109-101)*10, short profits on the way down
	assert.Equal(t, 30.0, cover.NetPnL)

	open, err := repo.FindOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSubmitIntent_ExplicitEntryOverridesClassification(t *testing.T) {
	e, repo := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	_, err := e.SubmitIntent(ctx, intent(domain.Buy, 10, 100))
	require.NoError(t, err)

	// Forced entry: despite open opposite-side interest, no matching happens.
	in := intent(domain.Sell, 5, 110)
	in.Action = domain.ActionEntry
	res, err := e.SubmitIntent(ctx, in)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, domain.StatusOpen, res.Records[0].Status)
	assert.Equal(t, domain.Sell, res.Records[0].Side)

	buys, err := repo.FindOpenBySymbol(ctx, "NIFTY", domain.Buy)
	require.NoError(t, err)
	require.Len(t, buys, 1)
	assert.Equal(t, int64(0), buys[0].MatchedQty, "forced entry must not consume the open buy")
}

func TestSubmitIntent_RejectsInvalidIntents(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(in *domain.Intent)
		wantErr error
	}{
		{name: "zero quantity", mutate: func(in *domain.Intent) { in.Qty = 0 }, wantErr: ports.ErrInvalidQuantity},
		{name: "negative quantity", mutate: func(in *domain.Intent) { in.Qty = -3 }, wantErr: ports.ErrInvalidQuantity},
		{name: "unknown side", mutate: func(in *domain.Intent) { in.Side = "HOLD" }, wantErr: ports.ErrInvalidRequest},
		{name: "unknown action", mutate: func(in *domain.Intent) { in.Action = "flip" }, wantErr: ports.ErrInvalidRequest},
		{name: "missing symbol", mutate: func(in *domain.Intent) { in.Symbol = "" }, wantErr: ports.ErrInvalidRequest},
		{name: "no price and no provider", mutate: func(in *domain.Intent) { in.Price = 0 }, wantErr: ports.ErrInvalidPrice},
	}

	e, repo := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := intent(domain.Buy, 10, 100)
			tt.mutate(&in)

			res, err := e.SubmitIntent(ctx, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)

			all, ferr := repo.FindAll(ctx, 0, nil)
			require.NoError(t, ferr)
			assert.Empty(t, all, "rejected intent must not touch the ledger")
		})
	}
}

func TestSubmitIntent_CaseInsensitiveSideAndAction(t *testing.T) {
	e, _ := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	in := domain.Intent{Symbol: "NIFTY", Side: "buy", Qty: 5, Price: 100, Action: "ENTRY"}
	res, err := e.SubmitIntent(ctx, in)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, domain.Buy, res.Records[0].Side)
	assert.Equal(t, "MARKET", res.Records[0].OrderType, "order type defaults when absent")
}

func TestSubmitIntent_QuoteFallback(t *testing.T) {
	e, _ := setupEngine(t, defaultConfig(), &stubQuotes{price: 200})
	ctx := context.Background()

	res, err := e.SubmitIntent(ctx, intent(domain.Buy, 5, 0))
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 201.0, res.Records[0].EntryPrice)
	assert.Equal(t, domain.PriceSourceQuote, res.Records[0].PriceSource)
}

func TestSubmitIntent_SkippedWhenQuoteUnavailable(t *testing.T) {
	e, repo := setupEngine(t, defaultConfig(), &stubQuotes{err: errors.New("feed down")})
	ctx := context.Background()

	res, err := e.SubmitIntent(ctx, intent(domain.Buy, 5, 0))
	require.NoError(t, err, "an unavailable quote is a skip, not an error")
	assert.Equal(t, domain.ResultSkipped, res.Status)
	assert.Empty(t, res.Records)

	all, err := repo.FindAll(ctx, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmitIntent_PerIntentOverrides(t *testing.T) {
	e, _ := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	zero := 0.0
	fee := 10.0

	in := intent(domain.Buy, 10, 100)
	in.BuySlippage = &zero
	_, err := e.SubmitIntent(ctx, in)
	require.NoError(t, err)

	out := intent(domain.Sell, 10, 110)
	out.SellSlippage = &zero
	out.Fee = &fee
	res, err := e.SubmitIntent(ctx, out)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 100.0, res.Records[0].EntryPrice)
	assert.Equal(t, 110.0, res.Records[0].ExitPrice)
	assert.Equal(t, 100.0, res.Records[0].GrossPnL)
	assert.Equal(t, 10.0, res.Records[0].Fee)
	assert.Equal(t, 90.0, res.Records[0].NetPnL)
}

func TestSubmitIntent_ConcurrentExitsNeverOverMatch(t *testing.T) {
	e, repo := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	_, err := e.SubmitIntent(ctx, intent(domain.Buy, 100, 100))
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.SubmitIntent(ctx, intent(domain.Sell, 10, 110)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := repo.FindAll(ctx, 0, nil)
	require.NoError(t, err)

	var matchedQty int64
	var orphans int
	for _, row := range all {
		if row.ExitAt.IsZero() {
			// The entry row: consumed exactly once in full.
			assert.Equal(t, int64(100), row.MatchedQty)
			assert.Equal(t, domain.StatusClosed, row.Status)
			continue
		}
		if row.MatchedQty == 0 {
			orphans++
			continue
		}
		matchedQty += row.MatchedQty
	}
	assert.Equal(t, int64(100), matchedQty, "matched quantity across exits equals the open interest")
	assert.Zero(t, orphans, "serialized exits must not race past the open interest")
}

func TestEngine_Clear(t *testing.T) {
	e, repo := setupEngine(t, defaultConfig(), nil)
	ctx := context.Background()

	_, err := e.SubmitIntent(ctx, intent(domain.Buy, 10, 100))
	require.NoError(t, err)
	require.NoError(t, e.Clear(ctx))

	all, err := repo.FindAll(ctx, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}
