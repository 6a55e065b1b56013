package paper

import (
	"context"
	"fmt"
	"sort"

	"dhanpaper/internal/domain"
)

// ListTrades returns ledger rows newest-first, optionally filtered by status,
// annotated with running cumulative P&L computed oldest-first over the
// returned window.
//
// The listing tolerates new CLOSED rows appearing between repeated calls; it
// never assumes a point-in-time snapshot beyond the single query.
func (e *Engine) ListTrades(ctx context.Context, limit int, status *domain.TradeStatus) (*domain.TradeList, error) {
	rows, err := e.ledger.FindAll(ctx, limit, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}

	list := &domain.TradeList{Trades: make([]*domain.AnnotatedTrade, len(rows))}
	var cumGross, cumNet float64
	// rows are newest-first; walk from the oldest so the running sums read
	// forward in time.
	for i := len(rows) - 1; i >= 0; i-- {
		cumGross += rows[i].GrossPnL
		cumNet += rows[i].NetPnL
		list.Trades[i] = &domain.AnnotatedTrade{
			Trade:           rows[i],
			CumulativeGross: round2(cumGross),
			CumulativeNet:   round2(cumNet),
		}
	}
	list.CumulativeGross = round2(cumGross)
	list.CumulativeNet = round2(cumNet)
	return list, nil
}

// OpenTrades returns every OPEN row across symbols, oldest first.
func (e *Engine) OpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	rows, err := e.ledger.FindOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open trades: %w", err)
	}
	return rows, nil
}

// OpenPositions derives per-symbol summaries from the ledger: remaining open
// quantity and quantity-weighted average cost on the net side, plus realized
// P&L over the symbol's closed match rows.
func (e *Engine) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	open, err := e.ledger.FindOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load open rows: %w", err)
	}
	closedStatus := domain.StatusClosed
	closed, err := e.ledger.FindAll(ctx, 0, &closedStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to load closed rows: %w", err)
	}

	type sideAgg struct {
		qty  int64
		cost float64
		rows []*domain.Trade
	}
	type symbolAgg struct {
		segment  string
		long     sideAgg
		short    sideAgg
		realized float64
	}

	bySymbol := make(map[string]*symbolAgg)
	get := func(symbol, segment string) *symbolAgg {
		a, ok := bySymbol[symbol]
		if !ok {
			a = &symbolAgg{segment: segment}
			bySymbol[symbol] = a
		}
		if a.segment == "" {
			a.segment = segment
		}
		return a
	}

	for _, row := range open {
		a := get(row.Symbol, row.Segment)
		side := &a.long
		if row.Side == domain.Sell {
			side = &a.short
		}
		remaining := row.RemainingQty()
		side.qty += remaining
		side.cost += row.EntryPrice * float64(remaining)
		side.rows = append(side.rows, row)
	}
	for _, row := range closed {
		if row.MatchedQty == 0 {
			continue // orphan exits carry no realized position P&L beyond fees
		}
		get(row.Symbol, row.Segment).realized += row.NetPnL
	}

	positions := make([]*domain.Position, 0, len(bySymbol))
	for symbol, a := range bySymbol {
		net := &a.long
		side := domain.Buy
		if a.short.qty > a.long.qty {
			net = &a.short
			side = domain.Sell
		}
		if net.qty == 0 && a.realized == 0 {
			continue
		}
		pos := &domain.Position{
			Symbol:   symbol,
			Segment:  a.segment,
			Side:     side,
			OpenQty:  net.qty,
			Realized: round2(a.realized),
			Rows:     net.rows,
		}
		if net.qty > 0 {
			pos.AvgCost = net.cost / float64(net.qty)
		}
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}
