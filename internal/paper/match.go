package paper

import (
	"context"
	"fmt"

	"dhanpaper/internal/domain"
	"dhanpaper/internal/ports"

	"github.com/google/uuid"
)

// executeEntry records a new OPEN row at the slippage-adjusted price.
// No matching work happens on the entry path.
func (e *Engine) executeEntry(ctx context.Context, in *domain.Intent, raw float64, source domain.PriceSource) (*domain.ExecutionResult, error) {
	_, buySlip, sellSlip := e.feeAndSlippage(in)
	execPrice := slippageAdjusted(raw, in.Side, buySlip, sellSlip)
	now := e.now()

	row := &domain.Trade{
		ID:          uuid.NewString(),
		CreatedAt:   now,
		RequestID:   in.RequestID,
		SecurityID:  in.SecurityID,
		Symbol:      in.Symbol,
		Segment:     in.Segment,
		Side:        in.Side,
		Qty:         in.Qty,
		MatchedQty:  0,
		OrderType:   in.OrderType,
		EntryPrice:  execPrice,
		EntryAt:     now,
		Status:      domain.StatusOpen,
		PriceSource: source,
	}
	if err := e.ledger.Insert(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to record entry for %s: %w", in.Symbol, err)
	}

	e.logger.Info(ctx, "Paper entry recorded", map[string]interface{}{
		"tradeID": row.ID, "symbol": in.Symbol, "side": in.Side, "qty": in.Qty, "entryPrice": execPrice,
	})
	return &domain.ExecutionResult{
		Status:  domain.ResultOK,
		Records: []*domain.Trade{row},
	}, nil
}

// executeExit FIFO-matches a closing intent against open opposite-side rows.
//
// Every matched slice mutates the consumed entry row (matched_qty, status)
// and inserts its own immutable CLOSED match row with the slice's P&L and
// proportional fee. Quantity left over after all open rows are consumed
// becomes exactly one orphan CLOSED row. The whole loop runs in a single
// ledger transaction: a storage failure leaves no partial match applied.
func (e *Engine) executeExit(ctx context.Context, in *domain.Intent, raw float64, source domain.PriceSource) (*domain.ExecutionResult, error) {
	fee, buySlip, sellSlip := e.feeAndSlippage(in)
	exitPrice := slippageAdjusted(raw, in.Side, buySlip, sellSlip)
	now := e.now()

	res := &domain.ExecutionResult{
		Status:  domain.ResultOK,
		Records: []*domain.Trade{},
	}
	var matchedTotal int64
	var grossTotal, netTotal float64

	err := e.ledger.InTransaction(ctx, func(tx ports.TradeLedger) error {
		open, err := tx.FindOpenBySymbol(ctx, in.Symbol, in.Side.Opposite())
		if err != nil {
			return fmt.Errorf("failed to load open rows for %s: %w", in.Symbol, err)
		}

		remaining := in.Qty
		for _, entry := range open {
			if remaining <= 0 {
				break
			}
			available := entry.RemainingQty()
			if available <= 0 {
				continue
			}
			take := available
			if remaining < take {
				take = remaining
			}

			// Long entries (BUY) profit when the exit price is above the
			// entry; short entries (SELL) the other way around.
			var gross float64
			if entry.Side == domain.Buy {
				gross = (exitPrice - entry.EntryPrice) * float64(take)
			} else {
				gross = (entry.EntryPrice - exitPrice) * float64(take)
			}
			feeSlice := float64(take) / float64(in.Qty) * fee
			net := gross - feeSlice

			newMatched := entry.MatchedQty + take
			newStatus := domain.StatusOpen
			if newMatched == entry.Qty {
				newStatus = domain.StatusClosed
			}
			if err := tx.UpdateMatched(ctx, entry.ID, newMatched, newStatus); err != nil {
				return err
			}
			entry.MatchedQty = newMatched
			entry.Status = newStatus

			match := &domain.Trade{
				ID:          uuid.NewString(),
				CreatedAt:   now,
				RequestID:   in.RequestID,
				SecurityID:  entry.SecurityID,
				Symbol:      in.Symbol,
				Segment:     entry.Segment,
				Side:        in.Side,
				Qty:         take,
				MatchedQty:  take,
				OrderType:   in.OrderType,
				EntryPrice:  entry.EntryPrice,
				EntryAt:     entry.EntryAt,
				ExitPrice:   exitPrice,
				ExitAt:      now,
				GrossPnL:    round2(gross),
				Fee:         round2(feeSlice),
				NetPnL:      round2(net),
				Status:      domain.StatusClosed,
				PriceSource: source,
			}
			if err := tx.Insert(ctx, match); err != nil {
				return err
			}

			res.Records = append(res.Records, match)
			matchedTotal += take
			grossTotal += gross
			netTotal += net
			remaining -= take
		}

		if remaining > 0 {
			// No matching open interest for this quantity. The orphan always
			// succeeds; it never waits for a future entry. A fully unmatched
			// exit carries the whole round-trip fee, a partial remainder only
			// its proportional share.
			orphanFee := fee
			if matchedTotal > 0 {
				orphanFee = round2(float64(remaining) / float64(in.Qty) * fee)
			}
			orphan := &domain.Trade{
				ID:          uuid.NewString(),
				CreatedAt:   now,
				RequestID:   in.RequestID,
				SecurityID:  in.SecurityID,
				Symbol:      in.Symbol,
				Segment:     in.Segment,
				Side:        in.Side,
				Qty:         remaining,
				MatchedQty:  0,
				OrderType:   in.OrderType,
				ExitPrice:   exitPrice,
				ExitAt:      now,
				GrossPnL:    0,
				Fee:         orphanFee,
				NetPnL:      round2(-orphanFee),
				Status:      domain.StatusClosed,
				PriceSource: source,
			}
			if err := tx.Insert(ctx, orphan); err != nil {
				return err
			}
			res.Records = append(res.Records, orphan)
			netTotal -= orphanFee
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exit for %s failed: %w", in.Symbol, err)
	}

	res.MatchedTotal = matchedTotal
	res.GrossTotal = round2(grossTotal)
	res.NetTotal = round2(netTotal)

	e.logger.Info(ctx, "Paper exit recorded", map[string]interface{}{
		"symbol": in.Symbol, "side": in.Side, "qty": in.Qty,
		"matchedTotal": matchedTotal, "grossTotal": res.GrossTotal, "netTotal": res.NetTotal,
	})
	return res, nil
}
