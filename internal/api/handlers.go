package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dhanpaper/internal/domain"
	"dhanpaper/internal/ports"
)

const defaultTradeLimit = 200

// executeRequest mirrors the alert payload accepted by /paper/execute and the
// webhook. It is converted into a validated domain.Intent at this boundary;
// nothing past the handler ever sees the raw payload.
type executeRequest struct {
	Symbol        string   `json:"symbol"`
	TradingSymbol string   `json:"trading_symbol"`
	SecurityID    string   `json:"security_id"`
	Segment       string   `json:"segment"`
	Side          string   `json:"side"`
	Qty           int64    `json:"qty"`
	Price         float64  `json:"price"`
	Action        string   `json:"action"`
	RequestID     string   `json:"rid"`
	OrderType     string   `json:"order_type"`
	BuySlippage   *float64 `json:"buy_slippage"`
	SellSlippage  *float64 `json:"sell_slippage"`
	Charge        *float64 `json:"charge"`
}

func (r *executeRequest) toIntent() domain.Intent {
	symbol := r.TradingSymbol
	if symbol == "" {
		symbol = r.Symbol
	}
	return domain.Intent{
		Symbol:       symbol,
		SecurityID:   r.SecurityID,
		Segment:      r.Segment,
		Side:         domain.Side(r.Side),
		Qty:          r.Qty,
		Price:        r.Price,
		Action:       domain.Action(r.Action),
		RequestID:    r.RequestID,
		OrderType:    r.OrderType,
		BuySlippage:  r.BuySlippage,
		SellSlippage: r.SellSlippage,
		Fee:          r.Charge,
	}
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorEnvelope{Status: "error", Message: msg})
}

// submit runs one intent through the engine and writes the HTTP response,
// mapping validation errors to 400 and everything else to a structured 500
// envelope. No error escapes to crash the request handler.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, in domain.Intent) {
	result, err := s.engine.SubmitIntent(r.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, ports.ErrInvalidQuantity),
			errors.Is(err, ports.ErrInvalidPrice),
			errors.Is(err, ports.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error(r.Context(), err, "Intent execution failed", map[string]interface{}{"symbol": in.Symbol})
			writeError(w, http.StatusInternalServerError, "trade execution failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	s.submit(w, r, req.toIntent())
}

// handleWebhook is the TradingView alert intake. The enablement toggle is
// consulted here, not in the engine: when simulation is disabled the alert is
// acknowledged and ignored.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookAPIKey != "" && r.Header.Get("X-Api-Key") != s.cfg.WebhookAPIKey {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	enabled, err := s.toggle.Enabled(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to read enablement toggle")
		writeError(w, http.StatusInternalServerError, "enablement check failed")
		return
	}
	if !enabled {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ignored",
			"message": "paper trading is disabled",
		})
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	s.submit(w, r, req.toIntent())
}

func (s *Server) handleGetEnabled(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.toggle.Enabled(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to read enablement toggle")
		writeError(w, http.StatusInternalServerError, "enablement check failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":               enabled,
		"charge_per_round_trip": s.cfg.FeePerRoundTrip,
		"buy_slippage":          s.cfg.BuySlippage,
		"sell_slippage":         s.cfg.SellSlippage,
	})
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	value, err := strconv.ParseBool(r.URL.Query().Get("value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "value must be a boolean")
		return
	}
	if err := s.toggle.SetEnabled(r.Context(), value); err != nil {
		s.logger.Error(r.Context(), err, "Failed to persist enablement toggle")
		writeError(w, http.StatusInternalServerError, "failed to persist toggle")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": value})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListTrades(r.Context(), queryLimit(r), nil)
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to list trades")
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleOpenTrades(w http.ResponseWriter, r *http.Request) {
	rows, err := s.engine.OpenTrades(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to list open trades")
		writeError(w, http.StatusInternalServerError, "failed to list open trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"open_trades": rows,
		"count":       len(rows),
	})
}

func (s *Server) handleClosedTrades(w http.ResponseWriter, r *http.Request) {
	closed := domain.StatusClosed
	list, err := s.engine.ListTrades(r.Context(), queryLimit(r), &closed)
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to list closed trades")
		writeError(w, http.StatusInternalServerError, "failed to list closed trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"closed_trades":    list.Trades,
		"cumulative_gross": list.CumulativeGross,
		"cumulative_net":   list.CumulativeNet,
		"count":            len(list.Trades),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.engine.OpenPositions(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to aggregate positions")
		writeError(w, http.StatusInternalServerError, "failed to aggregate positions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.Summarize(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to build summary")
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Clear(r.Context()); err != nil {
		s.logger.Error(r.Context(), err, "Failed to clear ledger")
		writeError(w, http.StatusInternalServerError, "failed to clear ledger")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "cleared"})
}

// handleLTP is a debug helper to test quote fetching end to end.
func (s *Server) handleLTP(w http.ResponseWriter, r *http.Request) {
	if s.quotes == nil {
		writeError(w, http.StatusServiceUnavailable, "no quote provider configured")
		return
	}
	securityID := r.URL.Query().Get("security_id")
	segment := r.URL.Query().Get("segment")

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	ltp, err := s.quotes.LastTradedPrice(ctx, r.URL.Query().Get("symbol"), securityID, segment)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":          false,
			"ltp":         nil,
			"message":     "could not fetch LTP",
			"security_id": securityID,
			"segment":     segment,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"ltp":         ltp,
		"security_id": securityID,
		"segment":     segment,
	})
}

func queryLimit(r *http.Request) int {
	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	return limit
}
