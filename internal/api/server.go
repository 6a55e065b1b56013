package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dhanpaper/internal/paper"
	"dhanpaper/internal/ports"

	"github.com/gorilla/mux"
)

// Config holds configuration for the HTTP server.
type Config struct {
	Addr string
	// WebhookAPIKey guards the webhook endpoint when set; empty disables the
	// check.
	WebhookAPIKey string

	// Echoed on GET /paper/enabled so the dashboard can show the simulation
	// constants in effect.
	FeePerRoundTrip float64
	BuySlippage     float64
	SellSlippage    float64
}

// Server exposes the paper-trading engine over HTTP.
type Server struct {
	cfg    Config
	engine *paper.Engine
	toggle ports.EnablementStore
	quotes ports.QuoteProvider // optional, serves the LTP debug endpoint
	logger ports.Logger
	srv    *http.Server
}

// NewServer creates the HTTP server. The quote provider may be nil.
func NewServer(cfg Config, engine *paper.Engine, toggle ports.EnablementStore, quotes ports.QuoteProvider, logger ports.Logger) (*Server, error) {
	if engine == nil || toggle == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for API server")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	s := &Server{
		cfg:    cfg,
		engine: engine,
		toggle: toggle,
		quotes: quotes,
		logger: logger,
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Router builds the route table:
//
//	/paper/
//	  ├── GET  /enabled         current toggle + simulation constants
//	  ├── POST /enabled?value=  persist toggle
//	  ├── POST /execute         run one intent through the engine
//	  ├── GET  /trades          all rows with cumulative P&L
//	  ├── GET  /trades/open     open rows, oldest first
//	  ├── GET  /trades/closed   closed rows with cumulative P&L
//	  ├── GET  /positions       per-symbol open qty / avg cost / realized
//	  ├── GET  /summary         portfolio-wide statistics
//	  ├── POST /clear           wipe the ledger
//	  └── GET  /ltp             debug quote fetch
//	/webhook/
//	  └── POST /tradingview     alert intake, gated by the enablement toggle
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.recovery, s.requestLogging)

	p := r.PathPrefix("/paper").Subrouter()
	p.HandleFunc("/enabled", s.handleGetEnabled).Methods(http.MethodGet)
	p.HandleFunc("/enabled", s.handleSetEnabled).Methods(http.MethodPost)
	p.HandleFunc("/execute", s.handleExecute).Methods(http.MethodPost)
	p.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	p.HandleFunc("/trades/open", s.handleOpenTrades).Methods(http.MethodGet)
	p.HandleFunc("/trades/closed", s.handleClosedTrades).Methods(http.MethodGet)
	p.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	p.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	p.HandleFunc("/clear", s.handleClear).Methods(http.MethodPost)
	p.HandleFunc("/ltp", s.handleLTP).Methods(http.MethodGet)

	r.HandleFunc("/webhook/tradingview", s.handleWebhook).Methods(http.MethodPost)
	return r
}

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": s.cfg.Addr})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		s.logger.Info(context.Background(), "HTTP server stopped")
		return nil
	}
}

// recovery turns handler panics into 500 responses instead of crashing the
// process.
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error(r.Context(), fmt.Errorf("panic: %v", rec), "Handler panicked", map[string]interface{}{
					"method": r.Method, "path": r.URL.Path,
				})
				writeJSON(w, http.StatusInternalServerError, errorEnvelope{Status: "error", Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request handled", map[string]interface{}{
			"method": r.Method, "path": r.URL.Path, "durationMs": time.Since(start).Milliseconds(),
		})
	})
}
