package ports

import (
	"context"

	"dhanpaper/internal/domain"
)

// TradeLedger defines the interface for the durable table of trade rows.
//
// FIFO order is created_at ascending, insertion sequence as tie-break.
type TradeLedger interface {
	// Insert saves a new trade row and fills in its assigned sequence number.
	Insert(ctx context.Context, t *domain.Trade) error
	// UpdateMatched advances a row's matched quantity and status. It is a
	// guarded read-modify-write: the update is rejected with
	// ErrInternalInconsistency if it would shrink matched quantity or exceed
	// the row's requested quantity, and with ErrNotFound for an unknown id.
	UpdateMatched(ctx context.Context, id string, matchedQty int64, status domain.TradeStatus) error
	// FindOpenBySymbol retrieves OPEN rows for a symbol and side in FIFO order.
	FindOpenBySymbol(ctx context.Context, symbol string, side domain.Side) ([]*domain.Trade, error)
	// FindOpen retrieves all OPEN rows across symbols in FIFO order.
	FindOpen(ctx context.Context) ([]*domain.Trade, error)
	// FindAll retrieves rows newest-first, optionally filtered by status.
	// A non-positive limit means no limit.
	FindAll(ctx context.Context, limit int, status *domain.TradeStatus) ([]*domain.Trade, error)
	// Clear removes every trade row. All-or-nothing.
	Clear(ctx context.Context) error
	// InTransaction runs fn against a transaction-scoped ledger. Any error
	// from fn rolls the whole transaction back, so a failed matching loop
	// leaves no partial match applied.
	InTransaction(ctx context.Context, fn func(tx TradeLedger) error) error
}

// EnablementStore persists the simulation on/off gate. Writes must be
// durable before they are acknowledged.
type EnablementStore interface {
	// Enabled reads the persisted flag. A store that has never been written
	// reports false.
	Enabled(ctx context.Context) (bool, error)
	// SetEnabled persists the flag.
	SetEnabled(ctx context.Context, value bool) error
}
