package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors.
var (
	// Validation errors, rejected before any row mutation.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrInvalidPrice    = errors.New("no usable price could be resolved")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")

	// ErrQuoteUnavailable means the market-data provider could not supply a
	// price. It is not a failure of the engine: submissions resolve to a
	// "skipped" result with no ledger mutation.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrInternalInconsistency signals a broken ledger invariant, such as
	// matched quantity exceeding requested quantity. It is fatal for the
	// affected call and must never be silently clamped.
	ErrInternalInconsistency = errors.New("ledger invariant violated")

	// General errors.
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Database errors.
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrInsertFailed = errors.New("database insert failed")
	ErrUpdateFailed = errors.New("database update failed")
	ErrDeleteFailed = errors.New("database delete failed")
)
