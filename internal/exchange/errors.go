package exchange

import "errors"

// Error taxonomy shared by all adapters. Adapters catch and classify;
// callers always receive either a valid (possibly empty) unified structure
// or one of these.
var (
	// ErrTransient marks network, timeout, and 5xx failures. Discovery
	// paths degrade to empty results on it; deep-dive paths (book, trades,
	// candles) propagate it since no safe empty default exists.
	ErrTransient = errors.New("transient provider error")

	// ErrInvalidOutcomeID marks a market id (or other non-outcome id)
	// passed where an outcome id is required. Never silently coerced.
	ErrInvalidOutcomeID = errors.New("not an outcome id")

	// ErrOutcomeNotFound marks an outcome id the provider does not know.
	ErrOutcomeNotFound = errors.New("outcome not found")

	// ErrDataIntegrity marks a reconciliation bug (order fill exceeding
	// amount, broken book invariant). Fatal for the operation; never
	// clamped, because it must not propagate into reported fills.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrInsufficientLiquidity marks a market order the book cannot fully
	// absorb, rejected by the pre-trade check.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrAuthRequired marks a trading or account call made without
	// credentials configured.
	ErrAuthRequired = errors.New("authentication required")
)
