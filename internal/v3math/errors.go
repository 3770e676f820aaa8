package v3math

import "errors"

var (
	// ErrUnsupportedFeeTier is returned for fee tiers outside {100, 500, 3000, 10000}.
	ErrUnsupportedFeeTier = errors.New("unsupported fee tier")
	// ErrInvalidAmountPosition is returned when a single-leg deposit names neither token.
	ErrInvalidAmountPosition = errors.New("invalid amount position")
	// ErrPriceRegime signals that a price fell outside every composition regime.
	ErrPriceRegime = errors.New("price outside all liquidity regimes")
)
