package valuation

import "errors"

var (
	// ErrDataUnavailable is returned when bars do not cover a requested date.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrNegativeDeposit signals a solved deposit leg below zero.
	ErrNegativeDeposit = errors.New("negative deposit amount")
	// ErrPricingAmbiguity is returned when no USD conversion rule applies to a pair.
	ErrPricingAmbiguity = errors.New("no usd pricing rule for pair")
)
