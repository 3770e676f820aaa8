package valuation

import (
	"fmt"
	"strings"

	"lpValuer/internal/model"
)

var stables = map[string]struct{}{
	"USDC": {}, "USDT": {}, "DAI": {}, "BUSD": {}, "UST": {},
	"TUSD": {}, "USDP": {}, "USDN": {}, "FEI": {}, "FRAX": {},
}

// IsStable reports whether symbol is a recognized USD stablecoin.
func IsStable(symbol string) bool {
	_, ok := stables[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// PricingRule selects how token amounts convert to USD.
type PricingRule int

const (
	// Token0Stable values the pair in token0.
	Token0Stable PricingRule = iota
	// Token1Stable values the pair in token1.
	Token1Stable
	// Token0Reference values token0 with its own USD series.
	Token0Reference
)

func (r PricingRule) String() string {
	switch r {
	case Token0Stable:
		return "token0_stable"
	case Token1Stable:
		return "token1_stable"
	default:
		return "token0_reference"
	}
}

// RuleFor returns the USD rule of pool. With stableOnly set, a pair with no
// stable leg is rejected rather than priced through a reference series.
func RuleFor(pool model.Pool, stableOnly bool) (PricingRule, error) {
	switch {
	case IsStable(pool.Token0.Symbol):
		return Token0Stable, nil
	case IsStable(pool.Token1.Symbol):
		return Token1Stable, nil
	case stableOnly:
		return 0, fmt.Errorf("%s/%s: %w", pool.Token0.Symbol, pool.Token1.Symbol, ErrPricingAmbiguity)
	default:
		return Token0Reference, nil
	}
}

// NeedsReference reports whether the rule reads token0's USD series.
func (r PricingRule) NeedsReference() bool {
	return r == Token0Reference
}

// Rates returns the USD value of one unit of token0 and token1, given the
// pair close (token0 per token1) and token0's USD price for the reference rule.
func (r PricingRule) Rates(close, usd0 float64) (float64, float64) {
	switch r {
	case Token0Stable:
		return 1, close
	case Token1Stable:
		return 1 / close, 1
	default:
		return usd0, usd0 * close
	}
}

// ValueUSD converts (amount0, amount1) with the rule's rates.
func (r PricingRule) ValueUSD(amount0, amount1, close, usd0 float64) float64 {
	usdX, usdY := r.Rates(close, usd0)
	return amount0*usdX + amount1*usdY
}
