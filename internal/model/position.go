package model

import (
	"fmt"
	"time"
)

// Position is a single concentrated-liquidity position in one pool.
// Prices are expressed as token0 per token1, the pool's token0Price.
// Explicit Lower/Upper bounds take precedence over the percentage band.
type Position struct {
	Pool          Pool      `json:"pool"`
	AmountUSD     float64   `json:"amount_usd"`
	Lower         float64   `json:"lower,omitempty"`
	Upper         float64   `json:"upper,omitempty"`
	MinPercentage float64   `json:"min_percentage,omitempty"`
	MaxPercentage float64   `json:"max_percentage,omitempty"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// Bounds returns the price range of the position entered at price.
func (p Position) Bounds(price float64) (float64, float64, error) {
	if p.Lower > 0 && p.Upper > 0 {
		if p.Lower >= p.Upper {
			return 0, 0, fmt.Errorf("lower bound %v must be below upper bound %v", p.Lower, p.Upper)
		}
		return p.Lower, p.Upper, nil
	}
	if price <= 0 {
		return 0, 0, fmt.Errorf("entry price must be positive: %v", price)
	}
	if p.MinPercentage < 0 || p.MinPercentage >= 1 || p.MaxPercentage <= 0 {
		return 0, 0, fmt.Errorf("invalid percentage band: -%v/+%v", p.MinPercentage, p.MaxPercentage)
	}
	return price * (1 - p.MinPercentage), price * (1 + p.MaxPercentage), nil
}

func (p Position) String() string {
	return fmt.Sprintf("%s -> LP %.2f USD", p.Pool, p.AmountUSD)
}
