package v3math

import (
	"fmt"
	"math"
)

// Deposit is the solved composition of a new position.
// Liquidity is expressed on plain float sqrt prices; multiply by
// 10^((decimals0+decimals1)/2) to compare it with pool liquidity.
type Deposit struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Liquidity float64 `json:"liquidity"`
}

// DepositAmounts sizes both legs of a position on [low, high] worth target
// at the given per-unit USD rates. Legs are clipped to [0, target/usd]; a
// price outside the range puts the whole budget into the active leg.
func DepositAmounts(price, low, high, usdX, usdY, target float64) (Deposit, error) {
	for _, v := range []float64{price, low, high} {
		if err := checkPrice(v); err != nil {
			return Deposit{}, err
		}
	}
	if !(low < high) {
		return Deposit{}, fmt.Errorf("range [%v, %v] is empty: %w", low, high, ErrPriceRegime)
	}
	if !(usdX > 0) || !(usdY > 0) {
		return Deposit{}, fmt.Errorf("usd rates must be positive: x=%v y=%v", usdX, usdY)
	}
	if target < 0 || math.IsNaN(target) || math.IsInf(target, 0) {
		return Deposit{}, fmt.Errorf("target notional must be finite and non-negative: %v", target)
	}

	sp, sl, su := math.Sqrt(price), math.Sqrt(low), math.Sqrt(high)
	switch {
	case price <= low:
		x := target / usdX
		return Deposit{X: x, Liquidity: x / (1/sl - 1/su)}, nil
	case price >= high:
		y := target / usdY
		return Deposit{Y: y, Liquidity: y / (su - sl)}, nil
	}

	dl := target / ((sp-sl)*usdY + (1/sp-1/su)*usdX)
	dy := clip(dl*(sp-sl), target/usdY)
	dx := clip(dl*(1/sp-1/su), target/usdX)
	return Deposit{X: dx, Y: dy, Liquidity: dl}, nil
}

func clip(v, limit float64) float64 {
	return math.Min(math.Max(v, 0), limit)
}

// AmountSide names the leg fixed by DepositForAmount.
type AmountSide string

const (
	AmountX AmountSide = "X"
	AmountY AmountSide = "Y"
)

// DepositForAmount sizes a position on [low, high] from a single known leg.
// AmountX fixes the first returned amount, AmountY the second.
func DepositForAmount(price, low, high, amount float64, side AmountSide) (float64, float64, error) {
	for _, v := range []float64{price, low, high} {
		if err := checkPrice(v); err != nil {
			return 0, 0, err
		}
	}
	sp, sl, su := math.Sqrt(price), math.Sqrt(low), math.Sqrt(high)

	var liquidity float64
	switch side {
	case AmountY:
		liquidity = amount * sp * su / (su - sp)
	case AmountX:
		liquidity = amount / (sp - sl)
	default:
		return 0, 0, fmt.Errorf("side %q: %w", side, ErrInvalidAmountPosition)
	}

	switch {
	case sl >= sp:
		return 0, liquidity * (1/sl - 1/su), nil
	case su >= sp:
		return liquidity * (sp - sl), liquidity * (1/sp - 1/su), nil
	case su < sp:
		return liquidity * (su - sl), 0, nil
	}
	return 0, 0, fmt.Errorf("price %v range [%v, %v]: %w", price, low, high, ErrPriceRegime)
}
