package v3math

import (
	"fmt"
	"math"
	"math/big"
)

const floatPrec = 256

var q96 = new(big.Float).SetPrec(floatPrec).SetMantExp(big.NewFloat(1), 96)

func newFloat(v float64) *big.Float {
	return new(big.Float).SetPrec(floatPrec).SetFloat64(v)
}

func zeroFloat() *big.Float {
	return new(big.Float).SetPrec(floatPrec)
}

// SqrtPriceX96 returns sqrt((1/price)*10^decimals1/10^decimals0) * 2^96 for a
// token0-per-token1 price. Higher prices map to lower sqrt prices.
func SqrtPriceX96(price float64, decimals0, decimals1 uint8) (*big.Float, error) {
	if err := checkPrice(price); err != nil {
		return nil, err
	}
	raw := newFloat(1)
	raw.Quo(raw, newFloat(price))
	raw.Mul(raw, pow10Float(int(decimals1)-int(decimals0)))
	raw.Sqrt(raw)
	return raw.Mul(raw, q96), nil
}

// PricesFromSqrtX96 converts an on-chain sqrtPriceX96 into (price0, price1),
// price0 being token0 per token1.
func PricesFromSqrtX96(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (float64, float64) {
	ratio := new(big.Float).SetPrec(floatPrec).SetInt(sqrtPriceX96)
	ratio.Quo(ratio, q96)
	ratio.Mul(ratio, ratio)
	ratio.Mul(ratio, pow10Float(int(decimals0)-int(decimals1)))
	price1, _ := ratio.Float64()
	return 1 / price1, price1
}

// AmountsForLiquidity returns the token amounts (x, y) held by a position of
// liquidity L on [low, high] when the pool trades at price.
//
// Prices are token0 per token1; x is token0 and y is token1, both in human units.
func AmountsForLiquidity(liquidity, price, low, high float64, decimals0, decimals1 uint8) (float64, float64, error) {
	lower, upper, current, err := sqrtBounds(price, low, high, decimals0, decimals1)
	if err != nil {
		return 0, 0, err
	}
	l := newFloat(liquidity)
	x, y := zeroFloat(), zeroFloat()

	switch {
	case current.Cmp(lower) <= 0:
		// x = L*(upper-lower)/(upper*lower/Q96)
		den := zeroFloat().Mul(upper, lower)
		den.Quo(den, q96)
		x.Sub(upper, lower).Mul(x, l).Quo(x, den)
	case current.Cmp(upper) <= 0:
		// x = L*(upper-c)/(c*upper/Q96), y = L/Q96*(c-lower)
		den := zeroFloat().Mul(current, upper)
		den.Quo(den, q96)
		x.Sub(upper, current).Mul(x, l).Quo(x, den)
		y.Sub(current, lower).Mul(y, l).Quo(y, q96)
	case current.Cmp(upper) > 0:
		y.Sub(upper, lower).Mul(y, l).Quo(y, q96)
	default:
		return 0, 0, fmt.Errorf("price %v range [%v, %v]: %w", price, low, high, ErrPriceRegime)
	}

	x.Quo(x, pow10Float(int(decimals0)))
	y.Quo(y, pow10Float(int(decimals1)))
	xf, _ := x.Float64()
	yf, _ := y.Float64()
	return xf, yf, nil
}

// LiquidityForAmounts recovers the liquidity implied by holding amount0 of
// token0 and amount1 of token1 on [low, high] at price. In range the
// binding (smaller) of the two single-token estimates wins.
func LiquidityForAmounts(amount0, amount1 float64, decimals0, decimals1 uint8, price, low, high float64) (float64, error) {
	lower, upper, current, err := sqrtBounds(price, low, high, decimals0, decimals1)
	if err != nil {
		return 0, err
	}
	ax := newFloat(amount0)
	ax.Mul(ax, pow10Float(int(decimals0)))
	ay := newFloat(amount1)
	ay.Mul(ay, pow10Float(int(decimals1)))

	var liquidity *big.Float
	switch {
	case current.Cmp(lower) <= 0:
		liquidity = liquidityFromX(ax, upper, lower)
	case current.Cmp(upper) <= 0:
		lx := liquidityFromX(ax, upper, current)
		ly := liquidityFromY(ay, current, lower)
		liquidity = lx
		if ly.Cmp(lx) < 0 {
			liquidity = ly
		}
	case current.Cmp(upper) > 0:
		liquidity = liquidityFromY(ay, upper, lower)
	default:
		return 0, fmt.Errorf("price %v range [%v, %v]: %w", price, low, high, ErrPriceRegime)
	}
	out, _ := liquidity.Float64()
	return out, nil
}

// L = ax*(hi*lo/Q96)/(hi-lo)
func liquidityFromX(ax, hi, lo *big.Float) *big.Float {
	width := zeroFloat().Sub(hi, lo)
	if width.Sign() == 0 {
		return zeroFloat().SetInf(false)
	}
	num := zeroFloat().Mul(hi, lo)
	num.Quo(num, q96).Mul(num, ax)
	return num.Quo(num, width)
}

// L = ay*Q96/(hi-lo)
func liquidityFromY(ay, hi, lo *big.Float) *big.Float {
	width := zeroFloat().Sub(hi, lo)
	if width.Sign() == 0 {
		return zeroFloat().SetInf(false)
	}
	num := zeroFloat().Mul(ay, q96)
	return num.Quo(num, width)
}

// PoolValueInY returns the value, in token-Y units, of a position of
// liquidity L on [lower, upper] at price.
func PoolValueInY(liquidity, price, upper, lower float64) float64 {
	return 2*liquidity*math.Sqrt(price) - liquidity*(math.Sqrt(lower)+price/math.Sqrt(upper))
}

// sqrtBounds returns the Q96 sqrt prices of the range edges and the current
// price. The high price maps to the lower sqrt bound.
func sqrtBounds(price, low, high float64, decimals0, decimals1 uint8) (*big.Float, *big.Float, *big.Float, error) {
	if !(low < high) {
		return nil, nil, nil, fmt.Errorf("range [%v, %v] is empty: %w", low, high, ErrPriceRegime)
	}
	lower, err := SqrtPriceX96(high, decimals0, decimals1)
	if err != nil {
		return nil, nil, nil, err
	}
	upper, err := SqrtPriceX96(low, decimals0, decimals1)
	if err != nil {
		return nil, nil, nil, err
	}
	current, err := SqrtPriceX96(price, decimals0, decimals1)
	if err != nil {
		return nil, nil, nil, err
	}
	return lower, upper, current, nil
}

func checkPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("price %v: %w", price, ErrPriceRegime)
	}
	return nil
}

func pow10Float(exp int) *big.Float {
	ten := big.NewInt(10)
	if exp >= 0 {
		return new(big.Float).SetPrec(floatPrec).SetInt(new(big.Int).Exp(ten, big.NewInt(int64(exp)), nil))
	}
	den := new(big.Float).SetPrec(floatPrec).SetInt(new(big.Int).Exp(ten, big.NewInt(int64(-exp)), nil))
	return new(big.Float).SetPrec(floatPrec).Quo(newFloat(1), den)
}
