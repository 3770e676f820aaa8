package v3math

import (
	"fmt"
	"math"
)

const tickBase = 1.0001

// tickEpsilon absorbs log rounding so exact tick prices floor onto their own tick.
const tickEpsilon = 1e-9

var tickSpacings = map[uint32]int32{
	100:   1,
	500:   10,
	3000:  60,
	10000: 200,
}

// TickSpacing returns the initializable tick step for a fee tier.
func TickSpacing(feeTier uint32) (int32, error) {
	spacing, ok := tickSpacings[feeTier]
	if !ok {
		return 0, fmt.Errorf("fee tier %d: %w", feeTier, ErrUnsupportedFeeTier)
	}
	return spacing, nil
}

// PriceToTick converts a token0-per-token1 price into its tick index.
func PriceToTick(price float64, decimals0, decimals1 uint8) int32 {
	raw := (1 / price) * pow10(int(decimals1)) / pow10(int(decimals0))
	return int32(math.Floor(math.Log(raw)/math.Log(tickBase) + tickEpsilon))
}

// TickToPrice returns the decimal-adjusted price of token1 at tick.
// The result is the inverse of the price PriceToTick accepts, so
// PriceToTick(1/TickToPrice(t)) yields t.
func TickToPrice(tick int32, decimals0, decimals1 uint8) float64 {
	return math.Pow(tickBase, float64(tick)) * pow10(int(decimals0)) / pow10(int(decimals1))
}

// TickToPrices returns (price0, price1) at tick, price0 being token0 per token1.
func TickToPrices(tick int32, decimals0, decimals1 uint8) (float64, float64) {
	price1 := TickToPrice(tick, decimals0, decimals1)
	return 1 / price1, price1
}

// AlignTick floors tick onto the spacing grid.
func AlignTick(tick, spacing int32) int32 {
	if spacing <= 1 {
		return tick
	}
	rem := tick % spacing
	if rem < 0 {
		rem += spacing
	}
	return tick - rem
}

func pow10(exp int) float64 {
	return math.Pow(10, float64(exp))
}
