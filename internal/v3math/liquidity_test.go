package v3math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSqrtPriceX96(t *testing.T) {
	got, err := SqrtPriceX96(1, 18, 18)
	require.NoError(t, err)
	f, _ := got.Float64()
	assert.Equal(t, math.Pow(2, 96), f)

	_, err = SqrtPriceX96(0, 18, 18)
	require.ErrorIs(t, err, ErrPriceRegime)
	_, err = SqrtPriceX96(math.NaN(), 18, 18)
	require.ErrorIs(t, err, ErrPriceRegime)
}

func TestPricesFromSqrtX96(t *testing.T) {
	sqrt, err := SqrtPriceX96(2486.8, 6, 18)
	require.NoError(t, err)
	raw, _ := sqrt.Int(nil)

	price0, price1 := PricesFromSqrtX96(raw, 6, 18)
	assert.InEpsilon(t, 2486.8, price0, 1e-12)
	assert.InEpsilon(t, 1/2486.8, price1, 1e-12)
}

func TestAmountsForLiquidity(t *testing.T) {
	x, y, err := AmountsForLiquidity(557959955471287.3, 2486.8, 1994.2, 2998.9, 6, 18)
	require.NoError(t, err)
	assert.InDelta(t, 2907.729524805766, x, 1e-8)
	assert.InDelta(t, 1.0, y, 1e-12)
}

func TestAmountsForLiquidityRegimes(t *testing.T) {
	const liquidity = 557959955471287.3

	// Above the range everything sits in token0.
	x, y, err := AmountsForLiquidity(liquidity, 3500, 1994.2, 2998.9, 6, 18)
	require.NoError(t, err)
	assert.Greater(t, x, 0.0)
	assert.Equal(t, 0.0, y)

	// Below the range everything sits in token1.
	x, y, err = AmountsForLiquidity(liquidity, 1500, 1994.2, 2998.9, 6, 18)
	require.NoError(t, err)
	assert.Equal(t, 0.0, x)
	assert.Greater(t, y, 0.0)

	// The out-of-range legs match the in-range legs at the matching edge.
	xEdge, _, err := AmountsForLiquidity(liquidity, 2998.9, 1994.2, 2998.9, 6, 18)
	require.NoError(t, err)
	xAbove, _, err := AmountsForLiquidity(liquidity, 5000, 1994.2, 2998.9, 6, 18)
	require.NoError(t, err)
	assert.InEpsilon(t, xAbove, xEdge, 1e-12)

	_, _, err = AmountsForLiquidity(liquidity, 2486.8, 2998.9, 1994.2, 6, 18)
	require.ErrorIs(t, err, ErrPriceRegime)
}

func TestLiquidityForAmounts(t *testing.T) {
	got, err := LiquidityForAmounts(2907.729524805772, 1, 6, 18, 2486.8, 1994.2, 2998.9)
	require.NoError(t, err)
	assert.InEpsilon(t, 557959955471287.3, got, 1e-12)

	got, err = LiquidityForAmounts(513.34, 0.12, 6, 18, 4029.63, 3635.7, 4443.81)
	require.NoError(t, err)
	assert.InEpsilon(t, 159557603837720.66, got, 1e-12)
}

func TestLiquidityRoundTrip(t *testing.T) {
	const liquidity = 1.25e15
	for _, price := range []float64{1500, 1994.2, 2200, 2486.8, 2998.9, 4000} {
		x, y, err := AmountsForLiquidity(liquidity, price, 1994.2, 2998.9, 6, 18)
		require.NoError(t, err)
		got, err := LiquidityForAmounts(x, y, 6, 18, price, 1994.2, 2998.9)
		require.NoError(t, err)
		assert.InEpsilon(t, liquidity, got, 1e-9, "price %v", price)
	}
}

func TestSingleLegAgreesWithLiquidityRecompose(t *testing.T) {
	amt0, amt1, err := DepositForAmount(2486.8, 1994.2, 2998.9, 2907.729524805772, AmountX)
	require.NoError(t, err)

	liquidity, err := LiquidityForAmounts(amt0, amt1, 6, 18, 2486.8, 1994.2, 2998.9)
	require.NoError(t, err)
	x, y, err := AmountsForLiquidity(liquidity, 2486.8, 1994.2, 2998.9, 6, 18)
	require.NoError(t, err)

	assert.InDelta(t, amt0, x, 1e-10)
	assert.InDelta(t, amt1, y, 1e-10)
}

func TestPoolValueInY(t *testing.T) {
	assert.InDelta(t, 5394.529524805781, PoolValueInY(557.9599554712883, 2486.8, 2998.9, 1994.2), 1e-8)
}
