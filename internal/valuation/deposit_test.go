package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpValuer/internal/v3math"
)

func TestDepositAmountsStablePair(t *testing.T) {
	src := flatMarket(2486.8, 100, 1)
	got, err := DepositAmounts(context.Background(), src, position(usdcWeth, 1), epoch.Add(30*time.Minute), Options{})
	require.NoError(t, err)

	assert.Equal(t, 2486.8, got.Close)
	assert.InDelta(t, 2486.8*0.9, got.Lower, 1e-9)
	assert.InDelta(t, 2486.8*1.1, got.Upper, 1e-9)
	assert.Equal(t, 1.0, got.USD0)
	assert.Equal(t, 2486.8, got.USD1)
	assert.GreaterOrEqual(t, got.Amount0, 0.0)
	assert.GreaterOrEqual(t, got.Amount1, 0.0)
	assert.InDelta(t, 10000, got.Amount0+got.Amount1*2486.8, 1e-6)

	// The recorded liquidity recomposes into the solved legs.
	x, y, err := v3math.AmountsForLiquidity(got.Liquidity, got.Close, got.Lower, got.Upper, 6, 18)
	require.NoError(t, err)
	assert.InEpsilon(t, got.Amount0, x, 1e-9)
	assert.InEpsilon(t, got.Amount1, y, 1e-9)
}

func TestDepositAmountsReferencePair(t *testing.T) {
	src := flatMarket(0.075, 100, 1)
	src.tokens[wbtc.ID] = flatMarket(40000, 0, 1).hours

	got, err := DepositAmounts(context.Background(), src, position(wbtcWeth, 1), epoch, Options{})
	require.NoError(t, err)
	assert.Equal(t, 40000.0, got.USD0)
	assert.InDelta(t, 3000, got.USD1, 1e-9)
	assert.InDelta(t, 10000, got.Amount0*got.USD0+got.Amount1*got.USD1, 1e-6)
}

func TestDepositAmountsMissingReference(t *testing.T) {
	src := flatMarket(0.075, 100, 1)
	_, err := DepositAmounts(context.Background(), src, position(wbtcWeth, 1), epoch, Options{})
	require.ErrorIs(t, err, ErrDataUnavailable)

	_, err = DepositAmounts(context.Background(), src, position(wbtcWeth, 1), epoch, Options{StableOnly: true})
	require.ErrorIs(t, err, ErrPricingAmbiguity)
}

func TestDepositAmountsUncoveredDate(t *testing.T) {
	src := flatMarket(2486.8, 100, 1)
	_, err := DepositAmounts(context.Background(), src, position(usdcWeth, 1), epoch.Add(72*time.Hour), Options{})
	require.ErrorIs(t, err, ErrDataUnavailable)
}
