package valuation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpValuer/internal/model"
	"lpValuer/internal/simulate"
	"lpValuer/internal/v3math"
)

func seededMC(paths int) *simulate.MonteCarlo {
	seed := uint64(11)
	return &simulate.MonteCarlo{Paths: paths, StepsPerPeriod: 24, Seed: &seed}
}

func TestValuePositionFlatMarket(t *testing.T) {
	src := flatMarket(2486.8, 240, 2)
	pos := position(usdcWeth, 1)

	got, err := ValuePosition(context.Background(), src, seededMC(16), pos, epoch, Options{Workers: 4})
	require.NoError(t, err)
	require.Len(t, got.Paths, 16)
	assert.Equal(t, 24, got.Horizon)

	share := v3math.Share(got.Deposit.Liquidity, 1e18)
	wantFees := 24 * share * 240 / 24
	for _, p := range got.Paths {
		assert.InDelta(t, wantFees, p.FeesUSD, 1e-9)
		assert.InDelta(t, 10000, p.PositionUSD, 1e-6)
		assert.InDelta(t, 0, p.ImpermanentLossUSD, 1e-6)
		assert.InDelta(t, p.FeesUSD+p.PositionUSD, p.TV, 1e-9)
	}
	mean := got.Mean()
	assert.InDelta(t, wantFees+10000, mean.TV, 1e-6)
}

func TestValuePositionDeterministic(t *testing.T) {
	src := flatMarket(2486.8, 240, 2)
	// A moving history gives the estimator a non-zero volatility.
	for i := range src.hours {
		if i%2 == 1 {
			src.hours[i].Close = 2500
		}
	}
	pos := position(usdcWeth, 1)

	first, err := ValuePosition(context.Background(), src, seededMC(32), pos, epoch, Options{})
	require.NoError(t, err)
	second, err := ValuePosition(context.Background(), src, seededMC(32), pos, epoch, Options{Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, first.Paths, second.Paths)

	varied := false
	for _, p := range first.Paths[1:] {
		if p.PositionUSD != first.Paths[0].PositionUSD {
			varied = true
		}
	}
	assert.True(t, varied)
}

func TestValuePositionClipsToEnd(t *testing.T) {
	src := flatMarket(2486.8, 240, 3)
	pos := position(usdcWeth, 1)
	got, err := ValuePosition(context.Background(), src, seededMC(2), pos, epoch.Add(10*24*time.Hour), Options{})
	require.NoError(t, err)
	assert.Equal(t, pos.End, got.ValueDate)
	// A closed position has no tenor left to earn fees over.
	assert.Equal(t, 0, got.Horizon)
	for _, p := range got.Paths {
		assert.Equal(t, 0.0, p.FeesUSD)
		assert.InDelta(t, 10000, p.PositionUSD, 1e-6)
	}
}

func TestValuePositionHorizonIsRemainingTenor(t *testing.T) {
	src := flatMarket(2486.8, 240, 3)
	got, err := ValuePosition(context.Background(), src, seededMC(2), position(usdcWeth, 2), epoch.Add(12*time.Hour), Options{})
	require.NoError(t, err)
	assert.Equal(t, 36, got.Horizon)
	assert.Len(t, got.Paths, 2)
}

func barsFrom(bars []model.Bar, t time.Time) []model.Bar {
	var out []model.Bar
	for _, b := range bars {
		if !b.PeriodStart.Before(t) {
			out = append(out, b)
		}
	}
	return out
}

func TestValuePositionShortHistory(t *testing.T) {
	src := flatMarket(2486.8, 240, 2)
	src.hours = barsFrom(src.hours, epoch)
	for i := range src.hours {
		if i%2 == 1 {
			src.hours[i].Close = 2500
		}
	}
	_, err := ValuePosition(context.Background(), src, seededMC(8), position(usdcWeth, 1), epoch, Options{})
	require.ErrorIs(t, err, ErrDataUnavailable)

	src = flatMarket(2486.8, 240, 2)
	src.hours = barsFrom(src.hours, epoch.Add(-time.Hour))
	_, err = ValuePosition(context.Background(), src, seededMC(8), position(usdcWeth, 1), epoch, Options{Window: time.Hour})
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestValuePositionHistoryMissesWindowStart(t *testing.T) {
	src := flatMarket(2486.8, 240, 2)
	src.hours = barsFrom(src.hours, epoch.Add(-24*time.Hour))
	_, err := ValuePosition(context.Background(), src, seededMC(2), position(usdcWeth, 1), epoch, Options{})
	require.ErrorIs(t, err, ErrDataUnavailable)

	// The same bars cover a one-day window.
	_, err = ValuePosition(context.Background(), src, seededMC(2), position(usdcWeth, 1), epoch, Options{Window: 24 * time.Hour})
	require.NoError(t, err)
}

func TestValuePositionMissingDayBars(t *testing.T) {
	src := flatMarket(2486.8, 240, 2)
	src.days = nil
	_, err := ValuePosition(context.Background(), src, seededMC(2), position(usdcWeth, 1), epoch, Options{})
	require.ErrorIs(t, err, ErrDataUnavailable)

	src = flatMarket(2486.8, 240, 2)
	src.days = barsFrom(src.days, epoch.Add(time.Hour))
	_, err = ValuePosition(context.Background(), src, seededMC(2), position(usdcWeth, 1), epoch, Options{})
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestValuePositionReferenceShortHistory(t *testing.T) {
	src := flatMarket(0.075, 240, 2)
	src.tokens[wbtc.ID] = barsFrom(flatMarket(40000, 0, 2).hours, epoch.Add(-time.Hour))
	_, err := ValuePosition(context.Background(), src, seededMC(2), position(wbtcWeth, 1), epoch, Options{})
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestValuePositionUncoveredDate(t *testing.T) {
	src := flatMarket(2486.8, 240, 1)
	pos := position(usdcWeth, 30)
	_, err := ValuePosition(context.Background(), src, seededMC(2), pos, epoch.Add(20*24*time.Hour), Options{})
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestValuePositionReferencePair(t *testing.T) {
	src := flatMarket(0.075, 240, 2)
	src.tokens[wbtc.ID] = flatMarket(40000, 0, 2).hours
	got, err := ValuePosition(context.Background(), src, seededMC(4), position(wbtcWeth, 1), epoch, Options{})
	require.NoError(t, err)
	for _, p := range got.Paths {
		assert.InDelta(t, 10000, p.PositionUSD, 1e-6)
	}

	_, err = ValuePosition(context.Background(), src, seededMC(4), position(wbtcWeth, 1), epoch, Options{StableOnly: true})
	require.ErrorIs(t, err, ErrPricingAmbiguity)
}

func TestValuePositionEmptyTicks(t *testing.T) {
	src := flatMarket(2486.8, 240, 2)
	src.ticks = nil
	got, err := ValuePosition(context.Background(), src, seededMC(2), position(usdcWeth, 1), epoch, Options{Horizon: 5})
	require.NoError(t, err)
	// With no competing liquidity the position earns the whole fee flow.
	assert.InDelta(t, 5*240.0/24, got.Paths[0].FeesUSD, 1e-9)
}

func TestValuePositionSourceError(t *testing.T) {
	boom := errors.New("subgraph down")
	src := flatMarket(2486.8, 240, 2)
	src.failWith = boom
	_, err := ValuePosition(context.Background(), src, seededMC(2), position(usdcWeth, 1), epoch, Options{})
	require.ErrorIs(t, err, boom)
}

func TestTVResultMeanEmpty(t *testing.T) {
	assert.Equal(t, PathValue{}, TVResult{}.Mean())
}

func TestValuePositionBeforeStart(t *testing.T) {
	pos := position(usdcWeth, 1)
	pos.Start = epoch.Add(time.Hour)
	_, err := ValuePosition(context.Background(), flatMarket(1, 1, 1), seededMC(1), pos, epoch, Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDataUnavailable)
}
