package valuation

import (
	"context"
	"math/big"
	"time"

	"lpValuer/internal/model"
)

type fakeMarket struct {
	hours    []model.Bar
	days     []model.Bar
	tokens   map[string][]model.Bar
	ticks    []model.TickRecord
	calls    int
	failWith error
}

func (f *fakeMarket) PoolHourBars(_ context.Context, _ string, from, to time.Time) ([]model.Bar, error) {
	f.calls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	return between(f.hours, from, to), nil
}

func (f *fakeMarket) PoolDayBars(_ context.Context, _ string, from, to time.Time) ([]model.Bar, error) {
	return between(f.days, from, to), nil
}

func (f *fakeMarket) TokenHourBars(_ context.Context, tokenID string, from, to time.Time) ([]model.Bar, error) {
	return between(f.tokens[tokenID], from, to), nil
}

func (f *fakeMarket) Ticks(context.Context, string) ([]model.TickRecord, error) {
	return f.ticks, nil
}

func between(bars []model.Bar, from, to time.Time) []model.Bar {
	var out []model.Bar
	for _, b := range bars {
		if !b.PeriodStart.Before(from) && b.PeriodStart.Before(to) {
			out = append(out, b)
		}
	}
	return out
}

var (
	epoch = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	usdc = model.Token{ID: "0xa0b8", Symbol: "USDC", Decimals: 6}
	weth = model.Token{ID: "0xc02a", Symbol: "WETH", Decimals: 18}
	wbtc = model.Token{ID: "0x2260", Symbol: "WBTC", Decimals: 8}

	usdcWeth = model.Pool{ID: "0x8ad5", FeeTier: 3000, Token0: usdc, Token1: weth}
	wbtcWeth = model.Pool{ID: "0xcbcd", FeeTier: 3000, Token0: wbtc, Token1: weth}
)

// flatMarket quotes close every hour and fee every day from epoch-5d to
// epoch+days, with 1e18 liquidity across the whole traded range.
func flatMarket(close, fee float64, days int) *fakeMarket {
	f := &fakeMarket{tokens: map[string][]model.Bar{}}
	start := epoch.Add(-5 * 24 * time.Hour)
	for ts := start; ts.Before(epoch.Add(time.Duration(days) * 24 * time.Hour)); ts = ts.Add(time.Hour) {
		f.hours = append(f.hours, model.Bar{PeriodStart: ts, Open: close, High: close, Low: close, Close: close})
		if ts.Hour() == 0 {
			f.days = append(f.days, model.Bar{PeriodStart: ts, Close: close, FeesUSD: fee})
		}
	}
	f.ticks = []model.TickRecord{
		{TickIdx: 60, LiquidityNet: bigLiquidity(1), LiquidityGross: bigLiquidity(1)},
		{TickIdx: 600000, LiquidityNet: bigLiquidity(-1), LiquidityGross: bigLiquidity(1)},
	}
	return f
}

func bigLiquidity(sign int64) *big.Int {
	v := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return v.Mul(v, big.NewInt(sign))
}

func position(pool model.Pool, days int) model.Position {
	return model.Position{
		Pool:          pool,
		AmountUSD:     10000,
		MinPercentage: 0.1,
		MaxPercentage: 0.1,
		Start:         epoch,
		End:           epoch.Add(time.Duration(days) * 24 * time.Hour),
	}
}
