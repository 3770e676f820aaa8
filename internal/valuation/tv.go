package valuation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"lpValuer/internal/model"
	"lpValuer/internal/simulate"
	"lpValuer/internal/v3math"
)

// PathValue itemizes one simulated path.
type PathValue struct {
	FeesUSD            float64 `json:"fees_usd"`
	PositionUSD        float64 `json:"position_usd"`
	HoldUSD            float64 `json:"hold_usd"`
	ImpermanentLossUSD float64 `json:"impermanent_loss_usd"`
	TV                 float64 `json:"tv"`
}

// TVResult carries the per-path breakdown of a TV run.
type TVResult struct {
	PoolID    string        `json:"pool_id"`
	ValueDate time.Time     `json:"value_date"`
	Horizon   int           `json:"horizon_hours"`
	Deposit   DepositResult `json:"deposit"`
	Paths     []PathValue   `json:"paths"`
}

// Mean returns the ensemble average of every breakdown column.
func (r TVResult) Mean() PathValue {
	n := len(r.Paths)
	if n == 0 {
		return PathValue{}
	}
	cols := [5][]float64{}
	for i := range cols {
		cols[i] = make([]float64, n)
	}
	for i, p := range r.Paths {
		cols[0][i] = p.FeesUSD
		cols[1][i] = p.PositionUSD
		cols[2][i] = p.HoldUSD
		cols[3][i] = p.ImpermanentLossUSD
		cols[4][i] = p.TV
	}
	return PathValue{
		FeesUSD:            stat.Mean(cols[0], nil),
		PositionUSD:        stat.Mean(cols[1], nil),
		HoldUSD:            stat.Mean(cols[2], nil),
		ImpermanentLossUSD: stat.Mean(cols[3], nil),
		TV:                 stat.Mean(cols[4], nil),
	}
}

// TVData is the raw input of a TV run.
type TVData struct {
	Hours    []model.Bar
	Days     []model.Bar
	RefHours []model.Bar
	Ticks    []model.TickRecord
}

// TVStage holds everything the per-path valuation reads.
type TVStage struct {
	Rule           PricingRule
	AverageDayFees float64
	Curve          *v3math.TickCurve
	Prices         simulate.Ensemble
	RefPrices      simulate.Ensemble
	Deposit        DepositResult
	Horizon        int
}

// TVCalculator values a position under simulated price paths.
type TVCalculator struct {
	Source    MarketSource
	Simulator simulate.Simulator
	Position  model.Position
	ValueDate time.Time
	Options   Options
}

func (c *TVCalculator) Fetch(ctx context.Context) (TVData, error) {
	rule, err := RuleFor(c.Position.Pool, c.Options.StableOnly)
	if err != nil {
		return TVData{}, err
	}
	pool := c.Position.Pool
	from, to := c.ValueDate.Add(-c.Options.window()), c.ValueDate.Add(time.Hour)

	var data TVData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bars, err := c.Source.PoolHourBars(gctx, pool.ID, from, to)
		if err != nil {
			return fmt.Errorf("pool hour bars: %w", err)
		}
		data.Hours = model.NormalizeBars(bars)
		return nil
	})
	g.Go(func() error {
		bars, err := c.Source.PoolDayBars(gctx, pool.ID, from, to)
		if err != nil {
			return fmt.Errorf("pool day bars: %w", err)
		}
		data.Days = model.NormalizeBars(bars)
		return nil
	})
	g.Go(func() error {
		ticks, err := c.Source.Ticks(gctx, pool.ID)
		if err != nil {
			return fmt.Errorf("ticks: %w", err)
		}
		data.Ticks = ticks
		return nil
	})
	if rule.NeedsReference() {
		g.Go(func() error {
			bars, err := c.Source.TokenHourBars(gctx, pool.Token0.ID, from, to)
			if err != nil {
				return fmt.Errorf("token0 hour bars: %w", err)
			}
			data.RefHours = model.NormalizeBars(bars)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TVData{}, err
	}
	return data, nil
}

func (c *TVCalculator) Stage(data TVData) (TVStage, error) {
	pool := c.Position.Pool
	rule, err := RuleFor(pool, c.Options.StableOnly)
	if err != nil {
		return TVStage{}, err
	}

	staged, err := stageDeposit(c.Position, rule, data.Hours, data.RefHours, c.ValueDate)
	if err != nil {
		return TVStage{}, err
	}
	deposit, err := solveDeposit(pool, staged)
	if err != nil {
		return TVStage{}, err
	}
	deposit.Date = c.ValueDate

	days := barsBefore(data.Days, c.ValueDate.Add(time.Hour))
	if len(days) == 0 {
		return TVStage{}, fmt.Errorf("pool day bars before %s: %w", c.ValueDate.UTC().Format(time.RFC3339), ErrDataUnavailable)
	}
	fees := make([]float64, len(days))
	for i, d := range days {
		fees[i] = d.FeesUSD
	}

	curve, err := v3math.BuildTickCurve(data.Ticks, pool.FeeTier, pool.Token0.Decimals, pool.Token1.Decimals, v3math.RawUnits)
	if err != nil {
		return TVStage{}, err
	}

	horizon := c.horizon()
	from := c.ValueDate.Add(-c.Options.window())
	history, err := trailingCloses(data.Hours, from, c.ValueDate)
	if err != nil {
		return TVStage{}, fmt.Errorf("pool hour history: %w", err)
	}
	prices, err := c.simulate(history, horizon)
	if err != nil {
		return TVStage{}, fmt.Errorf("simulate pair: %w", err)
	}
	var refPrices simulate.Ensemble
	if rule.NeedsReference() {
		refHistory, err := trailingCloses(data.RefHours, from, c.ValueDate)
		if err != nil {
			return TVStage{}, fmt.Errorf("token0 hour history: %w", err)
		}
		refPrices, err = c.simulate(refHistory, horizon)
		if err != nil {
			return TVStage{}, fmt.Errorf("simulate token0 usd: %w", err)
		}
	}

	return TVStage{
		Rule:           rule,
		AverageDayFees: stat.Mean(fees, nil),
		Curve:          curve,
		Prices:         prices,
		RefPrices:      refPrices,
		Deposit:        deposit,
		Horizon:        horizon,
	}, nil
}

func (c *TVCalculator) Compute(staged TVStage) (TVResult, error) {
	log := logger(c.Options.Logger)
	paths := make([]PathValue, len(staged.Prices))
	errs := make([]error, len(staged.Prices))

	pool, err := ants.NewPool(c.Options.workers())
	if err != nil {
		return TVResult{}, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range staged.Prices {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			paths[i], errs[i] = c.valuePath(staged, i)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return TVResult{}, fmt.Errorf("submit path %d: %w", i, err)
		}
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return TVResult{}, fmt.Errorf("path %d: %w", i, err)
		}
	}

	result := TVResult{
		PoolID:    c.Position.Pool.ID,
		ValueDate: c.ValueDate,
		Horizon:   staged.Horizon,
		Deposit:   staged.Deposit,
		Paths:     paths,
	}
	mean := result.Mean()
	log.Info("tv computed",
		zap.String("pool", c.Position.Pool.ID),
		zap.Int("paths", len(paths)),
		zap.Int("horizon_hours", staged.Horizon),
		zap.Float64("fees_usd", mean.FeesUSD),
		zap.Float64("tv", mean.TV),
	)
	return result, nil
}

// valuePath accrues hourly fees along path i and values the position at
// its terminal price.
func (c *TVCalculator) valuePath(staged TVStage, i int) (PathValue, error) {
	pool := c.Position.Pool
	dep := staged.Deposit
	path := staged.Prices[i]

	hourly := make([]float64, 0, len(path))
	for _, node := range path[1:] {
		tick := v3math.PriceToTick(node, pool.Token0.Decimals, pool.Token1.Decimals)
		share := staged.Curve.LiquidityShare(tick, dep.Liquidity)
		hourly = append(hourly, share*staged.AverageDayFees/hoursPerDay)
	}

	last := path[len(path)-1]
	x, y, err := v3math.AmountsForLiquidity(dep.Liquidity, last, dep.Lower, dep.Upper, pool.Token0.Decimals, pool.Token1.Decimals)
	if err != nil {
		return PathValue{}, err
	}
	var usd0 float64
	if staged.Rule.NeedsReference() {
		ref := staged.RefPrices[i]
		usd0 = ref[len(ref)-1]
	}
	position := staged.Rule.ValueUSD(x, y, last, usd0)
	hold := staged.Rule.ValueUSD(dep.Amount0, dep.Amount1, last, usd0)
	fees := floats.Sum(hourly)
	return PathValue{
		FeesUSD:            fees,
		PositionUSD:        position,
		HoldUSD:            hold,
		ImpermanentLossUSD: position - hold,
		TV:                 fees + position,
	}, nil
}

func (c *TVCalculator) simulate(history []float64, horizon int) (simulate.Ensemble, error) {
	est, err := simulate.EstimateParams(history, hoursPerDay)
	if err != nil {
		return nil, fmt.Errorf("estimate volatility: %w: %w", ErrDataUnavailable, err)
	}
	return c.Simulator.Simulate(history, simulate.Params{Volatility: est.Volatility}, horizon)
}

// horizon defaults to the tenor left between the value date and the
// position end. A position without an end is simulated for one day.
func (c *TVCalculator) horizon() int {
	if c.Options.Horizon > 0 {
		return c.Options.Horizon
	}
	if c.Position.End.IsZero() {
		return hoursPerDay
	}
	hours := int(math.Ceil(c.Position.End.Sub(c.ValueDate).Hours()))
	if hours < 0 {
		return 0
	}
	return hours
}

// ValuePosition computes the TV of position at valueDate, clipping the
// date to the position end.
func ValuePosition(ctx context.Context, src MarketSource, sim simulate.Simulator, position model.Position, valueDate time.Time, opts Options) (TVResult, error) {
	if valueDate.Before(position.Start) {
		return TVResult{}, fmt.Errorf("value date %s precedes position start %s",
			valueDate.UTC().Format(time.RFC3339), position.Start.UTC().Format(time.RFC3339))
	}
	if !position.End.IsZero() && valueDate.After(position.End) {
		valueDate = position.End
	}
	return Run[TVData, TVStage, TVResult](ctx, &TVCalculator{
		Source:    src,
		Simulator: sim,
		Position:  position,
		ValueDate: valueDate,
		Options:   opts,
	})
}

// minHistoryBars is the shortest close series that yields a volatility.
const minHistoryBars = 3

// trailingCloses returns the closes of sorted bars up to the hour at, and
// fails unless they reach back to the window start at from.
func trailingCloses(bars []model.Bar, from, at time.Time) ([]float64, error) {
	window := barsBefore(bars, at.Add(time.Hour))
	if len(window) < minHistoryBars {
		return nil, fmt.Errorf("%d bars before %s: %w", len(window), at.UTC().Format(time.RFC3339), ErrDataUnavailable)
	}
	if !window[0].PeriodStart.Before(from.Add(time.Hour)) {
		return nil, fmt.Errorf("history starts %s, window starts %s: %w",
			window[0].PeriodStart.UTC().Format(time.RFC3339), from.UTC().Format(time.RFC3339), ErrDataUnavailable)
	}
	return model.Closes(window), nil
}

// barsBefore returns the prefix of sorted bars starting before t.
func barsBefore(bars []model.Bar, t time.Time) []model.Bar {
	for i, b := range bars {
		if !b.PeriodStart.Before(t) {
			return bars[:i]
		}
	}
	return bars
}
