package valuation

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"lpValuer/internal/model"
	"lpValuer/internal/v3math"
)

// PnLResult is the realized outcome of a position over [Start, End].
type PnLResult struct {
	PoolID             string        `json:"pool_id"`
	Start              time.Time     `json:"start"`
	End                time.Time     `json:"end"`
	Deposit            DepositResult `json:"deposit"`
	LastClose          float64       `json:"last_close"`
	AverageLiquidity   float64       `json:"average_liquidity"`
	FeesUSD            float64       `json:"fees_usd"`
	PositionUSD        float64       `json:"position_usd"`
	HoldUSD            float64       `json:"hold_usd"`
	ImpermanentLossUSD float64       `json:"impermanent_loss_usd"`
	PnL                float64       `json:"pnl"`
}

// PnLData is the raw input of a PnL run.
type PnLData struct {
	Hours    []model.Bar
	Days     []model.Bar
	RefHours []model.Bar
	Ticks    []model.TickRecord
}

// PnLStage holds the realized quantities of the window.
type PnLStage struct {
	Rule             PricingRule
	Deposit          DepositResult
	LastClose        float64
	LastUSD0         float64
	AverageLiquidity float64
	TotalFeesUSD     float64
}

// PnLCalculator computes realized profit and loss over [Start, End].
type PnLCalculator struct {
	Source   MarketSource
	Position model.Position
	Start    time.Time
	End      time.Time
	Options  Options
}

func (c *PnLCalculator) Fetch(ctx context.Context) (PnLData, error) {
	rule, err := RuleFor(c.Position.Pool, c.Options.StableOnly)
	if err != nil {
		return PnLData{}, err
	}
	pool := c.Position.Pool
	from, to := c.Start, c.End.Add(time.Hour)

	var data PnLData
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
		bars, err := c.Source.PoolDayBars(gctx, pool.ID, from.Truncate(24*time.Hour), to)
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
		return PnLData{}, err
	}
	return data, nil
}

func (c *PnLCalculator) Stage(data PnLData) (PnLStage, error) {
	pool := c.Position.Pool
	rule, err := RuleFor(pool, c.Options.StableOnly)
	if err != nil {
		return PnLStage{}, err
	}
	if !c.Start.Before(c.End) {
		return PnLStage{}, fmt.Errorf("empty window %s..%s", c.Start.UTC().Format(time.RFC3339), c.End.UTC().Format(time.RFC3339))
	}

	days := barsBefore(data.Days, c.End.Add(time.Hour))
	if err := coverDays(days, c.Start, c.End); err != nil {
		return PnLStage{}, err
	}

	staged, err := stageDeposit(c.Position, rule, data.Hours, data.RefHours, c.Start)
	if err != nil {
		return PnLStage{}, err
	}
	deposit, err := solveDeposit(pool, staged)
	if err != nil {
		return PnLStage{}, err
	}
	deposit.Date = c.Start

	lastBar, ok := model.BarAt(data.Hours, c.End, time.Hour)
	if !ok {
		return PnLStage{}, fmt.Errorf("pool hour bar at %s: %w", c.End.UTC().Format(time.RFC3339), ErrDataUnavailable)
	}
	usd0, err := referencePrice(rule, data.RefHours, c.End)
	if err != nil {
		return PnLStage{}, err
	}

	window := barsBefore(data.Hours, c.End.Add(time.Hour))
	low, high := math.Inf(1), math.Inf(-1)
	for _, b := range window {
		if b.PeriodStart.Before(c.Start.Truncate(time.Hour)) {
			continue
		}
		low = math.Min(low, b.Low)
		high = math.Max(high, b.High)
	}

	curve, err := v3math.BuildTickCurve(data.Ticks, pool.FeeTier, pool.Token0.Decimals, pool.Token1.Decimals, v3math.RawUnits)
	if err != nil {
		return PnLStage{}, err
	}
	var average float64
	if low > 0 && high > 0 {
		tickHigh := v3math.PriceToTick(high, pool.Token0.Decimals, pool.Token1.Decimals)
		tickLow := v3math.PriceToTick(low, pool.Token0.Decimals, pool.Token1.Decimals)
		average = curve.MeanLiquidity(tickHigh, tickLow)
	}

	fees := make([]float64, len(days))
	for i, d := range days {
		fees[i] = d.FeesUSD
	}

	return PnLStage{
		Rule:             rule,
		Deposit:          deposit,
		LastClose:        lastBar.Close,
		LastUSD0:         usd0,
		AverageLiquidity: average,
		TotalFeesUSD:     floats.Sum(fees),
	}, nil
}

func (c *PnLCalculator) Compute(staged PnLStage) (PnLResult, error) {
	pool := c.Position.Pool
	dep := staged.Deposit

	fees := staged.TotalFeesUSD * v3math.Share(dep.Liquidity, staged.AverageLiquidity)
	if math.IsNaN(fees) {
		fees = 0
	}
	x, y, err := v3math.AmountsForLiquidity(dep.Liquidity, staged.LastClose, dep.Lower, dep.Upper, pool.Token0.Decimals, pool.Token1.Decimals)
	if err != nil {
		return PnLResult{}, err
	}
	position := staged.Rule.ValueUSD(x, y, staged.LastClose, staged.LastUSD0)
	hold := staged.Rule.ValueUSD(dep.Amount0, dep.Amount1, staged.LastClose, staged.LastUSD0)

	result := PnLResult{
		PoolID:             pool.ID,
		Start:              c.Start,
		End:                c.End,
		Deposit:            dep,
		LastClose:          staged.LastClose,
		AverageLiquidity:   staged.AverageLiquidity,
		FeesUSD:            fees,
		PositionUSD:        position,
		HoldUSD:            hold,
		ImpermanentLossUSD: position - hold,
		PnL:                fees + position - c.Position.AmountUSD,
	}
	logger(c.Options.Logger).Info("pnl computed",
		zap.String("pool", pool.ID),
		zap.Time("start", c.Start),
		zap.Time("end", c.End),
		zap.Float64("fees_usd", fees),
		zap.Float64("pnl", result.PnL),
	)
	return result, nil
}

// RealizedPnL computes the PnL of position as seen at valueDate. A value
// date at or before the start yields zero; one inside the position window
// ends the window early.
func RealizedPnL(ctx context.Context, src MarketSource, position model.Position, valueDate time.Time, opts Options) (PnLResult, error) {
	if !position.Start.Before(valueDate) {
		return PnLResult{PoolID: position.Pool.ID, Start: position.Start, End: valueDate}, nil
	}
	end := position.End
	if end.IsZero() || valueDate.Before(end) {
		end = valueDate
	}
	return Run[PnLData, PnLStage, PnLResult](ctx, &PnLCalculator{
		Source:   src,
		Position: position,
		Start:    position.Start,
		End:      end,
		Options:  opts,
	})
}

// coverDays requires one day bar for every UTC day from the day of from
// through the day of to.
func coverDays(days []model.Bar, from, to time.Time) error {
	first, last := from.Truncate(24*time.Hour), to.Truncate(24*time.Hour)
	want := first
	for _, d := range days {
		if d.PeriodStart.Before(first) {
			continue
		}
		if d.PeriodStart.After(last) {
			break
		}
		if !d.PeriodStart.Equal(want) {
			break
		}
		want = want.Add(24 * time.Hour)
	}
	if !want.After(last) {
		return fmt.Errorf("pool day bar for %s: %w", want.UTC().Format(time.DateOnly), ErrDataUnavailable)
	}
	return nil
}
