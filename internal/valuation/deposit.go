package valuation

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lpValuer/internal/model"
	"lpValuer/internal/v3math"
)

// DepositResult is the solved opening composition of a position.
type DepositResult struct {
	Date      time.Time `json:"date"`
	Close     float64   `json:"close"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
	USD0      float64   `json:"usd0"`
	USD1      float64   `json:"usd1"`
	Amount0   float64   `json:"amount0"`
	Amount1   float64   `json:"amount1"`
	Liquidity float64   `json:"liquidity"`
}

// DepositData is the raw input of a deposit calculation.
type DepositData struct {
	Hours    []model.Bar
	RefHours []model.Bar
}

// DepositStage holds the prices and rates the solver consumes.
type DepositStage struct {
	Close  float64
	Lower  float64
	Upper  float64
	USD0   float64
	USD1   float64
	Target float64
}

// DepositCalculator sizes a position's opening legs at Date.
type DepositCalculator struct {
	Source     MarketSource
	Position   model.Position
	Date       time.Time
	StableOnly bool
	Logger     *zap.Logger
}

func (c *DepositCalculator) Fetch(ctx context.Context) (DepositData, error) {
	rule, err := RuleFor(c.Position.Pool, c.StableOnly)
	if err != nil {
		return DepositData{}, err
	}
	from, to := c.Date.Add(-time.Hour), c.Date.Add(time.Hour)

	var data DepositData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bars, err := c.Source.PoolHourBars(gctx, c.Position.Pool.ID, from, to)
		if err != nil {
			return fmt.Errorf("pool hour bars: %w", err)
		}
		data.Hours = model.NormalizeBars(bars)
		return nil
	})
	if rule.NeedsReference() {
		g.Go(func() error {
			bars, err := c.Source.TokenHourBars(gctx, c.Position.Pool.Token0.ID, from, to)
			if err != nil {
				return fmt.Errorf("token0 hour bars: %w", err)
			}
			data.RefHours = model.NormalizeBars(bars)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DepositData{}, err
	}
	return data, nil
}

func (c *DepositCalculator) Stage(data DepositData) (DepositStage, error) {
	rule, err := RuleFor(c.Position.Pool, c.StableOnly)
	if err != nil {
		return DepositStage{}, err
	}
	return stageDeposit(c.Position, rule, data.Hours, data.RefHours, c.Date)
}

func (c *DepositCalculator) Compute(staged DepositStage) (DepositResult, error) {
	result, err := solveDeposit(c.Position.Pool, staged)
	if err != nil {
		return DepositResult{}, err
	}
	result.Date = c.Date
	logger(c.Logger).Debug("deposit solved",
		zap.String("pool", c.Position.Pool.ID),
		zap.Float64("amount0", result.Amount0),
		zap.Float64("amount1", result.Amount1),
		zap.Float64("liquidity", result.Liquidity),
	)
	return result, nil
}

// DepositAmounts runs a DepositCalculator for position at date.
func DepositAmounts(ctx context.Context, src MarketSource, position model.Position, date time.Time, opts Options) (DepositResult, error) {
	return Run[DepositData, DepositStage, DepositResult](ctx, &DepositCalculator{
		Source:     src,
		Position:   position,
		Date:       date,
		StableOnly: opts.StableOnly,
		Logger:     opts.Logger,
	})
}

func stageDeposit(position model.Position, rule PricingRule, hours, refHours []model.Bar, date time.Time) (DepositStage, error) {
	bar, ok := model.BarAt(hours, date, time.Hour)
	if !ok {
		return DepositStage{}, fmt.Errorf("pool hour bar at %s: %w", date.UTC().Format(time.RFC3339), ErrDataUnavailable)
	}
	usd0, err := referencePrice(rule, refHours, date)
	if err != nil {
		return DepositStage{}, err
	}
	lower, upper, err := position.Bounds(bar.Close)
	if err != nil {
		return DepositStage{}, err
	}
	usdX, usdY := rule.Rates(bar.Close, usd0)
	return DepositStage{
		Close:  bar.Close,
		Lower:  lower,
		Upper:  upper,
		USD0:   usdX,
		USD1:   usdY,
		Target: position.AmountUSD,
	}, nil
}

func referencePrice(rule PricingRule, refHours []model.Bar, date time.Time) (float64, error) {
	if !rule.NeedsReference() {
		return 0, nil
	}
	bar, ok := model.BarAt(refHours, date, time.Hour)
	if !ok {
		return 0, fmt.Errorf("token0 usd bar at %s: %w", date.UTC().Format(time.RFC3339), ErrDataUnavailable)
	}
	return bar.Close, nil
}

// solveDeposit works on inverted prices: the solver's x leg is token0.
func solveDeposit(pool model.Pool, staged DepositStage) (DepositResult, error) {
	dep, err := v3math.DepositAmounts(1/staged.Close, 1/staged.Upper, 1/staged.Lower, staged.USD0, staged.USD1, staged.Target)
	if err != nil {
		return DepositResult{}, err
	}
	if dep.X < 0 || dep.Y < 0 || math.IsNaN(dep.X) || math.IsNaN(dep.Y) {
		return DepositResult{}, fmt.Errorf("amount0=%v amount1=%v: %w", dep.X, dep.Y, ErrNegativeDeposit)
	}
	liquidity, err := v3math.LiquidityForAmounts(dep.X, dep.Y, pool.Token0.Decimals, pool.Token1.Decimals, staged.Close, staged.Lower, staged.Upper)
	if err != nil {
		return DepositResult{}, err
	}
	return DepositResult{
		Close:     staged.Close,
		Lower:     staged.Lower,
		Upper:     staged.Upper,
		USD0:      staged.USD0,
		USD1:      staged.USD1,
		Amount0:   dep.X,
		Amount1:   dep.Y,
		Liquidity: liquidity,
	}, nil
}
