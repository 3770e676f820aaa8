package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpValuer/internal/simulate"
	"lpValuer/internal/storage"
	"lpValuer/internal/valuation"
)

func newTVCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tv",
		Short: "Theoretical value of a position under simulated price paths",
		RunE:  runTV,
	}
	addSourceFlags(cmd)
	addPositionFlags(cmd)
	addOutputFlags(cmd)
	cmd.Flags().Int("horizon", 0, "simulated hours (0 uses the tenor left after the value date)")
	cmd.Flags().Int("paths", simulate.DefaultPaths, "number of simulated paths")
	cmd.Flags().Int("steps-per-period", simulate.DefaultStepsPerPeriod, "simulation steps per volatility period")
	cmd.Flags().Uint64("seed", 0, "random seed for reproducible paths")
	cmd.Flags().Int("workers", valuation.DefaultWorkers, "path valuation workers")
	cmd.Flags().Bool("brownian", false, "use the log-normal simulator with estimated drift")
	cmd.Flags().Bool("breakdown", false, "keep the per-path breakdown in stored results")
	return cmd
}

func runTV(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := loadEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	position, err := e.position(ctx)
	if err != nil {
		return err
	}
	if position.Start.IsZero() || e.cfg.ValueDate.IsZero() {
		return fmt.Errorf("start and value-date are required")
	}

	sim, err := newSimulator(e.cfg.Brownian, e.cfg.Paths, e.cfg.StepsPerPeriod, e.cfg.Seed)
	if err != nil {
		return err
	}

	result, err := valuation.ValuePosition(ctx, e.market, sim, position, e.cfg.ValueDate, e.options())
	if err != nil {
		return err
	}

	mean := result.Mean()
	e.logger.Info("tv",
		zap.String("pool", position.Pool.String()),
		zap.Time("value_date", result.ValueDate),
		zap.Int("horizon_hours", result.Horizon),
		zap.Int("paths", len(result.Paths)),
		zap.Float64("fees_usd", mean.FeesUSD),
		zap.Float64("position_usd", mean.PositionUSD),
		zap.Float64("tv", mean.TV),
	)

	rec := storage.FromTV(result, e.cfg.Breakdown)
	if e.cfg.Breakdown {
		return e.emit(ctx, result, rec)
	}
	return e.emit(ctx, rec, rec)
}

func newSimulator(brownian bool, paths, stepsPerPeriod int, seed *uint64) (simulate.Simulator, error) {
	if paths <= 0 || stepsPerPeriod <= 0 {
		return nil, fmt.Errorf("paths and steps-per-period must be positive")
	}
	if brownian {
		sim := simulate.NewBrownian(seed)
		sim.Paths = paths
		sim.StepsPerPeriod = stepsPerPeriod
		return sim, nil
	}
	sim := simulate.NewMonteCarlo(seed)
	sim.Paths = paths
	sim.StepsPerPeriod = stepsPerPeriod
	return sim, nil
}
