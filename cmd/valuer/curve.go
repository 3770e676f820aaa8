package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpValuer/internal/v3math"
)

func newCurveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Print the dense liquidity curve of a pool",
		RunE:  runCurve,
	}
	addSourceFlags(cmd)
	cmd.Flags().String("units", "raw", "liquidity units (raw, human)")
	return cmd
}

func runCurve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := loadEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	units, err := parseUnits(e.cfg.Units)
	if err != nil {
		return err
	}
	if e.cfg.Pool == "" {
		return fmt.Errorf("pool is required")
	}
	pool, err := e.market.Pool(ctx, e.cfg.Pool)
	if err != nil {
		return fmt.Errorf("load pool: %w", err)
	}
	ticks, err := e.market.Ticks(ctx, pool.ID)
	if err != nil {
		return fmt.Errorf("load ticks: %w", err)
	}

	curve, err := v3math.BuildTickCurve(ticks, pool.FeeTier, pool.Token0.Decimals, pool.Token1.Decimals, units)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("pool", pool.String()),
		zap.Int("ticks", len(ticks)),
		zap.Int("points", curve.Len()),
		zap.Int32("spacing", curve.Spacing),
	}
	if pool.State != nil {
		fields = append(fields,
			zap.Int32("tick", pool.State.Tick),
			zap.Float64("active_liquidity", curve.LiquidityAt(pool.State.Tick)),
		)
	}
	e.logger.Info("curve", fields...)

	return printJSON(os.Stdout, curve.Points)
}

func parseUnits(s string) (v3math.LiquidityUnits, error) {
	switch s {
	case "", "raw":
		return v3math.RawUnits, nil
	case "human":
		return v3math.HumanUnits, nil
	default:
		return 0, fmt.Errorf("unknown liquidity units %q", s)
	}
}
