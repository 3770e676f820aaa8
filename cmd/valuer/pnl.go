package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpValuer/internal/storage"
	"lpValuer/internal/valuation"
)

func newPnLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pnl",
		Short: "Realized PnL of a position over its window",
		RunE:  runPnL,
	}
	addSourceFlags(cmd)
	addPositionFlags(cmd)
	addOutputFlags(cmd)
	return cmd
}

func runPnL(cmd *cobra.Command, _ []string) error {
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
	if position.Start.IsZero() {
		return fmt.Errorf("start is required")
	}
	valueDate := e.cfg.ValueDate
	if valueDate.IsZero() {
		valueDate = position.End
	}
	if valueDate.IsZero() {
		return fmt.Errorf("end or value-date is required")
	}

	result, err := valuation.RealizedPnL(ctx, e.market, position, valueDate, e.options())
	if err != nil {
		return err
	}

	e.logger.Info("pnl",
		zap.String("pool", position.Pool.String()),
		zap.Time("start", result.Start),
		zap.Time("end", result.End),
		zap.Float64("fees_usd", result.FeesUSD),
		zap.Float64("position_usd", result.PositionUSD),
		zap.Float64("pnl", result.PnL),
	)

	return e.emit(ctx, result, storage.FromPnL(result))
}
