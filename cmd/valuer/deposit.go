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

func newDepositCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Size the opening token amounts of a position",
		RunE:  runDeposit,
	}
	addSourceFlags(cmd)
	addPositionFlags(cmd)
	addOutputFlags(cmd)
	return cmd
}

func runDeposit(cmd *cobra.Command, _ []string) error {
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
	date := e.cfg.Start
	if date.IsZero() {
		date = e.cfg.ValueDate
	}
	if date.IsZero() {
		return fmt.Errorf("start or value-date is required")
	}

	result, err := valuation.DepositAmounts(ctx, e.market, position, date, e.options())
	if err != nil {
		return err
	}

	e.logger.Info("deposit",
		zap.String("pool", position.Pool.String()),
		zap.Time("date", result.Date),
		zap.Float64("amount0", result.Amount0),
		zap.Float64("amount1", result.Amount1),
		zap.Float64("liquidity", result.Liquidity),
	)

	return e.emit(ctx, result, storage.FromDeposit(position.Pool.ID, position.AmountUSD, result))
}
