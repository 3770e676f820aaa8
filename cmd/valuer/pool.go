package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpValuer/internal/chain"
	"lpValuer/internal/config"
	"lpValuer/internal/dex"
	"lpValuer/internal/model"
)

func newPoolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Read pool facts and slot0 straight from chain",
		RunE:  runPool,
	}
	cmd.Flags().String("rpc", "", "Ethereum RPC URL")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Uint64("block", 0, "block height, 0 means latest")
	return cmd
}

func runPool(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.Pool == "" {
		return fmt.Errorf("pool is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	block := cfg.Block
	if block == 0 {
		if block, err = chainClient.LatestBlockNumber(ctx); err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
	}

	reader := dex.NewPoolReader(chainClient, logger).AtBlock(block)
	pool, err := reader.Pool(ctx, cfg.Pool)
	if err != nil {
		return err
	}
	reserves, err := reader.Reserves(ctx, pool)
	if err != nil {
		return fmt.Errorf("read reserves: %w", err)
	}

	logger.Info("pool",
		zap.String("pool", pool.String()),
		zap.Stringer("chain_id", chainID),
		zap.Uint64("block", block),
		zap.String("reserve0", reserves.Display0),
		zap.String("reserve1", reserves.Display1),
	)
	return printJSON(os.Stdout, struct {
		Pool     model.Pool   `json:"pool"`
		Reserves dex.Reserves `json:"reserves"`
		Block    uint64       `json:"block"`
	}{pool, reserves, block})
}
