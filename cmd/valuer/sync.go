package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpValuer/internal/config"
	"lpValuer/internal/indexer"
	"lpValuer/internal/storage/postgres"
	"lpValuer/internal/subgraph"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy subgraph market data into Postgres",
		RunE:  runSync,
	}
	cmd.Flags().String("subgraph-url", "", "subgraph GraphQL endpoint")
	cmd.Flags().String("subgraph-api-key", "", "subgraph gateway API key")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	cmd.Flags().String("from", "", "start (unix seconds, RFC3339 or YYYY-MM-DD)")
	cmd.Flags().String("to", "", "end, empty means now")
	cmd.Flags().Duration("window", indexer.DefaultWindow, "time span per subgraph query")
	cmd.Flags().Bool("resume", true, "continue from the stored checkpoint")
	cmd.Flags().Bool("skip-ticks", false, "keep the stored tick snapshot")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSync(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	if len(cfg.Pools) == 0 {
		return fmt.Errorf("pool list is required")
	}
	if cfg.From.IsZero() {
		return fmt.Errorf("from is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	source := subgraph.New(cfg.SubgraphURL,
		subgraph.WithAPIKey(cfg.SubgraphAPIKey),
		subgraph.WithLogger(logger),
	)

	logger.Info("sync start",
		zap.Strings("pools", cfg.Pools),
		zap.Time("from", cfg.From),
		zap.Time("to", cfg.To),
		zap.Duration("window", cfg.Window),
		zap.Bool("resume", cfg.Resume),
	)

	for _, poolID := range cfg.Pools {
		started := time.Now()
		runner := indexer.NewRunner(indexer.RunConfig{
			PoolID:    poolID,
			From:      cfg.From,
			To:        cfg.To,
			Window:    cfg.Window,
			Resume:    cfg.Resume,
			SkipTicks: cfg.SkipTicks,
		}, source, store, store, logger.With(zap.String("pool", poolID)))

		stats, err := runner.Run(ctx)
		if err != nil {
			return fmt.Errorf("sync %s: %w", poolID, err)
		}
		logger.Info("sync complete",
			zap.String("pool", poolID),
			zap.Int("windows", stats.Windows),
			zap.Int("hour_bars", stats.HourBars),
			zap.Int("day_bars", stats.DayBars),
			zap.Int("token_bars", stats.TokenBars),
			zap.Int("ticks", stats.Ticks),
			zap.Duration("elapsed", time.Since(started)),
		)
	}

	return nil
}
