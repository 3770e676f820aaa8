package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lpValuer/internal/config"
	"lpValuer/internal/model"
	"lpValuer/internal/storage"
	"lpValuer/internal/storage/influx"
	"lpValuer/internal/storage/postgres"
	"lpValuer/internal/subgraph"
	"lpValuer/internal/valuation"
)

// market is a data source able to answer every pipeline query.
type market interface {
	valuation.MarketSource
	valuation.PoolSource
}

// env bundles what a valuation command needs, opened from Config.
type env struct {
	cfg     config.Config
	logger  *zap.Logger
	market  market
	store   *postgres.Store
	sink    storage.Storage
	closers []func()
}

func loadEnv(ctx context.Context, cmd *cobra.Command) (*env, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}
	if err := e.open(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *env) open(ctx context.Context) error {
	if e.cfg.PGDSN != "" && (e.cfg.Source == config.SourcePostgres || e.cfg.Save) {
		store, err := postgres.NewStore(ctx, e.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		e.store = store
		e.closers = append(e.closers, store.Close)
		if e.cfg.Save {
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
	}

	switch e.cfg.Source {
	case config.SourcePostgres:
		if e.store == nil {
			return fmt.Errorf("pg dsn is required for the postgres source")
		}
		e.market = e.store
	default:
		e.market = subgraph.New(e.cfg.SubgraphURL,
			subgraph.WithAPIKey(e.cfg.SubgraphAPIKey),
			subgraph.WithLogger(e.logger),
		)
	}

	var sinks storage.Multi
	if e.cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(e.cfg.Out))
	}
	if e.cfg.Save {
		if e.store == nil {
			return fmt.Errorf("pg dsn is required with --save")
		}
		sinks = append(sinks, e.store)
	}
	if e.cfg.InfluxURL != "" {
		sink, err := influx.NewSink(e.cfg.InfluxURL, e.cfg.InfluxToken, e.cfg.InfluxOrg, e.cfg.InfluxBucket)
		if err != nil {
			return fmt.Errorf("connect influx: %w", err)
		}
		sinks = append(sinks, sink)
		e.closers = append(e.closers, sink.Close)
	}
	e.sink = sinks
	return nil
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	if e.logger != nil {
		_ = e.logger.Sync()
	}
}

func (e *env) options() valuation.Options {
	return valuation.Options{
		Window:     e.cfg.Window,
		Horizon:    e.cfg.Horizon,
		StableOnly: e.cfg.StableOnly,
		Workers:    e.cfg.Workers,
		Logger:     e.logger,
	}
}

// position loads the pool and assembles the configured position.
func (e *env) position(ctx context.Context) (model.Position, error) {
	if e.cfg.Pool == "" {
		return model.Position{}, fmt.Errorf("pool is required")
	}
	if e.cfg.AmountUSD <= 0 {
		return model.Position{}, fmt.Errorf("amount must be positive")
	}
	pool, err := e.market.Pool(ctx, e.cfg.Pool)
	if err != nil {
		return model.Position{}, fmt.Errorf("load pool: %w", err)
	}
	return model.Position{
		Pool:          pool,
		AmountUSD:     e.cfg.AmountUSD,
		Lower:         e.cfg.Lower,
		Upper:         e.cfg.Upper,
		MinPercentage: e.cfg.MinPercentage,
		MaxPercentage: e.cfg.MaxPercentage,
		Start:         e.cfg.Start,
		End:           e.cfg.End,
	}, nil
}

// emit prints v and writes rec to the configured sinks.
func (e *env) emit(ctx context.Context, v any, rec storage.Record) error {
	if err := printJSON(os.Stdout, v); err != nil {
		return err
	}
	if err := e.sink.PutRecords(ctx, []storage.Record{rec}); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
