package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lpValuer/internal/model"
	"lpValuer/internal/valuation"
)

// DefaultWindow keeps each hourly query below the subgraph's 6000-row reach.
const DefaultWindow = 30 * 24 * time.Hour

// Source is where market data is copied from.
type Source interface {
	valuation.MarketSource
	valuation.PoolSource
}

// Sink is where market data is copied to.
type Sink interface {
	UpsertPool(ctx context.Context, pool model.Pool) error
	UpsertPoolHourBars(ctx context.Context, poolID string, bars []model.Bar) error
	UpsertPoolDayBars(ctx context.Context, poolID string, bars []model.Bar) error
	UpsertTokenHourBars(ctx context.Context, tokenID string, bars []model.Bar) error
	ReplaceTicks(ctx context.Context, poolID string, ticks []model.TickRecord) error
}

// Checkpointer persists the end of the last synced window per pool.
type Checkpointer interface {
	LoadSyncState(ctx context.Context, name string) (time.Time, bool, error)
	SaveSyncState(ctx context.Context, name string, ts time.Time) error
}

// RunConfig holds runtime settings for a sync run.
type RunConfig struct {
	PoolID string
	From   time.Time
	To     time.Time
	Window time.Duration
	Resume bool
	// SkipTicks leaves the stored tick snapshot untouched.
	SkipTicks bool
}

// Stats summarizes a sync run.
type Stats struct {
	Windows   int
	HourBars  int
	DayBars   int
	TokenBars int
	Ticks     int
}

// Runner copies one pool's market data from a Source into a Sink.
type Runner struct {
	cfg        RunConfig
	source     Source
	sink       Sink
	checkpoint Checkpointer
	logger     *zap.Logger
}

// NewRunner builds a Runner with its dependencies. checkpoint may be nil.
func NewRunner(cfg RunConfig, source Source, sink Sink, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Runner{
		cfg:        cfg,
		source:     source,
		sink:       sink,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

func checkpointName(poolID string) string {
	return "pool:" + poolID
}

// Run executes the sync loop.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if r.source == nil {
		return stats, fmt.Errorf("source is nil")
	}
	if r.sink == nil {
		return stats, fmt.Errorf("sink is nil")
	}
	if r.cfg.PoolID == "" {
		return stats, fmt.Errorf("pool id is required")
	}

	pool, err := r.source.Pool(ctx, r.cfg.PoolID)
	if err != nil {
		return stats, fmt.Errorf("load pool: %w", err)
	}
	if err := r.sink.UpsertPool(ctx, pool); err != nil {
		return stats, fmt.Errorf("store pool: %w", err)
	}

	rule, err := valuation.RuleFor(pool, false)
	if err != nil {
		return stats, err
	}
	r.logger.Info("sync pool", zap.String("pool", pool.String()), zap.Stringer("pricing", rule))

	if !r.cfg.SkipTicks {
		ticks, err := r.source.Ticks(ctx, pool.ID)
		if err != nil {
			return stats, fmt.Errorf("fetch ticks: %w", err)
		}
		if err := r.sink.ReplaceTicks(ctx, pool.ID, ticks); err != nil {
			return stats, fmt.Errorf("store ticks: %w", err)
		}
		stats.Ticks = len(ticks)
	}

	from := r.cfg.From
	to := r.cfg.To
	if to.IsZero() {
		to = time.Now().UTC().Truncate(time.Hour)
	}

	if r.cfg.Resume && r.checkpoint != nil {
		last, ok, err := r.checkpoint.LoadSyncState(ctx, checkpointName(pool.ID))
		if err != nil {
			return stats, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && last.After(from) {
			from = last
			r.logger.Info("resume from checkpoint", zap.Time("last_synced", last), zap.Time("from", from))
		}
	}

	if !to.After(from) {
		r.logger.Info("nothing to sync", zap.Time("from", from), zap.Time("to", to))
		return stats, nil
	}

	windows, err := SplitRange(from, to, r.cfg.Window)
	if err != nil {
		return stats, err
	}

	for _, window := range windows {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		r.logger.Info("fetch window", zap.Time("from", window.From), zap.Time("to", window.To))

		batch, err := r.fetchWindow(ctx, pool, rule.NeedsReference(), window)
		if err != nil {
			return stats, err
		}
		if err := r.storeWindow(ctx, pool, batch); err != nil {
			return stats, err
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.SaveSyncState(ctx, checkpointName(pool.ID), window.To); err != nil {
				return stats, fmt.Errorf("save checkpoint: %w", err)
			}
		}

		stats.Windows++
		stats.HourBars += len(batch.hours)
		stats.DayBars += len(batch.days)
		stats.TokenBars += len(batch.tokenHours)
		r.logger.Info("window complete",
			zap.Int("hour_bars", len(batch.hours)),
			zap.Int("day_bars", len(batch.days)),
			zap.Int("token_bars", len(batch.tokenHours)),
			zap.Time("to", window.To),
		)
	}

	return stats, nil
}

type windowBatch struct {
	hours      []model.Bar
	days       []model.Bar
	tokenHours []model.Bar
}

func (r *Runner) fetchWindow(ctx context.Context, pool model.Pool, reference bool, window Window) (windowBatch, error) {
	var batch windowBatch
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bars, err := r.source.PoolHourBars(gctx, pool.ID, window.From, window.To)
		if err != nil {
			return fmt.Errorf("fetch hour bars: %w", err)
		}
		batch.hours = bars
		return nil
	})
	g.Go(func() error {
		bars, err := r.source.PoolDayBars(gctx, pool.ID, window.From, window.To)
		if err != nil {
			return fmt.Errorf("fetch day bars: %w", err)
		}
		batch.days = bars
		return nil
	})
	if reference {
		g.Go(func() error {
			bars, err := r.source.TokenHourBars(gctx, pool.Token0.ID, window.From, window.To)
			if err != nil {
				return fmt.Errorf("fetch token bars: %w", err)
			}
			batch.tokenHours = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return windowBatch{}, err
	}
	return batch, nil
}

func (r *Runner) storeWindow(ctx context.Context, pool model.Pool, batch windowBatch) error {
	if err := r.sink.UpsertPoolHourBars(ctx, pool.ID, batch.hours); err != nil {
		return fmt.Errorf("store hour bars: %w", err)
	}
	if err := r.sink.UpsertPoolDayBars(ctx, pool.ID, batch.days); err != nil {
		return fmt.Errorf("store day bars: %w", err)
	}
	if len(batch.tokenHours) > 0 {
		if err := r.sink.UpsertTokenHourBars(ctx, pool.Token0.ID, batch.tokenHours); err != nil {
			return fmt.Errorf("store token bars: %w", err)
		}
	}
	return nil
}
