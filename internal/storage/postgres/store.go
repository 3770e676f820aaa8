package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lpValuer/internal/model"
	"lpValuer/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrPoolNotFound is returned when a pool has not been synced.
var ErrPoolNotFound = errors.New("pool not found")

// Store persists market data and valuation results in Postgres. It serves
// as an offline MarketSource and PoolSource once synced.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema files in name order.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// UpsertPool inserts or updates static pool facts.
func (s *Store) UpsertPool(ctx context.Context, pool model.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			id, fee_tier,
			token0_id, token0_symbol, token0_name, token0_decimals,
			token1_id, token1_symbol, token1_name, token1_decimals,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		ON CONFLICT (id)
		DO UPDATE SET
			fee_tier = EXCLUDED.fee_tier,
			token0_id = EXCLUDED.token0_id,
			token0_symbol = EXCLUDED.token0_symbol,
			token0_name = EXCLUDED.token0_name,
			token0_decimals = EXCLUDED.token0_decimals,
			token1_id = EXCLUDED.token1_id,
			token1_symbol = EXCLUDED.token1_symbol,
			token1_name = EXCLUDED.token1_name,
			token1_decimals = EXCLUDED.token1_decimals,
			updated_at = now()
	`,
		normalizeID(pool.ID),
		int32(pool.FeeTier),
		normalizeID(pool.Token0.ID),
		pool.Token0.Symbol,
		pool.Token0.Name,
		int16(pool.Token0.Decimals),
		normalizeID(pool.Token1.ID),
		pool.Token1.Symbol,
		pool.Token1.Name,
		int16(pool.Token1.Decimals),
	)
	return err
}

// Pool returns the synced static facts of a pool.
func (s *Store) Pool(ctx context.Context, id string) (model.Pool, error) {
	var (
		pool       model.Pool
		feeTier    int32
		dec0, dec1 int16
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id, fee_tier,
			token0_id, token0_symbol, token0_name, token0_decimals,
			token1_id, token1_symbol, token1_name, token1_decimals
		FROM pools WHERE id = $1
	`, normalizeID(id))
	err := row.Scan(
		&pool.ID, &feeTier,
		&pool.Token0.ID, &pool.Token0.Symbol, &pool.Token0.Name, &dec0,
		&pool.Token1.ID, &pool.Token1.Symbol, &pool.Token1.Name, &dec1,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, fmt.Errorf("%s: %w", id, ErrPoolNotFound)
		}
		return model.Pool{}, err
	}
	pool.FeeTier = uint32(feeTier)
	pool.Token0.Decimals = uint8(dec0)
	pool.Token1.Decimals = uint8(dec1)
	return pool, nil
}

// UpsertPoolHourBars inserts or updates hourly pool bars.
func (s *Store) UpsertPoolHourBars(ctx context.Context, poolID string, bars []model.Bar) error {
	return s.upsertPoolBars(ctx, "pool_hour_bars", poolID, bars)
}

// UpsertPoolDayBars inserts or updates daily pool bars.
func (s *Store) UpsertPoolDayBars(ctx context.Context, poolID string, bars []model.Bar) error {
	return s.upsertPoolBars(ctx, "pool_day_bars", poolID, bars)
}

func (s *Store) upsertPoolBars(ctx context.Context, table, poolID string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(`
			INSERT INTO `+table+` (pool_id, period_start, open, high, low, close, fees_usd, volume_usd)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (pool_id, period_start)
			DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close,
				fees_usd = EXCLUDED.fees_usd,
				volume_usd = EXCLUDED.volume_usd
		`,
			normalizeID(poolID), b.PeriodStart.UTC(), b.Open, b.High, b.Low, b.Close, b.FeesUSD, b.VolumeUSD,
		)
	}
	return s.sendBatch(ctx, batch, len(bars))
}

// UpsertTokenHourBars inserts or updates hourly token USD bars.
func (s *Store) UpsertTokenHourBars(ctx context.Context, tokenID string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(`
			INSERT INTO token_hour_bars (token_id, period_start, open, high, low, close)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (token_id, period_start)
			DO UPDATE SET
				open = EXCLUDED.open,
				high = EXCLUDED.high,
				low = EXCLUDED.low,
				close = EXCLUDED.close
		`,
			normalizeID(tokenID), b.PeriodStart.UTC(), b.Open, b.High, b.Low, b.Close,
		)
	}
	return s.sendBatch(ctx, batch, len(bars))
}

// ReplaceTicks swaps the stored tick snapshot of a pool in one transaction.
func (s *Store) ReplaceTicks(ctx context.Context, poolID string, ticks []model.TickRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	id := normalizeID(poolID)
	if _, err := tx.Exec(ctx, `DELETE FROM pool_ticks WHERE pool_id = $1`, id); err != nil {
		return fmt.Errorf("clear ticks: %w", err)
	}
	if len(ticks) > 0 {
		batch := &pgx.Batch{}
		for _, t := range ticks {
			batch.Queue(`
				INSERT INTO pool_ticks (pool_id, tick_idx, liquidity_net, liquidity_gross)
				VALUES ($1, $2, $3::numeric, $4::numeric)
			`, id, t.TickIdx, bigString(t.LiquidityNet), bigString(t.LiquidityGross))
		}
		br := tx.SendBatch(ctx, batch)
		for range ticks {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert tick: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// PoolHourBars returns hourly bars in [from, to).
func (s *Store) PoolHourBars(ctx context.Context, poolID string, from, to time.Time) ([]model.Bar, error) {
	return s.queryBars(ctx, `
		SELECT period_start, open, high, low, close, fees_usd, volume_usd
		FROM pool_hour_bars
		WHERE pool_id = $1 AND period_start >= $2 AND period_start < $3
		ORDER BY period_start
	`, normalizeID(poolID), from.UTC(), to.UTC())
}

// PoolDayBars returns daily bars in [from, to).
func (s *Store) PoolDayBars(ctx context.Context, poolID string, from, to time.Time) ([]model.Bar, error) {
	return s.queryBars(ctx, `
		SELECT period_start, open, high, low, close, fees_usd, volume_usd
		FROM pool_day_bars
		WHERE pool_id = $1 AND period_start >= $2 AND period_start < $3
		ORDER BY period_start
	`, normalizeID(poolID), from.UTC(), to.UTC())
}

// TokenHourBars returns hourly token USD bars in [from, to).
func (s *Store) TokenHourBars(ctx context.Context, tokenID string, from, to time.Time) ([]model.Bar, error) {
	return s.queryBars(ctx, `
		SELECT period_start, open, high, low, close, 0::double precision, 0::double precision
		FROM token_hour_bars
		WHERE token_id = $1 AND period_start >= $2 AND period_start < $3
		ORDER BY period_start
	`, normalizeID(tokenID), from.UTC(), to.UTC())
}

func (s *Store) queryBars(ctx context.Context, query string, args ...any) ([]model.Bar, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Bar, error) {
		var b model.Bar
		err := row.Scan(&b.PeriodStart, &b.Open, &b.High, &b.Low, &b.Close, &b.FeesUSD, &b.VolumeUSD)
		b.PeriodStart = b.PeriodStart.UTC()
		return b, err
	})
}

// Ticks returns the stored tick snapshot of a pool.
func (s *Store) Ticks(ctx context.Context, poolID string) ([]model.TickRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tick_idx, liquidity_net::text, liquidity_gross::text
		FROM pool_ticks WHERE pool_id = $1 ORDER BY tick_idx
	`, normalizeID(poolID))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TickRecord, error) {
		var (
			rec        model.TickRecord
			net, gross string
		)
		if err := row.Scan(&rec.TickIdx, &net, &gross); err != nil {
			return rec, err
		}
		var ok bool
		if rec.LiquidityNet, ok = new(big.Int).SetString(net, 10); !ok {
			return rec, fmt.Errorf("tick %d: bad liquidity_net %q", rec.TickIdx, net)
		}
		if rec.LiquidityGross, ok = new(big.Int).SetString(gross, 10); !ok {
			return rec, fmt.Errorf("tick %d: bad liquidity_gross %q", rec.TickIdx, gross)
		}
		return rec, nil
	})
}

// PutRecords stores valuation records.
func (s *Store) PutRecords(ctx context.Context, records []storage.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		var detail []byte
		if r.Detail != nil {
			raw, err := json.Marshal(r.Detail)
			if err != nil {
				return fmt.Errorf("marshal detail: %w", err)
			}
			detail = raw
		}
		batch.Queue(`
			INSERT INTO valuations (
				kind, pool_id, start_ts, value_date, amount0, amount1, liquidity,
				fees_usd, position_usd, impermanent_loss_usd, value, paths, detail, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
		`,
			r.Kind,
			normalizeID(r.PoolID),
			nullTime(r.Start),
			nullTime(r.ValueDate),
			r.Amount0,
			r.Amount1,
			r.Liquidity,
			r.FeesUSD,
			r.PositionUSD,
			r.ImpermanentLossUSD,
			r.Value,
			r.Paths,
			detail,
		)
	}
	return s.sendBatch(ctx, batch, len(records))
}

// LoadSyncState returns the last synced timestamp for a name.
func (s *Store) LoadSyncState(ctx context.Context, name string) (time.Time, bool, error) {
	if name == "" {
		return time.Time{}, false, fmt.Errorf("state name required")
	}
	var ts time.Time
	row := s.pool.QueryRow(ctx, `SELECT last_synced FROM sync_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts.UTC(), true, nil
}

// SaveSyncState upserts the last synced timestamp for a name.
func (s *Store) SaveSyncState(ctx context.Context, name string, ts time.Time) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (name, last_synced, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_synced = EXCLUDED.last_synced, updated_at = now()
	`, name, ts.UTC())
	return err
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
