package subgraph

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"lpValuer/internal/model"
)

const poolQuery = `query pool($id: ID!) {
  pool(id: $id) {
    id feeTier tick sqrtPrice liquidity token0Price token1Price volumeUSD feesUSD
    token0 { id symbol name decimals totalSupply }
    token1 { id symbol name decimals totalSupply }
  }
}`

const poolHourQuery = `query poolHourDatas($pool: String!, $from: Int!, $to: Int!, $first: Int!, $skip: Int!) {
  poolHourDatas(first: $first, skip: $skip, orderBy: periodStartUnix, orderDirection: asc,
    where: {pool: $pool, periodStartUnix_gte: $from, periodStartUnix_lt: $to}) {
    periodStartUnix open high low close feesUSD volumeUSD
  }
}`

const poolDayQuery = `query poolDayDatas($pool: String!, $from: Int!, $to: Int!, $first: Int!, $skip: Int!) {
  poolDayDatas(first: $first, skip: $skip, orderBy: date, orderDirection: asc,
    where: {pool: $pool, date_gte: $from, date_lt: $to}) {
    date open high low close feesUSD volumeUSD
  }
}`

const tokenHourQuery = `query tokenHourDatas($token: String!, $from: Int!, $to: Int!, $first: Int!, $skip: Int!) {
  tokenHourDatas(first: $first, skip: $skip, orderBy: periodStartUnix, orderDirection: asc,
    where: {token: $token, periodStartUnix_gte: $from, periodStartUnix_lt: $to}) {
    periodStartUnix open high low close
  }
}`

const ticksQuery = `query ticks($pool: String!, $first: Int!, $skip: Int!) {
  ticks(first: $first, skip: $skip, orderBy: tickIdx, orderDirection: asc, where: {pool: $pool}) {
    tickIdx liquidityNet liquidityGross
  }
}`

type tokenRow struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    string `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

type poolRow struct {
	ID          string   `json:"id"`
	FeeTier     string   `json:"feeTier"`
	Tick        *string  `json:"tick"`
	SqrtPrice   string   `json:"sqrtPrice"`
	Liquidity   string   `json:"liquidity"`
	Token0Price float64  `json:"token0Price,string"`
	Token1Price float64  `json:"token1Price,string"`
	VolumeUSD   float64  `json:"volumeUSD,string"`
	FeesUSD     float64  `json:"feesUSD,string"`
	Token0      tokenRow `json:"token0"`
	Token1      tokenRow `json:"token1"`
}

// barRow covers hour rows (periodStartUnix) and day rows (date).
type barRow struct {
	PeriodStartUnix int64   `json:"periodStartUnix"`
	Date            int64   `json:"date"`
	Open            float64 `json:"open,string"`
	High            float64 `json:"high,string"`
	Low             float64 `json:"low,string"`
	Close           float64 `json:"close,string"`
	FeesUSD         float64 `json:"feesUSD,string"`
	VolumeUSD       float64 `json:"volumeUSD,string"`
}

type tickRow struct {
	TickIdx        string `json:"tickIdx"`
	LiquidityNet   string `json:"liquidityNet"`
	LiquidityGross string `json:"liquidityGross"`
}

// Pool returns static pool facts and the latest indexed state.
func (c *Client) Pool(ctx context.Context, id string) (model.Pool, error) {
	var data struct {
		Pool *poolRow `json:"pool"`
	}
	if err := c.query(ctx, poolQuery, map[string]any{"id": normalizeID(id)}, &data); err != nil {
		return model.Pool{}, fmt.Errorf("query pool %s: %w", id, err)
	}
	if data.Pool == nil {
		return model.Pool{}, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	return data.Pool.toModel()
}

func (c *Client) PoolHourBars(ctx context.Context, poolID string, from, to time.Time) ([]model.Bar, error) {
	rows, err := paged[barRow](ctx, c, "poolHourDatas", poolHourQuery, rangeVars("pool", poolID, from, to))
	if err != nil {
		return nil, err
	}
	return toBars(rows), nil
}

func (c *Client) PoolDayBars(ctx context.Context, poolID string, from, to time.Time) ([]model.Bar, error) {
	rows, err := paged[barRow](ctx, c, "poolDayDatas", poolDayQuery, rangeVars("pool", poolID, from, to))
	if err != nil {
		return nil, err
	}
	return toBars(rows), nil
}

func (c *Client) TokenHourBars(ctx context.Context, tokenID string, from, to time.Time) ([]model.Bar, error) {
	rows, err := paged[barRow](ctx, c, "tokenHourDatas", tokenHourQuery, rangeVars("token", tokenID, from, to))
	if err != nil {
		return nil, err
	}
	return toBars(rows), nil
}

// Ticks returns the pool's initialized ticks ordered by index.
func (c *Client) Ticks(ctx context.Context, poolID string) ([]model.TickRecord, error) {
	rows, err := paged[tickRow](ctx, c, "ticks", ticksQuery, map[string]any{"pool": normalizeID(poolID)})
	if err != nil {
		return nil, err
	}
	ticks := make([]model.TickRecord, 0, len(rows))
	for _, row := range rows {
		tick, err := row.toModel()
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

func rangeVars(key, id string, from, to time.Time) map[string]any {
	return map[string]any{
		key:    normalizeID(id),
		"from": from.Unix(),
		"to":   to.Unix(),
	}
}

func toBars(rows []barRow) []model.Bar {
	bars := make([]model.Bar, 0, len(rows))
	for _, row := range rows {
		start := row.PeriodStartUnix
		if start == 0 {
			start = row.Date
		}
		bars = append(bars, model.Bar{
			PeriodStart: time.Unix(start, 0).UTC(),
			Open:        row.Open,
			High:        row.High,
			Low:         row.Low,
			Close:       row.Close,
			FeesUSD:     row.FeesUSD,
			VolumeUSD:   row.VolumeUSD,
		})
	}
	return model.NormalizeBars(bars)
}

func (r poolRow) toModel() (model.Pool, error) {
	feeTier, err := strconv.ParseUint(r.FeeTier, 10, 32)
	if err != nil {
		return model.Pool{}, fmt.Errorf("pool %s fee tier %q: %w", r.ID, r.FeeTier, err)
	}
	token0, err := r.Token0.toModel()
	if err != nil {
		return model.Pool{}, err
	}
	token1, err := r.Token1.toModel()
	if err != nil {
		return model.Pool{}, err
	}

	pool := model.Pool{
		ID:      r.ID,
		FeeTier: uint32(feeTier),
		Token0:  token0,
		Token1:  token1,
	}
	// tick is null until the pool is initialized.
	if r.Tick == nil {
		return pool, nil
	}
	tick, err := strconv.ParseInt(*r.Tick, 10, 32)
	if err != nil {
		return model.Pool{}, fmt.Errorf("pool %s tick %q: %w", r.ID, *r.Tick, err)
	}
	pool.State = &model.PoolState{
		Tick:         int32(tick),
		SqrtPriceX96: parseBig(r.SqrtPrice),
		Liquidity:    parseBig(r.Liquidity),
		Token0Price:  r.Token0Price,
		Token1Price:  r.Token1Price,
		VolumeUSD:    r.VolumeUSD,
		FeesUSD:      r.FeesUSD,
	}
	return pool, nil
}

func (r tokenRow) toModel() (model.Token, error) {
	decimals, err := strconv.ParseUint(r.Decimals, 10, 8)
	if err != nil {
		return model.Token{}, fmt.Errorf("token %s decimals %q: %w", r.ID, r.Decimals, err)
	}
	return model.Token{
		ID:          r.ID,
		Symbol:      r.Symbol,
		Name:        r.Name,
		Decimals:    uint8(decimals),
		TotalSupply: parseBig(r.TotalSupply),
	}, nil
}

func (r tickRow) toModel() (model.TickRecord, error) {
	idx, err := strconv.ParseInt(r.TickIdx, 10, 32)
	if err != nil {
		return model.TickRecord{}, fmt.Errorf("tick index %q: %w", r.TickIdx, err)
	}
	net, ok := new(big.Int).SetString(r.LiquidityNet, 10)
	if !ok {
		return model.TickRecord{}, fmt.Errorf("tick %d liquidityNet %q", idx, r.LiquidityNet)
	}
	gross, ok := new(big.Int).SetString(r.LiquidityGross, 10)
	if !ok {
		return model.TickRecord{}, fmt.Errorf("tick %d liquidityGross %q", idx, r.LiquidityGross)
	}
	return model.TickRecord{TickIdx: int32(idx), LiquidityNet: net, LiquidityGross: gross}, nil
}

func parseBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
