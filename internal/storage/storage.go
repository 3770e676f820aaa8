package storage

import (
	"context"
	"time"

	"lpValuer/internal/valuation"
)

// Record kinds.
const (
	KindDeposit = "deposit"
	KindTV      = "tv"
	KindPnL     = "pnl"
)

// Record is one valuation result as persisted by sinks. Value is the
// headline figure of the kind: deposit notional, mean TV, or PnL.
type Record struct {
	Kind               string    `json:"kind"`
	PoolID             string    `json:"pool_id"`
	Start              time.Time `json:"start"`
	ValueDate          time.Time `json:"value_date"`
	Amount0            float64   `json:"amount0"`
	Amount1            float64   `json:"amount1"`
	Liquidity          float64   `json:"liquidity"`
	FeesUSD            float64   `json:"fees_usd"`
	PositionUSD        float64   `json:"position_usd"`
	ImpermanentLossUSD float64   `json:"impermanent_loss_usd"`
	Value              float64   `json:"value"`
	Paths              int       `json:"paths,omitempty"`
	Detail             any       `json:"detail,omitempty"`
}

// Storage defines a sink for valuation records.
type Storage interface {
	PutRecords(ctx context.Context, records []Record) error
}

// FromDeposit flattens a deposit result.
func FromDeposit(poolID string, target float64, r valuation.DepositResult) Record {
	return Record{
		Kind:        KindDeposit,
		PoolID:      poolID,
		Start:       r.Date,
		ValueDate:   r.Date,
		Amount0:     r.Amount0,
		Amount1:     r.Amount1,
		Liquidity:   r.Liquidity,
		PositionUSD: target,
		Value:       target,
		Detail:      r,
	}
}

// FromTV flattens a TV result; the per-path breakdown is kept as detail
// only when breakdown is set.
func FromTV(r valuation.TVResult, breakdown bool) Record {
	mean := r.Mean()
	rec := Record{
		Kind:               KindTV,
		PoolID:             r.PoolID,
		Start:              r.Deposit.Date,
		ValueDate:          r.ValueDate,
		Amount0:            r.Deposit.Amount0,
		Amount1:            r.Deposit.Amount1,
		Liquidity:          r.Deposit.Liquidity,
		FeesUSD:            mean.FeesUSD,
		PositionUSD:        mean.PositionUSD,
		ImpermanentLossUSD: mean.ImpermanentLossUSD,
		Value:              mean.TV,
		Paths:              len(r.Paths),
	}
	if breakdown {
		rec.Detail = r.Paths
	}
	return rec
}

// FromPnL flattens a PnL result.
func FromPnL(r valuation.PnLResult) Record {
	return Record{
		Kind:               KindPnL,
		PoolID:             r.PoolID,
		Start:              r.Start,
		ValueDate:          r.End,
		Amount0:            r.Deposit.Amount0,
		Amount1:            r.Deposit.Amount1,
		Liquidity:          r.Deposit.Liquidity,
		FeesUSD:            r.FeesUSD,
		PositionUSD:        r.PositionUSD,
		ImpermanentLossUSD: r.ImpermanentLossUSD,
		Value:              r.PnL,
	}
}
