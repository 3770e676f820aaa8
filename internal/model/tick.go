package model

import "math/big"

// TickRecord is a raw initialized tick as returned by a data source.
type TickRecord struct {
	TickIdx        int32    `json:"tick_idx"`
	LiquidityNet   *big.Int `json:"liquidity_net"`
	LiquidityGross *big.Int `json:"liquidity_gross"`
}
