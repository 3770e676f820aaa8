package model

import (
	"fmt"
	"math/big"
)

// Pool represents a V3 pool: static facts plus an optional market snapshot.
type Pool struct {
	ID      string     `json:"id"`
	FeeTier uint32     `json:"fee_tier"`
	Token0  Token      `json:"token0"`
	Token1  Token      `json:"token1"`
	State   *PoolState `json:"state,omitempty"`
}

// PoolState holds the dynamic pool fields refreshed per valuation call.
type PoolState struct {
	Tick         int32    `json:"tick"`
	SqrtPriceX96 *big.Int `json:"sqrt_price_x96,omitempty"`
	Liquidity    *big.Int `json:"liquidity,omitempty"`
	Token0Price  float64  `json:"token0_price"`
	Token1Price  float64  `json:"token1_price"`
	VolumeUSD    float64  `json:"volume_usd"`
	FeesUSD      float64  `json:"fees_usd"`
}

func (p Pool) String() string {
	return fmt.Sprintf("%s/%s %.2f%% (%s)", p.Token0.Symbol, p.Token1.Symbol, float64(p.FeeTier)/10000, p.ID)
}
