package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpValuer/internal/model"
)

// Where a reserve reading came from.
const (
	ReservesAtBlock  = "block"
	ReservesAtLatest = "latest"
)

// Reserves are the token balances held by a pool contract.
type Reserves struct {
	Amount0  *big.Int `json:"amount0"`
	Amount1  *big.Int `json:"amount1"`
	Display0 string   `json:"display0"`
	Display1 string   `json:"display1"`
	Source   string   `json:"source"`
}

// Reserves reads the pool's token balances at the reader's block, falling
// back to the latest block when the node has pruned that state.
func (r *PoolReader) Reserves(ctx context.Context, pool model.Pool) (Reserves, error) {
	if !common.IsHexAddress(pool.ID) || !common.IsHexAddress(pool.Token0.ID) || !common.IsHexAddress(pool.Token1.ID) {
		return Reserves{}, fmt.Errorf("invalid address")
	}
	owner := common.HexToAddress(pool.ID)
	token0 := common.HexToAddress(pool.Token0.ID)
	token1 := common.HexToAddress(pool.Token1.ID)

	out := Reserves{Source: ReservesAtBlock}
	bal0, err0 := r.balanceOf(ctx, token0, owner, r.block)
	bal1, err1 := r.balanceOf(ctx, token1, owner, r.block)
	if (err0 != nil || err1 != nil) && r.block != nil {
		r.logger.Debug("balanceOf at block failed", zap.String("pool", pool.ID), zap.NamedError("token0", err0), zap.NamedError("token1", err1))
		out.Source = ReservesAtLatest
		bal0, err0 = r.balanceOf(ctx, token0, owner, nil)
		bal1, err1 = r.balanceOf(ctx, token1, owner, nil)
	}
	if err0 != nil {
		return Reserves{}, fmt.Errorf("token0 balance: %w", err0)
	}
	if err1 != nil {
		return Reserves{}, fmt.Errorf("token1 balance: %w", err1)
	}

	out.Amount0, out.Amount1 = bal0, bal1
	out.Display0 = formatTokenAmount(bal0, pool.Token0.Decimals)
	out.Display1 = formatTokenAmount(bal1, pool.Token1.Decimals)
	return out, nil
}

func (r *PoolReader) balanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, err
	}

	data, err := parsed.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	msg := ethereum.CallMsg{To: &token, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	values, err := parsed.Unpack("balanceOf", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("balanceOf return size %d", len(values))
	}
	return asBigInt(values[0])
}

// formatTokenAmount renders a raw token amount as a decimal string.
func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}
