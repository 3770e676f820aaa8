package dex

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"lpValuer/internal/model"
	"lpValuer/internal/v3math"
)

// ContractCaller performs read-only contract calls. *chain.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenCache caches token metadata by address.
type TokenCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.Token
}

func NewTokenCache() *TokenCache {
	return &TokenCache{data: make(map[common.Address]model.Token)}
}

func (c *TokenCache) Get(address common.Address) (model.Token, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenCache) Set(address common.Address, meta model.Token) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// PoolReader loads pool facts and the current slot0 straight from chain.
type PoolReader struct {
	caller ContractCaller
	tokens *TokenCache
	block  *big.Int
	logger *zap.Logger
}

// NewPoolReader reads at the latest block unless AtBlock is called.
func NewPoolReader(caller ContractCaller, logger *zap.Logger) *PoolReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolReader{caller: caller, tokens: NewTokenCache(), logger: logger}
}

// AtBlock pins subsequent reads to a block height.
func (r *PoolReader) AtBlock(number uint64) *PoolReader {
	if number > 0 {
		r.block = new(big.Int).SetUint64(number)
	}
	return r
}

// Pool returns the pool at address id with its on-chain state.
func (r *PoolReader) Pool(ctx context.Context, id string) (model.Pool, error) {
	if r.caller == nil {
		return model.Pool{}, fmt.Errorf("chain client is nil")
	}
	if !common.IsHexAddress(id) {
		return model.Pool{}, fmt.Errorf("invalid pool address %q", id)
	}
	address := common.HexToAddress(id)

	poolABI, err := V3PoolABI()
	if err != nil {
		return model.Pool{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := r.callPool(ctx, address, poolABI, "token0")
	if err != nil {
		return model.Pool{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("token0: %w", err)
	}

	values, err = r.callPool(ctx, address, poolABI, "token1")
	if err != nil {
		return model.Pool{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("token1: %w", err)
	}

	values, err = r.callPool(ctx, address, poolABI, "fee")
	if err != nil {
		return model.Pool{}, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return model.Pool{}, fmt.Errorf("fee: %w", err)
	}
	fee := uint32(feeInt.Uint64())
	if _, err := v3math.TickSpacing(fee); err != nil {
		return model.Pool{}, err
	}

	pool := model.Pool{ID: strings.ToLower(address.Hex()), FeeTier: fee}
	if pool.Token0, err = r.token(ctx, token0); err != nil {
		return model.Pool{}, fmt.Errorf("token0 metadata: %w", err)
	}
	if pool.Token1, err = r.token(ctx, token1); err != nil {
		return model.Pool{}, fmt.Errorf("token1 metadata: %w", err)
	}
	pool.State = r.state(ctx, address, poolABI, pool)
	return pool, nil
}

// state reads slot0 and liquidity; failures leave the fields empty.
func (r *PoolReader) state(ctx context.Context, address common.Address, poolABI abi.ABI, pool model.Pool) *model.PoolState {
	state := &model.PoolState{}

	if values, err := r.callPool(ctx, address, poolABI, "liquidity"); err == nil {
		if liq, err := asBigInt(values[0]); err == nil {
			state.Liquidity = liq
		}
	} else {
		r.logger.Debug("liquidity call failed", zap.String("pool", pool.ID), zap.Error(err))
	}

	values, err := r.callPool(ctx, address, poolABI, "slot0")
	if err != nil || len(values) < 2 {
		r.logger.Debug("slot0 call failed", zap.String("pool", pool.ID), zap.Error(err))
		return state
	}
	sqrt, errSqrt := asBigInt(values[0])
	tickInt, errTick := asBigInt(values[1])
	if errSqrt != nil || errTick != nil {
		return state
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		r.logger.Warn("slot0 tick out of range", zap.String("pool", pool.ID), zap.Error(err))
		return state
	}
	state.Tick = tick
	state.SqrtPriceX96 = sqrt
	if sqrt.Sign() > 0 {
		state.Token0Price, state.Token1Price = v3math.PricesFromSqrtX96(sqrt, pool.Token0.Decimals, pool.Token1.Decimals)
	}
	return state
}

func (r *PoolReader) callPool(ctx context.Context, pool common.Address, poolABI abi.ABI, method string) ([]interface{}, error) {
	data, err := poolABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &pool, Data: data}
	resp, err := r.caller.CallContract(ctx, msg, r.block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := poolABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (r *PoolReader) token(ctx context.Context, address common.Address) (model.Token, error) {
	if meta, ok := r.tokens.Get(address); ok {
		return meta, nil
	}
	meta, err := FetchToken(ctx, r.caller, address, r.logger)
	if err != nil {
		return model.Token{}, err
	}
	r.tokens.Set(address, meta)
	return meta, nil
}

// FetchToken loads token metadata via ERC20 calls. Decimals are required;
// symbol, name and total supply are best effort.
func FetchToken(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (model.Token, error) {
	meta := model.Token{ID: strings.ToLower(token.Hex())}
	if caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		msg := ethereum.CallMsg{To: &token, Data: data}
		resp, err := caller.CallContract(ctx, msg, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		return values, nil
	}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := call("symbol", stringABI); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := call("symbol", bytes32ABI); err == nil {
		if symbol, ok := bytes32ToString(values[0]); ok {
			meta.Symbol = symbol
		}
	} else {
		logger.Debug("symbol call failed", zap.String("token", meta.ID), zap.Error(err))
	}

	if values, err := call("name", stringABI); err == nil {
		if name, ok := values[0].(string); ok {
			meta.Name = name
		}
	} else if values, err := call("name", bytes32ABI); err == nil {
		if name, ok := bytes32ToString(values[0]); ok {
			meta.Name = name
		}
	} else {
		logger.Debug("name call failed", zap.String("token", meta.ID), zap.Error(err))
	}

	if values, err := call("totalSupply", stringABI); err == nil {
		if supply, err := asBigInt(values[0]); err == nil {
			meta.TotalSupply = supply
		}
	}

	return meta, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
