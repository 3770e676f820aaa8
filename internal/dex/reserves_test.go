package dex

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpValuer/internal/model"
)

// prunedCaller fails every historical read.
type prunedCaller struct {
	*fakeCaller
}

func (p prunedCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	if block != nil {
		return nil, errors.New("missing trie node")
	}
	return p.fakeCaller.CallContract(ctx, msg, block)
}

func stubBalances(t *testing.T, f *fakeCaller) model.Pool {
	t.Helper()
	erc20, err := erc20ABIStringInstance()
	require.NoError(t, err)
	usdc, _ := new(big.Int).SetString("152340000000", 10)
	weth, _ := new(big.Int).SetString("61250000000000000000", 10)
	f.stub(t, erc20, usdcAddr, "balanceOf", usdc)
	f.stub(t, erc20, wethAddr, "balanceOf", weth)
	return model.Pool{
		ID:     poolAddr.Hex(),
		Token0: model.Token{ID: usdcAddr.Hex(), Decimals: 6},
		Token1: model.Token{ID: wethAddr.Hex(), Decimals: 18},
	}
}

func TestReserves(t *testing.T) {
	caller := newFakeChain(t, 3000)
	pool := stubBalances(t, caller)

	got, err := NewPoolReader(caller, nil).AtBlock(15000000).Reserves(context.Background(), pool)
	require.NoError(t, err)

	assert.Equal(t, ReservesAtBlock, got.Source)
	assert.Equal(t, "152340000000", got.Amount0.String())
	assert.Equal(t, "152340.000000", got.Display0)
	assert.Equal(t, "61.250000000000000000", got.Display1)
}

func TestReservesFallsBackToLatest(t *testing.T) {
	caller := newFakeChain(t, 3000)
	pool := stubBalances(t, caller)

	reader := NewPoolReader(prunedCaller{caller}, nil).AtBlock(12000000)
	got, err := reader.Reserves(context.Background(), pool)
	require.NoError(t, err)
	assert.Equal(t, ReservesAtLatest, got.Source)
	assert.Equal(t, "61250000000000000000", got.Amount1.String())
}

func TestReservesErrors(t *testing.T) {
	caller := newFakeChain(t, 3000)
	reader := NewPoolReader(caller, nil)

	_, err := reader.Reserves(context.Background(), model.Pool{ID: "nope"})
	require.Error(t, err)

	// No balanceOf stubs.
	pool := model.Pool{ID: poolAddr.Hex(), Token0: model.Token{ID: usdcAddr.Hex()}, Token1: model.Token{ID: wethAddr.Hex()}}
	_, err = reader.Reserves(context.Background(), pool)
	require.ErrorIs(t, err, errNoStub)
}

func TestFormatTokenAmount(t *testing.T) {
	assert.Equal(t, "0", formatTokenAmount(nil, 18))
	assert.Equal(t, "42", formatTokenAmount(big.NewInt(42), 0))
	assert.Equal(t, "-0.000042", formatTokenAmount(big.NewInt(-42), 6))
	assert.Equal(t, "1.50", formatTokenAmount(big.NewInt(150), 2))
}
