package valuation

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countCalc struct {
	fetchErr error
	staged   bool
}

func (c *countCalc) Fetch(context.Context) (string, error) {
	if c.fetchErr != nil {
		return "", c.fetchErr
	}
	return "21", nil
}

func (c *countCalc) Stage(raw string) (int, error) {
	c.staged = true
	return strconv.Atoi(raw)
}

func (c *countCalc) Compute(n int) (int, error) {
	return n * 2, nil
}

func TestRun(t *testing.T) {
	got, err := Run[string, int, int](context.Background(), &countCalc{})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRunStopsAtFailingStage(t *testing.T) {
	boom := errors.New("boom")
	calc := &countCalc{fetchErr: boom}
	_, err := Run[string, int, int](context.Background(), calc)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fetch")
	assert.False(t, calc.staged)
}

func TestCompose(t *testing.T) {
	run := Compose(
		func(context.Context) (string, error) { return "x", nil },
		strconv.Atoi,
		func(n int) (int, error) { return n, nil },
	)
	_, err := run(context.Background())
	require.Error(t, err)
	var numErr *strconv.NumError
	assert.ErrorAs(t, err, &numErr)
	assert.Contains(t, err.Error(), "stage")
}
