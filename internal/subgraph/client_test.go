package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lpValuer/internal/valuation"
)

var (
	_ valuation.MarketSource = (*Client)(nil)
	_ valuation.PoolSource   = (*Client)(nil)
)

type recordedRequest struct {
	Query     string
	Variables map[string]any
}

// graphServer answers each request with handler's data payload.
func graphServer(t *testing.T, handler func(req recordedRequest) (any, int)) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recordedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		payload, status := handler(req)
		if status != http.StatusOK {
			http.Error(w, "boom", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func newTestClient(url string, opts ...ClientOption) *Client {
	base := []ClientOption{WithRetryDelay(time.Millisecond), WithPaging(3, 2)}
	return New(url, append(base, opts...)...)
}

func intVar(t *testing.T, vars map[string]any, key string) int {
	t.Helper()
	v, ok := vars[key].(float64)
	require.True(t, ok, "variable %s missing", key)
	return int(v)
}

func TestPool(t *testing.T) {
	srv, seen := graphServer(t, func(req recordedRequest) (any, int) {
		return map[string]any{"data": map[string]any{"pool": map[string]any{
			"id":          "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640",
			"feeTier":     "500",
			"tick":        "201824",
			"sqrtPrice":   "1950462578286611914004046069436130",
			"liquidity":   "24553591106187476432",
			"token0Price": "1654.12",
			"token1Price": "0.000604",
			"volumeUSD":   "1000",
			"feesUSD":     "0.5",
			"token0":      map[string]any{"id": "0xa0b8", "symbol": "USDC", "name": "USD Coin", "decimals": "6", "totalSupply": "12345"},
			"token1":      map[string]any{"id": "0xc02a", "symbol": "WETH", "name": "Wrapped Ether", "decimals": "18", "totalSupply": "999"},
		}}}, http.StatusOK
	})

	pool, err := newTestClient(srv.URL).Pool(context.Background(), "0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	require.NoError(t, err)

	assert.Equal(t, uint32(500), pool.FeeTier)
	assert.Equal(t, "USDC", pool.Token0.Symbol)
	assert.Equal(t, uint8(6), pool.Token0.Decimals)
	assert.Equal(t, uint8(18), pool.Token1.Decimals)
	assert.Equal(t, "999", pool.Token1.TotalSupply.String())
	require.NotNil(t, pool.State)
	assert.Equal(t, int32(201824), pool.State.Tick)
	assert.Equal(t, "24553591106187476432", pool.State.Liquidity.String())
	assert.InDelta(t, 1654.12, pool.State.Token0Price, 1e-9)

	require.Len(t, *seen, 1)
	assert.Equal(t, "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640", (*seen)[0].Variables["id"])
}

func TestPoolUninitialized(t *testing.T) {
	srv, _ := graphServer(t, func(req recordedRequest) (any, int) {
		return map[string]any{"data": map[string]any{"pool": map[string]any{
			"id":      "0xabc",
			"feeTier": "3000",
			"tick":    nil,
			"token0":  map[string]any{"id": "0x1", "symbol": "A", "decimals": "18"},
			"token1":  map[string]any{"id": "0x2", "symbol": "B", "decimals": "18"},
		}}}, http.StatusOK
	})

	pool, err := newTestClient(srv.URL).Pool(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Nil(t, pool.State)
	assert.Nil(t, pool.Token0.TotalSupply)
}

func TestPoolNotFound(t *testing.T) {
	srv, _ := graphServer(t, func(req recordedRequest) (any, int) {
		return map[string]any{"data": map[string]any{"pool": nil}}, http.StatusOK
	})

	_, err := newTestClient(srv.URL).Pool(context.Background(), "0xdead")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPoolHourBarsPaging(t *testing.T) {
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{
			"periodStartUnix": base.Add(time.Duration(i) * time.Hour).Unix(),
			"open":            "1",
			"high":            "2",
			"low":             "0.5",
			"close":           fmt.Sprintf("%d.5", i),
			"feesUSD":         "10",
			"volumeUSD":       "1000",
		}
	}

	srv, seen := graphServer(t, func(req recordedRequest) (any, int) {
		if !strings.Contains(req.Query, "poolHourDatas") {
			return nil, http.StatusBadRequest
		}
		first := int(req.Variables["first"].(float64))
		skip := int(req.Variables["skip"].(float64))
		page := []map[string]any{}
		for i := skip; i < skip+first && i < len(rows); i++ {
			page = append(page, rows[i])
		}
		return map[string]any{"data": map[string]any{"poolHourDatas": page}}, http.StatusOK
	})

	from, to := base, base.Add(24*time.Hour)
	bars, err := newTestClient(srv.URL).PoolHourBars(context.Background(), "0xPOOL", from, to)
	require.NoError(t, err)

	require.Len(t, bars, 5)
	for i, bar := range bars {
		assert.Equal(t, base.Add(time.Duration(i)*time.Hour), bar.PeriodStart)
		assert.InDelta(t, float64(i)+0.5, bar.Close, 1e-12)
		assert.InDelta(t, 10.0, bar.FeesUSD, 1e-12)
	}

	require.Len(t, *seen, 3)
	skips := map[int]bool{}
	for _, req := range *seen {
		assert.Equal(t, "0xpool", req.Variables["pool"])
		assert.Equal(t, int(from.Unix()), intVar(t, req.Variables, "from"))
		assert.Equal(t, int(to.Unix()), intVar(t, req.Variables, "to"))
		assert.Equal(t, 2, intVar(t, req.Variables, "first"))
		skips[intVar(t, req.Variables, "skip")] = true
	}
	assert.Equal(t, map[int]bool{0: true, 2: true, 4: true}, skips)
}

func TestTicksFullLastPageTruncated(t *testing.T) {
	srv, seen := graphServer(t, func(req recordedRequest) (any, int) {
		first := int(req.Variables["first"].(float64))
		rows := make([]map[string]any, first)
		for i := range rows {
			idx := int(req.Variables["skip"].(float64)) + i
			rows[i] = map[string]any{"tickIdx": fmt.Sprint(idx * 60), "liquidityNet": "1", "liquidityGross": "1"}
		}
		return map[string]any{"data": map[string]any{"ticks": rows}}, http.StatusOK
	})

	_, err := newTestClient(srv.URL).Ticks(context.Background(), "0xpool")
	require.ErrorIs(t, err, ErrTruncated)
	assert.Len(t, *seen, 3)
}

func TestPoolDayBarsUseDate(t *testing.T) {
	day := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)
	srv, _ := graphServer(t, func(req recordedRequest) (any, int) {
		rows := []map[string]any{}
		if int(req.Variables["skip"].(float64)) == 0 {
			rows = append(rows,
				map[string]any{"date": day.Add(24 * time.Hour).Unix(), "close": "2", "feesUSD": "7", "volumeUSD": "70"},
				map[string]any{"date": day.Unix(), "close": "1", "feesUSD": "5", "volumeUSD": "50"},
			)
		}
		return map[string]any{"data": map[string]any{"poolDayDatas": rows}}, http.StatusOK
	})

	bars, err := newTestClient(srv.URL, WithPaging(1, 10)).PoolDayBars(context.Background(), "0xpool", day, day.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, day, bars[0].PeriodStart)
	assert.InDelta(t, 5.0, bars[0].FeesUSD, 1e-12)
	assert.InDelta(t, 70.0, bars[1].VolumeUSD, 1e-12)
}

func TestTokenHourBars(t *testing.T) {
	ts := time.Date(2022, 3, 1, 5, 0, 0, 0, time.UTC)
	srv, seen := graphServer(t, func(req recordedRequest) (any, int) {
		rows := []map[string]any{}
		if int(req.Variables["skip"].(float64)) == 0 {
			rows = append(rows, map[string]any{"periodStartUnix": ts.Unix(), "open": "30", "high": "31", "low": "29", "close": "30.5"})
		}
		return map[string]any{"data": map[string]any{"tokenHourDatas": rows}}, http.StatusOK
	})

	bars, err := newTestClient(srv.URL).TokenHourBars(context.Background(), "0xTOKEN", ts, ts.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.InDelta(t, 30.5, bars[0].Close, 1e-12)
	assert.Equal(t, "0xtoken", (*seen)[0].Variables["token"])
}

func TestTicks(t *testing.T) {
	srv, _ := graphServer(t, func(req recordedRequest) (any, int) {
		rows := []map[string]any{}
		if int(req.Variables["skip"].(float64)) == 0 {
			rows = append(rows,
				map[string]any{"tickIdx": "-887220", "liquidityNet": "1000000000000000000000", "liquidityGross": "1000000000000000000000"},
				map[string]any{"tickIdx": "887220", "liquidityNet": "-1000000000000000000000", "liquidityGross": "1000000000000000000000"},
			)
		}
		return map[string]any{"data": map[string]any{"ticks": rows}}, http.StatusOK
	})

	ticks, err := newTestClient(srv.URL).Ticks(context.Background(), "0xpool")
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, int32(-887220), ticks[0].TickIdx)
	assert.Equal(t, "-1000000000000000000000", ticks[1].LiquidityNet.String())
}

func TestTicksBadNumber(t *testing.T) {
	srv, _ := graphServer(t, func(req recordedRequest) (any, int) {
		rows := []map[string]any{{"tickIdx": "10", "liquidityNet": "abc", "liquidityGross": "1"}}
		return map[string]any{"data": map[string]any{"ticks": rows}}, http.StatusOK
	})

	_, err := newTestClient(srv.URL, WithPaging(1, 10)).Ticks(context.Background(), "0xpool")
	require.Error(t, err)
}

func TestQueryRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv, _ := graphServer(t, func(req recordedRequest) (any, int) {
		if calls.Add(1) <= 2 {
			return nil, http.StatusBadGateway
		}
		return map[string]any{"data": map[string]any{"ticks": []any{}}}, http.StatusOK
	})

	ticks, err := newTestClient(srv.URL, WithPaging(1, 10)).Ticks(context.Background(), "0xpool")
	require.NoError(t, err)
	assert.Empty(t, ticks)
	assert.Equal(t, int32(3), calls.Load())
}

func TestQueryGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv, _ := graphServer(t, func(req recordedRequest) (any, int) {
		calls.Add(1)
		return map[string]any{"errors": []map[string]any{{"message": "indexer unavailable"}}}, http.StatusOK
	})

	_, err := newTestClient(srv.URL, WithPaging(1, 10), WithAttempts(4)).Ticks(context.Background(), "0xpool")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer unavailable")
	assert.Equal(t, int32(4), calls.Load())
}

func TestQueryDoesNotRetryBadData(t *testing.T) {
	var calls atomic.Int32
	srv, _ := graphServer(t, func(req recordedRequest) (any, int) {
		calls.Add(1)
		return map[string]any{"data": map[string]any{"ticks": "not a list"}}, http.StatusOK
	})

	_, err := newTestClient(srv.URL, WithPaging(1, 10)).Ticks(context.Background(), "0xpool")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIKeyHeader(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"pool":null}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, WithAPIKey("secret")).Pool(context.Background(), "0x1")
	require.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "Bearer secret", auth.Load())
}

func TestNewDefaults(t *testing.T) {
	c := New("  ")
	assert.Equal(t, DefaultEndpoint, c.endpoint)
	assert.Equal(t, uint(DefaultAttempts), c.attempts)
	assert.Equal(t, DefaultPages, c.pages)
	assert.Equal(t, DefaultPageSize, c.pageSize)
}
