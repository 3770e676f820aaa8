package v3math

import (
	"math"
	"math/big"
	"sort"

	"lpValuer/internal/model"
)

// LiquidityUnits selects the metric space of curve liquidity.
type LiquidityUnits int

const (
	// RawUnits keeps liquidity exactly as the pool reports it, comparable to
	// LiquidityForAmounts output.
	RawUnits LiquidityUnits = iota
	// HumanUnits rescales liquidity by 10^(decimals0-decimals1).
	HumanUnits
)

// emptyLiquidity replaces a zero denominator in share computations.
const emptyLiquidity = 1e-9

// CurvePoint is one row of a tick curve.
type CurvePoint struct {
	Tick      int32   `json:"tick"`
	Price0    float64 `json:"price0"`
	Price1    float64 `json:"price1"`
	Liquidity float64 `json:"liquidity"`
}

// TickCurve is a dense liquidity curve stepped by the pool's tick spacing.
type TickCurve struct {
	Spacing int32
	Points  []CurvePoint
	index   map[int32]int
}

// BuildTickCurve expands sparse tick records into a dense curve.
// Cumulative liquidity at a tick is the sum of liquidityNet of every record
// at or below it. Ticks between records carry the last cumulative value.
func BuildTickCurve(records []model.TickRecord, feeTier uint32, decimals0, decimals1 uint8, units LiquidityUnits) (*TickCurve, error) {
	spacing, err := TickSpacing(feeTier)
	if err != nil {
		return nil, err
	}
	curve := &TickCurve{Spacing: spacing, index: map[int32]int{}}
	if len(records) == 0 {
		return curve, nil
	}

	sorted := make([]model.TickRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TickIdx < sorted[j].TickIdx
	})

	ticks := make([]int32, 0, len(sorted))
	cumulative := make([]float64, 0, len(sorted))
	running := new(big.Int)
	for _, rec := range sorted {
		if rec.LiquidityNet != nil {
			running.Add(running, rec.LiquidityNet)
		}
		value, _ := new(big.Float).SetInt(running).Float64()
		if n := len(ticks); n > 0 && ticks[n-1] == rec.TickIdx {
			cumulative[n-1] = value
			continue
		}
		ticks = append(ticks, rec.TickIdx)
		cumulative = append(cumulative, value)
	}

	scale := 1.0
	if units == HumanUnits {
		scale = pow10(int(decimals0) - int(decimals1))
	}

	minTick := AlignTick(ticks[0], spacing)
	maxTick := ticks[len(ticks)-1]
	size := int((maxTick-minTick)/spacing) + 1
	curve.Points = make([]CurvePoint, 0, size)

	cursor := -1
	for tick := minTick; tick <= maxTick; tick += spacing {
		for cursor+1 < len(ticks) && ticks[cursor+1] <= tick {
			cursor++
		}
		liquidity := 0.0
		if cursor >= 0 {
			liquidity = math.Max(cumulative[cursor], 0) * scale
		}
		price0, price1 := TickToPrices(tick, decimals0, decimals1)
		curve.index[tick] = len(curve.Points)
		curve.Points = append(curve.Points, CurvePoint{
			Tick:      tick,
			Price0:    price0,
			Price1:    price1,
			Liquidity: liquidity,
		})
	}
	return curve, nil
}

// Len returns the number of curve rows.
func (c *TickCurve) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Points)
}

// LiquidityAt returns the curve liquidity of the grid tick containing tick,
// or 0 when the tick is off the curve.
func (c *TickCurve) LiquidityAt(tick int32) float64 {
	if c.Len() == 0 {
		return 0
	}
	idx, ok := c.index[AlignTick(tick, c.Spacing)]
	if !ok {
		return 0
	}
	return c.Points[idx].Liquidity
}

// MeanLiquidity averages curve liquidity over the grid ticks covering the
// inclusive range. It returns 0 when no curve row falls inside the range.
func (c *TickCurve) MeanLiquidity(fromTick, toTick int32) float64 {
	if fromTick > toTick {
		fromTick, toTick = toTick, fromTick
	}
	if c.Len() > 0 {
		fromTick = AlignTick(fromTick, c.Spacing)
	}
	var sum float64
	var n int
	for _, pt := range c.pointsIn(fromTick, toTick) {
		sum += pt.Liquidity
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (c *TickCurve) pointsIn(fromTick, toTick int32) []CurvePoint {
	if c.Len() == 0 {
		return nil
	}
	lo := sort.Search(len(c.Points), func(i int) bool { return c.Points[i].Tick >= fromTick })
	hi := sort.Search(len(c.Points), func(i int) bool { return c.Points[i].Tick > toTick })
	return c.Points[lo:hi]
}

// LiquidityShare returns own/(curve+own), the fraction of fees earned by a
// position of liquidity own at tick. An empty curve never divides by zero.
func (c *TickCurve) LiquidityShare(tick int32, own float64) float64 {
	return Share(own, c.LiquidityAt(tick))
}

// Share returns own/(pool+own) with an epsilon floor on the denominator.
func Share(own, pool float64) float64 {
	denom := pool + own
	if denom <= 0 {
		denom = emptyLiquidity
	}
	return own / denom
}
