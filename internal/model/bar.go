package model

import (
	"sort"
	"time"
)

// Bar is an OHLC bar keyed by its period start.
// FeesUSD and VolumeUSD are zero when the source does not provide them.
type Bar struct {
	PeriodStart time.Time `json:"period_start"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	FeesUSD     float64   `json:"fees_usd"`
	VolumeUSD   float64   `json:"volume_usd"`
}

// NormalizeBars sorts bars ascending by period start and drops duplicates.
// When two bars share a period start, the later one in the input wins.
func NormalizeBars(bars []Bar) []Bar {
	if len(bars) == 0 {
		return nil
	}
	byStart := make(map[int64]int, len(bars))
	out := make([]Bar, 0, len(bars))
	for _, bar := range bars {
		key := bar.PeriodStart.Unix()
		if idx, ok := byStart[key]; ok {
			out[idx] = bar
			continue
		}
		byStart[key] = len(out)
		out = append(out, bar)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PeriodStart.Before(out[j].PeriodStart)
	})
	return out
}

// Closes returns the close prices of bars in order.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, bar := range bars {
		out[i] = bar.Close
	}
	return out
}

// BarAt returns the bar whose period [start, start+period) contains ts.
func BarAt(bars []Bar, ts time.Time, period time.Duration) (Bar, bool) {
	idx := sort.Search(len(bars), func(i int) bool {
		return bars[i].PeriodStart.After(ts)
	})
	if idx == 0 {
		return Bar{}, false
	}
	bar := bars[idx-1]
	if ts.Sub(bar.PeriodStart) >= period {
		return Bar{}, false
	}
	return bar, true
}
