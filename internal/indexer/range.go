package indexer

import (
	"fmt"
	"time"
)

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// SplitRange splits [from, to) into windows of at most size.
func SplitRange(from, to time.Time, size time.Duration) ([]Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be greater than zero")
	}
	if !to.After(from) {
		return nil, fmt.Errorf("to must be after from")
	}

	windows := make([]Window, 0, int(to.Sub(from)/size)+1)
	for start := from; start.Before(to); start = start.Add(size) {
		end := start.Add(size)
		if end.After(to) {
			end = to
		}
		windows = append(windows, Window{From: start, To: end})
	}

	return windows, nil
}
