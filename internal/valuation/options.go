package valuation

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultWindow  = 5 * 24 * time.Hour
	DefaultWorkers = 8
	hoursPerDay    = 24
)

// Options tunes the TV and PnL pipelines. Zero values take defaults.
type Options struct {
	// Window is the trailing history used by TV.
	Window time.Duration
	// Horizon is the number of simulated hours; 0 uses the tenor left after
	// the value date.
	Horizon int
	// StableOnly refuses pairs without a stable leg.
	StableOnly bool
	// Workers bounds the TV path pool.
	Workers int
	Logger  *zap.Logger
}

func (o Options) window() time.Duration {
	if o.Window <= 0 {
		return DefaultWindow
	}
	return o.Window
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return DefaultWorkers
	}
	return o.Workers
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
