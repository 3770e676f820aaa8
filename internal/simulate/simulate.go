package simulate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// ErrShortSeries is returned when a series cannot seed a simulation.
var ErrShortSeries = errors.New("series too short")

// Params carries per-period drift and volatility.
type Params struct {
	Drift      float64 `json:"drift"`
	Volatility float64 `json:"volatility"`
}

// Ensemble holds simulated paths; every path has horizon+1 prices and
// starts at the last observed price.
type Ensemble [][]float64

// Terminal returns the last price of every path.
func (e Ensemble) Terminal() []float64 {
	out := make([]float64, len(e))
	for i, path := range e {
		out[i] = path[len(path)-1]
	}
	return out
}

// Simulator produces forward price paths from a historical series.
type Simulator interface {
	Simulate(series []float64, p Params, horizon int) (Ensemble, error)
}

// MonteCarlo applies an arithmetic step p*(1 + mu*dt + sigma*sqrt(dt)*Z).
// With a Seed set, repeated calls return identical ensembles.
type MonteCarlo struct {
	Paths          int
	StepsPerPeriod int
	Seed           *uint64
}

// NewMonteCarlo returns a simulator with the default ensemble size.
func NewMonteCarlo(seed *uint64) *MonteCarlo {
	return &MonteCarlo{Paths: DefaultPaths, StepsPerPeriod: DefaultStepsPerPeriod, Seed: seed}
}

const (
	DefaultPaths          = 10000
	DefaultStepsPerPeriod = 24
)

func (m *MonteCarlo) Simulate(series []float64, p Params, horizon int) (Ensemble, error) {
	start, err := lastPrice(series)
	if err != nil {
		return nil, err
	}
	if err := checkShape(m.Paths, m.StepsPerPeriod, horizon); err != nil {
		return nil, err
	}
	dt := 1 / float64(m.StepsPerPeriod)
	drift := p.Drift * dt
	shock := p.Volatility * math.Sqrt(dt)

	seed := seedOf(m.Seed)
	out := make(Ensemble, m.Paths)
	for i := range out {
		rng := pathRand(seed, i)
		path := make([]float64, horizon+1)
		path[0] = start
		for step := 1; step <= horizon; step++ {
			path[step] = path[step-1] * (1 + drift + shock*rng.NormFloat64())
		}
		out[i] = path
	}
	return out, nil
}

// Brownian estimates drift and volatility from the series' log returns and
// applies a log-normal step. The Params passed to Simulate are ignored.
type Brownian struct {
	Paths                 int
	StepsPerPeriod        int
	ObservationsPerPeriod int
	Seed                  *uint64
}

// NewBrownian returns a Brownian simulator for an hourly series with daily
// parameters.
func NewBrownian(seed *uint64) *Brownian {
	return &Brownian{
		Paths:                 DefaultPaths,
		StepsPerPeriod:        DefaultStepsPerPeriod,
		ObservationsPerPeriod: 24,
		Seed:                  seed,
	}
}

func (b *Brownian) Simulate(series []float64, _ Params, horizon int) (Ensemble, error) {
	start, err := lastPrice(series)
	if err != nil {
		return nil, err
	}
	if err := checkShape(b.Paths, b.StepsPerPeriod, horizon); err != nil {
		return nil, err
	}
	est, err := EstimateParams(series, b.ObservationsPerPeriod)
	if err != nil {
		return nil, err
	}
	dt := 1 / float64(b.StepsPerPeriod)
	drift := (est.Drift - est.Volatility*est.Volatility/2) * dt
	shock := est.Volatility * math.Sqrt(dt)

	seed := seedOf(b.Seed)
	out := make(Ensemble, b.Paths)
	for i := range out {
		rng := pathRand(seed, i)
		path := make([]float64, horizon+1)
		path[0] = start
		for step := 1; step <= horizon; step++ {
			path[step] = path[step-1] * math.Exp(drift+shock*rng.NormFloat64())
		}
		out[i] = path
	}
	return out, nil
}

// EstimateParams returns drift and volatility per period from the log
// returns of series, given how many observations make up one period.
func EstimateParams(series []float64, observationsPerPeriod int) (Params, error) {
	if observationsPerPeriod <= 0 {
		return Params{}, fmt.Errorf("observations per period must be positive: %d", observationsPerPeriod)
	}
	returns := LogReturns(series)
	if len(returns) < 2 {
		return Params{}, fmt.Errorf("%d returns: %w", len(returns), ErrShortSeries)
	}
	mean, std := stat.MeanStdDev(returns, nil)
	n := float64(observationsPerPeriod)
	return Params{Drift: mean * n, Volatility: std * math.Sqrt(n)}, nil
}

// LogReturns returns ln(p[i]/p[i-1]) for consecutive positive prices.
func LogReturns(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for i := 1; i < len(series); i++ {
		if series[i-1] <= 0 || series[i] <= 0 {
			continue
		}
		out = append(out, math.Log(series[i]/series[i-1]))
	}
	return out
}

func lastPrice(series []float64) (float64, error) {
	if len(series) == 0 {
		return 0, fmt.Errorf("empty series: %w", ErrShortSeries)
	}
	last := series[len(series)-1]
	if !(last > 0) || math.IsInf(last, 0) {
		return 0, fmt.Errorf("last price %v is not positive", last)
	}
	return last, nil
}

func checkShape(paths, stepsPerPeriod, horizon int) error {
	if paths <= 0 {
		return fmt.Errorf("paths must be positive: %d", paths)
	}
	if stepsPerPeriod <= 0 {
		return fmt.Errorf("steps per period must be positive: %d", stepsPerPeriod)
	}
	if horizon < 0 {
		return fmt.Errorf("horizon must be non-negative: %d", horizon)
	}
	return nil
}

func seedOf(seed *uint64) uint64 {
	if seed != nil {
		return *seed
	}
	return rand.Uint64()
}

// pathRand gives each path its own PCG stream.
func pathRand(seed uint64, path int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(path)))
}
