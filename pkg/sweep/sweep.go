// Package sweep solves the electrode state of health over a grid of
// degradation modes: loss of lithium inventory (LLI) and loss of active
// material in either electrode (LAM).
package sweep

import (
	"context"
	"errors"
	"math"
	"runtime"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/parameters"
)

// MaxGridPoints bounds the number of points in one sweep.
const MaxGridPoints = 10000

// Grid lists the degradation fractions to combine. An empty axis is treated
// as a single zero.
type Grid struct {
	LLI         []float64 `json:"lli"`
	LAMNegative []float64 `json:"lamNegative"`
	LAMPositive []float64 `json:"lamPositive"`
	// Workers bounds the number of concurrent solves. Zero means GOMAXPROCS.
	Workers int `json:"workers,omitempty"`
}

// Size returns the number of grid points.
func (g Grid) Size() int {
	return max(len(g.LLI), 1) * max(len(g.LAMNegative), 1) * max(len(g.LAMPositive), 1)
}

// Validate checks that every fraction lies in [0, 1) and that the grid has
// at most MaxGridPoints points.
func (g Grid) Validate() error {
	axes := []struct {
		name   string
		values []float64
	}{
		{"lli", g.LLI},
		{"lamNegative", g.LAMNegative},
		{"lamPositive", g.LAMPositive},
	}
	for _, a := range axes {
		// Checked per axis first so Size cannot overflow.
		if len(a.values) > MaxGridPoints {
			return pkgerrors.Wrapf(esoh.ErrInvalidInput, "%s has %d values, at most %d allowed", a.name, len(a.values), MaxGridPoints)
		}
		for _, v := range a.values {
			if math.IsNaN(v) || v < 0 || v >= 1 {
				return pkgerrors.Wrapf(esoh.ErrInvalidInput, "%s fraction must be in [0, 1), got %g", a.name, v)
			}
		}
	}
	if n := g.Size(); n > MaxGridPoints {
		return pkgerrors.Wrapf(esoh.ErrInvalidInput, "grid has %d points, at most %d allowed", n, MaxGridPoints)
	}
	if g.Workers < 0 {
		return pkgerrors.Wrapf(esoh.ErrInvalidInput, "workers must not be negative, got %d", g.Workers)
	}
	return nil
}

// Point is one solved grid point. Error is set instead of Outputs when the
// solve failed for this combination.
type Point struct {
	LLI         float64       `json:"lli"`
	LAMNegative float64       `json:"lamNegative"`
	LAMPositive float64       `json:"lamPositive"`
	Inputs      esoh.Inputs   `json:"inputs"`
	Outputs     *esoh.Outputs `json:"outputs,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Degrade applies the fractions to a fresh cell.
func Degrade(in esoh.Inputs, lli, lamNegative, lamPositive float64) esoh.Inputs {
	in.TotalLithiumMoles *= 1 - lli
	in.NegativeCapacity *= 1 - lamNegative
	in.PositiveCapacity *= 1 - lamPositive
	return in
}

func axis(v []float64) []float64 {
	if len(v) == 0 {
		return []float64{0}
	}
	return v
}

// Points expands the grid in LLI, LAM_n, LAM_p order without solving.
func (g Grid) Points(base esoh.Inputs) []Point {
	ret := make([]Point, 0, g.Size())
	for _, lli := range axis(g.LLI) {
		for _, lamN := range axis(g.LAMNegative) {
			for _, lamP := range axis(g.LAMPositive) {
				ret = append(ret, Point{
					LLI:         lli,
					LAMNegative: lamN,
					LAMPositive: lamP,
					Inputs:      Degrade(base, lli, lamN, lamP),
				})
			}
		}
	}
	return ret
}

// Run solves every grid point of base. Solver failures are recorded per
// point; only invalid grids, invalid parameter sets and cancellation abort
// the sweep. The result order matches Grid.Points.
func Run(ctx context.Context, solver *esoh.Solver, base parameters.Set, g Grid) ([]Point, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	ocp, err := base.OCP()
	if err != nil {
		return nil, err
	}

	points := g.Points(base.Inputs)
	temperature := base.Temperature()

	workers := g.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := range points {
		i := i
		eg.Go(func() error {
			out, err := solver.Solve(ctx, points[i].Inputs, ocp, temperature)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				points[i].Error = err.Error()
				return nil
			}
			points[i].Outputs = &out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"parameterSet": base.Name,
		"points":       len(points),
		"workers":      workers,
		"elapsed":      time.Since(start),
	}).Debug("sweep finished")

	return points, nil
}
