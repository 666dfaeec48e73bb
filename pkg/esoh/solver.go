package esoh

import (
	"context"
	"errors"
	"math"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/charlie0129/esoh/pkg/rootfind"
)

const (
	DefaultTolerance     = 1e-10
	DefaultMaxIterations = 100
	DefaultInitialX100   = 0.9

	// Stoichiometries this close to 0 or 1 are snapped onto the bound.
	snapTolerance = 1e-12
)

// Options tune the two root searches. Zero values select the defaults.
type Options struct {
	// Tolerance is the accepted voltage residual, in V.
	Tolerance     float64 `json:"tolerance,omitempty"`
	MaxIterations int     `json:"maxIterations,omitempty"`
	// InitialX100 is the starting guess for x100.
	InitialX100 float64 `json:"initialX100,omitempty"`
	// InitialCapacity is the starting guess for the cell capacity in A.h.
	// Zero means the positive electrode capacity.
	InitialCapacity float64 `json:"initialCapacity,omitempty"`
}

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.InitialX100 <= 0 {
		o.InitialX100 = DefaultInitialX100
	}
	return o
}

// Solver computes electrode stoichiometry limits and cell capacity. It holds
// no mutable state and is safe for concurrent use.
type Solver struct {
	opts Options
}

// NewSolver returns a Solver using opts, with defaults for zero fields.
func NewSolver(opts Options) *Solver {
	return &Solver{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (s *Solver) Options() Options {
	return s.opts
}

var defaultSolver = NewSolver(Options{})

// Solve runs the default Solver.
func Solve(ctx context.Context, in Inputs, ocp OCP, temperature float64) (Outputs, error) {
	return defaultSolver.Solve(ctx, in, ocp, temperature)
}

// Solve finds x100 from the upper voltage limit and the lithium inventory,
// then the cell capacity from the lower voltage limit.
func (s *Solver) Solve(ctx context.Context, in Inputs, ocp OCP, temperature float64) (Outputs, error) {
	if err := in.Validate(); err != nil {
		return Outputs{}, err
	}
	if ocp.Negative == nil || ocp.Positive == nil {
		return Outputs{}, pkgerrors.Wrap(ErrInvalidInput, "both open-circuit potential curves are required")
	}
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) || temperature <= 0 {
		return Outputs{}, pkgerrors.Wrapf(ErrInvalidInput, "temperature must be finite and positive, got %g K", temperature)
	}

	settings := rootfind.Settings{
		Tolerance:     s.opts.Tolerance,
		MaxIterations: s.opts.MaxIterations,
	}

	cn, cp := in.NegativeCapacity, in.PositiveCapacity
	lithium := in.LithiumCapacity()

	y100Of := func(x100 float64) float64 {
		return (lithium - x100*cn) / cp
	}

	// Both stoichiometries have to stay in [0, 1].
	xBracket := rootfind.Bracket{
		Lo: math.Max(0, (lithium-cp)/cn),
		Hi: math.Min(1, lithium/cn),
	}
	if xBracket.Lo > xBracket.Hi {
		return Outputs{}, &SolveError{
			Step:      StepMaximumVoltage,
			Kind:      ErrInfeasibleVoltageWindow,
			LastValue: math.NaN(),
			Residual:  math.NaN(),
			Err: pkgerrors.Errorf("lithium inventory %g A.h does not fit electrodes of %g A.h and %g A.h",
				lithium, cn, cp),
		}
	}

	upper := func(x100 float64) float64 {
		return ocp.Voltage(x100, y100Of(x100), temperature) - in.MaximumVoltage
	}
	res, err := rootfind.Newton(ctx, upper, xBracket, s.opts.InitialX100, settings)
	if err != nil {
		return Outputs{}, wrapRootError(StepMaximumVoltage, res, err)
	}
	x100 := snap(res.Root)
	y100 := snap(y100Of(x100))

	logrus.WithFields(logrus.Fields{
		"x100":       x100,
		"y100":       y100,
		"iterations": res.Iterations,
		"residual":   res.Residual,
	}).Debug("solved upper stoichiometry limits")

	if err := ctx.Err(); err != nil {
		return Outputs{}, err
	}

	capBracket := rootfind.Bracket{
		Lo: 0,
		Hi: math.Min(x100*cn, (1-y100)*cp),
	}
	lower := func(capacity float64) float64 {
		return ocp.Voltage(x100-capacity/cn, y100+capacity/cp, temperature) - in.MinimumVoltage
	}
	guess := s.opts.InitialCapacity
	if guess <= 0 {
		guess = cp
	}
	res, err = rootfind.Newton(ctx, lower, capBracket, guess, settings)
	if err != nil {
		return Outputs{}, wrapRootError(StepMinimumVoltage, res, err)
	}
	capacity := res.Root

	out := Outputs{
		X100:         x100,
		Y100:         y100,
		X0:           snap(x100 - capacity/cn),
		Y0:           snap(y100 + capacity/cp),
		CellCapacity: capacity,
	}

	logrus.WithFields(out.LogrusFields()).WithField("iterations", res.Iterations).Debug("solved electrode state of health")

	return out, nil
}

func wrapRootError(step Step, res rootfind.Result, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	kind := ErrSolverDidNotConverge
	if errors.Is(err, rootfind.ErrNoSignChange) || errors.Is(err, rootfind.ErrEmptyBracket) {
		kind = ErrInfeasibleVoltageWindow
	}

	return &SolveError{
		Step:      step,
		Kind:      kind,
		LastValue: res.Root,
		Residual:  res.Residual,
		Err:       err,
	}
}

// snap removes round-off that would put a stoichiometry just outside [0, 1].
func snap(v float64) float64 {
	switch {
	case scalar.EqualWithinAbs(v, 0, snapTolerance):
		return 0
	case scalar.EqualWithinAbs(v, 1, snapTolerance):
		return 1
	}
	return v
}
