// Package rootfind finds the root of a scalar function of one variable
// inside a known bracket.
//
// Newton steps are taken with a finite-difference derivative. Any step that
// would leave the current bracket is replaced by a bisection step, so the
// iteration never wanders outside the interval it was given.
package rootfind

import (
	"context"
	"errors"
	"math"

	pkgerrors "github.com/pkg/errors"
	"gonum.org/v1/gonum/diff/fd"
)

const (
	DefaultTolerance     = 1e-10
	DefaultMaxIterations = 100
	// DefaultStep is the finite-difference step used for the derivative.
	DefaultStep = 1e-7
)

var (
	// ErrEmptyBracket is returned when Lo > Hi or either end is not finite.
	ErrEmptyBracket = errors.New("empty bracket")

	// ErrNoSignChange is returned when f has the same sign at both ends of
	// the bracket and neither end is a root.
	ErrNoSignChange = errors.New("no sign change over bracket")

	// ErrMaxIterations is returned when the residual is still above the
	// tolerance after the iteration cap.
	ErrMaxIterations = errors.New("maximum iterations reached")

	// ErrNaN is returned when f evaluates to NaN.
	ErrNaN = errors.New("function returned NaN")
)

// Func is a scalar function of one variable.
type Func func(x float64) float64

// Bracket is a closed interval [Lo, Hi].
type Bracket struct {
	Lo float64
	Hi float64
}

// Width returns Hi - Lo.
func (b Bracket) Width() float64 {
	return b.Hi - b.Lo
}

// Clamp returns x limited to the bracket.
func (b Bracket) Clamp(x float64) float64 {
	return math.Max(b.Lo, math.Min(b.Hi, x))
}

// Settings controls the iteration. Zero values select the defaults.
type Settings struct {
	// Tolerance is the residual magnitude |f(x)| below which x is accepted.
	Tolerance     float64
	MaxIterations int
	Step          float64
}

func (s Settings) withDefaults() Settings {
	if s.Tolerance <= 0 {
		s.Tolerance = DefaultTolerance
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if s.Step <= 0 {
		s.Step = DefaultStep
	}
	return s
}

// Result is the outcome of a root search. On failure it holds the last
// iterate so callers can report it.
type Result struct {
	Root       float64
	Residual   float64
	Iterations int
}

// Newton searches for x in b with |f(x)| < tolerance, starting from x0.
// x0 is clamped into the bracket.
func Newton(ctx context.Context, f Func, b Bracket, x0 float64, s Settings) (Result, error) {
	s = s.withDefaults()

	if math.IsNaN(b.Lo) || math.IsNaN(b.Hi) || math.IsInf(b.Lo, 0) || math.IsInf(b.Hi, 0) || b.Lo > b.Hi {
		return Result{Root: x0, Residual: math.NaN()}, pkgerrors.Wrapf(ErrEmptyBracket, "[%g, %g]", b.Lo, b.Hi)
	}

	fLo, fHi := f(b.Lo), f(b.Hi)
	if math.IsNaN(fLo) || math.IsNaN(fHi) {
		return Result{Root: x0, Residual: math.NaN()}, pkgerrors.Wrapf(ErrNaN, "at bracket ends [%g, %g]", b.Lo, b.Hi)
	}

	// A root sitting exactly on an edge is accepted as is.
	if math.Abs(fHi) < s.Tolerance {
		return Result{Root: b.Hi, Residual: fHi}, nil
	}
	if math.Abs(fLo) < s.Tolerance {
		return Result{Root: b.Lo, Residual: fLo}, nil
	}

	if math.Signbit(fLo) == math.Signbit(fHi) {
		return Result{Root: b.Clamp(x0), Residual: fHi}, pkgerrors.Wrapf(ErrNoSignChange,
			"f(%g) = %g, f(%g) = %g", b.Lo, fLo, b.Hi, fHi)
	}

	// neg and pos track the ends where f is negative and positive.
	neg, pos := b.Lo, b.Hi
	if fLo > 0 {
		neg, pos = b.Hi, b.Lo
	}

	x := b.Clamp(x0)
	fx := math.NaN()
	for i := 1; i <= s.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{Root: x, Residual: fx, Iterations: i - 1}, err
		}

		fx = f(x)
		if math.IsNaN(fx) {
			return Result{Root: x, Residual: fx, Iterations: i}, pkgerrors.Wrapf(ErrNaN, "at x = %g", x)
		}
		if math.Abs(fx) < s.Tolerance {
			return Result{Root: x, Residual: fx, Iterations: i}, nil
		}

		if fx < 0 {
			neg = x
		} else {
			pos = x
		}

		lo, hi := math.Min(neg, pos), math.Max(neg, pos)
		next := x - fx/derivative(f, x, b, s.Step)
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= lo || next >= hi {
			next = lo + (hi-lo)/2
		}
		x = next
	}

	return Result{Root: x, Residual: fx, Iterations: s.MaxIterations}, pkgerrors.Wrapf(ErrMaxIterations,
		"%d iterations, last x = %g, residual = %g", s.MaxIterations, x, fx)
}

// derivative uses a one-sided formula near the bracket edges so f is never
// evaluated outside b.
func derivative(f Func, x float64, b Bracket, step float64) float64 {
	formula := fd.Central
	switch {
	case x-step < b.Lo:
		formula = fd.Forward
	case x+step > b.Hi:
		formula = fd.Backward
	}
	return fd.Derivative(f, x, &fd.Settings{
		Formula: formula,
		Step:    step,
	})
}
