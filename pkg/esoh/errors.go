package esoh

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when Inputs, the OCP curves or the
	// temperature are unusable. It is raised before any root search.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInfeasibleVoltageWindow is returned when a voltage limit cannot be
	// reached at any stoichiometry in [0, 1].
	ErrInfeasibleVoltageWindow = errors.New("infeasible voltage window")

	// ErrSolverDidNotConverge is returned when a root search stops without
	// meeting the residual tolerance.
	ErrSolverDidNotConverge = errors.New("solver did not converge")
)

// Step names a stage of the solve.
type Step string

const (
	StepMaximumVoltage Step = "x100"
	StepMinimumVoltage Step = "capacity"
)

// SolveError reports which stage failed and where the iteration stopped.
// errors.Is matches both the error kind and the root finder's own error.
type SolveError struct {
	Step      Step
	Kind      error
	LastValue float64
	Residual  float64
	Err       error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("%s: solving for %s (last value %g, residual %g): %v", e.Kind, e.Step, e.LastValue, e.Residual, e.Err)
}

func (e *SolveError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
