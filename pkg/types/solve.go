package types

import (
	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/sweep"
)

// SolveRequest asks the daemon for one eSOH solve. ParameterSet selects a
// stored cell, the default one when empty. Inputs and the curve names, when
// present, override the corresponding fields of that cell.
// This struct is shared between the daemon and client packages.
type SolveRequest struct {
	ParameterSet string       `json:"parameterSet,omitempty"`
	Inputs       *esoh.Inputs `json:"inputs,omitempty"`
	NegativeOCP  string       `json:"negativeOcp,omitempty"`
	PositiveOCP  string       `json:"positiveOcp,omitempty"`
	// Temperature in K. Zero uses the parameter set's reference temperature.
	Temperature float64 `json:"temperature,omitempty"`
}

// SolveResponse is the result of a successful solve.
type SolveResponse struct {
	ID           string         `json:"id"`
	ParameterSet string         `json:"parameterSet"`
	Temperature  float64        `json:"temperature"`
	Inputs       esoh.Inputs    `json:"inputs"`
	Outputs      esoh.Outputs   `json:"outputs"`
	Residuals    esoh.Residuals `json:"residuals"`
}

// SweepRequest asks the daemon for a degradation sweep of a parameter set.
type SweepRequest struct {
	ParameterSet string     `json:"parameterSet,omitempty"`
	Grid         sweep.Grid `json:"grid"`
}

// SweepResponse holds every grid point in LLI, LAM negative, LAM positive
// order.
type SweepResponse struct {
	ID           string        `json:"id"`
	ParameterSet string        `json:"parameterSet"`
	Points       []sweep.Point `json:"points"`
	Failed       int           `json:"failed"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	// Kind is one of the ErrorKind values below, or empty for transport
	// level failures.
	Kind string `json:"kind,omitempty"`
	// Step names the solve step that failed, if any.
	Step string `json:"step,omitempty"`
}

// Error kinds reported by the daemon.
const (
	ErrorKindInvalidInput = "invalid_input"
	ErrorKindInfeasible   = "infeasible_voltage_window"
	ErrorKindNotConverged = "solver_did_not_converge"
	ErrorKindNotFound     = "not_found"
	ErrorKindRateLimited  = "rate_limited"
	ErrorKindInternal     = "internal"
	ErrorKindNoBattery    = "no_host_battery"
	ErrorKindNoSchedule   = "no_health_schedule"
)
