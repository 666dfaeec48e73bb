package config

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/parameters"
)

type Config interface {
	Tolerance() float64
	MaxIterations() int
	InitialX100() float64
	DefaultParameterSet() string
	HealthSchedule() string
	AllowNonRootAccess() bool
	RateLimit() float64
	RateBurst() int

	SetTolerance(float64)
	SetMaxIterations(int)
	SetInitialX100(float64)
	SetDefaultParameterSet(string)
	SetHealthSchedule(string)
	SetAllowNonRootAccess(bool)

	// Cells returns the user-defined parameter sets.
	Cells() []parameters.Set
	// PutCell adds or replaces a user-defined parameter set.
	PutCell(parameters.Set) error
	// DeleteCell removes a user-defined parameter set. It reports whether
	// the set existed.
	DeleteCell(name string) bool
	// LookupCell finds a parameter set by name. User-defined sets shadow
	// built-in ones.
	LookupCell(name string) (parameters.Set, error)

	// SolverOptions builds solver options from the configuration.
	SolverOptions() esoh.Options

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
