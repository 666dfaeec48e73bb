// Package parameters holds named cell definitions: the eSOH inputs together
// with the open-circuit potential curves they were fitted with.
package parameters

import (
	"errors"
	"math"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/ocp"
)

const Mohtat2020 = "Mohtat2020"

// ErrNotFound is returned when no parameter set has the requested name.
var ErrNotFound = errors.New("parameter set not found")

// Set is a named cell definition.
type Set struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Inputs      esoh.Inputs `json:"inputs"`
	NegativeOCP string      `json:"negativeOcp"`
	PositiveOCP string      `json:"positiveOcp"`
	// ReferenceTemperature in K. Zero means esoh.DefaultReferenceTemperature.
	ReferenceTemperature float64 `json:"referenceTemperature,omitempty"`
}

// Temperature returns the reference temperature, falling back to the default.
func (s Set) Temperature() float64 {
	if s.ReferenceTemperature <= 0 {
		return esoh.DefaultReferenceTemperature
	}
	return s.ReferenceTemperature
}

// OCP resolves the curve names of s.
func (s Set) OCP() (esoh.OCP, error) {
	o, err := ocp.Pair(s.NegativeOCP, s.PositiveOCP)
	if err != nil {
		return esoh.OCP{}, pkgerrors.Wrapf(err, "parameter set %s", s.Name)
	}
	return o, nil
}

// Validate checks the name, the inputs, the curves and the temperature.
func (s Set) Validate() error {
	if s.Name == "" {
		return pkgerrors.Wrap(esoh.ErrInvalidInput, "parameter set name is empty")
	}
	if err := s.Inputs.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "parameter set %s", s.Name)
	}
	if math.IsNaN(s.ReferenceTemperature) || s.ReferenceTemperature < 0 {
		return pkgerrors.Wrapf(esoh.ErrInvalidInput, "parameter set %s: reference temperature must not be negative", s.Name)
	}
	if _, err := s.OCP(); err != nil {
		return err
	}
	return nil
}

// Capacities of the Mohtat 2020 cell are derived from its electrode geometry
// and maximum lithium concentrations.
var builtin = map[string]Set{
	Mohtat2020: {
		Name:        Mohtat2020,
		Description: "NMC/graphite pouch cell (Mohtat et al. 2020)",
		Inputs: esoh.Inputs{
			MinimumVoltage:    2.8,
			MaximumVoltage:    4.2,
			NegativeCapacity:  5.9733,
			PositiveCapacity:  5.7958,
			TotalLithiumMoles: 0.19299,
		},
		NegativeOCP:          ocp.GraphiteMohtat2020,
		PositiveOCP:          ocp.NMCMohtat2020,
		ReferenceTemperature: esoh.DefaultReferenceTemperature,
	},
}

// Get returns the built-in set called name.
func Get(name string) (Set, error) {
	s, ok := builtin[name]
	if !ok {
		return Set{}, pkgerrors.Wrapf(ErrNotFound, "%q", name)
	}
	return s, nil
}

// Builtin returns all built-in sets sorted by name.
func Builtin() []Set {
	ret := make([]Set, 0, len(builtin))
	for _, s := range builtin {
		ret = append(ret, s)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// Names returns the sorted names of the built-in sets.
func Names() []string {
	sets := Builtin()
	names := make([]string, len(sets))
	for i, s := range sets {
		names[i] = s.Name
	}
	return names
}
