package esoh

import (
	"math"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// Faraday is the Faraday constant in C/mol.
	Faraday = 96485.0

	// DefaultReferenceTemperature is 25 degC in K.
	DefaultReferenceTemperature = 298.15
)

// OCPFunc returns the open-circuit potential (V) of an electrode at the given
// stoichiometry and temperature (K). It must be single valued and monotonic
// over [0, 1].
type OCPFunc func(stoichiometry, temperature float64) float64

// OCP holds the open-circuit potential curves of both electrodes.
type OCP struct {
	Negative OCPFunc
	Positive OCPFunc
}

// Voltage returns the open-circuit cell voltage at stoichiometries x
// (negative) and y (positive).
func (o OCP) Voltage(x, y, temperature float64) float64 {
	return o.Positive(y, temperature) - o.Negative(x, temperature)
}

// Inputs are the cell-level quantities the eSOH solve starts from.
// Capacities are in A.h, voltages in V and lithium in mol.
type Inputs struct {
	MinimumVoltage    float64 `json:"minimumVoltage"`
	MaximumVoltage    float64 `json:"maximumVoltage"`
	NegativeCapacity  float64 `json:"negativeCapacity"`
	PositiveCapacity  float64 `json:"positiveCapacity"`
	TotalLithiumMoles float64 `json:"totalLithiumMoles"`
}

// LithiumCapacity returns the cyclable lithium expressed as charge, in A.h.
func (in Inputs) LithiumCapacity() float64 {
	return in.TotalLithiumMoles * Faraday / 3600
}

// Validate checks that every value is finite and positive and that the
// voltage window is ordered.
func (in Inputs) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"minimum voltage", in.MinimumVoltage},
		{"maximum voltage", in.MaximumVoltage},
		{"negative electrode capacity", in.NegativeCapacity},
		{"positive electrode capacity", in.PositiveCapacity},
		{"total lithium moles", in.TotalLithiumMoles},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return pkgerrors.Wrapf(ErrInvalidInput, "%s must be finite, got %g", f.name, f.value)
		}
		if f.value <= 0 {
			return pkgerrors.Wrapf(ErrInvalidInput, "%s must be positive, got %g", f.name, f.value)
		}
	}

	if in.MinimumVoltage >= in.MaximumVoltage {
		return pkgerrors.Wrapf(ErrInvalidInput, "minimum voltage %g must be below maximum voltage %g",
			in.MinimumVoltage, in.MaximumVoltage)
	}

	return nil
}

// LogrusFields returns the inputs as structured log fields.
func (in Inputs) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"minimumVoltage":    in.MinimumVoltage,
		"maximumVoltage":    in.MaximumVoltage,
		"negativeCapacity":  in.NegativeCapacity,
		"positiveCapacity":  in.PositiveCapacity,
		"totalLithiumMoles": in.TotalLithiumMoles,
	}
}

// Outputs are the stoichiometry limits at 100% and 0% state of charge and
// the resulting cell capacity (A.h).
type Outputs struct {
	X100         float64 `json:"x100"`
	Y100         float64 `json:"y100"`
	X0           float64 `json:"x0"`
	Y0           float64 `json:"y0"`
	CellCapacity float64 `json:"cellCapacity"`
}

// LogrusFields returns the outputs as structured log fields.
func (o Outputs) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"x100":         o.X100,
		"y100":         o.Y100,
		"x0":           o.X0,
		"y0":           o.Y0,
		"cellCapacity": o.CellCapacity,
	}
}

// Residuals are the governing equations evaluated at a set of outputs.
// All three are zero for an exact solution.
type Residuals struct {
	// MaximumVoltage is U_p(y100) - U_n(x100) - Vmax.
	MaximumVoltage float64 `json:"maximumVoltage"`
	// MinimumVoltage is U_p(y0) - U_n(x0) - Vmin.
	MinimumVoltage float64 `json:"minimumVoltage"`
	// LithiumBalance is x100*Cn + y100*Cp - nLi*F/3600, in A.h.
	LithiumBalance float64 `json:"lithiumBalance"`
}

// Max returns the largest residual magnitude.
func (r Residuals) Max() float64 {
	return math.Max(math.Abs(r.MaximumVoltage), math.Max(math.Abs(r.MinimumVoltage), math.Abs(r.LithiumBalance)))
}

// ComputeResiduals substitutes out back into the governing equations.
func ComputeResiduals(in Inputs, ocp OCP, temperature float64, out Outputs) Residuals {
	return Residuals{
		MaximumVoltage: ocp.Voltage(out.X100, out.Y100, temperature) - in.MaximumVoltage,
		MinimumVoltage: ocp.Voltage(out.X0, out.Y0, temperature) - in.MinimumVoltage,
		LithiumBalance: out.X100*in.NegativeCapacity + out.Y100*in.PositiveCapacity - in.LithiumCapacity(),
	}
}
