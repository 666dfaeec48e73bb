// Package ocp provides named open-circuit potential curves.
package ocp

import (
	"errors"
	"math"
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/esoh/pkg/esoh"
)

const (
	GraphiteMohtat2020 = "graphite_mohtat2020"
	NMCMohtat2020      = "nmc_mohtat2020"
)

// ErrNotFound is returned when no curve is registered under a name.
var ErrNotFound = errors.New("ocp curve not found")

// Electrode tells which side of the cell a curve belongs to.
type Electrode string

const (
	Negative Electrode = "negative"
	Positive Electrode = "positive"
)

// Curve is a registered open-circuit potential function.
type Curve struct {
	Name        string       `json:"name"`
	Electrode   Electrode    `json:"electrode"`
	Description string       `json:"description"`
	Func        esoh.OCPFunc `json:"-"`
}

var (
	mu     sync.RWMutex
	curves = map[string]Curve{}
)

func init() {
	for _, c := range []Curve{
		{
			Name:        GraphiteMohtat2020,
			Electrode:   Negative,
			Description: "Graphite, Peyman MPM fit (Mohtat et al. 2020)",
			Func:        graphitePeymanMPM,
		},
		{
			Name:        NMCMohtat2020,
			Electrode:   Positive,
			Description: "NMC, Peyman MPM fit (Mohtat et al. 2020)",
			Func:        nmcPeymanMPM,
		},
	} {
		if err := Register(c); err != nil {
			panic(err)
		}
	}
}

// Register adds a curve. Names must be unique.
func Register(c Curve) error {
	if c.Name == "" {
		return pkgerrors.New("curve name is empty")
	}
	if c.Func == nil {
		return pkgerrors.Errorf("curve %s has no function", c.Name)
	}
	if c.Electrode != Negative && c.Electrode != Positive {
		return pkgerrors.Errorf("curve %s has unknown electrode %q", c.Name, c.Electrode)
	}

	mu.Lock()
	defer mu.Unlock()

	if _, ok := curves[c.Name]; ok {
		return pkgerrors.Errorf("curve %s is already registered", c.Name)
	}
	curves[c.Name] = c

	return nil
}

// Lookup returns the curve registered under name.
func Lookup(name string) (Curve, error) {
	mu.RLock()
	defer mu.RUnlock()

	c, ok := curves[name]
	if !ok {
		return Curve{}, pkgerrors.Wrapf(ErrNotFound, "%q", name)
	}
	return c, nil
}

// Curves returns all registered curves sorted by name.
func Curves() []Curve {
	mu.RLock()
	defer mu.RUnlock()

	ret := make([]Curve, 0, len(curves))
	for _, c := range curves {
		ret = append(ret, c)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })

	return ret
}

// Names returns the sorted names of all registered curves.
func Names() []string {
	cs := Curves()
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

// Pair looks up a negative and a positive curve and checks that each one
// belongs to the right electrode.
func Pair(negative, positive string) (esoh.OCP, error) {
	n, err := Lookup(negative)
	if err != nil {
		return esoh.OCP{}, err
	}
	if n.Electrode != Negative {
		return esoh.OCP{}, pkgerrors.Wrapf(esoh.ErrInvalidInput, "curve %s is a %s electrode curve, expected negative", n.Name, n.Electrode)
	}

	p, err := Lookup(positive)
	if err != nil {
		return esoh.OCP{}, err
	}
	if p.Electrode != Positive {
		return esoh.OCP{}, pkgerrors.Wrapf(esoh.ErrInvalidInput, "curve %s is a %s electrode curve, expected positive", p.Name, p.Electrode)
	}

	return esoh.OCP{Negative: n.Func, Positive: p.Func}, nil
}

// Sample is one point of a tabulated curve.
type Sample struct {
	Stoichiometry float64 `json:"stoichiometry"`
	Potential     float64 `json:"potential"`
}

// MaxTablePoints bounds the size of a Table.
const MaxTablePoints = 10000

// Table evaluates c at points evenly spaced stoichiometries from 0 to 1.
// points is clamped to [2, MaxTablePoints].
func Table(c Curve, points int, temperature float64) []Sample {
	points = min(max(points, 2), MaxTablePoints)

	ret := make([]Sample, points)
	for i := range ret {
		sto := float64(i) / float64(points-1)
		ret[i] = Sample{
			Stoichiometry: sto,
			Potential:     c.Func(sto, temperature),
		}
	}
	return ret
}

// graphitePeymanMPM is the graphite curve of the Mohtat 2020 parameter set.
// It does not depend on temperature.
func graphitePeymanMPM(sto, _ float64) float64 {
	return 0.063 +
		0.8*math.Exp(-75*(sto+0.001)) -
		0.0120*math.Tanh((sto-0.127)/0.016) -
		0.0118*math.Tanh((sto-0.155)/0.016) -
		0.0035*math.Tanh((sto-0.220)/0.020) -
		0.0095*math.Tanh((sto-0.190)/0.013) -
		0.0145*math.Tanh((sto-0.490)/0.020) -
		0.0800*math.Tanh((sto-1.030)/0.055)
}

// nmcPeymanMPM is the NMC curve of the Mohtat 2020 parameter set.
// It does not depend on temperature.
func nmcPeymanMPM(sto, _ float64) float64 {
	return 4.3452 -
		1.6518*sto +
		1.6225*sto*sto -
		2.0843*math.Pow(sto, 3) +
		3.5146*math.Pow(sto, 4) -
		2.2166*math.Pow(sto, 5) -
		0.5623e-4*math.Exp(109.451*sto-100.006)
}
