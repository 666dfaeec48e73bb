package sweep

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/parameters"
)

func TestRunOrderAndCapacityFade(t *testing.T) {
	base, err := parameters.Get(parameters.Mohtat2020)
	require.NoError(t, err)

	g := Grid{
		LLI:         []float64{0, 0.05, 0.1},
		LAMNegative: []float64{0, 0.1},
		Workers:     2,
	}
	points, err := Run(context.Background(), esoh.NewSolver(esoh.Options{}), base, g)
	require.NoError(t, err)
	require.Len(t, points, g.Size())

	i := 0
	for _, lli := range g.LLI {
		for _, lamN := range g.LAMNegative {
			p := points[i]
			require.Equal(t, lli, p.LLI)
			require.Equal(t, lamN, p.LAMNegative)
			require.Zero(t, p.LAMPositive)
			require.Empty(t, p.Error)
			require.NotNil(t, p.Outputs)
			i++
		}
	}

	// Same LAM, more lithium lost: capacity must drop.
	for j := 0; j+len(g.LAMNegative) < len(points); j++ {
		require.Less(t, points[j+len(g.LAMNegative)].Outputs.CellCapacity, points[j].Outputs.CellCapacity)
	}

	fresh, err := esoh.Solve(context.Background(), base.Inputs, mustOCP(t, base), base.Temperature())
	require.NoError(t, err)
	require.Equal(t, fresh, *points[0].Outputs)
}

func TestRunRecordsPointErrors(t *testing.T) {
	base, err := parameters.Get(parameters.Mohtat2020)
	require.NoError(t, err)

	points, err := Run(context.Background(), esoh.NewSolver(esoh.Options{}), base, Grid{LLI: []float64{0, 0.99}})
	require.NoError(t, err)
	require.Len(t, points, 2)

	require.NotNil(t, points[0].Outputs)
	require.Nil(t, points[1].Outputs)
	require.Contains(t, points[1].Error, esoh.ErrInfeasibleVoltageWindow.Error())
}

func TestRunRejectsInvalidGrid(t *testing.T) {
	base, err := parameters.Get(parameters.Mohtat2020)
	require.NoError(t, err)

	for _, g := range []Grid{
		{LLI: []float64{1}},
		{LAMNegative: []float64{-0.1}},
		{LAMPositive: []float64{0.2}, Workers: -1},
	} {
		_, err := Run(context.Background(), esoh.NewSolver(esoh.Options{}), base, g)
		require.ErrorIs(t, err, esoh.ErrInvalidInput)
	}
}

func TestRunCanceled(t *testing.T) {
	base, err := parameters.Get(parameters.Mohtat2020)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = Run(ctx, esoh.NewSolver(esoh.Options{}), base, Grid{LLI: []float64{0, 0.1}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestGridPointsEmptyAxes(t *testing.T) {
	base, err := parameters.Get(parameters.Mohtat2020)
	require.NoError(t, err)

	points := Grid{}.Points(base.Inputs)
	require.Len(t, points, 1)
	require.Equal(t, base.Inputs, points[0].Inputs)

	d := Degrade(base.Inputs, 0.1, 0.2, 0.5)
	require.InDelta(t, base.Inputs.TotalLithiumMoles*0.9, d.TotalLithiumMoles, 1e-12)
	require.InDelta(t, base.Inputs.NegativeCapacity*0.8, d.NegativeCapacity, 1e-12)
	require.InDelta(t, base.Inputs.PositiveCapacity*0.5, d.PositiveCapacity, 1e-12)
}

func mustOCP(t *testing.T, s parameters.Set) esoh.OCP {
	t.Helper()
	o, err := s.OCP()
	require.NoError(t, err)
	return o
}

func TestGridValidateSize(t *testing.T) {
	axis := func(n int) []float64 { return make([]float64, n) }

	tests := []struct {
		name    string
		g       Grid
		wantErr bool
	}{
		{name: "empty", g: Grid{}},
		{name: "at limit", g: Grid{LLI: axis(100), LAMNegative: axis(100)}},
		{name: "product over limit", g: Grid{LLI: axis(100), LAMNegative: axis(100), LAMPositive: axis(2)}, wantErr: true},
		{name: "single axis over limit", g: Grid{LAMPositive: axis(MaxGridPoints + 1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, esoh.ErrInvalidInput)
		})
	}

	base, err := parameters.Get(parameters.Mohtat2020)
	require.NoError(t, err)
	_, err = Run(context.Background(), esoh.NewSolver(esoh.Options{}), base, Grid{LLI: axis(MaxGridPoints + 1)})
	require.ErrorIs(t, err, esoh.ErrInvalidInput)
}
