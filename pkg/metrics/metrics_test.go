package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, func() float64 { return 3 })

	start := time.Now()
	m.ObserveSolve(start, ResultOK)
	m.ObserveSolve(start, ResultOK)
	m.ObserveSolve(start, ResultInfeasible)
	m.ObserveSweep(start, 12)
	m.ObserveHealth(0.87)

	require.InDelta(t, 2, testutil.ToFloat64(m.SolvesTotal.WithLabelValues(ResultOK)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.SolvesTotal.WithLabelValues(ResultInfeasible)), 0)
	require.InDelta(t, 12, testutil.ToFloat64(m.SweepPointsTotal), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.HealthSnapshots), 0)
	require.InDelta(t, 0.87, testutil.ToFloat64(m.HealthRetention), 1e-12)
	require.InDelta(t, 3, testutil.ToFloat64(m.EventSubscribers), 0)
	require.Equal(t, 3, testutil.CollectAndCount(m.SolveDuration)+testutil.CollectAndCount(m.SweepDuration)+testutil.CollectAndCount(m.HealthRetention))
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg, nil)
	require.Panics(t, func() { New(reg, nil) })
}
