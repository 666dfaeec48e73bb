package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values for SolvesTotal.
const (
	ResultOK             = "ok"
	ResultInvalidInput   = "invalid_input"
	ResultInfeasible     = "infeasible"
	ResultNotConverged   = "not_converged"
	ResultUnknownFailure = "error"
)

// Metrics are the daemon's prometheus collectors.
type Metrics struct {
	SolvesTotal      *prometheus.CounterVec
	SolveDuration    prometheus.Histogram
	SweepPointsTotal prometheus.Counter
	SweepDuration    prometheus.Histogram
	HealthSnapshots  prometheus.Counter
	HealthRetention  prometheus.Gauge
	RateLimitedTotal prometheus.Counter
	EventSubscribers prometheus.GaugeFunc
}

// New registers all collectors on reg. subscribers reports the number of
// live event subscriptions.
func New(reg prometheus.Registerer, subscribers func() float64) *Metrics {
	factory := promauto.With(reg)
	if subscribers == nil {
		subscribers = func() float64 { return 0 }
	}

	return &Metrics{
		SolvesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "esoh_solves_total",
			Help: "Total number of eSOH solves by result",
		}, []string{"result"}),
		SolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "esoh_solve_duration_seconds",
			Help:    "Duration of single eSOH solves",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		SweepPointsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "esoh_sweep_points_total",
			Help: "Total number of degradation sweep points solved",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "esoh_sweep_duration_seconds",
			Help:    "Duration of degradation sweeps",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		HealthSnapshots: factory.NewCounter(prometheus.CounterOpts{
			Name: "esoh_health_snapshots_total",
			Help: "Total number of host battery snapshots taken",
		}),
		HealthRetention: factory.NewGauge(prometheus.GaugeOpts{
			Name: "esoh_host_battery_retention_ratio",
			Help: "Full charge capacity over design capacity of the host battery",
		}),
		RateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "esoh_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
		EventSubscribers: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "esoh_event_subscribers",
			Help: "Number of live server-sent event subscriptions",
		}, subscribers),
	}
}

// ObserveSolve records a solve result and its duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSolve(start time.Time, result string) {
	m.SolvesTotal.WithLabelValues(result).Inc()
	m.SolveDuration.Observe(time.Since(start).Seconds())
}

// ObserveSweep records a finished sweep.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSweep(start time.Time, points int) {
	m.SweepPointsTotal.Add(float64(points))
	m.SweepDuration.Observe(time.Since(start).Seconds())
}

// ObserveHealth records a host battery snapshot.
func (m *Metrics) ObserveHealth(retention float64) {
	m.HealthSnapshots.Inc()
	m.HealthRetention.Set(retention)
}
