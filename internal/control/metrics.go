package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

// Metrics holds the Prometheus collectors for the control loop.
// A nil *Metrics records nothing.
type Metrics struct {
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	failures      *prometheus.CounterVec
	actuations    *prometheus.CounterVec
	temperature   *prometheus.GaugeVec
}

// NewMetrics creates the loop collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fermentwatch_cycles_total",
			Help: "Control cycles run.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fermentwatch_cycle_duration_seconds",
			Help:    "Wall time of one control cycle.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fermentwatch_project_failures_total",
			Help: "Per-project failures by processing stage.",
		}, []string{"stage"}),
		actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fermentwatch_actuations_total",
			Help: "Outlet state changes by new state and source.",
		}, []string{"state", "source"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fermentwatch_project_temperature_celsius",
			Help: "Last temperature read for a project.",
		}, []string{"project_id"}),
	}

	for _, c := range []prometheus.Collector{m.cycles, m.cycleDuration, m.failures, m.actuations, m.temperature} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) failure(stage string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(stage).Inc()
}

func (m *Metrics) actuation(on bool, source telemetry.Source) {
	if m == nil {
		return
	}
	m.actuations.WithLabelValues(telemetry.OutletStateName(on), string(source)).Inc()
}

func (m *Metrics) observeTemperature(projectID string, value float64) {
	if m == nil {
		return
	}
	m.temperature.WithLabelValues(projectID).Set(value)
}
