package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for migration attempts.
const (
	OutcomeSuccess         = "success"
	OutcomeFailed          = "failed"
	OutcomeAlreadyMigrated = "already_migrated"
	OutcomeForbidden       = "forbidden"
	OutcomeInvalid         = "invalid"
)

// Metrics provides observability for the migration engine.
type Metrics struct {
	Attempts *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	Slow     prometheus.Counter
}

// New registers migration metrics on reg, or on the default registerer when
// reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "migration_attempts_total",
			Help: "Migration attempts by outcome",
		}, []string{"status"}),

		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "migration_duration_seconds",
			Help:    "Duration of migration attempts by outcome",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
		}, []string{"status"}),

		Slow: factory.NewCounter(prometheus.CounterOpts{
			Name: "migration_slow_total",
			Help: "Migrations that ran past the progress threshold",
		}),
	}
}

// ObserveAttempt records one attempt's outcome and duration.
func (m *Metrics) ObserveAttempt(outcome string, d time.Duration) {
	if m != nil {
		m.Attempts.WithLabelValues(outcome).Inc()
		m.Duration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// IncrementSlow records a migration that crossed the progress threshold.
func (m *Metrics) IncrementSlow() {
	if m != nil {
		m.Slow.Inc()
	}
}
