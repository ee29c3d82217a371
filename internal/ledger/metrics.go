package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RelayMetrics tracks outbox delivery.
type RelayMetrics struct {
	Published      prometheus.Counter
	PublishFailure prometheus.Counter
}

// NewRelayMetrics registers relay metrics on reg, or on the default
// registerer when reg is nil.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &RelayMetrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_outbox_published_total",
			Help: "Ledger entries published downstream",
		}),
		PublishFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_outbox_publish_failures_total",
			Help: "Failed outbox publish rounds",
		}),
	}
}

func (m *RelayMetrics) addPublished(n int) {
	if m != nil {
		m.Published.Add(float64(n))
	}
}

func (m *RelayMetrics) incrementFailure() {
	if m != nil {
		m.PublishFailure.Inc()
	}
}
