package rabbitmq

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels used by the delivery counter.
const (
	OutcomeAcked    = "acked"
	OutcomeRejected = "rejected"
	OutcomeAborted  = "aborted"
)

// Metrics holds the broker counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	published  *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	reconnects prometheus.Counter
}

// NewMetrics registers the counters on reg. A nil reg yields unregistered
// counters, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "videohub",
			Subsystem: "rabbitmq",
			Name:      "published_total",
			Help:      "Messages published, by exchange and result.",
		}, []string{"exchange", "result"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "videohub",
			Subsystem: "rabbitmq",
			Name:      "deliveries_total",
			Help:      "Deliveries settled by the consumer loop, by consumer tag and outcome.",
		}, []string{"consumer", "outcome"}),
		reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: "videohub",
			Subsystem: "rabbitmq",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts made by the supervisor.",
		}),
	}
}

func (m *Metrics) observePublish(exchange string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(exchange, result).Inc()
}

func (m *Metrics) observeDelivery(consumer, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(consumer, outcome).Inc()
}

func (m *Metrics) observeReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
