// Package metrics holds the Prometheus collectors for the humidex daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "humidex"

// Metrics holds the Prometheus counters and gauges for the daemon.
type Metrics struct {
	// Refreshes counts recomputations. labels: outcome
	Refreshes *prometheus.CounterVec
	// Humidex is the latest unrounded humidex. labels: registration
	Humidex *prometheus.GaugeVec
	// Registrations is the number of active bindings.
	Registrations prometheus.Gauge

	// StatestreamMessages counts inbound messages. labels: attribute={state,unit,ignored}
	StatestreamMessages *prometheus.CounterVec
	// PublishErrors counts failed publishes. labels: kind={entity,discovery,clear,system}
	PublishErrors *prometheus.CounterVec
	// BufferedMessages is the number of messages held while disconnected.
	BufferedMessages prometheus.Gauge
	// BrokerConnected is 1 while the MQTT connection is up.
	BrokerConnected prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Refreshes,
		m.Humidex,
		m.Registrations,
		m.StatestreamMessages,
		m.PublishErrors,
		m.BufferedMessages,
		m.BrokerConnected,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Derived state recomputations by outcome.",
		}, []string{"outcome"}),
		Humidex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "value_celsius",
			Help:      "Latest humidex per registration; absent while unavailable.",
		}, []string{"registration"}),
		Registrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registrations",
			Help:      "Number of active registrations.",
		}),
		StatestreamMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statestream_messages_total",
			Help:      "Inbound statestream messages by attribute.",
		}, []string{"attribute"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed MQTT publishes by kind.",
		}, []string{"kind"}),
		BufferedMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_messages",
			Help:      "Messages held in the offline buffer.",
		}),
		BrokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "broker_connected",
			Help:      "1 when connected to the MQTT broker, 0 otherwise.",
		}),
	}
}
