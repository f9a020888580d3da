package channel

import "github.com/prometheus/client_golang/prometheus"

// metrics exposes the channel's operational counters. With a nil Registerer
// the collectors still work but stay on a private registry.
type metrics struct {
	state      prometheus.Gauge
	reconnects prometheus.Counter
	queueDepth prometheus.GaugeFunc
	requests   *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, depth func() float64) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parley_channel_state",
			Help: "Current channel state (0=disconnected 1=connecting 2=connected 3=disconnecting)",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_channel_reconnects_total",
			Help: "Number of detected connection losses",
		}),
		queueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "parley_channel_inbound_queue_depth",
			Help: "Envelopes buffered on the inbound queue",
		}, depth),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_channel_requests_total",
			Help: "Requests dispatched to the directory endpoint",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_channel_request_failures_total",
			Help: "Requests answered with a protocol-level error",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.state, m.reconnects, m.queueDepth, m.requests, m.failures)
	return m
}

func (m *metrics) setState(s State) {
	m.state.Set(float64(s))
}
