package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the realtime-plane instrumentation.
// A nil *Metrics is valid and records nothing, so tests can construct hubs
// and gateways without a registry.
type Metrics struct {
	Mutations   *prometheus.CounterVec
	Broadcasts  prometheus.Counter
	Dropped     prometheus.Counter
	Malformed   prometheus.Counter
	Connections prometheus.Gauge
}

// NewMetrics constructs and registers the realtime collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatsync_mutations_total",
			Help: "Committed store mutations by kind.",
		}, []string{"kind"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_broadcasts_total",
			Help: "Mutation events fanned out to the broadcast set.",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_broadcast_dropped_total",
			Help: "Per-connection deliveries dropped under backpressure.",
		}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatsync_malformed_requests_total",
			Help: "Inbound frames dropped as malformed.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatsync_open_connections",
			Help: "Currently open websocket connections.",
		}),
	}
	reg.MustRegister(m.Mutations, m.Broadcasts, m.Dropped, m.Malformed, m.Connections)
	return m
}

func (m *Metrics) mutation(kind string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(kind).Inc()
}

func (m *Metrics) broadcast() {
	if m == nil {
		return
	}
	m.Broadcasts.Inc()
}

func (m *Metrics) dropped() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

func (m *Metrics) malformed() {
	if m == nil {
		return
	}
	m.Malformed.Inc()
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}
