package dspclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by every client of a process.
// Series are labelled with the endpoint host of each client.
type Metrics struct {
	commandsSent   *prometheus.CounterVec
	commandErrors  *prometheus.CounterVec
	commandsQueued *prometheus.CounterVec
	queueEvictions *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	state          *prometheus.GaugeVec
	pending        *prometheus.GaugeVec
	responseTime   *prometheus.HistogramVec
}

// NewMetrics registers the client collectors on registry, or on the default
// registerer when registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	const namespace = "dspclient"

	return &Metrics{
		commandsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_sent_total",
			Help:      "Total number of commands written to the engine socket",
		}, []string{"endpoint", "command"}),

		commandErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_errors_total",
			Help:      "Total number of commands that failed",
		}, []string{"endpoint", "command", "reason"}),

		commandsQueued: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_queued_total",
			Help:      "Total number of commands queued while disconnected",
		}, []string{"endpoint", "priority"}),

		queueEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_evictions_total",
			Help:      "Total number of queued commands dropped under capacity pressure",
		}, []string{"endpoint"}),

		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Total number of scheduled reconnection attempts",
		}, []string{"endpoint"}),

		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current connection state, 1 for the active state",
		}, []string{"endpoint", "state"}),

		pending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Number of requests awaiting a response",
		}, []string{"endpoint"}),

		responseTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_seconds",
			Help:      "Time between sending a command and receiving its response",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "command"}),
	}
}

// Methods below are no-ops on a nil receiver so clients without metrics skip them.

func (m *Metrics) sent(endpoint, command string) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(endpoint, command).Inc()
}

func (m *Metrics) failed(endpoint, command, reason string) {
	if m == nil {
		return
	}
	m.commandErrors.WithLabelValues(endpoint, command, reason).Inc()
}

func (m *Metrics) queued(endpoint, priority string) {
	if m == nil {
		return
	}
	m.commandsQueued.WithLabelValues(endpoint, priority).Inc()
}

func (m *Metrics) evicted(endpoint string) {
	if m == nil {
		return
	}
	m.queueEvictions.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) reconnect(endpoint string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) stateChanged(endpoint string, from, to State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(endpoint, from.String()).Set(0)
	m.state.WithLabelValues(endpoint, to.String()).Set(1)
}

func (m *Metrics) pendingRequests(endpoint string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(endpoint).Set(float64(n))
}

func (m *Metrics) responded(endpoint, command string, seconds float64) {
	if m == nil {
		return
	}
	m.responseTime.WithLabelValues(endpoint, command).Observe(seconds)
}
