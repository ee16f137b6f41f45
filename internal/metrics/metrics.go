package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pulsechat"

// Delivery routes
const (
	RouteLive    = "live"
	RouteNotify  = "notify"
	RouteOffline = "offline"
	RouteSender  = "sender"
)

type Metrics struct {
	MessagesSent    prometheus.Counter
	Deliveries      *prometheus.CounterVec
	PersistRetries  prometheus.Counter
	UnreadStale     prometheus.Counter
	TypingDropped   prometheus.Counter
	CascadeFailures prometheus.Counter
	Connections     prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages stored and routed.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-recipient routing decisions.",
		}, []string{"route"}),
		PersistRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_retries_total",
			Help:      "Retried conversation writes after a transient failure.",
		}),
		UnreadStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unread_stale_total",
			Help:      "Sends whose unread counters could not be persisted.",
		}),
		TypingDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "typing_dropped_total",
			Help:      "Typing events dropped by throttling or full buffers.",
		}),
		CascadeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_failures_total",
			Help:      "Conversation deletions that need manual reconciliation.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live websocket connections.",
		}),
	}

	reg.MustRegister(
		m.MessagesSent,
		m.Deliveries,
		m.PersistRetries,
		m.UnreadStale,
		m.TypingDropped,
		m.CascadeFailures,
		m.Connections,
	)
	return m
}

// NewNop returns collectors registered nowhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
