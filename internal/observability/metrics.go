package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the realtime core's operational counters.
type Metrics struct {
	// ActiveConnections tracks currently open websocket connections.
	ActiveConnections prometheus.Gauge

	// OnlineUsers tracks users with at least one live connection.
	OnlineUsers prometheus.Gauge

	// EventsDelivered counts outbound events handed to a connection.
	// Labels: event
	EventsDelivered *prometheus.CounterVec

	// DeliveryFailures counts per-connection write failures during fan-out.
	// Labels: event
	DeliveryFailures *prometheus.CounterVec

	// PresenceBroadcasts counts genuine online/offline transitions broadcast.
	// Labels: status (online|offline)
	PresenceBroadcasts *prometheus.CounterVec

	// CallsInitiated counts call setup attempts.
	// Labels: outcome (ringing|callee_offline)
	CallsInitiated *prometheus.CounterVec

	// MessagesPersisted counts append attempts against the message store.
	// Labels: status (success|error)
	MessagesPersisted *prometheus.CounterVec
}

// NewMetrics registers the core's metrics on the given registerer. Passing nil
// uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatapp_active_connections",
			Help: "Number of currently open websocket connections.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatapp_online_users",
			Help: "Number of users with at least one live connection.",
		}),
		EventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatapp_events_delivered_total",
			Help: "Outbound events delivered to individual connections.",
		}, []string{"event"}),
		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatapp_delivery_failures_total",
			Help: "Per-connection write failures during event fan-out.",
		}, []string{"event"}),
		PresenceBroadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatapp_presence_broadcasts_total",
			Help: "Presence transitions broadcast to connected users.",
		}, []string{"status"}),
		CallsInitiated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatapp_calls_initiated_total",
			Help: "Call setup attempts by outcome.",
		}, []string{"outcome"}),
		MessagesPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatapp_messages_persisted_total",
			Help: "Message append attempts against the durable store.",
		}, []string{"status"}),
	}
}
