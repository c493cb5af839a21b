// Package metrics provides Prometheus instrumentation for the live-event
// core and the read-receipt path.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections tracks the number of registered websocket sessions.
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsechat_connections",
		Help: "Current number of live websocket sessions",
	})

	// OnlineUsers tracks the size of the presence snapshot.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsechat_online_users",
		Help: "Current number of distinct announced users",
	})

	// EventsTotal counts inbound live events handled by the hub, by kind.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsechat_events_total",
		Help: "Inbound live events processed by the hub",
	}, []string{"kind"})

	// DroppedEventsTotal counts events that were discarded, by reason.
	DroppedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsechat_dropped_events_total",
		Help: "Live events dropped instead of delivered",
	}, []string{"reason"}) // reason = "slow_consumer", "malformed", "unannounced", "rate_limited", "offline"

	// MessagesMarkedRead counts read receipts added by MarkChatRead.
	MessagesMarkedRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsechat_messages_marked_read_total",
		Help: "Messages that gained a reader through read reconciliation",
	})
)

func init() {
	prometheus.MustRegister(
		Connections,
		OnlineUsers,
		EventsTotal,
		DroppedEventsTotal,
		MessagesMarkedRead,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
