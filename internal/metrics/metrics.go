// Package metrics holds the Prometheus collectors for the chat service.
// They are registered on the default registry and served on the service API port.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	TransportREST   = "rest"
	TransportSocket = "socket"
)

var (
	// Chat
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages persisted",
		},
		[]string{"transport"}, // "rest", "socket"
	)

	ThreadsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_threads_opened_total",
			Help: "Total number of threads created by openThread",
		},
	)

	// WebSocket
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of registered websocket connections",
		},
	)

	WSEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_events_received_total",
			Help: "Total number of client events received, by event name",
		},
		[]string{"event"},
	)

	WSBroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_broadcast_dropped_total",
			Help: "Total number of broadcast deliveries dropped because a queue was full",
		},
	)

	WSHandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_handler_errors_total",
			Help: "Total number of client events whose handler failed",
		},
		[]string{"event"},
	)
)
