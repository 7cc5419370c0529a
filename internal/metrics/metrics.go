// ABOUTME: Prometheus collectors for the realtime synchronization core.
// ABOUTME: Registered on the default registry; served by the CLI when metrics are enabled.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coven_chat_connection_state",
			Help: "Current connection state (0 idle, 1 connecting, 2 connected, 3 reconnecting, 4 disconnected)",
		},
	)

	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coven_chat_reconnect_attempts_total",
			Help: "Total reconnection attempts scheduled",
		},
	)

	ConnectivityChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coven_chat_connectivity_changes_total",
			Help: "Total connectivity-changed notifications",
		},
		[]string{"connected"}, // "true" or "false"
	)

	// Frame metrics
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coven_chat_frames_total",
			Help: "Total inbound frames by classification",
		},
		[]string{"kind"},
	)

	// Store metrics
	MessagesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coven_chat_messages_merged_total",
			Help: "Total push-delivered messages merged into conversation logs",
		},
		[]string{"result"}, // "appended" or "duplicate"
	)

	HistoryLoads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coven_chat_history_loads_total",
			Help: "Total bulk history loads applied",
		},
	)

	// Outbound metrics
	SubmitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coven_chat_submits_total",
			Help: "Total outbound message submissions by result",
		},
		[]string{"result"}, // "sent", "not_connected", "invalid", "error"
	)
)
