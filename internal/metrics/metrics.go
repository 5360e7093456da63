package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Currently open WebSocket connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_rooms_active",
			Help: "Rooms with at least one participant",
		},
	)

	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Chat messages stamped and broadcast",
		},
	)

	EphemeralEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_ephemeral_events_total",
			Help: "Drawing/canvas passthrough events relayed",
		},
		[]string{"kind"},
	)

	JoinRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_join_requests_total",
			Help: "Join request outcomes",
		},
		[]string{"outcome"}, // pending, approved, rejected, room_not_found, admin_not_found, admin_disconnected
	)

	DroppedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dropped_frames_total",
			Help: "Inbound frames dropped without a client-visible error",
		},
		[]string{"reason"},
	)

	SlowConsumerEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_consumer_evictions_total",
			Help: "Connections evicted because their send buffer filled",
		},
	)
)
