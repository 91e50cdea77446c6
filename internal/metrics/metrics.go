package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatcher metrics
var (
	// DispatcherConnectedClients tracks the number of open transport sessions
	DispatcherConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_connected_clients",
			Help: "Number of open transport sessions",
		},
	)

	// DispatcherActiveSubscriptions tracks live (connection, order) relations
	DispatcherActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_active_subscriptions",
			Help: "Number of live (connection, order) subscriptions",
		},
	)

	// DispatcherEventsTotal counts change events fanned out, by kind
	DispatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_events_total",
			Help: "Change events dispatched, by kind",
		},
		[]string{"kind"},
	)

	// DispatcherSlowClientsEvicted counts clients disconnected over a full send buffer
	DispatcherSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_slow_clients_evicted_total",
			Help: "Clients disconnected because their send buffer filled up",
		},
	)

	// DispatcherCoalescedLocations counts location pushes replaced by a newer position
	DispatcherCoalescedLocations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_coalesced_locations_total",
			Help: "Location updates coalesced because a newer position superseded them",
		},
	)
)

// Transport session metrics
var (
	// SessionAbnormalCloses counts sessions closed with a non-normal close code
	SessionAbnormalCloses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_abnormal_closes_total",
			Help: "Transport sessions closed with a non-normal close code",
		},
	)

	// SessionHeartbeatTimeouts counts sessions dropped for missing a pong
	SessionHeartbeatTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_heartbeat_timeouts_total",
			Help: "Transport sessions dropped after missing the pong grace window",
		},
	)

	// SessionMalformedMessages counts inbound frames that failed to decode
	SessionMalformedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_malformed_messages_total",
			Help: "Inbound frames discarded because they failed to decode",
		},
	)
)

// Registry metrics
var (
	// RegistryTransitionsTotal counts applied status transitions by target status
	RegistryTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_transitions_total",
			Help: "Applied status transitions by target status",
		},
		[]string{"status"},
	)

	// RegistryRejectedTransitions counts transitions refused by the state machine
	RegistryRejectedTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "registry_rejected_transitions_total",
			Help: "Status transitions refused by the state machine",
		},
	)
)

// Circuit breaker metrics (redis store)
var (
	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
