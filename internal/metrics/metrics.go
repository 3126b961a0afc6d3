package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Broadcast Metrics
var (
	// DeliveriesTotal tracks per-recipient delivery attempts by outcome
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igrelay_broadcast_deliveries_total",
			Help: "Broadcast delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	// BroadcastsTotal tracks finished broadcasts by result (completed/canceled/empty)
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igrelay_broadcasts_total",
			Help: "Finished broadcasts by result",
		},
		[]string{"result"},
	)

	// BroadcastInProgress is 1 while a broadcast is running
	BroadcastInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "igrelay_broadcast_in_progress",
			Help: "1 while a broadcast is running",
		},
	)

	// BroadcastDuration tracks wall time of a full broadcast in seconds
	BroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "igrelay_broadcast_duration_seconds",
			Help:    "Broadcast duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
	)
)

// Registry Metrics
var (
	// RegistrySize tracks the number of known recipients
	RegistrySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "igrelay_registry_recipients",
			Help: "Number of recipients in the registry",
		},
	)

	// RegistryPersistErrors tracks failed writes of the registry record
	RegistryPersistErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "igrelay_registry_persist_errors_total",
			Help: "Failed writes of the registry record",
		},
	)
)

// Downloader Metrics
var (
	// DownloaderRequestsTotal tracks extraction API requests by status
	DownloaderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igrelay_downloader_requests_total",
			Help: "Extraction API requests by status",
		},
		[]string{"status"},
	)

	// DownloaderRequestDuration tracks extraction API latency in seconds
	DownloaderRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "igrelay_downloader_request_duration_seconds",
			Help:    "Extraction API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "igrelay_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Command Metrics
var (
	// CommandsTotal tracks handled bot commands by name and status
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igrelay_commands_total",
			Help: "Handled bot commands by command and status",
		},
		[]string{"command", "status"},
	)
)
