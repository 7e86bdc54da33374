// Package observability provides the Prometheus metrics for the UTM service.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all UTM Prometheus metrics.
type Metrics struct {
	// Mission metrics
	MissionsSubmitted *prometheus.CounterVec
	QueuedMissions    prometheus.Gauge

	// Conflict metrics
	ConflictsDetected prometheus.Counter
	ConflictsResolved *prometheus.CounterVec

	// Planner metrics
	PlannerIterations prometheus.Histogram
	PlannerDuration   prometheus.Histogram

	// Fleet metrics
	TelemetryUpdates  prometheus.Counter
	RegisteredDrones  prometheus.Gauge
	WebSocketClients  prometheus.Gauge
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Get returns the global metrics instance.
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = initializeMetrics()
	})
	return globalMetrics
}

func initializeMetrics() *Metrics {
	m := &Metrics{}

	m.MissionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "utm",
			Subsystem: "missions",
			Name:      "submitted_total",
			Help:      "Total delivery requests by outcome",
		},
		[]string{"outcome"},
	)

	m.QueuedMissions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "utm",
			Subsystem: "missions",
			Name:      "queued",
			Help:      "Missions waiting for an idle aircraft",
		},
	)

	m.ConflictsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "utm",
			Subsystem: "conflicts",
			Name:      "detected_total",
			Help:      "Separation violations detected",
		},
	)

	m.ConflictsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "utm",
			Subsystem: "conflicts",
			Name:      "resolved_total",
			Help:      "Conflicts resolved by method",
		},
		[]string{"method"},
	)

	m.PlannerIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "utm",
			Subsystem: "planner",
			Name:      "iterations",
			Help:      "A* iterations per planning call",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		},
	)

	m.PlannerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "utm",
			Subsystem: "planner",
			Name:      "duration_seconds",
			Help:      "Wall time per planning call",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	m.TelemetryUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "utm",
			Subsystem: "fleet",
			Name:      "telemetry_updates_total",
			Help:      "Telemetry reports accepted",
		},
	)

	m.RegisteredDrones = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "utm",
			Subsystem: "fleet",
			Name:      "registered_drones",
			Help:      "Aircraft registered with the system",
		},
	)

	m.WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "utm",
			Subsystem: "ws",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		},
	)

	return m
}
