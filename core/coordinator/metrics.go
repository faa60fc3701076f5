package coordinator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	registryReservations = "reservations"
	registrySessions     = "sessions"
)

var (
	operationsTotal    *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	registryCollisions *prometheus.CounterVec
	registrySize       *prometheus.GaugeVec
	lostStopEntries    prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.GaugeVec, prometheus.Counter) {
	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roaming_operations_total",
			Help: "Number of coordinated roaming operations by result",
		},
		[]string{"operation", "level", "result"},
	)
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roaming_operation_duration_seconds",
			Help:    "Runtime of coordinated roaming operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "level"},
	)
	col := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roaming_registry_collisions_total",
			Help: "Registrations rejected because the id is held by another owner",
		},
		[]string{"registry"},
	)
	size := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roaming_registry_entries",
			Help: "Entries currently held in coordinator registries",
		},
		[]string{"registry", "level"},
	)
	lost := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "roaming_remote_stop_lost_entries_total",
			Help: "Session entries removed although the remote stop failed",
		},
	)
	return ops, dur, col, size, lost
}

func init() {
	operationsTotal, operationDuration, registryCollisions, registrySize, lostStopEntries = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers coordinator metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(operationsTotal, operationDuration, registryCollisions, registrySize, lostStopEntries)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	operationsTotal, operationDuration, registryCollisions, registrySize, lostStopEntries = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

// ObserveOperation records one finished operation. It is shared with the
// authorization dispatcher so every operation lands in the same series.
func ObserveOperation(operation, level, result string, runtime time.Duration) {
	operationsTotal.WithLabelValues(operation, level, result).Inc()
	operationDuration.WithLabelValues(operation, level).Observe(runtime.Seconds())
}
