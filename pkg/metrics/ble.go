package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BLE-specific metrics, registered with promauto.
var (
	// BLEConnectAttempts counts every attempt EstablishConnection makes,
	// labeled by the resulting ErrorClass on failure or "success".
	BLEConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comx_ble_connect_attempts_total",
		Help: "The total number of BLE connection attempts by outcome",
	}, []string{"adapter", "outcome"})

	// BLEConnectDuration observes the wall time of a whole
	// EstablishConnection call, success or failure.
	BLEConnectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "comx_ble_connect_duration_seconds",
		Help:    "Duration of EstablishConnection calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"adapter", "outcome"})

	// BLEFreeSlots reports the last-known free connection slot count per
	// adapter, from SlotManager.Diagnostics.
	BLEFreeSlots = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "comx_ble_adapter_free_slots",
		Help: "Free BLE connection slots per adapter",
	}, []string{"adapter"})

	// BLEStaleDisconnects counts stale connections closed by the reaper.
	BLEStaleDisconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "comx_ble_stale_disconnects_total",
		Help: "The total number of stale BLE connections closed before a fresh attempt",
	}, []string{"adapter"})
)

// ObserveAttempt records the outcome of a single EstablishConnection
// call against BLEConnectAttempts and BLEConnectDuration.
func ObserveAttempt(adapter, outcome string, seconds float64) {
	BLEConnectAttempts.WithLabelValues(adapter, outcome).Inc()
	BLEConnectDuration.WithLabelValues(adapter, outcome).Observe(seconds)
}

// SetFreeSlots publishes a SlotManager diagnostics snapshot.
func SetFreeSlots(adapter string, free int) {
	BLEFreeSlots.WithLabelValues(adapter).Set(float64(free))
}

// IncStaleDisconnect records one stale connection closed by the reaper.
func IncStaleDisconnect(adapter string) {
	BLEStaleDisconnects.WithLabelValues(adapter).Inc()
}
