// Package metrics holds the bridge's prometheus collectors on a private
// registry, served by the HTTP status server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the bridge-wide metrics registry.
var Registry = prometheus.NewRegistry()

var (
	// LinkStatus reports each BLE link's state machine position.
	// 1 = ready, 0 = anything else. Label "link": gamepad or hub.
	LinkStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "brickdrive_link_ready",
			Help: "Whether the BLE link is in the ready state (1=ready, 0=not ready).",
		},
		[]string{"link"},
	)

	// FramesSentTotal counts drive frames written to the hub.
	// Label "kind": drive, failsafe, calibration, led.
	FramesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brickdrive_frames_sent_total",
			Help: "Total number of command frames written to the hub.",
		},
		[]string{"kind"},
	)

	// ReportsDecodedTotal counts gamepad input reports, split by outcome.
	ReportsDecodedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brickdrive_reports_decoded_total",
			Help: "Total number of gamepad input reports received.",
		},
		[]string{"outcome"}, // decoded / malformed
	)

	// SendLatency measures the acknowledged hub write round-trip.
	SendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "brickdrive_hub_send_latency_seconds",
			Help:    "Latency of acknowledged command writes to the hub.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ReconnectsTotal counts supervisor restarts per link.
	ReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brickdrive_link_reconnects_total",
			Help: "Total number of reconnect attempts per BLE link.",
		},
		[]string{"link"},
	)
)

func init() {
	Registry.MustRegister(LinkStatus)
	Registry.MustRegister(FramesSentTotal)
	Registry.MustRegister(ReportsDecodedTotal)
	Registry.MustRegister(SendLatency)
	Registry.MustRegister(ReconnectsTotal)
}
