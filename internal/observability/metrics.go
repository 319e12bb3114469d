package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter: Total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "airbridge_http_requests_total",
			Help: "The total number of processed HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Histogram: Response time
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airbridge_http_request_duration_seconds",
			Help:    "The latency of the HTTP requests",
			Buckets: prometheus.DefBuckets, // .005s to 10s
		},
		[]string{"method", "path"},
	)

	// Gauge: Active playback sessions, one label value per device.
	ActivePlaybackSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "airbridge_active_playback_sessions",
			Help: "Whether a device is currently playing (1) or not (0)",
		},
		[]string{"device_id"},
	)

	// Histogram: DSP graph processing time per buffer.
	DSPProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "airbridge_dsp_processing_duration_seconds",
			Help:    "Time spent running one buffer through the DSP graph",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us .. ~100ms
		},
		[]string{"device_id"},
	)

	// Counters: AirPlay scanner discovery events.
	ScannerDevicesFoundTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airbridge_scanner_devices_found_total",
			Help: "The total number of AirPlay devices newly discovered",
		},
	)
	ScannerDevicesLostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "airbridge_scanner_devices_lost_total",
			Help: "The total number of AirPlay devices removed after the offline threshold",
		},
	)
)
