// Package metrics holds the Prometheus collectors for the conversion
// pipeline, the image fetcher, the usage store and the periodic stats job.
//
// Label sets are small and closed:
//
//   - type:    conversion type tag (image_to_gif, gif_passthrough)
//   - outcome: ok | error | rejected | rate_limited
//   - op:      store operation name (record_conversion, top_users, ...)
//
// All collectors are registered with the default registry in init and are
// exposed by the ops server on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Conversions counts conversion attempts by type and outcome.
	Conversions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_conversions_total",
			Help: "Total number of conversion attempts.",
		},
		[]string{"type", "outcome"},
	)

	// ConversionDuration observes end-to-end conversion latency in seconds.
	ConversionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gifbot_conversion_duration_seconds",
			Help:    "Duration of conversions in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"type"},
	)

	// Fetches counts probe and download results.
	Fetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_fetch_total",
			Help: "Image fetch attempts by kind (probe, download) and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// DownloadedBytes observes the size of successful downloads.
	DownloadedBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "gifbot_download_size_bytes",
			Help: "Size of downloaded source images in bytes.",
			Buckets: []float64{
				10 << 10, 50 << 10, 100 << 10, 250 << 10, 500 << 10, // 10..500KiB
				1 << 20, 2 << 20, 5 << 20, 10 << 20, 25 << 20, // 1..25MiB
			},
		},
	)

	// StoreErrors counts failed usage store operations by name.
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_store_errors_total",
			Help: "Usage store operations that returned an error.",
		},
		[]string{"op"},
	)

	// StatsJobRuns counts periodic stats display runs by outcome
	// (ok, error, skipped).
	StatsJobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_stats_job_runs_total",
			Help: "Periodic stats display runs by outcome.",
		},
		[]string{"outcome"},
	)

	// Commands counts text and context-menu commands by name.
	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gifbot_commands_total",
			Help: "Handled bot commands by name.",
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(
		Conversions, ConversionDuration,
		Fetches, DownloadedBytes,
		StoreErrors, StatsJobRuns, Commands,
	)
}
