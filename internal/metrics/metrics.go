// Package metrics exposes Prometheus collectors for the monitoring engine.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ScansTotal counts pipeline executions by cadence and outcome.
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domainwatch_scans_total",
			Help: "Total number of domain scans executed.",
		},
		[]string{"kind", "outcome"},
	)

	// ScanDuration observes end-to-end pipeline latency per cadence.
	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "domainwatch_scan_duration_seconds",
			Help:    "Domain scan duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// NotificationsTotal counts batched notification deliveries by alert
	// type and outcome.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domainwatch_notifications_total",
			Help: "Total number of notification batches delivered.",
		},
		[]string{"type", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(ScansTotal)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(NotificationsTotal)
}
