// pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AvailabilityChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvbot_availability_checks_total",
			Help: "Per-court availability checks by outcome",
		},
		[]string{"status"},
	)

	AvailabilityCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lvbot_availability_check_duration_seconds",
			Help:    "Duration of single-court availability checks",
			Buckets: prometheus.DefBuckets,
		},
	)

	PoolPagesReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lvbot_pool_pages_ready",
			Help: "Number of court pages currently live in the browser pool",
		},
	)

	PoolPageRecreations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lvbot_pool_page_recreations_total",
			Help: "Court pages recreated after a dead connection was detected",
		},
	)

	PoolRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvbot_pool_refreshes_total",
			Help: "Court page refresh attempts by outcome",
		},
		[]string{"status"},
	)

	BookingsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvbot_bookings_executed_total",
			Help: "Queued booking executions by outcome",
		},
		[]string{"status"},
	)

	QueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lvbot_queue_size",
			Help: "Reservation requests currently stored in the queue",
		},
	)

	AvailabilityChangesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lvbot_availability_changes_total",
			Help: "Slot changes detected by the poller",
		},
		[]string{"kind"},
	)
)
