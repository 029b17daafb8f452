// Package metrics exposes the server's prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection metrics
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "akonadid_connections_active",
			Help: "Number of currently open client connections",
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akonadid_commands_total",
			Help: "Total number of commands handled, by verb and result",
		},
		[]string{"verb", "result"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "akonadid_command_duration_seconds",
			Help:    "Command handler latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	// Retrieval manager metrics
	RetrievalQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "akonadid_retrieval_queue_depth",
			Help: "Pending retrieval requests per resource",
		},
		[]string{"resource"},
	)

	RetrievalRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akonadid_retrieval_requests_total",
			Help: "Total retrieval requests submitted, by result",
		},
		[]string{"result"},
	)

	RetrievalCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "akonadid_retrieval_coalesced_total",
			Help: "Total retrieval requests satisfied by coalescing with an in-flight job",
		},
	)

	RetrievalRPCDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "akonadid_retrieval_rpc_duration_seconds",
			Help:    "Resource RPC latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Notification bus metrics
	NotificationBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "akonadid_notification_batch_size",
			Help:    "Number of notifications per flushed, compressed batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	NotificationsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akonadid_notifications_dropped_total",
			Help: "Total batches dropped for a subscriber due to backpressure",
		},
		[]string{"subscription"},
	)

	// Janitor metrics
	JanitorFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akonadid_janitor_findings_total",
			Help: "Total consistency findings reported by janitor checks, by kind",
		},
		[]string{"kind"},
	)

	JanitorCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "akonadid_janitor_check_duration_seconds",
			Help:    "Duration of a full janitor check() sweep",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(RetrievalQueueDepth)
	prometheus.MustRegister(RetrievalRequestsTotal)
	prometheus.MustRegister(RetrievalCoalescedTotal)
	prometheus.MustRegister(RetrievalRPCDuration)
	prometheus.MustRegister(NotificationBatchSize)
	prometheus.MustRegister(NotificationsDroppedTotal)
	prometheus.MustRegister(JanitorFindingsTotal)
	prometheus.MustRegister(JanitorCheckDuration)
}

// Handler returns the HTTP handler serving the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an elapsed duration for histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time on a single histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time against a labelled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time without recording it.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
