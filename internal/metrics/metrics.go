package metrics

import (
	"sync"

	"bookrelay/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	itemsEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookrelay",
			Name:      "queue_items_enqueued_total",
			Help:      "Submissions intercepted and parked in the durable queue.",
		},
	)

	itemsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookrelay",
			Name:      "queue_items_completed_total",
			Help:      "Queued submissions accepted by the upstream, by path.",
		},
		[]string{"path"},
	)

	itemsPermanentlyFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookrelay",
			Name:      "queue_items_permanently_failed_total",
			Help:      "Queued submissions that exhausted retries or hit a terminal rejection.",
		},
	)

	drains = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookrelay",
			Name:      "queue_drains_total",
			Help:      "Drain cycles started.",
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bookrelay",
			Name:      "queue_depth",
			Help:      "Queue items by status.",
		},
		[]string{"status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(itemsEnqueued, itemsCompleted, itemsPermanentlyFailed, drains, queueDepth)
	})
}

// IncEnqueued counts an intercepted submission.
func IncEnqueued() {
	itemsEnqueued.Inc()
}

// IncCompleted counts a delivered submission; path is "retry" or "sync".
func IncCompleted(path string) {
	itemsCompleted.WithLabelValues(path).Inc()
}

// IncPermanentlyFailed counts a submission moved to manual attention.
func IncPermanentlyFailed() {
	itemsPermanentlyFailed.Inc()
}

// IncDrain counts a started drain cycle.
func IncDrain() {
	drains.Inc()
}

// ObserveDepth publishes per-status queue depth.
func ObserveDepth(stats models.QueueStats) {
	queueDepth.WithLabelValues(models.StatusPending).Set(float64(stats.Pending))
	queueDepth.WithLabelValues(models.StatusProcessing).Set(float64(stats.Processing))
	queueDepth.WithLabelValues(models.StatusCompleted).Set(float64(stats.Completed))
	queueDepth.WithLabelValues(models.StatusFailed).Set(float64(stats.Failed))
	queueDepth.WithLabelValues(models.StatusPermanentlyFailed).Set(float64(stats.PermanentlyFailed))
}
