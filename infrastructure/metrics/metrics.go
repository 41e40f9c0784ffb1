package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adsync_jobs_processed_total",
		Help: "Queue jobs processed by outcome",
	}, []string{"queue", "outcome"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adsync_job_duration_seconds",
		Help:    "Wall time of one queue job attempt",
		Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"queue"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "adsync_queue_jobs",
		Help: "Jobs per queue and state",
	}, []string{"queue", "state"})

	factsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adsync_facts_written_total",
		Help: "Metrics fact rows written to the warehouse",
	}, []string{"level"})

	factsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adsync_facts_skipped_total",
		Help: "Metrics fact rows skipped because a parent dimension was missing",
	}, []string{"level"})

	tokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adsync_token_refreshes_total",
		Help: "OAuth access token refreshes by result",
	}, []string{"result"})

	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "adsync_cache_keys_invalidated_total",
		Help: "Aggregate cache keys removed after syncs",
	})
)

func RecordJob(queue, outcome string, elapsed time.Duration) {
	jobsProcessed.WithLabelValues(queue, outcome).Inc()
	jobDuration.WithLabelValues(queue).Observe(elapsed.Seconds())
}

func SetQueueDepth(queue string, waiting, delayed, active, completed, failed int64) {
	queueDepth.WithLabelValues(queue, "waiting").Set(float64(waiting))
	queueDepth.WithLabelValues(queue, "delayed").Set(float64(delayed))
	queueDepth.WithLabelValues(queue, "active").Set(float64(active))
	queueDepth.WithLabelValues(queue, "completed").Set(float64(completed))
	queueDepth.WithLabelValues(queue, "failed").Set(float64(failed))
}

func RecordFacts(level string, written, skipped int) {
	factsWritten.WithLabelValues(level).Add(float64(written))
	factsSkipped.WithLabelValues(level).Add(float64(skipped))
}

func RecordTokenRefresh(result string) {
	tokenRefreshes.WithLabelValues(result).Inc()
}

func RecordCacheInvalidation(keys int64) {
	cacheInvalidations.Add(float64(keys))
}
