package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(batchJobsTotal, batchFilesTotal, batchStageSeconds, batchJobsInFlight, jobsReapedTotal)
}

var (
	batchJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_jobs_total",
			Help: "Batch jobs by terminal status.",
		},
		[]string{"status"}, // completed, failed
	)

	batchFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_files_total",
			Help: "Files processed in the transcription stage by kind and result.",
		},
		[]string{"kind", "result"}, // audio|text, ok|error
	)

	batchStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_stage_duration_seconds",
			Help:    "Wall time spent per processing stage.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	batchJobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_jobs_in_flight",
			Help: "Jobs whose pipeline is currently running.",
		},
	)

	jobsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_jobs_reaped_total",
			Help: "Orphaned jobs marked failed by the maintenance janitor.",
		},
	)
)

func IncBatchJob(status string) {
	batchJobsTotal.WithLabelValues(norm(status)).Inc()
}

func IncBatchFile(isAudio bool, ok bool) {
	kind, result := "text", "ok"
	if isAudio {
		kind = "audio"
	}
	if !ok {
		result = "error"
	}
	batchFilesTotal.WithLabelValues(kind, result).Inc()
}

func ObserveStage(stage string, seconds float64) {
	batchStageSeconds.WithLabelValues(norm(stage)).Observe(seconds)
}

func JobStarted()  { batchJobsInFlight.Inc() }
func JobFinished() { batchJobsInFlight.Dec() }

func AddReaped(n int) {
	jobsReapedTotal.Add(float64(n))
}
