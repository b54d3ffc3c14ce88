package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(llmCallsLatencyMs, llmErrorsTotal, retryAttemptsTotal, transcriptionsTotal)
}

var (
	llmCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_calls_latency_ms",
			Help:    "LLM call latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000, 64000},
		},
		[]string{"provider", "model", "success"},
	)

	llmErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_errors_total",
			Help: "LLM call failures by provider and error kind.",
		},
		[]string{"provider", "kind"},
	)

	retryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Retried attempts per wrapped operation.",
		},
		[]string{"operation"},
	)

	transcriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcriptions_total",
			Help: "Audio transcriptions by result.",
		},
		[]string{"result"},
	)
)

func ObserveLLMCall(provider, model string, latencyMs int64, success bool) {
	llmCallsLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func IncLLMError(provider, kind string) {
	llmErrorsTotal.WithLabelValues(norm(provider), norm(kind)).Inc()
}

func IncRetry(operation string) {
	retryAttemptsTotal.WithLabelValues(norm(operation)).Inc()
}

func IncTranscription(success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	transcriptionsTotal.WithLabelValues(result).Inc()
}
