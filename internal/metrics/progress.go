package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(progressEventsTotal, progressSubscribers)
}

var (
	progressEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_events_total",
			Help: "Progress events by delivery result.",
		},
		[]string{"result"}, // delivered, dropped, unobserved
	)

	progressSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "progress_subscribers",
			Help: "Open progress subscriptions.",
		},
	)
)

func IncProgressEvent(result string) {
	progressEventsTotal.WithLabelValues(norm(result)).Inc()
}

func SubscriberAdded()   { progressSubscribers.Inc() }
func SubscriberRemoved() { progressSubscribers.Dec() }
