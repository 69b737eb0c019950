package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	oralRequestsTotal      *prometheus.CounterVec
	oralLatencySeconds     *prometheus.HistogramVec
	oralSessionEventsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the oral exam API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		oralRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oral_requests_total",
			Help: "Total number of oral exam API requests served.",
		}, []string{"method", "route", "status"})

		oralLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oral_latency_seconds",
			Help:    "Latency distribution for oral exam API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "route"})

		oralSessionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oral_session_events_total",
			Help: "Oral exam session lifecycle transitions.",
		}, []string{"event"})

		prometheus.MustRegister(oralRequestsTotal, oralLatencySeconds, oralSessionEventsTotal)
	})
}

// OralRequests exposes the counter for oral exam requests.
func OralRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return oralRequestsTotal
}

// OralLatency exposes the latency histogram for oral exam requests.
func OralLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return oralLatencySeconds
}

// SessionEvents exposes the counter for session lifecycle transitions
// (started, resumed, finished, timeout).
func SessionEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return oralSessionEventsTotal
}
