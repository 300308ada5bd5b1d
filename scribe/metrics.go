package scribe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors for processing requests. A nil
// *Metrics records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	segments       *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	activeRequests prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkscribe",
			Name:      "requests_total",
			Help:      "Processing requests by outcome.",
		}, []string{"outcome"}),
		segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkscribe",
			Name:      "segments_total",
			Help:      "Segment pipelines by result.",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chunkscribe",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"stage"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkscribe",
			Name:      "active_requests",
			Help:      "Processing requests currently running.",
		}),
	}
	reg.MustRegister(m.requests, m.segments, m.stageDuration, m.activeRequests)
	return m
}

func (m *Metrics) requestStarted() {
	if m == nil {
		return
	}
	m.activeRequests.Inc()
}

func (m *Metrics) requestFinished(err error) {
	if m == nil {
		return
	}
	m.activeRequests.Dec()
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) segmentFinished(err error) {
	if m == nil {
		return
	}
	result := "finished"
	if err != nil {
		result = "failed"
	}
	m.segments.WithLabelValues(result).Inc()
}

func (m *Metrics) observeStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}
