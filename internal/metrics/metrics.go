// Package metrics holds the prometheus collectors recorded during a scan.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes recorded for outbound requests.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeServerError = "server_error"
	OutcomeClientError = "client_error"
	OutcomeNetwork     = "network_error"
)

// Metrics represents the collection of scan metrics.
type Metrics struct {
	registry *prometheus.Registry

	CacheLookups    *prometheus.CounterVec
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Retries         *prometheus.CounterVec
	Batches         *prometheus.CounterVec
	Resolutions     *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depscan_cache_lookups_total",
			Help: "Vulnerability cache lookups by result",
		},
		[]string{"result"},
	)

	m.Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depscan_osv_requests_total",
			Help: "Requests sent to the vulnerability database",
		},
		[]string{"endpoint", "outcome"},
	)

	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "depscan_osv_request_duration_seconds",
			Help:    "Duration of requests to the vulnerability database",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	m.Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depscan_osv_retries_total",
			Help: "Retried requests to the vulnerability database",
		},
		[]string{"endpoint"},
	)

	m.Batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depscan_batches_total",
			Help: "Query batches by result",
		},
		[]string{"result"},
	)

	m.Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depscan_range_resolutions_total",
			Help: "Version range resolutions by ecosystem and result",
		},
		[]string{"ecosystem", "result"},
	)

	m.registry.MustRegister(
		m.CacheLookups,
		m.Requests,
		m.RequestDuration,
		m.Retries,
		m.Batches,
		m.Resolutions,
	)

	return m
}

// Gatherer exposes the registry the collectors live on.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}

	return m.registry
}

// WriteTextfile writes the current values in the text exposition format,
// suitable for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, m.Gatherer())
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) CacheError() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("error").Inc()
}

// ObserveRequest records one attempt against an endpoint.
func (m *Metrics) ObserveRequest(endpoint, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(endpoint, outcome).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(took.Seconds())
}

func (m *Metrics) Retry(endpoint string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(endpoint).Inc()
}

// Batch records a finished query batch; complete is false when the batch
// gave up and its packages were marked incomplete.
func (m *Metrics) Batch(complete bool) {
	if m == nil {
		return
	}
	result := "complete"
	if !complete {
		result = "incomplete"
	}
	m.Batches.WithLabelValues(result).Inc()
}

func (m *Metrics) Resolution(ecosystem string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.Resolutions.WithLabelValues(ecosystem, result).Inc()
}
