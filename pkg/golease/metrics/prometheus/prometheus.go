// Package prommetrics implements golease.Metrics with Prometheus collectors.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements golease.Metrics using Prometheus.
type Metrics struct {
	rateResolutionsTotal       *prometheus.CounterVec
	rateResolutionDuration     *prometheus.HistogramVec
	liveFetchTotal             *prometheus.CounterVec
	liveFetchDuration          prometheus.Histogram
	cacheHitsTotal             *prometheus.CounterVec
	cacheMissesTotal           *prometheus.CounterVec
	storageOpsDuration         *prometheus.HistogramVec
	storageOpsErrors           *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
	dueOccurrences             prometheus.Gauge
	unpricedOccurrences        prometheus.Gauge
	invoicesIssuedTotal        *prometheus.CounterVec
	invoicesDeletedTotal       prometheus.Counter
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		rateResolutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_resolutions_total",
			Help:      "Total number of exchange rate resolutions by source.",
		}, []string{"source"}),

		rateResolutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_resolution_duration_seconds",
			Help:      "Latency of exchange rate resolutions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		liveFetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_rate_fetch_total",
			Help:      "Total number of live rate source requests.",
		}, []string{"success"}),

		liveFetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_rate_fetch_duration_seconds",
			Help:      "Latency of live rate source requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		cacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		}, []string{"type"}),

		cacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		}, []string{"type"}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of storage operation errors.",
		}, []string{"operation"}),
		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),

		dueOccurrences: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "due_occurrences",
			Help:      "Occurrences returned by the last due query.",
		}),

		unpricedOccurrences: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unpriced_occurrences",
			Help:      "Occurrences of the last due query without an amount or rate.",
		}),

		invoicesIssuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_issuance_total",
			Help:      "Total number of invoice issuance attempts by outcome.",
		}, []string{"outcome"}),

		invoicesDeletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_deleted_total",
			Help:      "Total number of deleted invoices.",
		}),
	}
}

func (m *Metrics) RecordRateResolution(source string, duration time.Duration) {
	m.rateResolutionsTotal.WithLabelValues(source).Inc()
	m.rateResolutionDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *Metrics) RecordLiveFetch(duration time.Duration, err error) {
	m.liveFetchTotal.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	m.liveFetchDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheHit(cacheType string) {
	m.cacheHitsTotal.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.cacheMissesTotal.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordDueOccurrences(due, unpriced int) {
	m.dueOccurrences.Set(float64(due))
	m.unpricedOccurrences.Set(float64(unpriced))
}

func (m *Metrics) RecordInvoiceIssued(outcome string) {
	m.invoicesIssuedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordInvoicesDeleted(count int) {
	m.invoicesDeletedTotal.Add(float64(count))
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
