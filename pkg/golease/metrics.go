package golease

import "time"

// Metrics defines the interface for tracking billing and rate resolution.
type Metrics interface {
	// RecordRateResolution records a resolved rate and the source it came from
	// ("db", "bnr", "cache", "fallback") or "unavailable".
	RecordRateResolution(source string, duration time.Duration)

	// RecordLiveFetch records an attempt against the live rate source.
	RecordLiveFetch(duration time.Duration, err error)

	// RecordCacheHit records a cache hit for a specific cache type (e.g., "rate", "yearly").
	RecordCacheHit(cacheType string)

	// RecordCacheMiss records a cache miss for a specific cache type.
	RecordCacheMiss(cacheType string)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)

	// RecordDueOccurrences records how many occurrences a monthly query returned
	// and how many of them could not be priced.
	RecordDueOccurrences(due, unpriced int)

	// RecordInvoiceIssued records an issuance attempt and its outcome
	// ("issued", "duplicate", "unpriced", "error").
	RecordInvoiceIssued(outcome string)

	// RecordInvoicesDeleted records deleted invoices.
	RecordInvoicesDeleted(count int)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordRateResolution(source string, duration time.Duration)                 {}
func (n *NoopMetrics) RecordLiveFetch(duration time.Duration, err error)                          {}
func (n *NoopMetrics) RecordCacheHit(cacheType string)                                            {}
func (n *NoopMetrics) RecordCacheMiss(cacheType string)                                           {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                               {}
func (n *NoopMetrics) RecordDueOccurrences(due, unpriced int)                                     {}
func (n *NoopMetrics) RecordInvoiceIssued(outcome string)                                         {}
func (n *NoopMetrics) RecordInvoicesDeleted(count int)                                            {}
