package mediacache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    lookups   *prometheus.CounterVec
//	    fetchSize prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordLookup(hit bool) {
//	    p.lookups.WithLabelValues(strconv.FormatBool(hit)).Inc()
//	}
type MetricsCollector interface {
	// RecordLookup is called for every cache lookup made on behalf of a reader.
	RecordLookup(hit bool)

	// RecordEviction is called after an entry left the cache.
	RecordEviction(reason string)

	// RecordFetch is called when a remote fetch ends.
	// bytes is the number of bytes stored, err is nil if the stream completed.
	RecordFetch(bytes int64, duration time.Duration, err error)

	// RecordRequest is called after each HTTP request.
	RecordRequest(status int, bytes int64, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLookup(bool)                       {}
func (NoopMetricsCollector) RecordEviction(string)                   {}
func (NoopMetricsCollector) RecordFetch(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordRequest(int, int64, time.Duration) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	Hits              atomic.Int64
	Misses            atomic.Int64
	Evictions         atomic.Int64
	FailedEvictions   atomic.Int64
	FetchCount        atomic.Int64
	FetchErrors       atomic.Int64
	FetchBytes        atomic.Int64
	FetchTotalNanos   atomic.Int64
	RequestCount      atomic.Int64
	RequestErrors     atomic.Int64
	ResponseBytes     atomic.Int64
	RequestTotalNanos atomic.Int64
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(hit bool) {
	if hit {
		b.Hits.Add(1)
	} else {
		b.Misses.Add(1)
	}
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(reason string) {
	b.Evictions.Add(1)
	if reason == "failed" {
		b.FailedEvictions.Add(1)
	}
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(bytes int64, duration time.Duration, err error) {
	b.FetchCount.Add(1)
	b.FetchBytes.Add(bytes)
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FetchErrors.Add(1)
	}
}

// RecordRequest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRequest(status int, bytes int64, duration time.Duration) {
	b.RequestCount.Add(1)
	b.ResponseBytes.Add(bytes)
	b.RequestTotalNanos.Add(duration.Nanoseconds())
	if status >= 500 {
		b.RequestErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		Hits:            b.Hits.Load(),
		Misses:          b.Misses.Load(),
		Evictions:       b.Evictions.Load(),
		FailedEvictions: b.FailedEvictions.Load(),
		FetchCount:      b.FetchCount.Load(),
		FetchErrors:     b.FetchErrors.Load(),
		FetchBytes:      b.FetchBytes.Load(),
		FetchAvgNanos:   avg(b.FetchTotalNanos.Load(), b.FetchCount.Load()),
		RequestCount:    b.RequestCount.Load(),
		RequestErrors:   b.RequestErrors.Load(),
		ResponseBytes:   b.ResponseBytes.Load(),
		RequestAvgNanos: avg(b.RequestTotalNanos.Load(), b.RequestCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	Hits            int64 `json:"hits"`
	Misses          int64 `json:"misses"`
	Evictions       int64 `json:"evictions"`
	FailedEvictions int64 `json:"failed_evictions"`
	FetchCount      int64 `json:"fetch_count"`
	FetchErrors     int64 `json:"fetch_errors"`
	FetchBytes      int64 `json:"fetch_bytes"`
	FetchAvgNanos   int64 `json:"fetch_avg_nanos"`
	RequestCount    int64 `json:"request_count"`
	RequestErrors   int64 `json:"request_errors"`
	ResponseBytes   int64 `json:"response_bytes"`
	RequestAvgNanos int64 `json:"request_avg_nanos"`
}
