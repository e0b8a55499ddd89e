// Package metrics holds the Prometheus collectors for exports, feed fetches
// and the blob cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch results recorded by ObserveFetch.
const (
	FetchFresh       = "fresh"
	FetchNotModified = "not_modified"
	FetchStale       = "stale"
	FetchFailed      = "failed"
)

// Metrics is a private registry plus the collectors the app records into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	exports      prometheus.Counter
	events       prometheus.Counter
	skipped      *prometheus.CounterVec
	fallbacks    *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
	cacheEntries prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		exports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursecal_exports_total",
			Help: "Calendar documents generated",
		}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursecal_export_events_total",
			Help: "Events written into generated calendar documents",
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursecal_export_skipped_slots_total",
			Help: "Slots left out of generated calendar documents",
		}, []string{"reason"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursecal_export_fallback_ends_total",
			Help: "Events whose end time used the fallback period length",
		}, []string{"reason"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursecal_feed_fetches_total",
			Help: "Feed fetches by outcome",
		}, []string{"result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursecal_blob_cache_hits_total",
			Help: "Blob cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coursecal_blob_cache_misses_total",
			Help: "Blob cache misses",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coursecal_blob_cache_entries",
			Help: "Blobs currently held in memory",
		}),
	}

	registry.MustRegister(m.exports, m.events, m.skipped, m.fallbacks, m.fetches,
		m.cacheHits, m.cacheMisses, m.cacheEntries)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveExport records one generated document.
func (m *Metrics) ObserveExport(events int, skipped, fallbacks map[string]int) {
	if m == nil {
		return
	}
	m.exports.Inc()
	m.events.Add(float64(events))
	for reason, n := range skipped {
		m.skipped.WithLabelValues(reason).Add(float64(n))
	}
	for reason, n := range fallbacks {
		m.fallbacks.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveFetch records a feed fetch outcome.
func (m *Metrics) ObserveFetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}

// ObserveCache records a blob cache lookup and the current entry count.
func (m *Metrics) ObserveCache(hit bool, entries int) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
	m.cacheEntries.Set(float64(entries))
}
