// Package metrics exposes Prometheus collectors for search, cache,
// recommender and batch activity.
//
// All Recorder methods are safe on a nil receiver, so components can hold
// an optional *Recorder without guarding every call.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/poiesic/catmat/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catmat"

// Cache lookup outcomes.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheRebuild = "rebuild"
)

// Recorder owns a private registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	searchDuration *prometheus.HistogramVec
	searchTotal    *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	recommender    *prometheus.CounterVec
	batchItems     *prometheus.CounterVec
	batchDuration  prometheus.Histogram
}

// New creates a Recorder with Go runtime and process collectors included.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"ai"}),
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by outcome.",
		}, []string{"status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Artifact cache lookups by result.",
		}, []string{"result"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_build_duration_seconds",
			Help:      "Embedding plus index build time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		recommender: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Recommender calls by outcome.",
		}, []string{"outcome"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Batch items by status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Whole batch run time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.searchDuration,
		r.searchTotal,
		r.cacheLookups,
		r.buildDuration,
		r.recommender,
		r.batchItems,
		r.batchDuration,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveSearch records one search call.
func (r *Recorder) ObserveSearch(d time.Duration, withAI bool, err error) {
	if r == nil {
		return
	}
	ai := "false"
	if withAI {
		ai = "true"
	}
	r.searchDuration.WithLabelValues(ai).Observe(d.Seconds())
	r.searchTotal.WithLabelValues(searchStatus(err)).Inc()
}

func searchStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

// CacheLookup counts an artifact cache lookup.
func (r *Recorder) CacheLookup(result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveBuild records a completed artifact build.
func (r *Recorder) ObserveBuild(d time.Duration) {
	if r == nil {
		return
	}
	r.buildDuration.Observe(d.Seconds())
}

// Recommendation counts a recommender outcome. A successful call is
// recorded as "ok", fallbacks by their reason.
func (r *Recorder) Recommendation(rec *core.Recommendation) {
	if r == nil || rec == nil {
		return
	}
	outcome := "ok"
	if rec.Fallback {
		outcome = string(rec.FallbackReason)
	}
	r.recommender.WithLabelValues(outcome).Inc()
}

// BatchItem counts one finished batch item.
func (r *Recorder) BatchItem(status core.BatchStatus) {
	if r == nil {
		return
	}
	r.batchItems.WithLabelValues(string(status)).Inc()
}

// ObserveBatch records a whole batch run.
func (r *Recorder) ObserveBatch(d time.Duration) {
	if r == nil {
		return
	}
	r.batchDuration.Observe(d.Seconds())
}
