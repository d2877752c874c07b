// Package metrics exports scheduler activity in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/popupkit/popupkit/holiday"
	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/scheduler"
)

// Exporter collects scheduler metrics and serves them over HTTP. It
// satisfies scheduler.MetricsRecorder so managers can feed it
// directly.
type Exporter struct {
	registry *prometheus.Registry

	evaluations       *prometheus.CounterVec
	writes            *prometheus.CounterVec
	previewIterations *prometheus.HistogramVec
	conflictScans     *prometheus.CounterVec
	conflictsFound    *prometheus.CounterVec
}

var _ scheduler.MetricsRecorder = (*Exporter)(nil)

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for the preview iteration histogram
	PreviewBuckets []float64
}

// DefaultConfig returns the default exporter configuration. The
// preview buckets span one step up to the scan cap.
func DefaultConfig() Config {
	return Config{
		PreviewBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}
}

// New creates a metrics exporter and registers its collectors.
func New(cfg Config) *Exporter {
	if len(cfg.PreviewBuckets) == 0 {
		cfg.PreviewBuckets = DefaultConfig().PreviewBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "popupkit",
			Subsystem: "scheduler",
			Name:      "evaluations_total",
			Help:      "Total schedule activation evaluations",
		},
		[]string{"shop", "result"},
	)

	e.writes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "popupkit",
			Subsystem: "scheduler",
			Name:      "writes_total",
			Help:      "Total schedule mutations",
		},
		[]string{"shop", "op"},
	)

	e.previewIterations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "popupkit",
			Subsystem: "scheduler",
			Name:      "preview_iterations",
			Help:      "Candidate scan length per preview request",
			Buckets:   cfg.PreviewBuckets,
		},
		[]string{"shop"},
	)

	e.conflictScans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "popupkit",
			Subsystem: "scheduler",
			Name:      "conflict_scans_total",
			Help:      "Total conflict detection scans",
		},
		[]string{"shop"},
	)

	e.conflictsFound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "popupkit",
			Subsystem: "scheduler",
			Name:      "conflicts_found_total",
			Help:      "Total conflicts reported by scans",
		},
		[]string{"shop"},
	)

	zoneHits := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "popupkit",
			Subsystem: "timezone",
			Name:      "cache_hits_total",
			Help:      "Timezone cache hits",
		},
		func() float64 { return float64(timeutil.ZoneCacheHits()) },
	)
	zoneMisses := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "popupkit",
			Subsystem: "timezone",
			Name:      "cache_misses_total",
			Help:      "Timezone cache misses",
		},
		func() float64 { return float64(timeutil.ZoneCacheMisses()) },
	)

	holidayLookups := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "popupkit",
			Subsystem: "holiday",
			Name:      "lookups_total",
			Help:      "Holiday calendar lookups",
		},
		func() float64 { return float64(holiday.Lookups()) },
	)
	holidayMatches := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "popupkit",
			Subsystem: "holiday",
			Name:      "matches_total",
			Help:      "Holiday calendar lookups that found a holiday",
		},
		func() float64 { return float64(holiday.LookupMatches()) },
	)

	registry.MustRegister(
		e.evaluations,
		e.writes,
		e.previewIterations,
		e.conflictScans,
		e.conflictsFound,
		zoneHits,
		zoneMisses,
		holidayLookups,
		holidayMatches,
	)

	return e
}

// TrackRegistry exposes the number of loaded shop managers as a gauge.
func (e *Exporter) TrackRegistry(r *scheduler.Registry) {
	e.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "popupkit",
			Subsystem: "scheduler",
			Name:      "loaded_shops",
			Help:      "Shop managers currently held in memory",
		},
		func() float64 { return float64(r.Size()) },
	))
}

// RecordEvaluation counts one activation evaluation.
func (e *Exporter) RecordEvaluation(shopID string, active bool) {
	result := "inactive"
	if active {
		result = "active"
	}
	e.evaluations.WithLabelValues(shopID, result).Inc()
}

// RecordWrite counts one schedule mutation.
func (e *Exporter) RecordWrite(shopID string, op string) {
	e.writes.WithLabelValues(shopID, op).Inc()
}

// RecordPreview observes the scan length of one preview request.
func (e *Exporter) RecordPreview(shopID string, iterations int) {
	e.previewIterations.WithLabelValues(shopID).Observe(float64(iterations))
}

// RecordConflictScan counts one scan and the conflicts it reported.
func (e *Exporter) RecordConflictScan(shopID string, conflicts int) {
	e.conflictScans.WithLabelValues(shopID).Inc()
	e.conflictsFound.WithLabelValues(shopID).Add(float64(conflicts))
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}

// Registry returns the underlying Prometheus registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}
