package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"resolvd/internal/domain"
)

type PrometheusMetrics struct {
	resolutionDuration *prometheus.HistogramVec
	tierAttempts       *prometheus.CounterVec
	tierDuration       *prometheus.HistogramVec
	cacheEvents        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	fallbacks          *prometheus.CounterVec
	catalogSize        prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		resolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolvd_resolution_duration_seconds",
				Help:    "Duration of action resolutions in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"action", "status"},
		),
		tierAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolvd_tier_attempts_total",
				Help: "Total number of tier execution attempts",
			},
			[]string{"tier", "outcome"},
		),
		tierDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolvd_tier_duration_seconds",
				Help:    "Duration of individual tier executions in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tier"},
		),
		cacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolvd_script_cache_events_total",
				Help: "Total number of script cache lifecycle events",
			},
			[]string{"event"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resolvd_generation_duration_seconds",
				Help:    "Duration of script synthesis attempts in seconds",
				Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolvd_fallbacks_total",
				Help: "Total number of exhausted resolutions by classification",
			},
			[]string{"classification"},
		),
		catalogSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "resolvd_catalog_manifests",
				Help: "Current number of manifests in the capability catalog",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveResolution(actionName string, status domain.ResolutionStatus, duration time.Duration) {
	p.resolutionDuration.WithLabelValues(actionName, string(status)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveTierAttempt(tier domain.ToolKind, outcome domain.AttemptOutcome, duration time.Duration) {
	p.tierAttempts.WithLabelValues(string(tier), string(outcome)).Inc()
	if outcome != domain.OutcomeSkipped {
		p.tierDuration.WithLabelValues(string(tier)).Observe(duration.Seconds())
	}
}

func (p *PrometheusMetrics) ObserveCacheEvent(kind domain.CacheEventKind) {
	p.cacheEvents.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusMetrics) ObserveGeneration(outcome domain.GenerationOutcome, duration time.Duration) {
	p.generationDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveFallback(classification domain.FallbackClassification) {
	p.fallbacks.WithLabelValues(string(classification)).Inc()
}

func (p *PrometheusMetrics) SetCatalogSize(count int) {
	p.catalogSize.Set(float64(count))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
