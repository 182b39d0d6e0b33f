package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resolvd/internal/domain"
)

func TestNewPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	assert.NotNil(t, m)
	assert.NotNil(t, m.resolutionDuration)
	assert.NotNil(t, m.tierAttempts)
	assert.NotNil(t, m.tierDuration)
	assert.NotNil(t, m.cacheEvents)
	assert.NotNil(t, m.generationDuration)
	assert.NotNil(t, m.fallbacks)
	assert.NotNil(t, m.catalogSize)
}

func TestNewPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveResolution("compose_email", domain.ResolutionStatusSuccess, 20*time.Millisecond)
	m.ObserveTierAttempt(domain.KindNativeAPI, domain.OutcomeSuccess, 10*time.Millisecond)
	m.ObserveCacheEvent(domain.CacheEventHit)
	m.ObserveGeneration(domain.GenerationOutcomeValidated, 2*time.Second)
	m.ObserveFallback(domain.FallbackMissingApplication)
	m.SetCatalogSize(12)

	metrics, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(metrics))
	for _, family := range metrics {
		names = append(names, family.GetName())
	}

	assert.Contains(t, names, "resolvd_resolution_duration_seconds")
	assert.Contains(t, names, "resolvd_tier_attempts_total")
	assert.Contains(t, names, "resolvd_tier_duration_seconds")
	assert.Contains(t, names, "resolvd_script_cache_events_total")
	assert.Contains(t, names, "resolvd_generation_duration_seconds")
	assert.Contains(t, names, "resolvd_fallbacks_total")
	assert.Contains(t, names, "resolvd_catalog_manifests")
}

func TestPrometheusMetrics_SkippedAttemptsHaveNoDuration(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveTierAttempt(domain.KindOSScript, domain.OutcomeSkipped, 0)

	metrics, err := registry.Gather()
	require.NoError(t, err)

	for _, family := range metrics {
		if family.GetName() == "resolvd_tier_duration_seconds" {
			assert.Empty(t, family.GetMetric())
		}
	}
}

func TestHealthTrackerAggregates(t *testing.T) {
	tracker := NewHealthTracker()
	assert.Equal(t, "ok", tracker.Report().Status)

	tracker.SetReady("catalog", true)
	tracker.SetReady("cache", true)
	report := tracker.Report()
	assert.Equal(t, "ok", report.Status)
	assert.Equal(t, "ok", report.Components["catalog"])

	tracker.SetReady("cache", false)
	report = tracker.Report()
	assert.Equal(t, "degraded", report.Status)
	assert.Equal(t, "unavailable", report.Components["cache"])

	tracker.SetComponent("cache", "ok")
	assert.Equal(t, "ok", tracker.Report().Status)
}
