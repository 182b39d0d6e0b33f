package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"resolvd/internal/domain"
	"resolvd/internal/infra/catalog"
	"resolvd/internal/infra/discovery"
	"resolvd/internal/infra/executor"
	"resolvd/internal/infra/generate"
	"resolvd/internal/infra/httpapi"
	"resolvd/internal/infra/resolve"
	"resolvd/internal/infra/scriptcache"
	"resolvd/internal/infra/telemetry"
)

func NewMetricsRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func NewMetrics(registry *prometheus.Registry) *telemetry.PrometheusMetrics {
	return telemetry.NewPrometheusMetrics(registry)
}

func NewHealthTracker() *telemetry.HealthTracker {
	return telemetry.NewHealthTracker()
}

func NewCatalog(logger *zap.Logger, metrics *telemetry.PrometheusMetrics) *catalog.Catalog {
	return catalog.New(logger, metrics)
}

// NewStore opens the script cache and wires evictions back into the
// catalog so promoted manifests disappear with their entries.
func NewStore(cfg Config, logger *zap.Logger, metrics *telemetry.PrometheusMetrics, cat *catalog.Catalog) (*scriptcache.Store, func(), error) {
	store, err := scriptcache.Open(cfg.StoragePath, scriptcache.Options{
		Logger:      logger,
		Metrics:     metrics,
		IdleHorizon: cfg.IdleHorizon,
		OnEvict: func(entry domain.CacheEntry) {
			cat.Demote(entry.ActionName)
		},
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = store.Close() }
	return store, cleanup, nil
}

func NewFailureRing(cfg Config) *domain.FailureRing {
	return domain.NewFailureRing(cfg.FailureRingCapacity)
}

func NewCommandExecutor(logger *zap.Logger) *executor.CommandExecutor {
	return executor.NewCommandExecutor(logger)
}

// NewExecutorRegistry installs the process-backed executor for the
// kinds it can serve. Native, UI-automation and vision tiers stay
// unregistered until a host integration injects executors for them;
// the engine skips unregistered tiers.
func NewExecutorRegistry(cmd *executor.CommandExecutor) *executor.Registry {
	registry := executor.NewRegistry()
	registry.Register(domain.KindOSScript, cmd)
	registry.Register(domain.KindCLI, cmd)
	return registry
}

func NewSynthesizer(cfg Config) generate.Synthesizer {
	if len(cfg.SynthesizerExec) == 0 {
		return nil
	}
	return generate.CommandSynthesizer{Exec: cfg.SynthesizerExec}
}

func NewGenerator(cfg Config, logger *zap.Logger, metrics *telemetry.PrometheusMetrics, synth generate.Synthesizer, cmd *executor.CommandExecutor, store *scriptcache.Store, cat *catalog.Catalog, failures *domain.FailureRing) *generate.Generator {
	return generate.New(synth, cmd, store, cat, failures, generate.Options{
		Logger:            logger,
		Metrics:           metrics,
		ValidationTimeout: cfg.ValidationTimeout,
	})
}

func NewEngine(cfg Config, logger *zap.Logger, metrics *telemetry.PrometheusMetrics, cat *catalog.Catalog, store *scriptcache.Store, gen *generate.Generator, registry *executor.Registry, cmd *executor.CommandExecutor, failures *domain.FailureRing) *resolve.Engine {
	return resolve.New(cat, store, gen, registry, cmd, failures, resolve.Options{
		Logger:          logger,
		Metrics:         metrics,
		TierTimeout:     cfg.TierTimeout,
		DefaultPlatform: cfg.Platform,
	})
}

func NewDiscoverers(cfg Config, logger *zap.Logger) []discovery.Discoverer {
	discoverers := make([]discovery.Discoverer, 0, len(cfg.ManifestDirs)+1)
	for _, dir := range cfg.ManifestDirs {
		discoverers = append(discoverers, discovery.NewManifestDir(dir, logger))
	}
	if len(cfg.CLIProbes) > 0 {
		discoverers = append(discoverers, discovery.NewCLIProbe(cfg.CLIProbes, logger))
	}
	return discoverers
}

func NewDiscoveryRunner(cfg Config, logger *zap.Logger, discoverers []discovery.Discoverer, cat *catalog.Catalog, store *scriptcache.Store) *discovery.Runner {
	return discovery.NewRunner(discoverers, cat, store, discovery.RunnerOptions{
		Logger:    logger,
		WatchDirs: cfg.ManifestDirs,
		Interval:  cfg.RediscoverInterval,
	})
}

func NewAPIHandler(engine *resolve.Engine, failures *domain.FailureRing, logger *zap.Logger) *httpapi.Handler {
	return httpapi.NewHandler(engine, failures, logger)
}
