package app

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"resolvd/internal/domain"
	"resolvd/internal/infra/catalog"
	"resolvd/internal/infra/discovery"
	"resolvd/internal/infra/httpapi"
	"resolvd/internal/infra/resolve"
	"resolvd/internal/infra/scriptcache"
	"resolvd/internal/infra/telemetry"
)

// Application is the assembled daemon.
type Application struct {
	cfg     Config
	logger  *zap.Logger
	metrics *prometheus.Registry
	health  *telemetry.HealthTracker

	catalog  *catalog.Catalog
	store    *scriptcache.Store
	failures *domain.FailureRing
	engine   *resolve.Engine
	runner   *discovery.Runner
	api      *httpapi.Handler
}

// NewApplication assembles the daemon from its wired components.
func NewApplication(cfg Config, logger *zap.Logger, metrics *prometheus.Registry, health *telemetry.HealthTracker, cat *catalog.Catalog, store *scriptcache.Store, failures *domain.FailureRing, engine *resolve.Engine, runner *discovery.Runner, api *httpapi.Handler) *Application {
	return &Application{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		health:   health,
		catalog:  cat,
		store:    store,
		failures: failures,
		engine:   engine,
		runner:   runner,
		api:      api,
	}
}

// Serve runs discovery, the cache cleanup sweep and the observability
// server until the context is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	a.health.SetReady("catalog", false)
	if err := a.runner.Discover(ctx); err != nil {
		return err
	}
	a.health.SetReady("catalog", true)
	a.health.SetReady("cache", true)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := a.runner.Run(groupCtx)
		if err != nil && groupCtx.Err() != nil {
			return nil
		}
		return err
	})

	group.Go(func() error {
		a.store.RunCleanupLoop(groupCtx.Done(), a.cfg.CleanupInterval)
		return nil
	})

	group.Go(func() error {
		var api http.Handler
		if a.cfg.Observability.EnableAPI {
			api = a.api
		}
		return telemetry.StartHTTPServer(groupCtx, telemetry.HTTPServerOptions{
			Addr:          a.cfg.Observability.ListenAddress,
			EnableMetrics: true,
			EnableHealthz: true,
			Health:        a.health,
			Registry:      a.metrics,
			API:           api,
		}, a.logger)
	})

	a.logger.Info("daemon running",
		zap.String("platform", a.cfg.Platform),
		zap.String("storage", a.cfg.StoragePath),
		zap.Strings("manifestDirs", a.cfg.ManifestDirs),
	)
	return group.Wait()
}

// Resolve handles one action request.
func (a *Application) Resolve(ctx context.Context, req domain.ActionRequest) (domain.ResolutionResult, error) {
	return a.engine.Resolve(ctx, req)
}

// Discover runs a single discovery pass.
func (a *Application) Discover(ctx context.Context) error {
	return a.runner.Discover(ctx)
}

// CatalogSnapshot returns the current capability snapshot.
func (a *Application) CatalogSnapshot() domain.CatalogSnapshot {
	return a.catalog.Snapshot()
}

// CacheEntries lists all persisted script cache entries.
func (a *Application) CacheEntries() ([]domain.CacheEntry, error) {
	return a.store.List()
}

// EvictCacheEntry removes one entry by signature.
func (a *Application) EvictCacheEntry(signature domain.ActionSignature) (bool, error) {
	return a.store.Evict(signature)
}
