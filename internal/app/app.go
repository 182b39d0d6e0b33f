package app

import (
	"context"

	"go.uber.org/zap"

	"resolvd/internal/domain"
)

// App is the command-facing entry point. Each operation loads the
// configuration, assembles an Application, runs, and tears down.
type App struct {
	logger *zap.Logger
}

// New creates the entry point.
func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger}
}

// ServeConfig selects the configuration for a daemon run.
type ServeConfig struct {
	ConfigPath string
}

// Serve assembles and runs the daemon until the context is cancelled.
func (a *App) Serve(ctx context.Context, serve ServeConfig) error {
	application, cleanup, err := a.build(serve.ConfigPath)
	if err != nil {
		return err
	}
	defer cleanup()
	return application.Serve(ctx)
}

// ValidateConfig loads and validates the configuration without
// starting anything.
func (a *App) ValidateConfig(path string) error {
	_, err := NewConfigLoader(a.logger).Load(path)
	if err == nil {
		a.logger.Info("configuration valid", zap.String("path", path))
	}
	return err
}

// ResolveOnce discovers, resolves a single request and tears down.
// Used by the one-shot CLI.
func (a *App) ResolveOnce(ctx context.Context, configPath string, req domain.ActionRequest) (domain.ResolutionResult, error) {
	application, cleanup, err := a.build(configPath)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	defer cleanup()

	if err := application.Discover(ctx); err != nil {
		return domain.ResolutionResult{}, err
	}
	return application.Resolve(ctx, req)
}

// DiscoverOnce runs one discovery pass and returns the snapshot.
func (a *App) DiscoverOnce(ctx context.Context, configPath string) (domain.CatalogSnapshot, error) {
	application, cleanup, err := a.build(configPath)
	if err != nil {
		return domain.CatalogSnapshot{}, err
	}
	defer cleanup()

	if err := application.Discover(ctx); err != nil {
		return domain.CatalogSnapshot{}, err
	}
	return application.CatalogSnapshot(), nil
}

// CacheEntries lists the persisted script cache.
func (a *App) CacheEntries(configPath string) ([]domain.CacheEntry, error) {
	application, cleanup, err := a.build(configPath)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return application.CacheEntries()
}

// EvictCacheEntry removes a cache entry by signature.
func (a *App) EvictCacheEntry(configPath string, signature domain.ActionSignature) (bool, error) {
	application, cleanup, err := a.build(configPath)
	if err != nil {
		return false, err
	}
	defer cleanup()
	return application.EvictCacheEntry(signature)
}

func (a *App) build(configPath string) (*Application, func(), error) {
	cfg, err := NewConfigLoader(a.logger).Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return InitializeApplication(cfg, LoggingConfig{Logger: a.logger})
}
