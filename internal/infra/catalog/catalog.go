package catalog

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"resolvd/internal/domain"
)

// Catalog holds the current capability snapshot behind an atomic
// pointer. Readers never lock: Lookup loads the snapshot in place.
// Rebuilds and promotions build a fresh snapshot and swap it in.
type Catalog struct {
	logger  *zap.Logger
	metrics domain.Metrics

	state    atomic.Value // domain.CatalogSnapshot
	revision atomic.Uint64

	// writeMu serializes swap producers (rebuild, promote, demote) so
	// concurrent writers cannot lose each other's updates.
	writeMu sync.Mutex

	now func() time.Time
}

// New creates an empty catalog.
func New(logger *zap.Logger, metrics domain.Metrics) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	c := &Catalog{
		logger:  logger.Named("catalog"),
		metrics: metrics,
		now:     time.Now,
	}
	empty, _ := domain.BuildCatalogSnapshot(nil, 0, time.Now())
	c.state.Store(empty)
	return c
}

// Snapshot returns the current immutable snapshot.
func (c *Catalog) Snapshot() domain.CatalogSnapshot {
	return c.state.Load().(domain.CatalogSnapshot)
}

// Lookup returns manifests for an action in tier priority order.
func (c *Catalog) Lookup(actionName string) []domain.ToolManifest {
	return c.Snapshot().Lookup(actionName)
}

// Rebuild replaces the catalog with the merged discovery results.
// Promoted cache manifests do not survive a rebuild on their own; the
// caller merges Active cache entries back in afterwards via Promote.
func (c *Catalog) Rebuild(results []domain.DiscoveryResult) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	revision := c.revision.Add(1)
	next, err := domain.BuildCatalogSnapshot(results, revision, c.now())
	if err != nil {
		return err
	}
	c.state.Store(next)
	c.metrics.SetCatalogSize(next.Len())
	c.logger.Info("catalog rebuilt",
		zap.Uint64("revision", revision),
		zap.Int("manifests", next.Len()),
		zap.Int("actions", len(next.Actions())),
	)
	return nil
}

// Promote inserts (or refreshes) the GeneratedScript manifest derived
// from an Active cache entry.
func (c *Catalog) Promote(entry domain.CacheEntry) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	revision := c.revision.Add(1)
	prev := c.state.Load().(domain.CatalogSnapshot)
	next := prev.WithManifest(entry.PromotedManifest(), revision, c.now())
	c.state.Store(next)
	c.metrics.SetCatalogSize(next.Len())
	c.logger.Debug("cache entry promoted",
		zap.String("action", entry.ActionName),
		zap.String("signature", entry.Signature.String()),
	)
}

// Demote removes the promoted GeneratedScript manifest for an action,
// typically after its cache entry was evicted.
func (c *Catalog) Demote(actionName string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	revision := c.revision.Add(1)
	prev := c.state.Load().(domain.CatalogSnapshot)
	next := prev.WithoutManifest(actionName, domain.KindGeneratedScript, revision, c.now())
	c.state.Store(next)
	c.metrics.SetCatalogSize(next.Len())
	c.logger.Debug("promoted manifest removed", zap.String("action", actionName))
}
