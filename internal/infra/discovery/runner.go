package discovery

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"resolvd/internal/domain"
)

const watchDebounce = 200 * time.Millisecond

// CatalogWriter receives merged discovery output.
type CatalogWriter interface {
	Rebuild(results []domain.DiscoveryResult) error
	Promote(entry domain.CacheEntry)
}

// CacheLister enumerates cache entries so promoted manifests survive a
// rebuild.
type CacheLister interface {
	List() ([]domain.CacheEntry, error)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Logger *zap.Logger

	// WatchDirs are re-discovered when their contents change.
	WatchDirs []string

	// Interval re-runs discovery periodically; zero disables the timer.
	Interval time.Duration
}

// Runner fans discovery out across all discoverers, merges the
// results into the catalog, and keeps the catalog current through
// filesystem watches and periodic re-discovery.
type Runner struct {
	logger      *zap.Logger
	discoverers []Discoverer
	catalog     CatalogWriter
	cache       CacheLister

	watchDirs []string
	interval  time.Duration
}

// NewRunner creates a discovery runner. cache may be nil when no
// script cache participates.
func NewRunner(discoverers []Discoverer, catalog CatalogWriter, cache CacheLister, opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		logger:      logger.Named("discovery"),
		discoverers: discoverers,
		catalog:     catalog,
		cache:       cache,
		watchDirs:   opts.WatchDirs,
		interval:    opts.Interval,
	}
}

// Discover runs every discoverer concurrently, rebuilds the catalog
// from the merged results, and re-promotes Active cache entries. A
// failing discoverer contributes nothing but does not abort the run;
// the catalog always reflects the sources that did answer.
func (r *Runner) Discover(ctx context.Context) error {
	results := make([]domain.DiscoveryResult, len(r.discoverers))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, discoverer := range r.discoverers {
		group.Go(func() error {
			manifests, err := discoverer.Discover(groupCtx)
			if err != nil {
				r.logger.Warn("discoverer failed",
					zap.String("discoverer", discoverer.Name()),
					zap.Error(err),
				)
				return nil
			}
			results[i] = domain.DiscoveryResult{
				Discoverer: discoverer.Name(),
				Manifests:  manifests,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.catalog.Rebuild(results); err != nil {
		return err
	}
	return r.promoteActive()
}

// promoteActive merges Active cache entries back into the freshly
// rebuilt catalog.
func (r *Runner) promoteActive() error {
	if r.cache == nil {
		return nil
	}
	entries, err := r.cache.List()
	if err != nil {
		return err
	}
	promoted := 0
	for _, entry := range entries {
		if entry.Status != domain.CacheStatusActive {
			continue
		}
		r.catalog.Promote(entry)
		promoted++
	}
	if promoted > 0 {
		r.logger.Debug("cached scripts re-promoted", zap.Int("count", promoted))
	}
	return nil
}

// Run keeps the catalog fresh until the context is done, re-running
// discovery on manifest directory changes and on the configured
// period. The caller performs the initial Discover before starting the
// loop, typically to gate readiness on it; Run never repeats it on
// entry. Blocks.
func (r *Runner) Run(ctx context.Context) error {
	var watcher *fsnotify.Watcher
	if len(r.watchDirs) > 0 {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			r.logger.Warn("manifest watcher unavailable", zap.Error(err))
		} else {
			watcher = w
			defer watcher.Close()
			for _, dir := range r.watchDirs {
				if err := watcher.Add(dir); err != nil {
					r.logger.Warn("manifest watch failed",
						zap.String("dir", dir),
						zap.Error(err),
					)
				}
			}
		}
	}

	var ticker *time.Ticker
	if r.interval > 0 {
		ticker = time.NewTicker(r.interval)
		defer ticker.Stop()
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-watcherErrors(watcher):
			if err != nil {
				r.logger.Warn("manifest watcher error", zap.Error(err))
			}
		case event := <-watcherEvents(watcher):
			if !isYAMLFile(event.Name) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(watchDebounce)
		case <-timerChan(debounce):
			debounce = nil
			if err := r.Discover(ctx); err != nil {
				r.logger.Warn("re-discovery failed", zap.Error(err))
			}
		case <-tickerChan(ticker):
			if err := r.Discover(ctx); err != nil {
				r.logger.Warn("periodic re-discovery failed", zap.Error(err))
			}
		}
	}
}

func watcherEvents(w *fsnotify.Watcher) <-chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func watcherErrors(w *fsnotify.Watcher) <-chan error {
	if w == nil {
		return nil
	}
	return w.Errors
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}

func tickerChan(ticker *time.Ticker) <-chan time.Time {
	if ticker == nil {
		return nil
	}
	return ticker.C
}
