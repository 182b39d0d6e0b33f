package scriptcache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"resolvd/internal/domain"
)

const (
	schemaVersion = 1

	rootBucketName    = "resolvd"
	metaBucketName    = "meta"
	scriptsBucketName = "scripts"
	versionKey        = "version"
)

// EvictionHook is called after an entry is removed from storage, so
// the catalog can demote the promoted manifest.
type EvictionHook func(entry domain.CacheEntry)

// Store persists generated scripts in a bbolt database keyed by
// action signature. Entry updates are atomic: every read-modify-write
// happens inside a single bolt transaction.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool

	logger      *zap.Logger
	metrics     domain.Metrics
	idleHorizon time.Duration
	onEvict     EvictionHook
	now         func() time.Time
}

// Options configures a Store.
type Options struct {
	Logger      *zap.Logger
	Metrics     domain.Metrics
	IdleHorizon time.Duration
	OnEvict     EvictionHook
}

// Open opens or creates the script cache database.
func Open(path string, opts Options) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("script cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, domain.E(domain.CodeUnavailable, "scriptcache.open", "", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	idleHorizon := opts.IdleHorizon
	if idleHorizon == 0 {
		idleHorizon = domain.DefaultIdleHorizon
	}

	return &Store{
		db:          db,
		path:        trimmed,
		logger:      logger.Named("scriptcache"),
		metrics:     metrics,
		idleHorizon: idleHorizon,
		onEvict:     opts.OnEvict,
		now:         time.Now,
	}, nil
}

// SetEvictionHook installs the hook called after evictions. Must be
// called before the store is shared across goroutines.
func (s *Store) SetEvictionHook(hook EvictionHook) {
	s.onEvict = hook
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Get returns the Active entry for a signature. Entries in any other
// status are reported as misses; the idle horizon is checked on read
// so a stale entry cannot serve one last time.
func (s *Store) Get(signature domain.ActionSignature) (domain.CacheEntry, bool, error) {
	var entry domain.CacheEntry
	found := false
	err := s.view(func(tx *bolt.Tx) error {
		stored, ok, err := readEntry(tx, signature)
		if err != nil || !ok {
			return err
		}
		if stored.Status != domain.CacheStatusActive {
			return nil
		}
		if stored.IdleExpired(s.now(), s.idleHorizon) {
			return nil
		}
		entry = stored
		found = true
		return nil
	})
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	if found {
		s.metrics.ObserveCacheEvent(domain.CacheEventHit)
	} else {
		s.metrics.ObserveCacheEvent(domain.CacheEventMiss)
	}
	return entry, found, nil
}

// Inspect returns the entry for a signature regardless of status.
func (s *Store) Inspect(signature domain.ActionSignature) (domain.CacheEntry, bool, error) {
	var entry domain.CacheEntry
	found := false
	err := s.view(func(tx *bolt.Tx) error {
		stored, ok, err := readEntry(tx, signature)
		if err != nil || !ok {
			return err
		}
		entry = stored
		found = true
		return nil
	})
	return entry, found, err
}

// Put writes an entry, replacing any previous one for the signature.
// Used by the generator after a successful validation run.
func (s *Store) Put(entry domain.CacheEntry) error {
	if entry.Signature == "" {
		return fmt.Errorf("cache entry signature is required")
	}
	return s.update(func(tx *bolt.Tx) error {
		return writeEntry(tx, entry)
	})
}

// RecordOutcome folds an execution outcome into the entry and applies
// the eviction policy. An entry idle beyond the horizon is evicted
// before the outcome is considered. Returns the entry as stored (or
// as it was at eviction time) and whether it still exists.
func (s *Store) RecordOutcome(signature domain.ActionSignature, success bool) (domain.CacheEntry, bool, error) {
	var (
		entry       domain.CacheEntry
		exists      bool
		evicted     bool
		quarantined bool
	)
	err := s.update(func(tx *bolt.Tx) error {
		stored, ok, err := readEntry(tx, signature)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		now := s.now()
		if stored.IdleExpired(now, s.idleHorizon) {
			stored.Status = domain.CacheStatusEvicted
			entry, evicted = stored, true
			return deleteEntry(tx, signature)
		}

		before := stored.Status
		status := stored.Apply(success, now)
		switch status {
		case domain.CacheStatusEvicted:
			entry, evicted = stored, true
			return deleteEntry(tx, signature)
		case domain.CacheStatusQuarantined:
			quarantined = before != domain.CacheStatusQuarantined
		}
		entry, exists = stored, true
		return writeEntry(tx, stored)
	})
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	if quarantined {
		s.metrics.ObserveCacheEvent(domain.CacheEventQuarantine)
		s.logger.Warn("cache entry quarantined",
			zap.String("signature", signature.String()),
			zap.String("action", entry.ActionName),
			zap.Int("failures", entry.FailureCount),
		)
	}
	if evicted {
		s.finishEviction(entry)
	}
	return entry, exists, nil
}

// Evict removes an entry unconditionally. Used by the cleanup sweep
// and the operator CLI.
func (s *Store) Evict(signature domain.ActionSignature) (bool, error) {
	var entry domain.CacheEntry
	removed := false
	err := s.update(func(tx *bolt.Tx) error {
		stored, ok, err := readEntry(tx, signature)
		if err != nil || !ok {
			return err
		}
		stored.Status = domain.CacheStatusEvicted
		entry = stored
		removed = true
		return deleteEntry(tx, signature)
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.finishEviction(entry)
	}
	return removed, nil
}

// Cleanup sweeps the store and evicts entries idle beyond the
// horizon. Each eviction runs in its own transaction so the sweep
// never blocks readers or writers for longer than a single entry.
func (s *Store) Cleanup() (int, error) {
	now := s.now()
	var stale []domain.ActionSignature
	err := s.view(func(tx *bolt.Tx) error {
		return forEachEntry(tx, func(entry domain.CacheEntry) error {
			if entry.IdleExpired(now, s.idleHorizon) {
				stale = append(stale, entry.Signature)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, signature := range stale {
		removed, err := s.Evict(signature)
		if err != nil {
			return evicted, err
		}
		if removed {
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("idle cache entries evicted", zap.Int("count", evicted))
	}
	return evicted, nil
}

// List returns all entries ordered by action name then signature.
func (s *Store) List() ([]domain.CacheEntry, error) {
	var entries []domain.CacheEntry
	err := s.view(func(tx *bolt.Tx) error {
		return forEachEntry(tx, func(entry domain.CacheEntry) error {
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ActionName != entries[j].ActionName {
			return entries[i].ActionName < entries[j].ActionName
		}
		return entries[i].Signature < entries[j].Signature
	})
	return entries, nil
}

// RunCleanupLoop applies Cleanup on a fixed period until the context
// is done. Intended to run in its own goroutine.
func (s *Store) RunCleanupLoop(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = domain.DefaultCleanupIntervalSeconds * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := s.Cleanup(); err != nil {
				s.logger.Warn("cache cleanup failed", zap.Error(err))
			}
		}
	}
}

func (s *Store) finishEviction(entry domain.CacheEntry) {
	s.metrics.ObserveCacheEvent(domain.CacheEventEvict)
	s.logger.Info("cache entry evicted",
		zap.String("signature", entry.Signature.String()),
		zap.String("action", entry.ActionName),
	)
	if s.onEvict != nil {
		s.onEvict(entry)
	}
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	return s.db.Update(fn)
}

func scriptsBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(rootBucketName))
	if root == nil {
		return nil, fmt.Errorf("missing root bucket")
	}
	bucket := root.Bucket([]byte(scriptsBucketName))
	if bucket == nil {
		return nil, fmt.Errorf("missing scripts bucket")
	}
	return bucket, nil
}

func readEntry(tx *bolt.Tx, signature domain.ActionSignature) (domain.CacheEntry, bool, error) {
	bucket, err := scriptsBucket(tx)
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	raw := bucket.Get([]byte(signature))
	if raw == nil {
		return domain.CacheEntry{}, false, nil
	}
	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("decode entry %s: %w", signature, err)
	}
	return entry, true, nil
}

func writeEntry(tx *bolt.Tx, entry domain.CacheEntry) error {
	bucket, err := scriptsBucket(tx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.Signature, err)
	}
	return bucket.Put([]byte(entry.Signature), raw)
}

func deleteEntry(tx *bolt.Tx, signature domain.ActionSignature) error {
	bucket, err := scriptsBucket(tx)
	if err != nil {
		return err
	}
	return bucket.Delete([]byte(signature))
}

func forEachEntry(tx *bolt.Tx, fn func(domain.CacheEntry) error) error {
	bucket, err := scriptsBucket(tx)
	if err != nil {
		return err
	}
	return bucket.ForEach(func(_, raw []byte) error {
		if raw == nil {
			return nil
		}
		var entry domain.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		return fn(entry)
	})
}

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(rootBucketName))
		if err != nil {
			return fmt.Errorf("create root bucket: %w", err)
		}
		meta, err := root.CreateBucketIfNotExists([]byte(metaBucketName))
		if err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		if _, err := root.CreateBucketIfNotExists([]byte(scriptsBucketName)); err != nil {
			return fmt.Errorf("create scripts bucket: %w", err)
		}

		current := readSchemaVersion(meta)
		switch {
		case current == 0:
			return writeSchemaVersion(meta, schemaVersion)
		case current > schemaVersion:
			return fmt.Errorf("unsupported cache schema version %d", current)
		default:
			return nil
		}
	})
}

func readSchemaVersion(meta *bolt.Bucket) int {
	raw := meta.Get([]byte(versionKey))
	if len(raw) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(raw))
}

func writeSchemaVersion(meta *bolt.Bucket, version int) error {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, uint64(version))
	return meta.Put([]byte(versionKey), raw)
}
