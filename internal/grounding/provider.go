// Package grounding supplies the read-only snapshot of known accounts and
// tags that biases extraction toward references that already exist. The
// snapshot only affects extraction quality, never correctness, so stale
// reads within the refresh window are acceptable.
package grounding

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/minhpq/hoard/internal/service"
)

// Snapshot is the grounding context for one extraction call.
type Snapshot struct {
	FetchedAt time.Time
	Accounts  []string
	Tags      []string
}

// Provider supplies the current grounding snapshot.
type Provider interface {
	Get(ctx context.Context) (Snapshot, error)
}

// StorageProvider builds snapshots from the persistence layer: vault names
// become account candidates and committed transaction tags become tag
// candidates, merged with any extra tags from configuration.
type StorageProvider struct {
	store     service.Storage
	extraTags []string
}

// NewStorageProvider creates a storage-backed grounding provider.
func NewStorageProvider(store service.Storage, extraTags []string) *StorageProvider {
	return &StorageProvider{store: store, extraTags: extraTags}
}

// Get assembles a fresh snapshot.
func (p *StorageProvider) Get(ctx context.Context) (Snapshot, error) {
	vaults, err := p.store.ListVaults(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list vaults for grounding: %w", err)
	}

	tags, err := p.store.ListKnownTags(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list tags for grounding: %w", err)
	}

	snap := Snapshot{FetchedAt: time.Now()}
	for _, v := range vaults {
		snap.Accounts = append(snap.Accounts, v.Name)
	}

	seen := make(map[string]bool, len(tags)+len(p.extraTags))
	for _, tag := range append(append([]string{}, tags...), p.extraTags...) {
		if tag != "" && !seen[tag] {
			seen[tag] = true
			snap.Tags = append(snap.Tags, tag)
		}
	}
	sort.Strings(snap.Tags)

	return snap, nil
}

// Cached wraps a Provider with a TTL. Concurrent extractions share one
// snapshot instead of hitting storage per request.
type Cached struct {
	provider Provider
	logger   *slog.Logger
	snapshot Snapshot
	ttl      time.Duration
	mu       sync.RWMutex
	valid    bool
}

// NewCached creates a caching wrapper with the given refresh interval.
func NewCached(provider Provider, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{provider: provider, ttl: ttl, logger: logger}
}

// Get returns the cached snapshot, refreshing it when stale. A failed
// refresh falls back to the previous snapshot rather than failing the
// extraction.
func (c *Cached) Get(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	if c.valid && time.Since(c.snapshot.FetchedAt) < c.ttl {
		snap := c.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && time.Since(c.snapshot.FetchedAt) < c.ttl {
		return c.snapshot, nil
	}

	snap, err := c.provider.Get(ctx)
	if err != nil {
		if c.valid {
			c.logger.Warn("grounding refresh failed, serving stale snapshot",
				"age", time.Since(c.snapshot.FetchedAt),
				"error", err)
			return c.snapshot, nil
		}
		return Snapshot{}, err
	}

	c.snapshot = snap
	c.valid = true
	return snap, nil
}
