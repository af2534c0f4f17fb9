package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/goccy/go-json"
)

// Cache is the process-wide namespaced two-tier cache. All operations
// go through one mutex; compression and disk I/O run outside it.
type Cache struct {
	mu      sync.Mutex
	nss     map[string]*namespace
	disk    *diskTier // nil means memory-only
	flights map[string]*flight
	logger  *slog.Logger
}

type namespace struct {
	cfg   NamespaceConfig
	lru   *lru.LRU[string, memEntry]
	stats Stats
}

// Config holds cache-wide settings.
type Config struct {
	DiskRoot   string            `yaml:"disk_root"`
	Namespaces []NamespaceConfig `yaml:"namespaces"`
}

// New creates the cache and registers the namespace table. An empty
// DiskRoot disables the disk tier entirely.
func New(cfg Config, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Namespaces) == 0 {
		cfg.Namespaces = DefaultNamespaces()
	}

	c := &Cache{
		nss:     make(map[string]*namespace, len(cfg.Namespaces)),
		flights: make(map[string]*flight),
		logger:  logger,
	}

	if cfg.DiskRoot != "" {
		disk, err := newDiskTier(cfg.DiskRoot)
		if err != nil {
			// Disk failures degrade to memory-only.
			logger.Warn("disk cache unavailable, running memory-only", "error", err)
		} else {
			c.disk = disk
		}
	}

	for _, nsCfg := range cfg.Namespaces {
		nsCfg.derive()
		ns := &namespace{cfg: nsCfg}
		l, err := lru.NewLRU[string, memEntry](nsCfg.MemoryLimit, func(string, memEntry) {
			ns.stats.Evictions.Add(1)
		})
		if err != nil {
			return nil, err
		}
		ns.lru = l
		c.nss[nsCfg.Name] = ns
	}
	return c, nil
}

// ns resolves a namespace, falling back to the default namespace for
// unknown names.
func (c *Cache) ns(name string) *namespace {
	if ns, ok := c.nss[name]; ok {
		return ns
	}
	return c.nss[NSDefault]
}

// Get returns the most recent non-expired value for (ns, key), or nil
// on miss. A memory miss consults the disk tier; a disk hit is promoted
// into memory, evicting LRU entries as needed.
func (c *Cache) Get(ctx context.Context, nsName, key string) ([]byte, error) {
	ns := c.ns(nsName)
	now := time.Now()

	c.mu.Lock()
	if entry, ok := ns.lru.Get(key); ok {
		if !entry.expired(now) {
			ns.stats.Hits.Add(1)
			c.mu.Unlock()
			return entry.value, nil
		}
		ns.lru.Remove(key)
	}
	c.mu.Unlock()

	if c.disk == nil || ns.cfg.DiskTTL <= 0 {
		ns.stats.Misses.Add(1)
		return nil, nil
	}

	// Disk read and decompression outside the lock.
	value, err := c.disk.get(ns.cfg.Name, key, ns.cfg.Compression)
	if err == ErrCorrupted {
		ns.stats.Corrupted.Add(1)
		ns.stats.Misses.Add(1)
		return nil, nil
	}
	if err != nil {
		c.logger.Warn("disk cache read failed", "namespace", ns.cfg.Name, "error", err)
		ns.stats.Misses.Add(1)
		return nil, nil
	}
	if value == nil {
		ns.stats.Misses.Add(1)
		return nil, nil
	}

	// Promote to memory. Add is the same eviction path Set uses.
	c.mu.Lock()
	ns.lru.Add(key, memEntry{value: value, expiresAt: now.Add(ns.cfg.MemoryTTL)})
	c.mu.Unlock()
	ns.stats.Hits.Add(1)
	ns.stats.Promotions.Add(1)
	return value, nil
}

// Set stores a value in memory and, when the namespace has a disk TTL,
// on disk. ttlOverride overrides the namespace disk TTL when positive.
func (c *Cache) Set(ctx context.Context, nsName, key string, value []byte, ttlOverride time.Duration) error {
	ns := c.ns(nsName)

	c.mu.Lock()
	ns.lru.Add(key, memEntry{value: value, expiresAt: time.Now().Add(ns.cfg.MemoryTTL)})
	c.mu.Unlock()
	ns.stats.Sets.Add(1)

	if c.disk == nil || ns.cfg.DiskTTL <= 0 {
		return nil
	}
	ttl := ns.cfg.DiskTTL
	if ttlOverride > 0 {
		ttl = ttlOverride
	}
	if err := c.disk.set(ns.cfg.Name, key, value, ttl, ns.cfg.Compression); err != nil {
		// Disk failures degrade to memory-only.
		c.logger.Warn("disk cache write failed", "namespace", ns.cfg.Name, "error", err)
	}
	return nil
}

// Delete removes a key from both tiers.
func (c *Cache) Delete(ctx context.Context, nsName, key string) error {
	ns := c.ns(nsName)

	c.mu.Lock()
	ns.lru.Remove(key)
	c.mu.Unlock()

	if c.disk != nil {
		return c.disk.delete(ns.cfg.Name, key)
	}
	return nil
}

// Stats returns a snapshot of per-namespace counters.
func (c *Cache) Stats() map[string]StatsSnapshot {
	out := make(map[string]StatsSnapshot, len(c.nss))
	for name, ns := range c.nss {
		out[name] = ns.stats.snapshot()
	}
	return out
}

// GetJSON fetches and decodes a value. The bool reports presence.
func GetJSON[T any](ctx context.Context, c *Cache, ns, key string) (T, bool, error) {
	var zero T
	data, err := c.Get(ctx, ns, key)
	if err != nil || data == nil {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		// Decoding corruption is treated as a miss and the entry deleted.
		_ = c.Delete(ctx, ns, key)
		return zero, false, nil
	}
	return v, true, nil
}

// SetJSON encodes and stores a value.
func SetJSON[T any](ctx context.Context, c *Cache, ns, key string, v T, ttlOverride time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, ns, key, data, ttlOverride)
}
