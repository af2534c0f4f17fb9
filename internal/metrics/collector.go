package metrics

import (
	"context"
	"time"

	"github.com/wordisle/lexiforge/internal/cache"
)

// CacheStatsInterval is how often the per-namespace cache counters are
// copied into the exported gauges.
const CacheStatsInterval = 15 * time.Second

// WatchCacheStats mirrors cache counters into Prometheus gauges until
// ctx is done.
func WatchCacheStats(ctx context.Context, c *cache.Cache) {
	ticker := time.NewTicker(CacheStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			PublishCacheStats(c)
		}
	}
}

// PublishCacheStats copies the current snapshot into the gauges.
func PublishCacheStats(c *cache.Cache) {
	for ns, snap := range c.Stats() {
		CacheHits.WithLabelValues(ns).Set(float64(snap.Hits))
		CacheMisses.WithLabelValues(ns).Set(float64(snap.Misses))
		CacheHitRate.WithLabelValues(ns).Set(snap.HitRate)
	}
}
