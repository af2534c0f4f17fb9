// Package cache implements the namespaced two-tier cache the lookup
// pipeline is built on: an in-memory LRU tier in front of a compressed
// disk tier, with a single canonical key hasher and request coalescing
// through GetOrBuild.
package cache

import (
	"errors"
	"sync/atomic"
	"time"
)

// Compression selects the disk-tier codec for a namespace.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
)

// SizeClass drives memory-tier sizing for a namespace. Everything but
// the disk TTL derives from it.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// ErrCorrupted reports a disk-tier decoding failure. The offending
// entry is already deleted when this is returned; callers treat it as
// a miss.
var ErrCorrupted = errors.New("cache: corrupted entry")

// Stats holds per-namespace counters.
type Stats struct {
	Hits       atomic.Int64
	Misses     atomic.Int64
	Sets       atomic.Int64
	Evictions  atomic.Int64
	Promotions atomic.Int64
	Corrupted  atomic.Int64
}

// StatsSnapshot is an immutable copy of Stats for reporting.
type StatsSnapshot struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Sets       int64   `json:"sets"`
	Evictions  int64   `json:"evictions"`
	Promotions int64   `json:"promotions"`
	Corrupted  int64   `json:"corrupted"`
	HitRate    float64 `json:"hit_rate"`
}

func (s *Stats) snapshot() StatsSnapshot {
	hits, misses := s.Hits.Load(), s.Misses.Load()
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}
	return StatsSnapshot{
		Hits:       hits,
		Misses:     misses,
		Sets:       s.Sets.Load(),
		Evictions:  s.Evictions.Load(),
		Promotions: s.Promotions.Load(),
		Corrupted:  s.Corrupted.Load(),
		HitRate:    rate,
	}
}

// memEntry is a memory-tier value with its lazy-checked expiry.
type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}
