package store

import (
	"context"
	"sync"

	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

// MemoryStore is an in-process Store for tests and single-node runs
// without Redis.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]*types.SynthesizedEntry
	latest   map[string]string
	provider map[string][]*types.ProviderData
}

// NewMemory creates an empty memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*types.SynthesizedEntry),
		latest:   make(map[string]string),
		provider: make(map[string][]*types.ProviderData),
	}
}

func latestKey(word types.Word, tier string) string {
	return word.Normalized + ":" + word.Language + ":" + tier
}

// PublishEntry stores the record and moves the latest pointer.
func (s *MemoryStore) PublishEntry(_ context.Context, entry *types.SynthesizedEntry) error {
	if entry.Fingerprint == "" {
		return lferrors.New(lferrors.KindStorageError, "entry has no fingerprint")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.entries[entry.Fingerprint] = &copied

	key := latestKey(entry.Word, entry.ModelInfo.Tier)
	if current, ok := s.latest[key]; ok && current != entry.Fingerprint {
		if existing, ok := s.entries[current]; ok && existing.CreatedAt.After(entry.CreatedAt) {
			return nil
		}
	}
	s.latest[key] = entry.Fingerprint
	return nil
}

// GetEntry loads a version by fingerprint.
func (s *MemoryStore) GetEntry(_ context.Context, fingerprint string) (*types.SynthesizedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[fingerprint]
	if !ok {
		return nil, lferrors.New(lferrors.KindNotFound, "no entry for fingerprint")
	}
	copied := *entry
	return &copied, nil
}

// GetLatest resolves the pointer for (word, tier).
func (s *MemoryStore) GetLatest(_ context.Context, word types.Word, tier string) (*types.SynthesizedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fingerprint, ok := s.latest[latestKey(word, tier)]
	if !ok {
		return nil, lferrors.New(lferrors.KindNotFound, "no entry for word")
	}
	entry, ok := s.entries[fingerprint]
	if !ok {
		return nil, lferrors.New(lferrors.KindStorageError, "latest pointer names a missing record")
	}
	copied := *entry
	return &copied, nil
}

// AppendProviderData appends one fetch row.
func (s *MemoryStore) AppendProviderData(_ context.Context, data *types.ProviderData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *data
	key := data.Word.Normalized + ":" + data.Word.Language
	s.provider[key] = append(s.provider[key], &copied)
	return nil
}

// ListProviderData returns recorded fetches, oldest first.
func (s *MemoryStore) ListProviderData(_ context.Context, word types.Word) ([]*types.ProviderData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.provider[word.Normalized+":"+word.Language]
	out := make([]*types.ProviderData, len(rows))
	for i, r := range rows {
		copied := *r
		out[i] = &copied
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
