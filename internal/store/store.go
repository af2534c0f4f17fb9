// Package store persists synthesized entries. Entries are immutable
// records keyed by fingerprint; a mutable "latest" pointer per
// (word, tier) names the current version.
package store

import (
	"context"

	"github.com/wordisle/lexiforge/pkg/types"
)

// Store is the persistence interface the pipeline writes through.
type Store interface {
	// PublishEntry saves the entry under its fingerprint and moves the
	// latest pointer for (word, tier) to it atomically. Publishing the
	// same fingerprint twice is a no-op for the record.
	PublishEntry(ctx context.Context, entry *types.SynthesizedEntry) error

	// GetEntry loads a specific version by fingerprint. Returns a
	// not_found error when absent.
	GetEntry(ctx context.Context, fingerprint string) (*types.SynthesizedEntry, error)

	// GetLatest resolves the latest pointer for (word, tier) and loads
	// that version. Returns a not_found error when absent.
	GetLatest(ctx context.Context, word types.Word, tier string) (*types.SynthesizedEntry, error)

	// AppendProviderData records one provider fetch. Rows are
	// append-only.
	AppendProviderData(ctx context.Context, data *types.ProviderData) error

	// ListProviderData returns all recorded fetches for a word, oldest
	// first.
	ListProviderData(ctx context.Context, word types.Word) ([]*types.ProviderData, error)

	// Ping reports backend health.
	Ping(ctx context.Context) error

	Close() error
}
