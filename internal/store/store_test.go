package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisWithClient(client, "test")
}

func testEntry(fingerprint, tier string, createdAt time.Time) *types.SynthesizedEntry {
	return &types.SynthesizedEntry{
		ID:   "id-" + fingerprint,
		Word: types.Word{Text: "bank", Normalized: "bank", Language: "en"},
		Definitions: []types.SynthesizedDefinition{
			{ID: "d1", ClusterID: "c1", PartOfSpeech: "noun", Text: "a financial institution", Relevancy: 0.9},
		},
		ModelInfo:   types.ModelInfo{Model: "m", Tier: tier},
		Fingerprint: fingerprint,
		CreatedAt:   createdAt,
	}
}

// storeImpls runs the same contract against both implementations.
func storeImpls(t *testing.T) map[string]Store {
	return map[string]Store{
		"redis":  newRedisStore(t),
		"memory": NewMemory(),
	}
}

func TestStore_PublishAndGet(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entry := testEntry("fp1", "medium", time.Now().UTC())
			require.NoError(t, s.PublishEntry(ctx, entry))

			byFP, err := s.GetEntry(ctx, "fp1")
			require.NoError(t, err)
			assert.Equal(t, entry.ID, byFP.ID)
			require.Len(t, byFP.Definitions, 1)
			assert.Equal(t, "a financial institution", byFP.Definitions[0].Text)

			latest, err := s.GetLatest(ctx, entry.Word, "medium")
			require.NoError(t, err)
			assert.Equal(t, "fp1", latest.Fingerprint)
		})
	}
}

func TestStore_MissingIsNotFound(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.GetEntry(ctx, "nope")
			assert.Equal(t, lferrors.KindNotFound, lferrors.KindOf(err))

			_, err = s.GetLatest(ctx, types.Word{Normalized: "ghost", Language: "en"}, "medium")
			assert.Equal(t, lferrors.KindNotFound, lferrors.KindOf(err))
		})
	}
}

func TestStore_LatestPointerPerTier(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, s.PublishEntry(ctx, testEntry("fp-low", "low", now)))
			require.NoError(t, s.PublishEntry(ctx, testEntry("fp-high", "high", now)))

			word := types.Word{Text: "bank", Normalized: "bank", Language: "en"}
			low, err := s.GetLatest(ctx, word, "low")
			require.NoError(t, err)
			assert.Equal(t, "fp-low", low.Fingerprint)

			high, err := s.GetLatest(ctx, word, "high")
			require.NoError(t, err)
			assert.Equal(t, "fp-high", high.Fingerprint)
		})
	}
}

func TestStore_LatestNeverMovesBackwards(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			newer := testEntry("fp-new", "medium", now)
			older := testEntry("fp-old", "medium", now.Add(-time.Hour))

			require.NoError(t, s.PublishEntry(ctx, newer))
			require.NoError(t, s.PublishEntry(ctx, older))

			latest, err := s.GetLatest(ctx, newer.Word, "medium")
			require.NoError(t, err)
			assert.Equal(t, "fp-new", latest.Fingerprint, "stale publish must not move the pointer back")

			// The older record itself is still addressable.
			old, err := s.GetEntry(ctx, "fp-old")
			require.NoError(t, err)
			assert.Equal(t, "fp-old", old.Fingerprint)
		})
	}
}

func TestStore_RepublishSameFingerprintIsIdempotent(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entry := testEntry("fp1", "medium", time.Now().UTC())
			require.NoError(t, s.PublishEntry(ctx, entry))
			require.NoError(t, s.PublishEntry(ctx, entry))

			latest, err := s.GetLatest(ctx, entry.Word, "medium")
			require.NoError(t, err)
			assert.Equal(t, "fp1", latest.Fingerprint)
		})
	}
}

func TestStore_ProviderDataAppendOnly(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			word := types.Word{Text: "bank", Normalized: "bank", Language: "en"}

			first := &types.ProviderData{Provider: "alpha", Word: word, Status: types.ProviderStatusOK}
			second := &types.ProviderData{Provider: "beta", Word: word, Status: types.ProviderStatusError, Error: "boom"}
			require.NoError(t, s.AppendProviderData(ctx, first))
			require.NoError(t, s.AppendProviderData(ctx, second))

			rows, err := s.ListProviderData(ctx, word)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "alpha", rows[0].Provider)
			assert.Equal(t, "beta", rows[1].Provider)
		})
	}
}

func TestStore_PublishWithoutFingerprintRejected(t *testing.T) {
	for name, s := range storeImpls(t) {
		t.Run(name, func(t *testing.T) {
			entry := testEntry("", "medium", time.Now().UTC())
			err := s.PublishEntry(context.Background(), entry)
			assert.Equal(t, lferrors.KindStorageError, lferrors.KindOf(err))
		})
	}
}
