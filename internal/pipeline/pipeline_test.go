package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordisle/lexiforge/internal/cache"
	"github.com/wordisle/lexiforge/internal/dictprov"
	"github.com/wordisle/lexiforge/internal/llm"
	"github.com/wordisle/lexiforge/internal/progress"
	"github.com/wordisle/lexiforge/internal/resolver"
	"github.com/wordisle/lexiforge/internal/store"
	"github.com/wordisle/lexiforge/internal/synth"
	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const dictSample = `[{
	"word": "bank",
	"phonetic": "/bæŋk/",
	"meanings": [{
		"partOfSpeech": "noun",
		"definitions": [
			{"definition": "a financial institution", "example": "the bank closed"},
			{"definition": "the side of a river"}
		]
	}]
}]`

// llmHandler answers clustering, synthesis and component calls with
// canned content, counting completions.
func llmHandler(calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			ResponseFormat struct {
				JSONSchema struct {
					Name string `json:"name"`
				} `json:"json_schema"`
			} `json:"response_format"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		var content string
		switch req.ResponseFormat.JSONSchema.Name {
		case "meaning_clusters":
			content = `{"clusters":[{"label":"finance","confidence":0.9,"definition_indexes":[0]},{"label":"river","confidence":0.9,"definition_indexes":[1]}]}`
		case "synthesized_definitions":
			content = `{"definitions":[{"text":"A place that keeps money.","part_of_speech":"noun","relevancy":0.9}]}`
		case "synonyms":
			content = `{"synonyms":["depository"]}`
		default:
			content = `{}`
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
			"usage":   map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}
}

type testEnv struct {
	pipeline      *Pipeline
	store         *store.MemoryStore
	providerCalls *atomic.Int32
	providerFail  *atomic.Bool
	llmCalls      *atomic.Int32

	// newPipeline rebuilds the pipeline over the same components with a
	// different store.
	newPipeline func(st store.Store) *Pipeline
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	providerCalls := &atomic.Int32{}
	providerFail := &atomic.Bool{}
	dictSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providerCalls.Add(1)
		if providerFail.Load() {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(dictSample))
	}))
	t.Cleanup(dictSrv.Close)

	llmCalls := &atomic.Int32{}
	llmSrv := httptest.NewServer(llmHandler(llmCalls))
	t.Cleanup(llmSrv.Close)

	c, err := cache.New(cache.Config{DiskRoot: t.TempDir()}, testLogger())
	require.NoError(t, err)

	reg := dictprov.NewRegistry()
	dictprov.RegisterBuiltins(reg)
	_, err = reg.Create(dictprov.Config{Name: "freedict", Type: dictprov.TypeFreedict, BaseURL: dictSrv.URL},
		dictprov.Transport{Client: &http.Client{Timeout: 5 * time.Second}, Limiter: noGate{}})
	require.NoError(t, err)
	fetcher := dictprov.NewFetcher(dictprov.DefaultFetcherConfig(), reg, c, testLogger())

	llmCfg := llm.DefaultConfig()
	llmCfg.BaseURL = llmSrv.URL
	llmCfg.APIKey = "test-key"
	client, err := llm.NewClient(llmCfg, c, nil, testLogger())
	require.NoError(t, err)

	words := []types.Word{{Text: "bank", Normalized: "bank", Language: "en"}}
	res := resolver.New(resolver.DefaultConfig(), words, nil, testLogger())

	sy := synth.New(synth.DefaultConfig(), client, nil, testLogger())
	st := store.NewMemory()

	newPipeline := func(st store.Store) *Pipeline {
		return New(cfg, res, fetcher, sy, client, st, c, testLogger())
	}
	return &testEnv{
		pipeline:      newPipeline(st),
		store:         st,
		providerCalls: providerCalls,
		providerFail:  providerFail,
		llmCalls:      llmCalls,
		newPipeline:   newPipeline,
	}
}

type noGate struct{}

func (noGate) Acquire(context.Context, string) error { return nil }
func (noGate) Release(string)                        {}
func (noGate) RecordSuccess(string)                  {}
func (noGate) RecordError(string, time.Duration)     {}

func lookupOpts() Options {
	return Options{Components: []string{"synonyms"}}
}

func TestLookup(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	tracker := progress.NewTracker(progress.CategoryLookup)
	ch, cancel := tracker.Subscribe()
	defer cancel()

	var mu sync.Mutex
	var partials []*types.SynthesizedEntry
	emit := func(stage string, e *types.SynthesizedEntry) {
		mu.Lock()
		partials = append(partials, e)
		mu.Unlock()
	}

	res, err := env.pipeline.Lookup(context.Background(), "Bank!", lookupOpts(), tracker, emit)
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	assert.False(t, res.FromCache)

	entry := res.Entry
	assert.Len(t, entry.Definitions, 2)
	assert.NotEmpty(t, entry.Fingerprint)
	assert.Equal(t, PipelineVersion, entry.VersionInfo.PipelineVersion)
	assert.Equal(t, []string{"freedict"}, entry.ProviderSet)
	assert.Contains(t, entry.ModelInfo.ComponentsSucceeded, "synonyms")

	// Published to the store under its fingerprint and as latest.
	stored, err := env.store.GetLatest(context.Background(), entry.Word, entry.ModelInfo.Tier)
	require.NoError(t, err)
	assert.Equal(t, entry.Fingerprint, stored.Fingerprint)

	// Progress is monotone and terminal is a single complete.
	last := -1
	terminals := 0
	for {
		var e progress.StateChange
		select {
		case e = <-ch:
		default:
			e = progress.StateChange{}
		}
		if e.Kind == "" {
			break
		}
		assert.GreaterOrEqual(t, e.Progress, last)
		last = e.Progress
		if e.Terminal {
			terminals++
			assert.Equal(t, progress.ChangeComplete, e.Kind)
		}
	}
	assert.Equal(t, 1, terminals)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, partials, "partials must be emitted while synthesis runs")
}

func TestLookup_SecondCallServedFromCache(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	_, err := env.pipeline.Lookup(context.Background(), "bank", lookupOpts(), progress.NewTracker(progress.CategoryLookup), nil)
	require.NoError(t, err)
	providerCallsAfterFirst := env.providerCalls.Load()

	res, err := env.pipeline.Lookup(context.Background(), "bank", lookupOpts(), progress.NewTracker(progress.CategoryLookup), nil)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, providerCallsAfterFirst, env.providerCalls.Load(), "cached lookup must not refetch providers")
}

func TestLookup_ForceRefreshBypassesOnlyEntryCache(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	first, err := env.pipeline.Lookup(context.Background(), "bank", lookupOpts(), progress.NewTracker(progress.CategoryLookup), nil)
	require.NoError(t, err)

	opts := lookupOpts()
	opts.ForceRefresh = true
	second, err := env.pipeline.Lookup(context.Background(), "bank", opts, progress.NewTracker(progress.CategoryLookup), nil)
	require.NoError(t, err)

	assert.False(t, second.FromCache)
	// Provider cache still applies: one provider fetch total.
	assert.Equal(t, int32(1), env.providerCalls.Load())
	// Identical inputs produce the identical fingerprint.
	assert.Equal(t, first.Entry.Fingerprint, second.Entry.Fingerprint)
}

func TestLookup_NotFound(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	tracker := progress.NewTracker(progress.CategoryLookup)

	_, err := env.pipeline.Lookup(context.Background(), "qwzzyx", lookupOpts(), tracker, nil)
	require.Error(t, err)
	assert.Equal(t, lferrors.KindNotFound, lferrors.KindOf(err))
	assert.True(t, tracker.Terminal())
	assert.Zero(t, env.llmCalls.Load())
}

func TestLookup_AIOffPassthrough(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AIEnabled = false
	env := newTestEnv(t, cfg)

	res, err := env.pipeline.Lookup(context.Background(), "bank", Options{}, progress.NewTracker(progress.CategoryLookup), nil)
	require.NoError(t, err)

	entry := res.Entry
	assert.Zero(t, env.llmCalls.Load(), "passthrough must not call the llm")
	assert.Equal(t, "none", entry.ModelInfo.Model)
	assert.Len(t, entry.Definitions, 2)
	assert.Equal(t, "a financial institution", entry.Definitions[0].Text)
	assert.Contains(t, entry.Definitions[0].Examples.Literature, "the bank closed")
	assert.NotEmpty(t, entry.Fingerprint)
}

func TestLookup_AllProvidersFailedAIOff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AIEnabled = false
	env := newTestEnv(t, cfg)
	env.providerFail.Store(true)

	_, err := env.pipeline.Lookup(context.Background(), "bank", Options{}, progress.NewTracker(progress.CategoryLookup), nil)
	require.Error(t, err)
	assert.Equal(t, lferrors.KindUpstreamUnavailable, lferrors.KindOf(err))
	assert.Zero(t, env.llmCalls.Load())
}

func TestLookup_AllProvidersFailedFallsBackToModel(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.providerFail.Store(true)

	res, err := env.pipeline.Lookup(context.Background(), "bank", lookupOpts(), progress.NewTracker(progress.CategoryLookup), nil)
	require.NoError(t, err)

	entry := res.Entry
	require.NotEmpty(t, entry.Definitions)
	assert.Empty(t, entry.ProviderSet, "model-only entries name no providers")
	assert.NotEmpty(t, entry.Fingerprint)
	assert.Positive(t, env.llmCalls.Load(), "fallback must synthesize from the model")
}

type publishFailStore struct {
	*store.MemoryStore
}

func (s *publishFailStore) PublishEntry(context.Context, *types.SynthesizedEntry) error {
	return lferrors.New(lferrors.KindStorageError, "store down")
}

func TestLookup_StorageErrorStillReturnsEntry(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	p := env.newPipeline(&publishFailStore{env.store})

	res, err := p.Lookup(context.Background(), "bank", lookupOpts(), progress.NewTracker(progress.CategoryLookup), nil)
	require.Error(t, err)
	assert.Equal(t, lferrors.KindStorageError, lferrors.KindOf(err))
	require.NotNil(t, res, "the built entry must survive a storage failure")
	require.NotNil(t, res.Entry)
	assert.NotEmpty(t, res.Entry.Fingerprint)
	assert.Len(t, res.Entry.Definitions, 2)
}

func TestLookup_ShuttingDown(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	env.pipeline.Shutdown()

	_, err := env.pipeline.Lookup(context.Background(), "bank", lookupOpts(), progress.NewTracker(progress.CategoryLookup), nil)
	require.Error(t, err)
	assert.Equal(t, lferrors.KindShuttingDown, lferrors.KindOf(err))
}

func TestLookup_CancelledMapsToTaxonomy(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tracker := progress.NewTracker(progress.CategoryLookup)
	_, err := env.pipeline.Lookup(ctx, "bank", lookupOpts(), tracker, nil)
	require.Error(t, err)
	assert.Equal(t, lferrors.KindCancelled, lferrors.KindOf(err))
	assert.True(t, tracker.Terminal())
}

func TestFingerprint(t *testing.T) {
	word := types.Word{Text: "bank", Normalized: "bank", Language: "en"}
	a := &types.ProviderData{Provider: "alpha", Word: word, Status: types.ProviderStatusOK,
		RawDefinitions: []types.RawDefinition{{Text: "x"}}}
	b := &types.ProviderData{Provider: "beta", Word: word, Status: types.ProviderStatusOK,
		RawDefinitions: []types.RawDefinition{{Text: "y"}}}

	fp1 := Fingerprint([]*types.ProviderData{a, b}, "medium/m/t", "1")
	fp2 := Fingerprint([]*types.ProviderData{b, a}, "medium/m/t", "1")
	assert.Equal(t, fp1, fp2, "provider order must not matter")

	assert.NotEqual(t, fp1, Fingerprint([]*types.ProviderData{a, b}, "high/m/t", "1"), "model identity changes fingerprint")
	assert.NotEqual(t, fp1, Fingerprint([]*types.ProviderData{a, b}, "medium/m/t", "2"), "pipeline version changes fingerprint")
	assert.NotEqual(t, fp1, Fingerprint([]*types.ProviderData{a}, "medium/m/t", "1"), "provider set changes fingerprint")

	// Error rows do not contribute.
	errRow := &types.ProviderData{Provider: "gamma", Word: word, Status: types.ProviderStatusError}
	assert.Equal(t, fp1, Fingerprint([]*types.ProviderData{a, b, errRow}, "medium/m/t", "1"))
}
