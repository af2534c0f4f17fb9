// Package pipeline orchestrates one lookup end to end: resolve,
// fetch providers, synthesize, publish, and stream progress.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wordisle/lexiforge/internal/cache"
	"github.com/wordisle/lexiforge/internal/dictprov"
	"github.com/wordisle/lexiforge/internal/llm"
	"github.com/wordisle/lexiforge/internal/metrics"
	"github.com/wordisle/lexiforge/internal/progress"
	"github.com/wordisle/lexiforge/internal/resolver"
	"github.com/wordisle/lexiforge/internal/store"
	"github.com/wordisle/lexiforge/internal/synth"
	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

// Config tunes the pipeline. Reconfigure swaps it atomically; changes
// take effect on the next request.
type Config struct {
	Deadline  time.Duration `yaml:"deadline" json:"deadline"`
	AIEnabled bool          `yaml:"ai_enabled" json:"ai_enabled"`
	ModelTier llm.Tier      `yaml:"model_tier" json:"model_tier"`
	Providers []string      `yaml:"providers" json:"providers"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		Deadline:  60 * time.Second,
		AIEnabled: true,
		ModelTier: llm.TierMedium,
	}
}

// Validate enforces bounds.
func (c *Config) Validate() error {
	if c.Deadline <= 0 {
		c.Deadline = DefaultConfig().Deadline
	}
	if c.ModelTier == "" {
		c.ModelTier = DefaultConfig().ModelTier
	}
	return nil
}

// rawTier is the latest-pointer tier used for AI-off passthrough
// entries; it never collides with model tiers.
const rawTier = "raw"

// Options are per-request knobs.
type Options struct {
	// ForceRefresh bypasses the synthesized-entry cache only; provider
	// and LLM caches still apply.
	ForceRefresh bool

	// Components restricts enhancement; empty means all missing.
	Components []string

	// Providers overrides the configured provider set for this request.
	Providers []string

	// Languages restricts which resolved words are acceptable; empty
	// accepts any.
	Languages []string

	// NoAI forces provider passthrough regardless of configuration.
	NoAI bool
}

// Result is a finished lookup.
type Result struct {
	Entry     *types.SynthesizedEntry
	FromCache bool
}

// Emitter receives progressive partial entries while a lookup runs.
// stage names match the progress package.
type Emitter func(stage string, entry *types.SynthesizedEntry)

// Pipeline wires the lookup components together.
type Pipeline struct {
	cfg      atomic.Pointer[Config]
	resolver *resolver.Resolver
	fetcher  *dictprov.Fetcher
	synth    *synth.Synthesizer
	llm      *llm.Client
	store    store.Store
	cache    *cache.Cache
	logger   *slog.Logger

	shuttingDown atomic.Bool
}

// New creates a pipeline.
func New(cfg Config, res *resolver.Resolver, fetcher *dictprov.Fetcher, sy *synth.Synthesizer, client *llm.Client, st store.Store, c *cache.Cache, logger *slog.Logger) *Pipeline {
	_ = cfg.Validate()
	p := &Pipeline{
		resolver: res,
		fetcher:  fetcher,
		synth:    sy,
		llm:      client,
		store:    st,
		cache:    c,
		logger:   logger.With(slog.String("component", "pipeline")),
	}
	p.cfg.Store(&cfg)
	return p
}

// Reconfigure swaps the pipeline configuration.
func (p *Pipeline) Reconfigure(cfg Config) {
	_ = cfg.Validate()
	p.cfg.Store(&cfg)
}

// Config returns the active configuration.
func (p *Pipeline) Config() Config { return *p.cfg.Load() }

// Shutdown makes the pipeline refuse new lookups.
func (p *Pipeline) Shutdown() { p.shuttingDown.Store(true) }

// Resolver exposes the resolver for the search endpoints.
func (p *Pipeline) Resolver() *resolver.Resolver { return p.resolver }

// Lookup runs the full pipeline for one query. The tracker receives
// every stage transition and exactly one terminal event; emit (may be
// nil) receives cumulative partial entries at clustering, synthesis
// and per-component boundaries. When publishing fails the request
// errors with storage_error but the built entry is still returned
// alongside the error.
func (p *Pipeline) Lookup(ctx context.Context, query string, opts Options, tracker *progress.Tracker, emit Emitter) (*Result, error) {
	if p.shuttingDown.Load() {
		err := lferrors.New(lferrors.KindShuttingDown, "server is shutting down")
		tracker.Error(err.Kind, err.Message)
		return nil, err
	}

	cfg := *p.cfg.Load()
	if opts.NoAI {
		cfg.AIEnabled = false
	}
	if len(opts.Providers) > 0 {
		cfg.Providers = opts.Providers
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Deadline)
	defer cancel()

	tier := string(cfg.ModelTier)
	if !cfg.AIEnabled {
		tier = rawTier
	}
	metrics.ActiveLookups.Inc()
	defer metrics.ActiveLookups.Dec()
	start := time.Now()

	res, err := p.lookup(ctx, cfg, query, opts, tracker, emit)
	if err != nil {
		le := asLookupError(ctx, err)
		tracker.Error(le.Kind, le.Message)
		metrics.RecordLookup(tier, le.Kind, false, time.Since(start))
		return res, le
	}
	tracker.Complete()
	metrics.RecordLookup(tier, "success", res.FromCache, time.Since(start))
	return res, nil
}

func (p *Pipeline) lookup(ctx context.Context, cfg Config, query string, opts Options, tracker *progress.Tracker, emit Emitter) (*Result, error) {
	requestID := uuid.NewString()
	logger := p.logger.With(slog.String("request_id", requestID), slog.String("query", query))

	results, err := p.resolver.Resolve(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, lferrors.NotFound(query)
	}
	word, ok := pickWord(results, opts.Languages)
	if !ok {
		return nil, lferrors.NotFound(query)
	}

	tier := string(cfg.ModelTier)
	if !cfg.AIEnabled {
		tier = rawTier
	}

	// Stage updates begin only once the entry cache has missed, so a
	// cache hit streams nothing but its terminal frame.
	if !opts.ForceRefresh {
		if entry, ok := p.cachedEntry(ctx, word, tier); ok {
			logger.Info("lookup served from entry cache", slog.String("fingerprint", entry.Fingerprint))
			return &Result{Entry: entry, FromCache: true}, nil
		}
	}

	tracker.Update(progress.StageStart, "request accepted", nil)
	tracker.Update(progress.StageSearch, "query resolved", nil)
	tracker.Update(progress.StageProviders, "fetching providers", nil)
	data := p.fetcher.Fetch(ctx, word, cfg.Providers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, pd := range data {
		if err := p.store.AppendProviderData(ctx, pd); err != nil {
			logger.Warn("provider history write failed", slog.String("error", err.Error()))
		}
	}

	entry, err := p.buildEntry(ctx, cfg, word, data, opts, tracker, emit)
	if err != nil {
		return nil, err
	}

	tracker.Update(progress.StageSave, "publishing entry", nil)
	if err := p.publish(ctx, entry, tier); err != nil {
		// Storage failure fails the request, but the built entry still
		// goes back to the caller.
		return &Result{Entry: entry}, err
	}
	logger.Info("lookup complete",
		slog.String("fingerprint", entry.Fingerprint),
		slog.Int("definitions", len(entry.Definitions)))
	return &Result{Entry: entry}, nil
}

func (p *Pipeline) buildEntry(ctx context.Context, cfg Config, word types.Word, data []*types.ProviderData, opts Options, tracker *progress.Tracker, emit Emitter) (*types.SynthesizedEntry, error) {
	if allProvidersFailed(data) {
		return p.buildFallbackEntry(ctx, cfg, word, data, opts, tracker, emit)
	}

	if !cfg.AIEnabled {
		entry, err := passthroughEntry(word, data)
		if err != nil {
			return nil, err
		}
		p.stamp(entry, data, "raw/none/")
		return entry, nil
	}

	model, templateID, err := p.llm.ModelIdentity(cfg.ModelTier, llm.TemplateSynthesizeCluster)
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindLLMError, err, "model identity unavailable")
	}
	identity := types.ModelInfo{Model: model, Tier: string(cfg.ModelTier), TemplateHash: templateID}.Identity()

	// An already-published identical build can be reused wholesale.
	if !opts.ForceRefresh {
		if existing, err := p.store.GetEntry(ctx, Fingerprint(data, identity, PipelineVersion)); err == nil {
			return existing, nil
		}
	}

	hooks := synth.Hooks{
		OnClusters: func(clusters []types.MeaningCluster) {
			tracker.Update(progress.StageClustering, "senses clustered", nil)
			tracker.Update(progress.StageSynthesis, "writing definitions", nil)
		},
		OnDefinitions: func(e *types.SynthesizedEntry) {
			if emit != nil {
				emit(progress.StageSynthesis, snapshot(e))
			}
			tracker.Update(progress.StageEnhance, "enhancing entry", nil)
		},
		OnComponent: func(component string, e *types.SynthesizedEntry) {
			tracker.Update(progress.StageEnhance, "component "+component+" applied", nil)
			if emit != nil {
				emit(progress.StageEnhance, snapshot(e))
			}
		},
	}

	entry, err := p.synth.Synthesize(ctx, synth.Request{
		Word:         word,
		ProviderData: data,
		Components:   opts.Components,
		Hooks:        hooks,
	})
	if err != nil {
		return nil, err
	}
	entry.ModelInfo.Model = model
	entry.ModelInfo.Tier = string(cfg.ModelTier)
	entry.ModelInfo.TemplateHash = templateID
	p.stamp(entry, data, entry.ModelInfo.Identity())
	return entry, nil
}

// buildFallbackEntry handles the case where every provider fetch
// failed. With AI off there is nothing to serve; with AI on the model
// writes the entry from its own knowledge.
func (p *Pipeline) buildFallbackEntry(ctx context.Context, cfg Config, word types.Word, data []*types.ProviderData, opts Options, tracker *progress.Tracker, emit Emitter) (*types.SynthesizedEntry, error) {
	if !cfg.AIEnabled || p.llm == nil {
		return nil, lferrors.New(lferrors.KindUpstreamUnavailable, "all dictionary providers failed")
	}

	model, templateID, err := p.llm.ModelIdentity(cfg.ModelTier, llm.TemplateDirectDefinitions)
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindLLMError, err, "model identity unavailable")
	}

	tracker.Update(progress.StageSynthesis, "writing definitions from model knowledge", nil)
	hooks := synth.Hooks{
		OnDefinitions: func(e *types.SynthesizedEntry) {
			if emit != nil {
				emit(progress.StageSynthesis, snapshot(e))
			}
			tracker.Update(progress.StageEnhance, "enhancing entry", nil)
		},
		OnComponent: func(component string, e *types.SynthesizedEntry) {
			tracker.Update(progress.StageEnhance, "component "+component+" applied", nil)
			if emit != nil {
				emit(progress.StageEnhance, snapshot(e))
			}
		},
	}

	entry, err := p.synth.SynthesizeDirect(ctx, synth.Request{
		Word:       word,
		Components: opts.Components,
		Hooks:      hooks,
	})
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindUpstreamUnavailable, err,
			"all providers failed and model-only synthesis failed")
	}
	entry.ModelInfo.Model = model
	entry.ModelInfo.Tier = string(cfg.ModelTier)
	entry.ModelInfo.TemplateHash = templateID
	p.stamp(entry, data, entry.ModelInfo.Identity())
	return entry, nil
}

// allProvidersFailed reports whether no fetch produced anything but
// error rows.
func allProvidersFailed(data []*types.ProviderData) bool {
	for _, pd := range data {
		if pd != nil && pd.Status != types.ProviderStatusError {
			return false
		}
	}
	return true
}

// stamp fills the identity fields that make the entry addressable.
func (p *Pipeline) stamp(entry *types.SynthesizedEntry, data []*types.ProviderData, modelIdentity string) {
	entry.Fingerprint = Fingerprint(data, modelIdentity, PipelineVersion)
	entry.CreatedAt = time.Now().UTC()
	entry.VersionInfo = types.VersionInfo{PipelineVersion: PipelineVersion, SchemaVersion: SchemaVersion}
}

// publish writes the entry to the store and the entry cache.
func (p *Pipeline) publish(ctx context.Context, entry *types.SynthesizedEntry, tier string) error {
	if err := p.store.PublishEntry(ctx, entry); err != nil {
		return err
	}

	payload, err := jsonMarshal(entry)
	if err != nil {
		p.logger.Warn("entry cache encode failed", slog.String("error", err.Error()))
		return nil
	}
	record := cache.NewVersionedRecord(entry.Fingerprint, payload)
	key := cache.Key("entry-latest", entry.Word.Normalized, entry.Word.Language, tier)
	if err := record.Store(ctx, p.cache, cache.NSEntries, key, payload); err != nil {
		p.logger.Warn("entry cache write failed", slog.String("error", err.Error()))
	}
	return nil
}

// cachedEntry serves the latest entry from cache, falling back to the
// store when the cache misses.
func (p *Pipeline) cachedEntry(ctx context.Context, word types.Word, tier string) (*types.SynthesizedEntry, bool) {
	key := cache.Key("entry-latest", word.Normalized, word.Language, tier)
	if payload, _, err := cache.LoadVersionedContent(ctx, p.cache, cache.NSEntries, key); err == nil && payload != nil {
		var entry types.SynthesizedEntry
		if err := jsonUnmarshal(payload, &entry); err == nil {
			return &entry, true
		}
	}

	entry, err := p.store.GetLatest(ctx, word, tier)
	if err != nil {
		return nil, false
	}
	return entry, true
}

// passthroughEntry builds a deterministic entry straight from provider
// data when AI mode is off.
func passthroughEntry(word types.Word, data []*types.ProviderData) (*types.SynthesizedEntry, error) {
	entry := &types.SynthesizedEntry{
		ID:        uuid.NewString(),
		Word:      word,
		ModelInfo: types.ModelInfo{Model: "none", Tier: rawTier},
	}
	for _, pd := range data {
		if pd == nil || !pd.Usable() {
			continue
		}
		entry.ProviderSet = append(entry.ProviderSet, pd.Provider)
		if entry.Pronunciation == nil && pd.Pronunciation != nil {
			entry.Pronunciation = pd.Pronunciation
		}
		if entry.Etymology == nil && pd.Etymology != nil {
			entry.Etymology = pd.Etymology
		}
		for i, raw := range pd.RawDefinitions {
			entry.Definitions = append(entry.Definitions, types.SynthesizedDefinition{
				ID:           pd.Provider + "-" + itoa(i),
				ClusterID:    pd.Provider,
				PartOfSpeech: raw.PartOfSpeech,
				Text:         raw.Text,
				Relevancy:    1,
				Examples:     types.Examples{Literature: raw.Examples},
				Synonyms:     raw.Synonyms,
				Antonyms:     raw.Antonyms,
			})
		}
	}
	if len(entry.Definitions) == 0 {
		return nil, lferrors.New(lferrors.KindNotFound, "no provider data for word")
	}
	return entry, nil
}

// pickWord takes the best-ranked result matching the language filter.
func pickWord(results []types.SearchResult, languages []string) (types.Word, bool) {
	if len(languages) == 0 {
		return results[0].Word, true
	}
	for _, r := range results {
		for _, lang := range languages {
			if r.Word.Language == lang {
				return r.Word, true
			}
		}
	}
	return types.Word{}, false
}

func asLookupError(ctx context.Context, err error) *lferrors.LookupError {
	if le, ok := err.(*lferrors.LookupError); ok {
		return le
	}
	if ctx.Err() != nil {
		return lferrors.FromContextErr(ctx.Err())
	}
	return lferrors.Wrap(lferrors.KindInternal, err, "lookup failed")
}
