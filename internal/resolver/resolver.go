package resolver

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/wordisle/lexiforge/pkg/types"
)

// Config tunes the cascade. Thresholds are configuration, not code.
type Config struct {
	SemanticEnabled   bool    `yaml:"semantic_enabled" json:"semantic_enabled"`
	SemanticThreshold float64 `yaml:"semantic_threshold" json:"semantic_threshold"`
	FuzzyMaxDistance  int     `yaml:"fuzzy_max_distance" json:"fuzzy_max_distance"`
	MaxResults        int     `yaml:"max_results" json:"max_results"`
}

// DefaultConfig returns the resolver defaults.
func DefaultConfig() Config {
	return Config{
		SemanticEnabled:   false,
		SemanticThreshold: 0.62,
		FuzzyMaxDistance:  3,
		MaxResults:        10,
	}
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.SemanticThreshold < 0 || c.SemanticThreshold > 1 {
		c.SemanticThreshold = DefaultConfig().SemanticThreshold
	}
	if c.FuzzyMaxDistance <= 0 {
		c.FuzzyMaxDistance = DefaultConfig().FuzzyMaxDistance
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultConfig().MaxResults
	}
	return nil
}

// exactScoreFloor marks a pass as conclusive: when the exact pass fills
// max_results at or above it, later passes are skipped.
const exactScoreFloor = 0.99

// build couples one lexicon with the semantic index trained on it, so
// the vocabulary hash and the index can never diverge within a build.
type build struct {
	lex *lexicon
	sem *semanticIndex
}

// Resolver resolves raw queries to vocabulary words. Indexes are
// immutable after build; Rebuild swaps them atomically.
type Resolver struct {
	cfg        atomic.Pointer[Config]
	current    atomic.Pointer[build]
	normalizer *Normalizer
	embedder   Embedder
	logger     *slog.Logger
}

// New creates a resolver over the given vocabulary. embedder may be nil
// when semantic search is disabled.
func New(cfg Config, words []types.Word, embedder Embedder, logger *slog.Logger) *Resolver {
	_ = cfg.Validate()
	r := &Resolver{
		normalizer: NewNormalizer(),
		embedder:   embedder,
		logger:     logger.With(slog.String("component", "resolver")),
	}
	r.cfg.Store(&cfg)
	r.Rebuild(words)
	return r
}

// Reconfigure swaps the cascade tuning. Takes effect on the next query.
func (r *Resolver) Reconfigure(cfg Config) {
	_ = cfg.Validate()
	r.cfg.Store(&cfg)
}

// Rebuild constructs fresh indexes from the vocabulary and swaps them
// in. Whether semantic search is enabled is preserved across rebuilds.
func (r *Resolver) Rebuild(words []types.Word) {
	lex := buildLexicon(words)
	b := &build{lex: lex}
	if r.embedder != nil {
		b.sem = newSemanticIndex(r.embedder, r.logger)
	}
	r.current.Store(b)
	r.logger.Info("lexicon built",
		slog.Int("words", lex.size()),
		slog.String("vocabulary_hash", lex.hash[:12]))
}

// VocabularyHash identifies the current vocabulary build.
func (r *Resolver) VocabularyHash() string {
	return r.current.Load().lex.hash
}

// Normalize exposes the canonicalization used for vocabulary keys.
func (r *Resolver) Normalize(raw string) string {
	return r.normalizer.Normalize(raw)
}

// Resolve runs the cascade and returns ranked results, best first.
func (r *Resolver) Resolve(ctx context.Context, rawQuery string) ([]types.SearchResult, error) {
	cfg := *r.cfg.Load()
	b := r.current.Load()
	canonical := r.normalizer.Normalize(rawQuery)
	if canonical == "" {
		return nil, nil
	}

	var results []types.SearchResult

	if b.lex.exact(canonical) {
		for _, w := range b.lex.wordsFor(canonical) {
			results = append(results, types.SearchResult{Word: w, Score: 1, Method: types.SearchMethodExact})
		}
	}
	if conclusive(results, cfg.MaxResults) {
		return merge(results, cfg.MaxResults), nil
	}

	for _, hit := range b.lex.bk.search(canonical, cfg.FuzzyMaxDistance) {
		score := fuzzyScore(canonical, hit.word, hit.distance)
		if score <= 0 {
			continue
		}
		for _, w := range b.lex.wordsFor(hit.word) {
			results = append(results, types.SearchResult{Word: w, Score: score, Method: types.SearchMethodFuzzy})
		}
	}
	if conclusive(results, cfg.MaxResults) {
		return merge(results, cfg.MaxResults), nil
	}

	if cfg.SemanticEnabled && b.sem != nil {
		switch b.sem.ensureReady(b.lex.canon) {
		case readinessReady:
			hits, err := b.sem.search(ctx, canonical, cfg.MaxResults, cfg.SemanticThreshold)
			if err != nil {
				r.logger.Warn("semantic search failed", slog.String("error", err.Error()))
			}
			for _, hit := range hits {
				for _, w := range b.lex.wordsFor(hit.word) {
					results = append(results, types.SearchResult{Word: w, Score: hit.score, Method: types.SearchMethodSemantic})
				}
			}
		case readinessFailed:
			if err := b.sem.failure(); err != nil {
				r.logger.Error("semantic index initialization failed", slog.String("error", err.Error()))
			}
		}
	}

	return merge(results, cfg.MaxResults), nil
}

// Suggest returns up to limit vocabulary words near the query, for the
// not-found suggestion list.
func (r *Resolver) Suggest(_ context.Context, rawQuery string, limit int) []string {
	cfg := *r.cfg.Load()
	b := r.current.Load()
	canonical := r.normalizer.Normalize(rawQuery)
	if canonical == "" || limit <= 0 {
		return nil
	}

	hits := b.lex.bk.search(canonical, cfg.FuzzyMaxDistance)
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].word < hits[j].word
	})
	out := make([]string, 0, limit)
	for _, h := range hits {
		if h.word == canonical {
			continue
		}
		out = append(out, h.word)
		if len(out) == limit {
			break
		}
	}
	return out
}

func fuzzyScore(query, candidate string, distance int) float64 {
	maxLen := len(query)
	if len(candidate) > maxLen {
		maxLen = len(candidate)
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(distance)/float64(maxLen)
}

func conclusive(results []types.SearchResult, maxResults int) bool {
	n := 0
	for _, r := range results {
		if r.Score >= exactScoreFloor {
			n++
		}
	}
	return n >= maxResults
}

// merge deduplicates on canonical form keeping the best score, then
// sorts by score descending with method rank breaking ties.
func merge(results []types.SearchResult, maxResults int) []types.SearchResult {
	best := make(map[string]types.SearchResult, len(results))
	for _, r := range results {
		key := r.Word.Key()
		cur, ok := best[key]
		if !ok || r.Score > cur.Score || (r.Score == cur.Score && r.Method.BetterThan(cur.Method)) {
			best[key] = r
		}
	}
	out := make([]types.SearchResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Method != out[j].Method {
			return out[i].Method.BetterThan(out[j].Method)
		}
		return out[i].Word.Normalized < out[j].Word.Normalized
	})
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}
