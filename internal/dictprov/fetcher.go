package dictprov

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/wordisle/lexiforge/internal/cache"
	"github.com/wordisle/lexiforge/internal/metrics"
	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

// FetcherConfig tunes the fan-out.
type FetcherConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent"`
	CacheTTL      time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	MaxRetries    uint64        `yaml:"max_retries" json:"max_retries"`
}

// DefaultFetcherConfig returns the fetcher defaults. The cache TTL
// floor is 24 hours.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxConcurrent: 4,
		CacheTTL:      24 * time.Hour,
		MaxRetries:    2,
	}
}

// Validate enforces bounds.
func (c *FetcherConfig) Validate() error {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultFetcherConfig().MaxConcurrent
	}
	if c.CacheTTL < 24*time.Hour {
		c.CacheTTL = 24 * time.Hour
	}
	return nil
}

// Fetcher fans provider fetches out concurrently. Single-provider
// failures are isolated into error-status rows; the batch never fails
// because one upstream did.
type Fetcher struct {
	cfg      FetcherConfig
	registry *Registry
	cache    *cache.Cache
	logger   *slog.Logger
}

// NewFetcher creates a fetcher over the registry.
func NewFetcher(cfg FetcherConfig, registry *Registry, c *cache.Cache, logger *slog.Logger) *Fetcher {
	_ = cfg.Validate()
	return &Fetcher{
		cfg:      cfg,
		registry: registry,
		cache:    c,
		logger:   logger.With(slog.String("component", "fetcher")),
	}
}

// Fetch retrieves ProviderData for the word from every named provider.
// Results come back sorted by provider name regardless of arrival
// order; each entry is either usable data or an error-status row.
func (f *Fetcher) Fetch(ctx context.Context, word types.Word, names []string) []*types.ProviderData {
	if len(names) == 0 {
		names = f.registry.Names()
	}

	results := make([]*types.ProviderData, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.MaxConcurrent)
	for i, name := range names {
		g.Go(func() error {
			results[i] = f.fetchOne(gctx, word, name)
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	types.SortProviderData(out)
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, word types.Word, name string) *types.ProviderData {
	p, ok := f.registry.Get(name)
	if !ok {
		f.logger.Warn("unknown provider requested", slog.String("provider", name))
		return errorRow(name, word, lferrors.New(lferrors.KindProviderError, "provider not configured"))
	}

	// Concurrent identical fetches coalesce on the cache key: at most
	// one upstream call per (provider, word, language) within the TTL.
	key := cache.Key("provider-fetch", name, word.Normalized, word.Language)
	data, err := cache.GetOrBuildJSON(ctx, f.cache, cache.NSProvider, key, f.cfg.CacheTTL,
		func(ctx context.Context) (*types.ProviderData, error) {
			start := time.Now()
			data, err := f.fetchWithRetry(ctx, p, word)
			if err != nil {
				metrics.RecordProviderFetch(name, "error", time.Since(start))
				return nil, err
			}
			metrics.RecordProviderFetch(name, "success", time.Since(start))
			return data, nil
		})
	if err != nil {
		f.logger.Warn("provider fetch failed",
			slog.String("provider", name),
			slog.String("word", word.Normalized),
			slog.String("error", err.Error()))
		return errorRow(name, word, err)
	}
	return data
}

// fetchWithRetry retries transient upstream failures with exponential
// backoff. Rate limits and permanent errors pass through untouched;
// the adapter layer itself never retries.
func (f *Fetcher) fetchWithRetry(ctx context.Context, p Provider, word types.Word) (*types.ProviderData, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.cfg.MaxRetries), ctx)

	return backoff.RetryWithData(func() (*types.ProviderData, error) {
		data, err := p.Fetch(ctx, word)
		if err == nil {
			return data, nil
		}
		var le *lferrors.LookupError
		if errors.As(err, &le) && le.Kind == lferrors.KindUpstreamUnavailable && le.Retryable {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, policy)
}

func errorRow(provider string, word types.Word, err error) *types.ProviderData {
	return &types.ProviderData{
		Provider:  provider,
		Word:      word,
		FetchedAt: time.Now().UTC(),
		Status:    types.ProviderStatusError,
		Error:     err.Error(),
	}
}
