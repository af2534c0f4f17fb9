// Package dictprov defines the interface for dictionary provider
// adapters. Each provider (freedict, wiktionary, wordnik) implements
// this interface to fetch and parse raw word data.
package dictprov

import (
	"context"
	"net/http"
	"time"

	"github.com/wordisle/lexiforge/pkg/types"
)

// Provider is a single upstream dictionary source.
type Provider interface {
	// Name returns the provider identifier (e.g., "freedict").
	Name() string

	// Host returns the upstream hostname used for rate limiting.
	Host() string

	// Fetch retrieves and parses provider data for one word.
	Fetch(ctx context.Context, word types.Word) (*types.ProviderData, error)
}

// Config configures one provider instance.
type Config struct {
	Name    string        `yaml:"name" json:"name"`
	Type    string        `yaml:"type" json:"type"`
	BaseURL string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey  string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Enabled *bool         `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// IsEnabled defaults to true when the flag is omitted.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Transport bundles what every adapter needs to talk to its upstream.
type Transport struct {
	Client  *http.Client
	Limiter HostGate
}

// HostGate is the slice of the rate limiter adapters depend on.
type HostGate interface {
	Acquire(ctx context.Context, host string) error
	Release(host string)
	RecordSuccess(host string)
	RecordError(host string, retryAfter time.Duration)
}
