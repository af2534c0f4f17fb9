// Package llm implements the structured-output client used for
// clustering, synthesis and enhancement: OpenAI-compatible chat
// completions with JSON schema response formats, tiered model
// selection, response caching and request coalescing.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/wordisle/lexiforge/internal/cache"
	"github.com/wordisle/lexiforge/internal/metrics"
	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

// Config configures the client.
type Config struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	APIKey         string        `yaml:"api_key" json:"api_key"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	EmbeddingModel string        `yaml:"embedding_model" json:"embedding_model"`
	CacheTTL       time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	Tiers          TierMap       `yaml:"tiers" json:"tiers"`
}

// DefaultConfig returns the client defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.openai.com/v1",
		Timeout:        90 * time.Second,
		EmbeddingModel: "text-embedding-3-small",
		CacheTTL:       24 * time.Hour,
		Tiers:          DefaultTierMap(),
	}
}

// Validate enforces bounds. The response cache TTL floor is 24 hours.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultConfig().BaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig().Timeout
	}
	if c.CacheTTL < 24*time.Hour {
		c.CacheTTL = 24 * time.Hour
	}
	if len(c.Tiers) == 0 {
		c.Tiers = DefaultTierMap()
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = DefaultConfig().EmbeddingModel
	}
	return nil
}

// StructuredRequest is one chat_structured call.
type StructuredRequest struct {
	Template        string
	Vars            map[string]any
	SchemaName      string
	Schema          json.RawMessage
	Tier            Tier
	RequestedTokens int

	// SkipCache bypasses the response cache for this call.
	SkipCache bool
}

// StructuredResult carries the schema-conforming payload plus usage
// accounting. Usage is zero when the upstream omitted it.
type StructuredResult struct {
	Content    json.RawMessage  `json:"content"`
	Usage      types.TokenUsage `json:"usage"`
	Model      string           `json:"model"`
	Tier       Tier             `json:"tier"`
	TemplateID string           `json:"template_id"`
}

// Client talks to an OpenAI-compatible endpoint.
type Client struct {
	cfg       Config
	http      *http.Client
	cache     *cache.Cache
	templates *TemplateSet
	logger    *slog.Logger
}

// NewClient creates a client. cache may be nil to disable response
// caching (tests).
func NewClient(cfg Config, c *cache.Cache, templates *TemplateSet, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api_key is required")
	}
	if templates == nil {
		templates = BuiltinTemplates()
	}
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		cache:     c,
		templates: templates,
		logger:    logger.With(slog.String("component", "llm")),
	}, nil
}

// Templates exposes the client's template set.
func (c *Client) Templates() *TemplateSet { return c.templates }

// ModelIdentity returns the (model, template) identity pair for a tier
// and template, as used in entry fingerprints.
func (c *Client) ModelIdentity(tier Tier, templateName string) (model, templateID string, err error) {
	spec, err := c.cfg.Tiers.Spec(tier)
	if err != nil {
		return "", "", err
	}
	tmpl, err := c.templates.Get(templateName)
	if err != nil {
		return "", "", err
	}
	return spec.Model, tmpl.Identity(), nil
}

// ChatStructured renders the named template, sends a schema-constrained
// completion and returns the parsed result. Identical concurrent calls
// share one upstream request; stable calls hit the response cache.
func (c *Client) ChatStructured(ctx context.Context, req StructuredRequest) (*StructuredResult, error) {
	spec, err := c.cfg.Tiers.Spec(req.Tier)
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindLLMError, err, "tier selection failed")
	}
	tmpl, err := c.templates.Get(req.Template)
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindLLMError, err, "unknown prompt template")
	}
	prompt, err := tmpl.Render(req.Vars)
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindLLMError, err, "prompt rendering failed")
	}

	build := func(ctx context.Context) (*StructuredResult, error) {
		return c.complete(ctx, spec, req, tmpl, prompt)
	}

	if c.cache == nil || req.SkipCache {
		return build(ctx)
	}
	key := cache.Key("chat-structured",
		spec.Model, tmpl.Identity(), req.SchemaName, string(req.Schema), prompt, req.RequestedTokens)
	return cache.GetOrBuildJSON(ctx, c.cache, cache.NSLLM, key, c.cfg.CacheTTL, build)
}

// ChatStructuredAs decodes the structured content into T.
func ChatStructuredAs[T any](ctx context.Context, c *Client, req StructuredRequest) (T, types.TokenUsage, error) {
	var zero T
	res, err := c.ChatStructured(ctx, req)
	if err != nil {
		return zero, types.TokenUsage{}, err
	}
	var out T
	if err := json.Unmarshal(res.Content, &out); err != nil {
		return zero, res.Usage, lferrors.Wrap(lferrors.KindLLMError, err, "response does not satisfy schema")
	}
	return out, res.Usage, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaSpec struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model               string          `json:"model"`
	Messages            []chatMessage   `json:"messages"`
	Temperature         *float64        `json:"temperature,omitempty"`
	MaxTokens           int             `json:"max_tokens,omitempty"`
	MaxCompletionTokens int             `json:"max_completion_tokens,omitempty"`
	ResponseFormat      *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage types.TokenUsage `json:"usage"`
}

func (c *Client) complete(ctx context.Context, spec TierSpec, req StructuredRequest, tmpl *PromptTemplate, prompt string) (*StructuredResult, error) {
	maxTokens, maxCompletion := tokenBudget(spec.TokenStrategy, req.RequestedTokens)
	wire := chatRequest{
		Model:               spec.Model,
		Messages:            []chatMessage{{Role: "user", Content: prompt}},
		Temperature:         spec.Temperature,
		MaxTokens:           maxTokens,
		MaxCompletionTokens: maxCompletion,
		ResponseFormat: &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaSpec{Name: req.SchemaName, Strict: true, Schema: req.Schema},
		},
	}

	body, err := c.post(ctx, "/chat/completions", wire)
	if err != nil {
		metrics.RecordLLMUsage(spec.Model, string(req.Tier), "error", 0, 0)
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, lferrors.Wrap(lferrors.KindLLMError, err, "decoding completion response")
	}
	if len(parsed.Choices) == 0 {
		return nil, lferrors.New(lferrors.KindLLMError, "completion returned no choices")
	}
	content := parsed.Choices[0].Message.Content
	if !json.Valid([]byte(content)) {
		return nil, lferrors.New(lferrors.KindLLMError, "completion content is not valid JSON")
	}

	model := parsed.Model
	if model == "" {
		model = spec.Model
	}
	metrics.RecordLLMUsage(model, string(req.Tier), "success",
		parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	return &StructuredResult{
		Content:    json.RawMessage(content),
		Usage:      parsed.Usage,
		Model:      model,
		Tier:       req.Tier,
		TemplateID: tmpl.Identity(),
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, lferrors.FromContextErr(ctx.Err())
		}
		return nil, lferrors.Wrap(lferrors.KindLLMError, err, "llm request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, lferrors.Wrap(lferrors.KindLLMError, err, "reading llm response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.mapError(resp, respBody)
	}
	return respBody, nil
}

func (c *Client) mapError(resp *http.Response, body []byte) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	message := apiErr.Error.Message
	if message == "" {
		message = fmt.Sprintf("llm returned %d", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if at, err := http.ParseTime(v); err == nil {
				retryAfter = time.Until(at)
			} else {
				var secs int
				if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
					retryAfter = time.Duration(secs) * time.Second
				}
			}
		}
		return lferrors.RateLimited("llm", retryAfter)
	case resp.StatusCode >= 500:
		e := lferrors.New(lferrors.KindLLMError, message)
		e.Retryable = true
		return e
	default:
		return lferrors.New(lferrors.KindLLMError, message)
	}
}
