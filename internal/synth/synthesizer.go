// Package synth turns raw provider data into a synthesized entry:
// cluster senses, write definitions, then enhance in parallel through
// the component registry.
package synth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/wordisle/lexiforge/internal/llm"
	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

// Config tunes the synthesizer.
type Config struct {
	ClusterTier      llm.Tier `yaml:"cluster_tier" json:"cluster_tier"`
	ClusterTokens    int      `yaml:"cluster_tokens" json:"cluster_tokens"`
	SynthesizeTier   llm.Tier `yaml:"synthesize_tier" json:"synthesize_tier"`
	SynthesizeTokens int      `yaml:"synthesize_tokens" json:"synthesize_tokens"`

	// WordConcurrency and DefinitionConcurrency bound the enhancement
	// fan-out per scope.
	WordConcurrency       int `yaml:"word_concurrency" json:"word_concurrency"`
	DefinitionConcurrency int `yaml:"definition_concurrency" json:"definition_concurrency"`
}

// DefaultConfig returns the synthesizer defaults.
func DefaultConfig() Config {
	return Config{
		ClusterTier:           llm.TierHigh,
		ClusterTokens:         600,
		SynthesizeTier:        llm.TierMedium,
		SynthesizeTokens:      400,
		WordConcurrency:       3,
		DefinitionConcurrency: 4,
	}
}

// Validate enforces bounds.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.ClusterTier == "" {
		c.ClusterTier = def.ClusterTier
	}
	if c.ClusterTokens <= 0 {
		c.ClusterTokens = def.ClusterTokens
	}
	if c.SynthesizeTier == "" {
		c.SynthesizeTier = def.SynthesizeTier
	}
	if c.SynthesizeTokens <= 0 {
		c.SynthesizeTokens = def.SynthesizeTokens
	}
	if c.WordConcurrency <= 0 {
		c.WordConcurrency = def.WordConcurrency
	}
	if c.DefinitionConcurrency <= 0 {
		c.DefinitionConcurrency = def.DefinitionConcurrency
	}
	return nil
}

// Hooks receive progressive results while synthesis runs. All hooks
// are optional and are called from the synthesizer's goroutine in
// order: clusters, definitions, then one call per applied component.
type Hooks struct {
	OnClusters    func(clusters []types.MeaningCluster)
	OnDefinitions func(entry *types.SynthesizedEntry)
	OnComponent   func(component string, entry *types.SynthesizedEntry)
}

// Request is one synthesis job.
type Request struct {
	Word         types.Word
	ProviderData []*types.ProviderData

	// Components selects enhancement components; empty means all with
	// missing values.
	Components []string

	Hooks Hooks
}

// Synthesizer orchestrates clustering, definition synthesis and
// enhancement.
type Synthesizer struct {
	cfg        Config
	llm        *llm.Client
	components *ComponentRegistry
	logger     *slog.Logger
}

// New creates a synthesizer.
func New(cfg Config, client *llm.Client, components *ComponentRegistry, logger *slog.Logger) *Synthesizer {
	_ = cfg.Validate()
	if components == nil {
		components = DefaultComponents()
	}
	return &Synthesizer{
		cfg:        cfg,
		llm:        client,
		components: components,
		logger:     logger.With(slog.String("component", "synthesizer")),
	}
}

// Components exposes the registry.
func (s *Synthesizer) Components() *ComponentRegistry { return s.components }

// Synthesize produces an entry from provider data. Clustering and
// definition synthesis failures are fatal; enhancement failures are
// recorded per component and leave fields unset.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (*types.SynthesizedEntry, error) {
	rawDefs, providerSet := flattenProviderData(req.ProviderData)
	if len(rawDefs) == 0 {
		return nil, lferrors.New(lferrors.KindNotFound, "no raw definitions to synthesize from")
	}

	var usage types.TokenUsage

	clusters, clusterUsage, err := s.cluster(ctx, req.Word, rawDefs)
	usage.Add(clusterUsage)
	if err != nil {
		return nil, err
	}
	if req.Hooks.OnClusters != nil {
		req.Hooks.OnClusters(clusters)
	}

	entry := &types.SynthesizedEntry{
		ID:          uuid.NewString(),
		Word:        req.Word,
		ProviderSet: providerSet,
	}

	for _, cluster := range clusters {
		defs, synthUsage, err := s.synthesizeCluster(ctx, req.Word, cluster, rawDefs)
		usage.Add(synthUsage)
		if err != nil {
			return nil, err
		}
		entry.Definitions = append(entry.Definitions, defs...)
	}
	if len(entry.Definitions) == 0 {
		return nil, lferrors.New(lferrors.KindLLMError, "synthesis produced no definitions")
	}
	seedFromProviders(entry, clusters, rawDefs, req.ProviderData)
	if req.Hooks.OnDefinitions != nil {
		req.Hooks.OnDefinitions(entry)
	}

	enhanceUsage := s.enhance(ctx, entry, req.Components, req.Hooks)
	usage.Add(enhanceUsage)

	entry.ModelInfo.Usage = usage
	return entry, nil
}

var synthesizeSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"definitions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"text": {"type": "string"},
					"part_of_speech": {"type": "string"},
					"relevancy": {"type": "number"}
				},
				"required": ["text", "part_of_speech", "relevancy"],
				"additionalProperties": false
			}
		}
	},
	"required": ["definitions"],
	"additionalProperties": false
}`)

type synthesizeResponse struct {
	Definitions []struct {
		Text         string  `json:"text"`
		PartOfSpeech string  `json:"part_of_speech"`
		Relevancy    float64 `json:"relevancy"`
	} `json:"definitions"`
}

// synthesizeCluster writes the definitions for one meaning cluster,
// merging duplicates within the cluster.
func (s *Synthesizer) synthesizeCluster(ctx context.Context, word types.Word, cluster types.MeaningCluster, rawDefs []types.RawDefinition) ([]types.SynthesizedDefinition, types.TokenUsage, error) {
	subset := make([]types.RawDefinition, 0, len(cluster.DefinitionIndexes))
	for _, i := range cluster.DefinitionIndexes {
		subset = append(subset, rawDefs[i])
	}

	payload, usage, err := llm.ChatStructuredAs[synthesizeResponse](ctx, s.llm, llm.StructuredRequest{
		Template: llm.TemplateSynthesizeCluster,
		Vars: map[string]any{
			"word":                word.Text,
			"cluster_label":       cluster.Label,
			"cluster_description": cluster.Description,
			"definitions":         formatRawDefinitions(subset),
		},
		SchemaName:      "synthesized_definitions",
		Schema:          synthesizeSchema,
		Tier:            s.cfg.SynthesizeTier,
		RequestedTokens: s.cfg.SynthesizeTokens,
	})
	if err != nil {
		return nil, usage, err
	}

	return buildDefinitions(cluster.ID, payload), usage, nil
}

// buildDefinitions converts one synthesis payload into definitions,
// trimming blanks and merging duplicates.
func buildDefinitions(clusterID string, payload synthesizeResponse) []types.SynthesizedDefinition {
	seen := make(map[string]bool, len(payload.Definitions))
	defs := make([]types.SynthesizedDefinition, 0, len(payload.Definitions))
	for _, d := range payload.Definitions {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		dedupe := strings.ToLower(text) + "|" + strings.ToLower(d.PartOfSpeech)
		if seen[dedupe] {
			continue
		}
		seen[dedupe] = true
		defs = append(defs, types.SynthesizedDefinition{
			ID:           uuid.NewString(),
			ClusterID:    clusterID,
			PartOfSpeech: strings.ToLower(d.PartOfSpeech),
			Text:         text,
			Relevancy:    d.Relevancy,
		})
	}
	return defs
}

// SynthesizeDirect writes an entry from model knowledge alone, used
// when no provider produced usable material. Definitions land in one
// synthetic cluster; enhancement runs as usual.
func (s *Synthesizer) SynthesizeDirect(ctx context.Context, req Request) (*types.SynthesizedEntry, error) {
	payload, usage, err := llm.ChatStructuredAs[synthesizeResponse](ctx, s.llm, llm.StructuredRequest{
		Template:        llm.TemplateDirectDefinitions,
		Vars:            map[string]any{"word": req.Word.Text},
		SchemaName:      "synthesized_definitions",
		Schema:          synthesizeSchema,
		Tier:            s.cfg.SynthesizeTier,
		RequestedTokens: s.cfg.SynthesizeTokens,
	})
	if err != nil {
		return nil, err
	}

	entry := &types.SynthesizedEntry{
		ID:          uuid.NewString(),
		Word:        req.Word,
		Definitions: buildDefinitions(clusterID(req.Word.Normalized, "model-knowledge"), payload),
	}
	if len(entry.Definitions) == 0 {
		return nil, lferrors.New(lferrors.KindLLMError, "direct synthesis produced no definitions")
	}
	if req.Hooks.OnDefinitions != nil {
		req.Hooks.OnDefinitions(entry)
	}

	enhanceUsage := s.enhance(ctx, entry, req.Components, req.Hooks)
	usage.Add(enhanceUsage)
	entry.ModelInfo.Usage = usage
	return entry, nil
}

// flattenProviderData collects raw definitions from usable providers in
// their already-deterministic order, plus the set of providers that
// contributed.
func flattenProviderData(data []*types.ProviderData) ([]types.RawDefinition, []string) {
	var defs []types.RawDefinition
	var providers []string
	for _, pd := range data {
		if pd == nil || !pd.Usable() {
			continue
		}
		providers = append(providers, pd.Provider)
		defs = append(defs, pd.RawDefinitions...)
	}
	return defs, providers
}

// seedFromProviders copies observed quotations and pronunciation from
// provider data onto the entry before enhancement runs, so components
// only fill what is genuinely missing.
func seedFromProviders(entry *types.SynthesizedEntry, clusters []types.MeaningCluster, rawDefs []types.RawDefinition, data []*types.ProviderData) {
	for _, pd := range data {
		if pd == nil || pd.Status == types.ProviderStatusError {
			continue
		}
		if entry.Pronunciation == nil && pd.Pronunciation != nil {
			entry.Pronunciation = pd.Pronunciation
		}
		if entry.Etymology == nil && pd.Etymology != nil {
			entry.Etymology = pd.Etymology
		}
	}

	byCluster := make(map[string][]types.RawDefinition, len(clusters))
	for _, c := range clusters {
		for _, i := range c.DefinitionIndexes {
			byCluster[c.ID] = append(byCluster[c.ID], rawDefs[i])
		}
	}
	for i := range entry.Definitions {
		def := &entry.Definitions[i]
		for _, raw := range byCluster[def.ClusterID] {
			def.Examples.Literature = append(def.Examples.Literature, raw.Examples...)
		}
	}
}
