package synth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/wordisle/lexiforge/internal/llm"
	lferrors "github.com/wordisle/lexiforge/pkg/errors"
	"github.com/wordisle/lexiforge/pkg/types"
)

// minClusterConfidence drops clusters the model itself is unsure about.
const minClusterConfidence = 0.3

var clusterSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"clusters": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"label": {"type": "string"},
					"description": {"type": "string"},
					"confidence": {"type": "number"},
					"definition_indexes": {"type": "array", "items": {"type": "integer"}}
				},
				"required": ["label", "confidence", "definition_indexes"],
				"additionalProperties": false
			}
		}
	},
	"required": ["clusters"],
	"additionalProperties": false
}`)

type clusterResponse struct {
	Clusters []struct {
		Label             string  `json:"label"`
		Description       string  `json:"description"`
		Confidence        float64 `json:"confidence"`
		DefinitionIndexes []int   `json:"definition_indexes"`
	} `json:"clusters"`
}

// cluster groups the flattened raw definitions into disjoint meaning
// clusters in one LLM call.
func (s *Synthesizer) cluster(ctx context.Context, word types.Word, rawDefs []types.RawDefinition) ([]types.MeaningCluster, types.TokenUsage, error) {
	payload, usage, err := llm.ChatStructuredAs[clusterResponse](ctx, s.llm, llm.StructuredRequest{
		Template: llm.TemplateClusterDefinitions,
		Vars: map[string]any{
			"word":        word.Text,
			"definitions": formatRawDefinitions(rawDefs),
		},
		SchemaName:      "meaning_clusters",
		Schema:          clusterSchema,
		Tier:            s.cfg.ClusterTier,
		RequestedTokens: s.cfg.ClusterTokens,
	})
	if err != nil {
		return nil, usage, err
	}

	// Enforce disjointness: an index claimed twice stays with its first
	// cluster. Empty and low-confidence clusters are dropped.
	seen := make(map[int]bool, len(rawDefs))
	clusters := make([]types.MeaningCluster, 0, len(payload.Clusters))
	for _, c := range payload.Clusters {
		if c.Confidence < minClusterConfidence {
			continue
		}
		var indexes []int
		for _, i := range c.DefinitionIndexes {
			if i < 0 || i >= len(rawDefs) || seen[i] {
				continue
			}
			seen[i] = true
			indexes = append(indexes, i)
		}
		if len(indexes) == 0 {
			continue
		}
		clusters = append(clusters, types.MeaningCluster{
			ID:                clusterID(word.Normalized, c.Label),
			Label:             c.Label,
			Description:       c.Description,
			Confidence:        c.Confidence,
			DefinitionIndexes: indexes,
		})
	}
	if len(clusters) == 0 {
		return nil, usage, lferrors.New(lferrors.KindLLMError, "clustering produced no usable clusters")
	}
	return clusters, usage, nil
}

// clusterID derives a stable id from the word and cluster label, so
// re-synthesizing identical inputs yields identical cluster ids.
func clusterID(word, label string) string {
	sum := sha256.Sum256([]byte(word + "\x00" + strings.ToLower(label)))
	return hex.EncodeToString(sum[:6])
}

func formatRawDefinitions(defs []types.RawDefinition) string {
	var b strings.Builder
	for i, d := range defs {
		pos := d.PartOfSpeech
		if pos == "" {
			pos = "unknown"
		}
		fmt.Fprintf(&b, "%d: (%s) %s\n", i, pos, d.Text)
	}
	return b.String()
}
