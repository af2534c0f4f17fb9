package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

// ProviderStatus reports the outcome of a single provider fetch.
type ProviderStatus string

const (
	ProviderStatusOK      ProviderStatus = "ok"
	ProviderStatusPartial ProviderStatus = "partial"
	ProviderStatusError   ProviderStatus = "error"
)

// RawDefinition is a single provider-specific observation. Raw
// definitions are never merged across providers at this layer.
type RawDefinition struct {
	PartOfSpeech string            `json:"part_of_speech"`
	Text         string            `json:"text"`
	Examples     []string          `json:"examples,omitempty"`
	Synonyms     []string          `json:"synonyms,omitempty"`
	Antonyms     []string          `json:"antonyms,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ProviderData is the parsed result of one provider fetch for one word.
// Identical inputs across fetches produce the same logical content,
// compared via ContentHash.
type ProviderData struct {
	Provider       string            `json:"provider"`
	Word           Word              `json:"word"`
	FetchedAt      time.Time         `json:"fetched_at"`
	Status         ProviderStatus    `json:"status"`
	Error          string            `json:"error,omitempty"`
	RawDefinitions []RawDefinition   `json:"raw_definitions,omitempty"`
	Etymology      *Etymology        `json:"etymology,omitempty"`
	Pronunciation  *Pronunciation    `json:"pronunciation,omitempty"`
	RawMetadata    map[string]string `json:"raw_metadata,omitempty"`
}

// Usable reports whether the fetch produced content the synthesizer can
// work with.
func (p *ProviderData) Usable() bool {
	return p.Status != ProviderStatusError && len(p.RawDefinitions) > 0
}

// ContentHash returns a hex SHA-256 over the fetch's logical content.
// FetchedAt and transport metadata are excluded so that identical
// provider responses hash identically across fetches.
func (p *ProviderData) ContentHash() string {
	stable := struct {
		Provider      string          `json:"provider"`
		Word          Word            `json:"word"`
		Definitions   []RawDefinition `json:"definitions"`
		Etymology     *Etymology      `json:"etymology,omitempty"`
		Pronunciation *Pronunciation  `json:"pronunciation,omitempty"`
	}{p.Provider, p.Word, p.RawDefinitions, p.Etymology, p.Pronunciation}

	data, err := json.Marshal(stable)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SortProviderData orders results deterministically by provider name.
func SortProviderData(results []*ProviderData) {
	sort.Slice(results, func(i, j int) bool {
		return results[i].Provider < results[j].Provider
	})
}
