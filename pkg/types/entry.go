package types

import "time"

// MeaningCluster groups raw definitions judged to share one sense.
// Clusters within a word are pairwise disjoint over definitions.
type MeaningCluster struct {
	ID          string  `json:"id"`
	Label       string  `json:"label"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
	// DefinitionIndexes are positions into the flattened raw
	// definition list handed to the clustering call.
	DefinitionIndexes []int `json:"definition_indexes,omitempty"`
}

// Examples separates LLM-generated usage examples from quotations
// observed in provider data.
type Examples struct {
	Generated  []string `json:"generated,omitempty"`
	Literature []string `json:"literature,omitempty"`
}

// SynthesizedDefinition is one sense of a word, produced by LLM
// synthesis over a single meaning cluster.
type SynthesizedDefinition struct {
	ID           string   `json:"id"`
	ClusterID    string   `json:"cluster_id"`
	PartOfSpeech string   `json:"part_of_speech"`
	Text         string   `json:"text"`
	Relevancy    float64  `json:"relevancy"`
	Examples     Examples `json:"examples"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Antonyms     []string `json:"antonyms,omitempty"`

	CEFRLevel        string   `json:"cefr_level,omitempty"`
	Register         string   `json:"register,omitempty"`
	Domain           string   `json:"domain,omitempty"`
	FrequencyBand    string   `json:"frequency_band,omitempty"`
	RegionalVariants []string `json:"regional_variants,omitempty"`
	Collocations     []string `json:"collocations,omitempty"`
	UsageNotes       string   `json:"usage_notes,omitempty"`
}

// TokenUsage records token accounting for an LLM call or an aggregate
// of calls.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ModelInfo records which model produced an entry and which enhancement
// components succeeded.
type ModelInfo struct {
	Model               string     `json:"model"`
	Tier                string     `json:"tier"`
	TemplateHash        string     `json:"template_hash,omitempty"`
	ComponentsSucceeded []string   `json:"components_succeeded,omitempty"`
	ComponentsFailed    []string   `json:"components_failed,omitempty"`
	Usage               TokenUsage `json:"usage"`
}

// Identity is the model identity that participates in the entry
// fingerprint: same inputs plus same identity must fingerprint equal.
func (m ModelInfo) Identity() string {
	return m.Tier + "/" + m.Model + "/" + m.TemplateHash
}

// VersionInfo pins the pipeline revision that produced an entry.
type VersionInfo struct {
	PipelineVersion string `json:"pipeline_version"`
	SchemaVersion   int    `json:"schema_version"`
}

// SynthesizedEntry is the normalized result of a lookup: definitions,
// pronunciation, etymology, forms and facts, fingerprinted by inputs
// and model identity.
type SynthesizedEntry struct {
	ID            string                  `json:"id"`
	Word          Word                    `json:"word"`
	Definitions   []SynthesizedDefinition `json:"definitions"`
	Pronunciation *Pronunciation          `json:"pronunciation,omitempty"`
	Etymology     *Etymology              `json:"etymology,omitempty"`
	WordForms     WordForms               `json:"word_forms,omitempty"`
	Facts         []string                `json:"facts,omitempty"`
	ModelInfo     ModelInfo               `json:"model_info"`
	ProviderSet   []string                `json:"provider_set"`
	Fingerprint   string                  `json:"fingerprint"`
	CreatedAt     time.Time               `json:"created_at"`
	VersionInfo   VersionInfo             `json:"version_info"`
}

// Definition returns the definition with the given id, or nil.
func (e *SynthesizedEntry) Definition(id string) *SynthesizedDefinition {
	for i := range e.Definitions {
		if e.Definitions[i].ID == id {
			return &e.Definitions[i]
		}
	}
	return nil
}
