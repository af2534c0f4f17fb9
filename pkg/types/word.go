// Package types defines the shared data model for the lookup pipeline:
// words, provider observations, meaning clusters, synthesized entries,
// and the streaming event payloads exchanged with clients.
package types

// Word is a canonical vocabulary entry. Words are immutable once created
// and keyed by (Normalized, Language).
type Word struct {
	Text       string `json:"text"`
	Normalized string `json:"normalized"`
	Language   string `json:"language"`
}

// Key returns the store key for the word.
func (w Word) Key() string {
	return w.Normalized + ":" + w.Language
}

// Pronunciation holds phonetic information for a word.
type Pronunciation struct {
	IPA      string `json:"ipa,omitempty"`
	Phonetic string `json:"phonetic,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

// Etymology describes the origin of a word.
type Etymology struct {
	Text      string   `json:"text"`
	Languages []string `json:"languages,omitempty"`
}

// WordForms maps a form name (plural, past, comparative, ...) to its
// realizations.
type WordForms map[string][]string
