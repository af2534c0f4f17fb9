package dictprov

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/wordisle/lexiforge/pkg/types"
)

// TypeFreedict identifies the dictionaryapi.dev adapter.
const TypeFreedict = "freedict"

const freedictDefaultBaseURL = "https://api.dictionaryapi.dev/api/v2"

// Freedict adapts the free dictionaryapi.dev API. No key required.
type Freedict struct {
	name    string
	baseURL string
	host    string
	tr      Transport
}

// NewFreedict creates a freedict provider.
func NewFreedict(cfg Config, tr Transport) (Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = freedictDefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("freedict base_url: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = TypeFreedict
	}
	return &Freedict{name: name, baseURL: strings.TrimRight(baseURL, "/"), host: u.Host, tr: tr}, nil
}

func (f *Freedict) Name() string { return f.name }
func (f *Freedict) Host() string { return f.host }

type freedictEntry struct {
	Word      string `json:"word"`
	Phonetic  string `json:"phonetic"`
	Phonetics []struct {
		Text  string `json:"text"`
		Audio string `json:"audio"`
	} `json:"phonetics"`
	Origin   string `json:"origin"`
	Meanings []struct {
		PartOfSpeech string `json:"partOfSpeech"`
		Definitions  []struct {
			Definition string   `json:"definition"`
			Example    string   `json:"example"`
			Synonyms   []string `json:"synonyms"`
			Antonyms   []string `json:"antonyms"`
		} `json:"definitions"`
	} `json:"meanings"`
}

// Fetch retrieves definitions for the word's language.
func (f *Freedict) Fetch(ctx context.Context, word types.Word) (*types.ProviderData, error) {
	endpoint := fmt.Sprintf("%s/entries/%s/%s", f.baseURL, word.Language, url.PathEscape(word.Normalized))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	body, err := doGet(req, f.tr, f.name, f.host)
	if err != nil {
		return nil, err
	}

	var entries []freedictEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("freedict: decode response: %w", err)
	}

	data := &types.ProviderData{
		Provider:  f.name,
		Word:      word,
		FetchedAt: time.Now().UTC(),
		Status:    types.ProviderStatusOK,
	}
	for _, e := range entries {
		if data.Pronunciation == nil {
			data.Pronunciation = freedictPronunciation(e)
		}
		if data.Etymology == nil && e.Origin != "" {
			data.Etymology = &types.Etymology{Text: e.Origin}
		}
		for _, m := range e.Meanings {
			for _, d := range m.Definitions {
				raw := types.RawDefinition{
					PartOfSpeech: m.PartOfSpeech,
					Text:         d.Definition,
					Synonyms:     d.Synonyms,
					Antonyms:     d.Antonyms,
				}
				if d.Example != "" {
					raw.Examples = []string{d.Example}
				}
				data.RawDefinitions = append(data.RawDefinitions, raw)
			}
		}
	}
	if len(data.RawDefinitions) == 0 {
		data.Status = types.ProviderStatusPartial
	}
	return data, nil
}

func freedictPronunciation(e freedictEntry) *types.Pronunciation {
	p := &types.Pronunciation{IPA: e.Phonetic}
	for _, ph := range e.Phonetics {
		if p.IPA == "" {
			p.IPA = ph.Text
		}
		if p.AudioURL == "" && ph.Audio != "" {
			p.AudioURL = ph.Audio
		}
	}
	if p.IPA == "" && p.AudioURL == "" {
		return nil
	}
	return p
}
