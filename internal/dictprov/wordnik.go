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

// TypeWordnik identifies the Wordnik adapter.
const TypeWordnik = "wordnik"

const wordnikDefaultBaseURL = "https://api.wordnik.com/v4"

// Wordnik adapts the Wordnik v4 API. Requires an API key.
type Wordnik struct {
	name    string
	baseURL string
	host    string
	apiKey  string
	tr      Transport
}

// NewWordnik creates a wordnik provider.
func NewWordnik(cfg Config, tr Transport) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("wordnik: api_key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = wordnikDefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("wordnik base_url: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = TypeWordnik
	}
	return &Wordnik{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		host:    u.Host,
		apiKey:  cfg.APIKey,
		tr:      tr,
	}, nil
}

func (w *Wordnik) Name() string { return w.name }
func (w *Wordnik) Host() string { return w.host }

type wordnikDefinition struct {
	Text         string `json:"text"`
	PartOfSpeech string `json:"partOfSpeech"`
	SourceDict   string `json:"sourceDictionary"`
	ExampleUses  []struct {
		Text string `json:"text"`
	} `json:"exampleUses"`
	RelatedWords []struct {
		RelationshipType string   `json:"relationshipType"`
		Words            []string `json:"words"`
	} `json:"relatedWords"`
}

// Fetch retrieves definitions; entries without text are skipped.
func (w *Wordnik) Fetch(ctx context.Context, word types.Word) (*types.ProviderData, error) {
	endpoint := fmt.Sprintf("%s/word.json/%s/definitions?limit=20&api_key=%s",
		w.baseURL, url.PathEscape(word.Normalized), url.QueryEscape(w.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	body, err := doGet(req, w.tr, w.name, w.host)
	if err != nil {
		return nil, err
	}

	var defs []wordnikDefinition
	if err := json.Unmarshal(body, &defs); err != nil {
		return nil, fmt.Errorf("wordnik: decode response: %w", err)
	}

	data := &types.ProviderData{
		Provider:  w.name,
		Word:      word,
		FetchedAt: time.Now().UTC(),
		Status:    types.ProviderStatusOK,
	}
	for _, d := range defs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		raw := types.RawDefinition{
			PartOfSpeech: strings.ToLower(d.PartOfSpeech),
			Text:         stripHTML(d.Text),
		}
		if d.SourceDict != "" {
			raw.Metadata = map[string]string{"source_dictionary": d.SourceDict}
		}
		for _, ex := range d.ExampleUses {
			if s := strings.TrimSpace(ex.Text); s != "" {
				raw.Examples = append(raw.Examples, s)
			}
		}
		for _, rel := range d.RelatedWords {
			switch rel.RelationshipType {
			case "synonym":
				raw.Synonyms = append(raw.Synonyms, rel.Words...)
			case "antonym":
				raw.Antonyms = append(raw.Antonyms, rel.Words...)
			}
		}
		data.RawDefinitions = append(data.RawDefinitions, raw)
	}
	if len(data.RawDefinitions) == 0 {
		data.Status = types.ProviderStatusPartial
	}
	return data, nil
}
