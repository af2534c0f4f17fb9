package dictprov

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/wordisle/lexiforge/pkg/types"
)

// TypeWiktionary identifies the Wiktionary REST adapter.
const TypeWiktionary = "wiktionary"

const wiktionaryDefaultBaseURL = "https://en.wiktionary.org/api/rest_v1"

// Wiktionary adapts the Wikimedia REST definition API. Definition
// bodies arrive as HTML snippets and are flattened to text.
type Wiktionary struct {
	name    string
	baseURL string
	host    string
	tr      Transport
}

// NewWiktionary creates a wiktionary provider.
func NewWiktionary(cfg Config, tr Transport) (Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = wiktionaryDefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("wiktionary base_url: %w", err)
	}
	name := cfg.Name
	if name == "" {
		name = TypeWiktionary
	}
	return &Wiktionary{name: name, baseURL: strings.TrimRight(baseURL, "/"), host: u.Host, tr: tr}, nil
}

func (w *Wiktionary) Name() string { return w.name }
func (w *Wiktionary) Host() string { return w.host }

type wiktionaryUsage struct {
	PartOfSpeech string `json:"partOfSpeech"`
	Language     string `json:"language"`
	Definitions  []struct {
		Definition     string   `json:"definition"`
		Examples       []string `json:"examples"`
		ParsedExamples []struct {
			Example string `json:"example"`
		} `json:"parsedExamples"`
	} `json:"definitions"`
}

// Fetch retrieves definitions, selecting the usage block matching the
// word's language code.
func (w *Wiktionary) Fetch(ctx context.Context, word types.Word) (*types.ProviderData, error) {
	endpoint := fmt.Sprintf("%s/page/definition/%s", w.baseURL, url.PathEscape(word.Normalized))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	body, err := doGet(req, w.tr, w.name, w.host)
	if err != nil {
		return nil, err
	}

	var byLang map[string][]wiktionaryUsage
	if err := json.Unmarshal(body, &byLang); err != nil {
		return nil, fmt.Errorf("wiktionary: decode response: %w", err)
	}

	usages, ok := byLang[word.Language]
	if !ok {
		// The API keys English under "en"; other sections use
		// language names. Fall back to the first block.
		for _, u := range byLang {
			usages = u
			break
		}
	}

	data := &types.ProviderData{
		Provider:  w.name,
		Word:      word,
		FetchedAt: time.Now().UTC(),
		Status:    types.ProviderStatusOK,
	}
	for _, u := range usages {
		for _, d := range u.Definitions {
			text := stripHTML(d.Definition)
			if text == "" {
				continue
			}
			raw := types.RawDefinition{PartOfSpeech: strings.ToLower(u.PartOfSpeech), Text: text}
			for _, ex := range d.Examples {
				if s := stripHTML(ex); s != "" {
					raw.Examples = append(raw.Examples, s)
				}
			}
			for _, ex := range d.ParsedExamples {
				if s := stripHTML(ex.Example); s != "" {
					raw.Examples = append(raw.Examples, s)
				}
			}
			data.RawDefinitions = append(data.RawDefinitions, raw)
		}
	}
	if len(data.RawDefinitions) == 0 {
		data.Status = types.ProviderStatusPartial
	}
	return data, nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
