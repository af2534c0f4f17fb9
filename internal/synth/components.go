package synth

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/wordisle/lexiforge/internal/llm"
	"github.com/wordisle/lexiforge/pkg/types"
)

// Scope declares what a component enriches.
type Scope string

const (
	ScopeWord       Scope = "word"
	ScopeDefinition Scope = "definition"
)

// Component declares one enhancement: its scope, its LLM schema and
// how its result lands on the entry. Word components run once per
// entry; definition components run once per definition and apply by
// definition id.
type Component struct {
	Name            string
	Scope           Scope
	Tier            llm.Tier
	RequestedTokens int
	Schema          json.RawMessage

	ApplyWord   func(e *types.SynthesizedEntry, content json.RawMessage) error
	MissingWord func(e *types.SynthesizedEntry) bool

	ApplyDef   func(d *types.SynthesizedDefinition, content json.RawMessage) error
	MissingDef func(d *types.SynthesizedDefinition) bool
}

// ComponentRegistry holds the available enhancement components.
type ComponentRegistry struct {
	mu         sync.RWMutex
	components map[string]Component
}

// NewComponentRegistry creates an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{components: make(map[string]Component)}
}

// Register adds or replaces a component.
func (r *ComponentRegistry) Register(c Component) error {
	switch c.Scope {
	case ScopeWord:
		if c.ApplyWord == nil {
			return fmt.Errorf("component %s: word scope requires ApplyWord", c.Name)
		}
	case ScopeDefinition:
		if c.ApplyDef == nil {
			return fmt.Errorf("component %s: definition scope requires ApplyDef", c.Name)
		}
	default:
		return fmt.Errorf("component %s: unknown scope %q", c.Name, c.Scope)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[c.Name] = c
	return nil
}

// Get returns a component by name.
func (r *ComponentRegistry) Get(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// Names returns all component names, sorted.
func (r *ComponentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func stringListSchema(field string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"type":"object","properties":{%q:{"type":"array","items":{"type":"string"}}},"required":[%q],"additionalProperties":false}`,
		field, field))
}

func stringFieldSchema(field string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"type":"object","properties":{%q:{"type":"string"}},"required":[%q],"additionalProperties":false}`,
		field, field))
}

func listComponent(name string, apply func(d *types.SynthesizedDefinition, items []string), missing func(d *types.SynthesizedDefinition) bool) Component {
	return Component{
		Name:            name,
		Scope:           ScopeDefinition,
		Tier:            llm.TierLow,
		RequestedTokens: 150,
		Schema:          stringListSchema(name),
		ApplyDef: func(d *types.SynthesizedDefinition, content json.RawMessage) error {
			var payload map[string][]string
			if err := json.Unmarshal(content, &payload); err != nil {
				return err
			}
			apply(d, payload[name])
			return nil
		},
		MissingDef: missing,
	}
}

func fieldComponent(name string, apply func(d *types.SynthesizedDefinition, value string), missing func(d *types.SynthesizedDefinition) bool) Component {
	return Component{
		Name:            name,
		Scope:           ScopeDefinition,
		Tier:            llm.TierLow,
		RequestedTokens: 60,
		Schema:          stringFieldSchema(name),
		ApplyDef: func(d *types.SynthesizedDefinition, content json.RawMessage) error {
			var payload map[string]string
			if err := json.Unmarshal(content, &payload); err != nil {
				return err
			}
			apply(d, payload[name])
			return nil
		},
		MissingDef: missing,
	}
}

// DefaultComponents returns the registry with every shipped component.
func DefaultComponents() *ComponentRegistry {
	r := NewComponentRegistry()

	must := func(c Component) {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}

	must(Component{
		Name:            "pronunciation",
		Scope:           ScopeWord,
		Tier:            llm.TierLow,
		RequestedTokens: 100,
		Schema: json.RawMessage(`{"type":"object","properties":{` +
			`"ipa":{"type":"string"},"phonetic":{"type":"string"}},` +
			`"required":["ipa","phonetic"],"additionalProperties":false}`),
		ApplyWord: func(e *types.SynthesizedEntry, content json.RawMessage) error {
			var p types.Pronunciation
			if err := json.Unmarshal(content, &p); err != nil {
				return err
			}
			if p.IPA != "" || p.Phonetic != "" {
				e.Pronunciation = &p
			}
			return nil
		},
		MissingWord: func(e *types.SynthesizedEntry) bool { return e.Pronunciation == nil },
	})

	must(Component{
		Name:            "etymology",
		Scope:           ScopeWord,
		Tier:            llm.TierMedium,
		RequestedTokens: 200,
		Schema: json.RawMessage(`{"type":"object","properties":{` +
			`"text":{"type":"string"},"languages":{"type":"array","items":{"type":"string"}}},` +
			`"required":["text"],"additionalProperties":false}`),
		ApplyWord: func(e *types.SynthesizedEntry, content json.RawMessage) error {
			var et types.Etymology
			if err := json.Unmarshal(content, &et); err != nil {
				return err
			}
			if et.Text != "" {
				e.Etymology = &et
			}
			return nil
		},
		MissingWord: func(e *types.SynthesizedEntry) bool { return e.Etymology == nil },
	})

	must(Component{
		Name:            "word_forms",
		Scope:           ScopeWord,
		Tier:            llm.TierLow,
		RequestedTokens: 150,
		Schema: json.RawMessage(`{"type":"object","properties":{` +
			`"forms":{"type":"object","additionalProperties":{"type":"array","items":{"type":"string"}}}},` +
			`"required":["forms"],"additionalProperties":false}`),
		ApplyWord: func(e *types.SynthesizedEntry, content json.RawMessage) error {
			var payload struct {
				Forms types.WordForms `json:"forms"`
			}
			if err := json.Unmarshal(content, &payload); err != nil {
				return err
			}
			if len(payload.Forms) > 0 {
				e.WordForms = payload.Forms
			}
			return nil
		},
		MissingWord: func(e *types.SynthesizedEntry) bool { return len(e.WordForms) == 0 },
	})

	must(Component{
		Name:            "facts",
		Scope:           ScopeWord,
		Tier:            llm.TierMedium,
		RequestedTokens: 250,
		Schema:          stringListSchema("facts"),
		ApplyWord: func(e *types.SynthesizedEntry, content json.RawMessage) error {
			var payload map[string][]string
			if err := json.Unmarshal(content, &payload); err != nil {
				return err
			}
			e.Facts = payload["facts"]
			return nil
		},
		MissingWord: func(e *types.SynthesizedEntry) bool { return len(e.Facts) == 0 },
	})

	must(listComponent("synonyms",
		func(d *types.SynthesizedDefinition, items []string) { d.Synonyms = items },
		func(d *types.SynthesizedDefinition) bool { return len(d.Synonyms) == 0 }))
	must(listComponent("antonyms",
		func(d *types.SynthesizedDefinition, items []string) { d.Antonyms = items },
		func(d *types.SynthesizedDefinition) bool { return len(d.Antonyms) == 0 }))
	must(listComponent("collocations",
		func(d *types.SynthesizedDefinition, items []string) { d.Collocations = items },
		func(d *types.SynthesizedDefinition) bool { return len(d.Collocations) == 0 }))

	examples := listComponent("examples",
		func(d *types.SynthesizedDefinition, items []string) { d.Examples.Generated = items },
		func(d *types.SynthesizedDefinition) bool { return len(d.Examples.Generated) == 0 })
	examples.Tier = llm.TierMedium
	examples.RequestedTokens = 250
	must(examples)

	must(fieldComponent("cefr_level",
		func(d *types.SynthesizedDefinition, v string) { d.CEFRLevel = v },
		func(d *types.SynthesizedDefinition) bool { return d.CEFRLevel == "" }))
	must(fieldComponent("register",
		func(d *types.SynthesizedDefinition, v string) { d.Register = v },
		func(d *types.SynthesizedDefinition) bool { return d.Register == "" }))
	must(fieldComponent("domain",
		func(d *types.SynthesizedDefinition, v string) { d.Domain = v },
		func(d *types.SynthesizedDefinition) bool { return d.Domain == "" }))
	must(fieldComponent("frequency_band",
		func(d *types.SynthesizedDefinition, v string) { d.FrequencyBand = v },
		func(d *types.SynthesizedDefinition) bool { return d.FrequencyBand == "" }))

	usageNotes := fieldComponent("usage_notes",
		func(d *types.SynthesizedDefinition, v string) { d.UsageNotes = v },
		func(d *types.SynthesizedDefinition) bool { return d.UsageNotes == "" })
	usageNotes.RequestedTokens = 150
	must(usageNotes)

	return r
}
