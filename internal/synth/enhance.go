package synth

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/wordisle/lexiforge/internal/llm"
	"github.com/wordisle/lexiforge/pkg/types"
)

// componentResult is one finished enhancement call. DefID is empty for
// word-scope results.
type componentResult struct {
	component string
	defID     string
	content   json.RawMessage
	usage     types.TokenUsage
	err       error
}

// enhance fans the selected components out with per-scope concurrency
// bounds and applies results as they arrive. Results land on the entry
// by definition id, never by index. Failures are per component and
// recorded in ModelInfo.
func (s *Synthesizer) enhance(ctx context.Context, entry *types.SynthesizedEntry, selected []string, hooks Hooks) types.TokenUsage {
	components := s.selectComponents(entry, selected)
	if len(components) == 0 {
		return types.TokenUsage{}
	}

	onlyMissing := len(selected) == 0
	results := make(chan componentResult)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.runScope(ctx, entry, components, ScopeWord, s.cfg.WordConcurrency, onlyMissing, results)
	}()
	go func() {
		defer wg.Done()
		s.runScope(ctx, entry, components, ScopeDefinition, s.cfg.DefinitionConcurrency, onlyMissing, results)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	// Applying in the collector keeps all entry mutation on one
	// goroutine; workers only produce.
	var usage types.TokenUsage
	failed := make(map[string]bool)
	applied := make(map[string]bool)
	for res := range results {
		usage.Add(res.usage)
		if res.err != nil {
			failed[res.component] = true
			s.logger.Warn("enhancement component failed",
				slog.String("component", res.component),
				slog.String("word", entry.Word.Normalized),
				slog.String("error", res.err.Error()))
			continue
		}
		if err := s.apply(entry, res); err != nil {
			failed[res.component] = true
			s.logger.Warn("enhancement result rejected",
				slog.String("component", res.component),
				slog.String("error", err.Error()))
			continue
		}
		applied[res.component] = true
		if hooks.OnComponent != nil {
			hooks.OnComponent(res.component, entry)
		}
	}

	for _, c := range components {
		if failed[c.Name] {
			entry.ModelInfo.ComponentsFailed = append(entry.ModelInfo.ComponentsFailed, c.Name)
		} else if applied[c.Name] {
			entry.ModelInfo.ComponentsSucceeded = append(entry.ModelInfo.ComponentsSucceeded, c.Name)
		}
	}
	sort.Strings(entry.ModelInfo.ComponentsSucceeded)
	sort.Strings(entry.ModelInfo.ComponentsFailed)
	return usage
}

// selectComponents resolves the requested component names, defaulting
// to every component whose target value is still missing.
func (s *Synthesizer) selectComponents(entry *types.SynthesizedEntry, selected []string) []Component {
	names := selected
	if len(names) == 0 {
		names = s.components.Names()
	}
	var out []Component
	for _, name := range names {
		c, ok := s.components.Get(name)
		if !ok {
			s.logger.Warn("unknown enhancement component requested", slog.String("component", name))
			continue
		}
		if len(selected) == 0 && !s.missing(entry, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Synthesizer) missing(entry *types.SynthesizedEntry, c Component) bool {
	if c.Scope == ScopeWord {
		return c.MissingWord == nil || c.MissingWord(entry)
	}
	for i := range entry.Definitions {
		if c.MissingDef == nil || c.MissingDef(&entry.Definitions[i]) {
			return true
		}
	}
	return false
}

func (s *Synthesizer) runScope(ctx context.Context, entry *types.SynthesizedEntry, components []Component, scope Scope, concurrency int, onlyMissing bool, results chan<- componentResult) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, c := range components {
		if c.Scope != scope {
			continue
		}
		if scope == ScopeWord {
			g.Go(func() error {
				results <- s.callWordComponent(gctx, entry, c)
				return nil
			})
			continue
		}
		for i := range entry.Definitions {
			def := entry.Definitions[i]
			if onlyMissing && c.MissingDef != nil && !c.MissingDef(&def) {
				continue
			}
			g.Go(func() error {
				results <- s.callDefComponent(gctx, entry.Word, def, c)
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (s *Synthesizer) callWordComponent(ctx context.Context, entry *types.SynthesizedEntry, c Component) componentResult {
	res, err := s.llm.ChatStructured(ctx, llm.StructuredRequest{
		Template: llm.TemplateWordComponent,
		Vars: map[string]any{
			"word":        entry.Word.Text,
			"component":   c.Name,
			"definitions": formatDefinitions(entry.Definitions),
		},
		SchemaName:      c.Name,
		Schema:          c.Schema,
		Tier:            c.Tier,
		RequestedTokens: c.RequestedTokens,
	})
	if err != nil {
		return componentResult{component: c.Name, err: err}
	}
	return componentResult{component: c.Name, content: res.Content, usage: res.Usage}
}

func (s *Synthesizer) callDefComponent(ctx context.Context, word types.Word, def types.SynthesizedDefinition, c Component) componentResult {
	res, err := s.llm.ChatStructured(ctx, llm.StructuredRequest{
		Template: llm.TemplateDefinitionComponent,
		Vars: map[string]any{
			"word":           word.Text,
			"definition":     def.Text,
			"part_of_speech": def.PartOfSpeech,
			"component":      c.Name,
		},
		SchemaName:      c.Name,
		Schema:          c.Schema,
		Tier:            c.Tier,
		RequestedTokens: c.RequestedTokens,
	})
	if err != nil {
		return componentResult{component: c.Name, defID: def.ID, err: err}
	}
	return componentResult{component: c.Name, defID: def.ID, content: res.Content, usage: res.Usage}
}

func (s *Synthesizer) apply(entry *types.SynthesizedEntry, res componentResult) error {
	c, _ := s.components.Get(res.component)
	if res.defID == "" {
		return c.ApplyWord(entry, res.content)
	}
	def := entry.Definition(res.defID)
	if def == nil {
		// Definition vanished between call and apply; drop silently.
		return nil
	}
	return c.ApplyDef(def, res.content)
}

func formatDefinitions(defs []types.SynthesizedDefinition) string {
	raw := make([]types.RawDefinition, 0, len(defs))
	for _, d := range defs {
		raw = append(raw, types.RawDefinition{PartOfSpeech: d.PartOfSpeech, Text: d.Text})
	}
	return formatRawDefinitions(raw)
}
