package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// PromptTemplate is a named, versioned prompt. Identity covers the
// template body so a wording change invalidates cached responses and
// entry fingerprints built on it.
type PromptTemplate struct {
	Name string
	tmpl *template.Template
	hash string
}

// NewPromptTemplate parses the body.
func NewPromptTemplate(name, body string) (*PromptTemplate, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	sum := sha256.Sum256([]byte(body))
	return &PromptTemplate{
		Name: name,
		tmpl: tmpl,
		hash: hex.EncodeToString(sum[:])[:12],
	}, nil
}

// Identity is "name@bodyhash".
func (t *PromptTemplate) Identity() string {
	return t.Name + "@" + t.hash
}

// Render executes the template over the variables.
func (t *PromptTemplate) Render(vars map[string]any) (string, error) {
	var b strings.Builder
	if err := t.tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render template %s: %w", t.Name, err)
	}
	return b.String(), nil
}

// TemplateSet is a registry of prompt templates.
type TemplateSet struct {
	mu        sync.RWMutex
	templates map[string]*PromptTemplate
}

// NewTemplateSet creates an empty set.
func NewTemplateSet() *TemplateSet {
	return &TemplateSet{templates: make(map[string]*PromptTemplate)}
}

// Register parses and stores a template under its name.
func (s *TemplateSet) Register(name, body string) error {
	t, err := NewPromptTemplate(name, body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = t
	return nil
}

// MustRegister panics on parse errors; used for the built-in set.
func (s *TemplateSet) MustRegister(name, body string) {
	if err := s.Register(name, body); err != nil {
		panic(err)
	}
}

// Get returns a template by name.
func (s *TemplateSet) Get(name string) (*PromptTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template: %s", name)
	}
	return t, nil
}
