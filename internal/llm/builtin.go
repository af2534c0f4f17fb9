package llm

// Template names used by the synthesizer.
const (
	TemplateClusterDefinitions  = "cluster-definitions"
	TemplateSynthesizeCluster   = "synthesize-cluster"
	TemplateDirectDefinitions   = "direct-definitions"
	TemplateWordComponent       = "word-component"
	TemplateDefinitionComponent = "definition-component"
)

const clusterDefinitionsBody = `You are a lexicographer organizing dictionary senses.

Word: {{.word}}
Raw definitions from multiple dictionaries, one per line, each prefixed
by its index:
{{.definitions}}

Group these raw definitions into disjoint meaning clusters. Every index
must appear in exactly one cluster. Give each cluster a short label, a
one-sentence description and a confidence between 0 and 1. Respond with
JSON matching the provided schema.`

const synthesizeClusterBody = `You are a lexicographer writing a dictionary entry.

Word: {{.word}}
Meaning cluster: {{.cluster_label}} - {{.cluster_description}}
Source definitions:
{{.definitions}}

Write one or more clear, modern definitions for this meaning. Merge
duplicates. For each definition give the part of speech and a relevancy
between 0 and 1 reflecting how central the sense is to everyday usage.
Respond with JSON matching the provided schema.`

const directDefinitionsBody = `You are a lexicographer writing a dictionary entry from your own knowledge.

Word: {{.word}}

No source dictionary material is available for this word. Write its
principal senses as clear, modern definitions. For each definition give
the part of speech and a relevancy between 0 and 1 reflecting how
central the sense is to everyday usage. Respond with JSON matching the
provided schema.`

const wordComponentBody = `You are a lexicographer enriching a dictionary entry.

Word: {{.word}}
Component: {{.component}}
Context definitions:
{{.definitions}}

Produce the requested component for this word. Respond with JSON
matching the provided schema. If the information is unknown, return
empty values rather than inventing facts.`

const definitionComponentBody = `You are a lexicographer enriching one sense of a dictionary entry.

Word: {{.word}}
Definition ({{.part_of_speech}}): {{.definition}}
Component: {{.component}}

Produce the requested component for this specific sense only. Respond
with JSON matching the provided schema. If the information is unknown,
return empty values rather than inventing facts.`

// BuiltinTemplates returns the shipped prompt set.
func BuiltinTemplates() *TemplateSet {
	s := NewTemplateSet()
	s.MustRegister(TemplateClusterDefinitions, clusterDefinitionsBody)
	s.MustRegister(TemplateSynthesizeCluster, synthesizeClusterBody)
	s.MustRegister(TemplateDirectDefinitions, directDefinitionsBody)
	s.MustRegister(TemplateWordComponent, wordComponentBody)
	s.MustRegister(TemplateDefinitionComponent, definitionComponentBody)
	return s
}
