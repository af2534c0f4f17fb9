// Package progress implements the per-request state tracker that feeds
// the SSE stream: an ordered, data-configured stage sequence with
// monotone progress and exactly one terminal event.
package progress

// Category selects a stage sequence.
type Category string

const (
	CategoryLookup  Category = "lookup"
	CategorySuggest Category = "suggest-words"
	CategoryImage   Category = "image"
	CategoryGeneric Category = "generic"
)

// Stage names shared with the pipeline.
const (
	StageStart      = "START"
	StageSearch     = "SEARCH"
	StageProviders  = "PROVIDERS"
	StageClustering = "CLUSTERING"
	StageSynthesis  = "SYNTHESIS"
	StageEnhance    = "ENHANCE"
	StageSave       = "SAVE"
	StageComplete   = "COMPLETE"
)

// Stage is one step of a category's sequence. Progress is the value the
// tracker reaches when the stage begins.
type Stage struct {
	Name        string `yaml:"name" json:"name"`
	Progress    int    `yaml:"progress" json:"progress"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// stageTables holds the predefined sequences. The tables are data, not
// behavior; callers may replace them wholesale via Tracker options.
var stageTables = map[Category][]Stage{
	CategoryLookup: {
		{Name: StageStart, Progress: 0, Label: "Starting", Description: "Request accepted"},
		{Name: StageSearch, Progress: 10, Label: "Resolving", Description: "Matching query against vocabulary"},
		{Name: StageProviders, Progress: 30, Label: "Fetching", Description: "Querying dictionary providers"},
		{Name: StageClustering, Progress: 50, Label: "Clustering", Description: "Grouping senses"},
		{Name: StageSynthesis, Progress: 65, Label: "Synthesizing", Description: "Writing definitions"},
		{Name: StageEnhance, Progress: 80, Label: "Enhancing", Description: "Adding examples, synonyms and metadata"},
		{Name: StageSave, Progress: 95, Label: "Saving", Description: "Persisting entry"},
		{Name: StageComplete, Progress: 100, Label: "Done"},
	},
	CategorySuggest: {
		{Name: StageStart, Progress: 0, Label: "Starting"},
		{Name: StageSearch, Progress: 40, Label: "Searching"},
		{Name: StageComplete, Progress: 100, Label: "Done"},
	},
	CategoryImage: {
		{Name: StageStart, Progress: 0, Label: "Starting"},
		{Name: StageSynthesis, Progress: 50, Label: "Generating"},
		{Name: StageSave, Progress: 90, Label: "Saving"},
		{Name: StageComplete, Progress: 100, Label: "Done"},
	},
	CategoryGeneric: {
		{Name: StageStart, Progress: 0, Label: "Starting"},
		{Name: StageComplete, Progress: 100, Label: "Done"},
	},
}

// StagesFor returns the stage sequence for a category, defaulting to
// generic for unknown categories.
func StagesFor(cat Category) []Stage {
	if stages, ok := stageTables[cat]; ok {
		return stages
	}
	return stageTables[CategoryGeneric]
}
