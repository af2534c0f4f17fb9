package types

// SearchMethod identifies which resolver pass produced a result.
type SearchMethod string

const (
	SearchMethodExact    SearchMethod = "exact"
	SearchMethodFuzzy    SearchMethod = "fuzzy"
	SearchMethodSemantic SearchMethod = "semantic"
)

// rank orders methods for tie-breaking: exact beats fuzzy beats semantic.
func (m SearchMethod) rank() int {
	switch m {
	case SearchMethodExact:
		return 0
	case SearchMethodFuzzy:
		return 1
	case SearchMethodSemantic:
		return 2
	default:
		return 3
	}
}

// BetterThan reports whether m outranks other at equal score.
func (m SearchMethod) BetterThan(other SearchMethod) bool {
	return m.rank() < other.rank()
}

// SearchResult is one ranked resolver candidate.
type SearchResult struct {
	Word   Word         `json:"word"`
	Score  float64      `json:"score"`
	Method SearchMethod `json:"method"`
}
