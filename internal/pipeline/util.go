package pipeline

import (
	"strconv"

	"github.com/goccy/go-json"

	"github.com/wordisle/lexiforge/pkg/types"
)

func jsonMarshal(v any) ([]byte, error)   { return json.Marshal(v) }
func jsonUnmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func itoa(i int) string                   { return strconv.Itoa(i) }

// snapshot deep-copies the entry so emitted partials are immune to
// later mutation by the enhancement collector.
func snapshot(e *types.SynthesizedEntry) *types.SynthesizedEntry {
	payload, err := json.Marshal(e)
	if err != nil {
		return e
	}
	var copied types.SynthesizedEntry
	if err := json.Unmarshal(payload, &copied); err != nil {
		return e
	}
	return &copied
}
