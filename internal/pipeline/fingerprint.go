package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/wordisle/lexiforge/pkg/types"
)

// PipelineVersion participates in every fingerprint; bump it when a
// pipeline change should invalidate previously synthesized entries.
const PipelineVersion = "1"

// SchemaVersion tracks the entry wire shape.
const SchemaVersion = 1

// Fingerprint derives the content-addressed identity of an entry from
// its inputs: sorted provider identities, their raw content hashes, the
// model identity and the pipeline version. Same inputs, same
// fingerprint; any provider payload, model or pipeline change produces
// a new one.
func Fingerprint(data []*types.ProviderData, modelIdentity, pipelineVersion string) string {
	type pair struct{ id, hash string }
	pairs := make([]pair, 0, len(data))
	for _, pd := range data {
		if pd == nil || !pd.Usable() {
			continue
		}
		pairs = append(pairs, pair{id: pd.Provider, hash: pd.ContentHash()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	h := sha256.New()
	for _, p := range pairs {
		h.Write([]byte(p.id))
		h.Write([]byte{0})
		h.Write([]byte(p.hash))
		h.Write([]byte{0})
	}
	h.Write([]byte(modelIdentity))
	h.Write([]byte{0})
	h.Write([]byte(pipelineVersion))
	return hex.EncodeToString(h.Sum(nil))
}
