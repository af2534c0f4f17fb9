package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/wordisle/lexiforge/pkg/types"
)

// lexicon holds one immutable build of the vocabulary and its indexes.
// Rebuilds construct a fresh lexicon and swap it behind the resolver's
// pointer.
type lexicon struct {
	byNormal map[string][]types.Word
	canon    []string
	trie     *trie
	bloom    *bloomFilter
	bk       *bkTree
	hash     string
}

func buildLexicon(words []types.Word) *lexicon {
	byNormal := make(map[string][]types.Word, len(words))
	for _, w := range words {
		byNormal[w.Normalized] = append(byNormal[w.Normalized], w)
	}

	canon := make([]string, 0, len(byNormal))
	for k := range byNormal {
		canon = append(canon, k)
	}
	sort.Strings(canon)

	tr := newTrie()
	bf := newBloomFilter(len(canon), 0.01)
	bk := newBKTree()
	h := sha256.New()
	for _, c := range canon {
		tr.insert(c)
		bf.add(c)
		bk.insert(c)
		h.Write([]byte(c))
		h.Write([]byte{0})
	}

	return &lexicon{
		byNormal: byNormal,
		canon:    canon,
		trie:     tr,
		bloom:    bf,
		bk:       bk,
		hash:     hex.EncodeToString(h.Sum(nil)),
	}
}

// exact reports whether the canonical form is in the vocabulary. The
// bloom filter rejects most misses without touching the trie.
func (l *lexicon) exact(canonical string) bool {
	if !l.bloom.mayContain(canonical) {
		return false
	}
	return l.trie.contains(canonical)
}

// wordsFor returns the stored words behind a canonical form.
func (l *lexicon) wordsFor(canonical string) []types.Word {
	return l.byNormal[canonical]
}

func (l *lexicon) size() int { return len(l.canon) }
