package resolver

import (
	"github.com/antzucaro/matchr"
)

// bkTree is a metric tree over canonical forms keyed by
// Damerau-Levenshtein distance. Immutable after the lexicon build.
type bkTree struct {
	root *bkNode
	size int
}

type bkNode struct {
	word     string
	children map[int]*bkNode
}

func newBKTree() *bkTree {
	return &bkTree{}
}

func (t *bkTree) insert(word string) {
	if t.root == nil {
		t.root = &bkNode{word: word}
		t.size++
		return
	}
	node := t.root
	for {
		d := matchr.DamerauLevenshtein(word, node.word)
		if d == 0 {
			return
		}
		if node.children == nil {
			node.children = make(map[int]*bkNode)
		}
		child, ok := node.children[d]
		if !ok {
			node.children[d] = &bkNode{word: word}
			t.size++
			return
		}
		node = child
	}
}

type fuzzyHit struct {
	word     string
	distance int
}

// search returns every stored word within maxDistance of query. The
// triangle inequality prunes subtrees whose distance range cannot
// intersect [d-max, d+max]; a cheap length prefilter skips the edit
// distance computation entirely when lengths alone rule a node out.
func (t *bkTree) search(query string, maxDistance int) []fuzzyHit {
	if t.root == nil || maxDistance < 0 {
		return nil
	}
	var hits []fuzzyHit
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// A leaf whose length differs by more than maxDistance cannot
		// match and has no subtree to bound, so skip the edit distance.
		if len(node.children) == 0 {
			if diff := len(node.word) - len(query); diff > maxDistance || -diff > maxDistance {
				continue
			}
		}

		d := matchr.DamerauLevenshtein(query, node.word)
		if d <= maxDistance {
			hits = append(hits, fuzzyHit{word: node.word, distance: d})
		}
		for key, child := range node.children {
			if key >= d-maxDistance && key <= d+maxDistance {
				stack = append(stack, child)
			}
		}
	}
	return hits
}
