package resolver

// trie is a rune trie over canonical forms. Immutable after the
// lexicon build; lookups take no lock.
type trie struct {
	root *trieNode
	size int
}

type trieNode struct {
	children map[rune]*trieNode
	terminal bool
}

func newTrie() *trie {
	return &trie{root: &trieNode{}}
}

func (t *trie) insert(word string) {
	node := t.root
	for _, r := range word {
		if node.children == nil {
			node.children = make(map[rune]*trieNode)
		}
		child, ok := node.children[r]
		if !ok {
			child = &trieNode{}
			node.children[r] = child
		}
		node = child
	}
	if !node.terminal {
		node.terminal = true
		t.size++
	}
}

func (t *trie) contains(word string) bool {
	node := t.root
	for _, r := range word {
		child, ok := node.children[r]
		if !ok {
			return false
		}
		node = child
	}
	return node.terminal
}

// walkPrefix visits every stored word starting with prefix, in no
// particular order, until fn returns false.
func (t *trie) walkPrefix(prefix string, fn func(word string) bool) {
	node := t.root
	for _, r := range prefix {
		child, ok := node.children[r]
		if !ok {
			return
		}
		node = child
	}
	walk(node, prefix, fn)
}

func walk(node *trieNode, acc string, fn func(string) bool) bool {
	if node.terminal && !fn(acc) {
		return false
	}
	for r, child := range node.children {
		if !walk(child, acc+string(r), fn) {
			return false
		}
	}
	return true
}
