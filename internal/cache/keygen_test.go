package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Deterministic(t *testing.T) {
	t.Run("equal inputs produce equal keys", func(t *testing.T) {
		a := Key("lookup", "word", "en", true)
		b := Key("lookup", "word", "en", true)
		assert.Equal(t, a, b)
	})

	t.Run("different args produce different keys", func(t *testing.T) {
		a := Key("lookup", "word", "en")
		b := Key("lookup", "word", "de")
		assert.NotEqual(t, a, b)
	})

	t.Run("topic participates", func(t *testing.T) {
		assert.NotEqual(t, Key("a", "x"), Key("b", "x"))
	})

	t.Run("zero args still yields valid hex", func(t *testing.T) {
		k := Key("bare")
		assert.Len(t, k, 64)
		for _, r := range k {
			assert.Contains(t, "0123456789abcdef", string(r))
		}
	})
}

func TestKeyFor_NamedArgs(t *testing.T) {
	t.Run("named arg order does not matter", func(t *testing.T) {
		a := KeyFor(KeyParams{Topic: "t", Named: map[string]any{"x": 1, "y": 2}})
		b := KeyFor(KeyParams{Topic: "t", Named: map[string]any{"y": 2, "x": 1}})
		assert.Equal(t, a, b)
	})

	t.Run("named arg values matter", func(t *testing.T) {
		a := KeyFor(KeyParams{Topic: "t", Named: map[string]any{"x": 1}})
		b := KeyFor(KeyParams{Topic: "t", Named: map[string]any{"x": 2}})
		assert.NotEqual(t, a, b)
	})
}

func TestCanonicalize(t *testing.T) {
	t.Run("small string lists become tuples", func(t *testing.T) {
		assert.Equal(t, "(a,b,c)", canonicalize([]string{"a", "b", "c"}))
	})

	t.Run("enum-like stringers use their wire value", func(t *testing.T) {
		assert.Equal(t, "none", canonicalize(Compression("none")))
	})

	t.Run("structs hash to hex identity", func(t *testing.T) {
		type payload struct{ A, B string }
		got := canonicalize(payload{"x", "y"})
		assert.Len(t, got, 64)
		assert.Equal(t, got, canonicalize(payload{"x", "y"}))
	})
}
