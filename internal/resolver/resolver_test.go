package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordisle/lexiforge/pkg/types"
)

func testWords(canon ...string) []types.Word {
	out := make([]types.Word, 0, len(canon))
	for _, c := range canon {
		out = append(out, types.Word{Text: c, Normalized: c, Language: "en"})
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolver_ExactMatchIsTopResult(t *testing.T) {
	r := New(DefaultConfig(), testWords("serendipity", "serendipitous", "serene"), nil, testLogger())

	results, err := r.Resolve(context.Background(), "Serendipity!")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "serendipity", results[0].Word.Normalized)
	assert.Equal(t, types.SearchMethodExact, results[0].Method)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestResolver_FuzzyWithinDistanceThree(t *testing.T) {
	r := New(DefaultConfig(), testWords("serendipity", "apple", "apply"), nil, testLogger())

	results, err := r.Resolve(context.Background(), "serendipty")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "serendipity", results[0].Word.Normalized)
	assert.Equal(t, types.SearchMethodFuzzy, results[0].Method)
	assert.Less(t, results[0].Score, 1.0)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestResolver_FuzzyDistanceBound(t *testing.T) {
	r := New(DefaultConfig(), testWords("apple"), nil, testLogger())

	// "zzzzz" is distance 5 from "apple"; nothing may come back.
	results, err := r.Resolve(context.Background(), "zzzzz")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestResolver_MergeKeepsMaxScorePerWord(t *testing.T) {
	merged := merge([]types.SearchResult{
		{Word: types.Word{Normalized: "apple", Language: "en"}, Score: 0.8, Method: types.SearchMethodFuzzy},
		{Word: types.Word{Normalized: "apple", Language: "en"}, Score: 1.0, Method: types.SearchMethodExact},
		{Word: types.Word{Normalized: "apply", Language: "en"}, Score: 0.8, Method: types.SearchMethodFuzzy},
	}, 10)

	require.Len(t, merged, 2)
	assert.Equal(t, "apple", merged[0].Word.Normalized)
	assert.Equal(t, 1.0, merged[0].Score)
	assert.Equal(t, types.SearchMethodExact, merged[0].Method)
}

func TestResolver_MergeMethodRankBreaksTies(t *testing.T) {
	merged := merge([]types.SearchResult{
		{Word: types.Word{Normalized: "b", Language: "en"}, Score: 0.7, Method: types.SearchMethodSemantic},
		{Word: types.Word{Normalized: "a", Language: "en"}, Score: 0.7, Method: types.SearchMethodFuzzy},
	}, 10)

	require.Len(t, merged, 2)
	assert.Equal(t, types.SearchMethodFuzzy, merged[0].Method)
}

func TestResolver_Suggest(t *testing.T) {
	r := New(DefaultConfig(), testWords("apple", "apply", "ample", "zebra"), nil, testLogger())

	suggestions := r.Suggest(context.Background(), "appel", 3)
	require.NotEmpty(t, suggestions)
	assert.Contains(t, suggestions, "apple")
	assert.NotContains(t, suggestions, "zebra")
	assert.LessOrEqual(t, len(suggestions), 3)
}

func TestResolver_EmptyQueryResolvesToNothing(t *testing.T) {
	r := New(DefaultConfig(), testWords("apple"), nil, testLogger())

	results, err := r.Resolve(context.Background(), "  ?! ")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestResolver_VocabularyHashChangesOnRebuild(t *testing.T) {
	r := New(DefaultConfig(), testWords("apple"), nil, testLogger())
	first := r.VocabularyHash()

	r.Rebuild(testWords("apple", "banana"))
	assert.NotEqual(t, first, r.VocabularyHash())

	r.Rebuild(testWords("apple"))
	assert.Equal(t, first, r.VocabularyHash(), "hash is deterministic over the vocabulary")
}

func TestBloomFilter(t *testing.T) {
	f := newBloomFilter(100, 0.01)
	f.add("apple")
	f.add("banana")

	assert.True(t, f.mayContain("apple"))
	assert.True(t, f.mayContain("banana"))

	misses := 0
	for _, w := range []string{"carrot", "durian", "elderberry", "fig", "grape"} {
		if !f.mayContain(w) {
			misses++
		}
	}
	assert.Greater(t, misses, 0, "filter rejects most absent keys")
}

func TestTrie(t *testing.T) {
	tr := newTrie()
	tr.insert("apple")
	tr.insert("apply")
	tr.insert("app")

	assert.True(t, tr.contains("apple"))
	assert.True(t, tr.contains("app"))
	assert.False(t, tr.contains("appl"))
	assert.False(t, tr.contains("applesauce"))

	var seen []string
	tr.walkPrefix("appl", func(w string) bool {
		seen = append(seen, w)
		return true
	})
	assert.ElementsMatch(t, []string{"apple", "apply"}, seen)
}

func TestBKTree(t *testing.T) {
	bk := newBKTree()
	for _, w := range []string{"book", "books", "boo", "cake", "cape", "cart"} {
		bk.insert(w)
	}

	hits := bk.search("bok", 1)
	words := make([]string, 0, len(hits))
	for _, h := range hits {
		words = append(words, h.word)
	}
	assert.ElementsMatch(t, []string{"book", "boo"}, words)

	assert.Empty(t, bk.search("zzzzzzzz", 2))
}

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s.vectors[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

func TestResolver_SemanticFindsRelatedWord(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{
		"happy":  {1, 0, 0},
		"joyful": {0.95, 0.3, 0},
		"table":  {0, 1, 0},
	}}
	cfg := DefaultConfig()
	cfg.SemanticEnabled = true
	r := New(cfg, testWords("joyful", "table"), emb, testLogger())

	// First resolve kicks off index initialization.
	_, err := r.Resolve(context.Background(), "happy")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		results, err := r.Resolve(context.Background(), "happy")
		if err != nil || len(results) == 0 {
			return false
		}
		return results[0].Word.Normalized == "joyful" &&
			results[0].Method == types.SearchMethodSemantic
	}, time.Second, 10*time.Millisecond)
}

func TestSemanticIndex_FailureSurfacedOnce(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("embedding service down")}
	idx := newSemanticIndex(emb, testLogger())

	idx.ensureReady([]string{"apple"})
	require.Eventually(t, func() bool {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		return idx.state == readinessFailed
	}, time.Second, 5*time.Millisecond)

	assert.Error(t, idx.failure())
	assert.NoError(t, idx.failure(), "failure reports exactly once")
}

func TestSemanticIndex_SingleInitialization(t *testing.T) {
	emb := &stubEmbedder{vectors: map[string][]float32{}}
	idx := newSemanticIndex(emb, testLogger())

	for i := 0; i < 5; i++ {
		state := idx.ensureReady([]string{"apple", "banana"})
		assert.NotEqual(t, readinessNotStarted, state)
	}
	require.Eventually(t, func() bool {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		return idx.state == readinessReady
	}, time.Second, 5*time.Millisecond)
}
