package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

// Embedder produces embedding vectors for texts. Implemented by the
// LLM client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// readiness is the semantic leg's lifecycle. Transitions are guarded by
// semanticIndex.mu; at most one initialization ever runs and a failure
// is terminal until the next lexicon rebuild.
type readiness int

const (
	readinessNotStarted readiness = iota
	readinessInProgress
	readinessReady
	readinessFailed
)

func (r readiness) String() string {
	switch r {
	case readinessNotStarted:
		return "not_started"
	case readinessInProgress:
		return "in_progress"
	case readinessReady:
		return "ready"
	case readinessFailed:
		return "failed"
	}
	return fmt.Sprintf("readiness(%d)", int(r))
}

// ivfThreshold is the corpus size above which the index partitions
// vectors into coarse lists instead of scanning flat.
const ivfThreshold = 10_000

type semanticHit struct {
	word  string
	score float64
}

// semanticIndex embeds the vocabulary once and answers top-k cosine
// queries. Vectors are L2-normalized at insert so cosine reduces to a
// dot product.
type semanticIndex struct {
	embedder Embedder
	logger   *slog.Logger

	mu       sync.Mutex
	state    readiness
	initErr  error
	reported bool

	words   []string
	vectors [][]float32

	// IVF layout, populated only above ivfThreshold.
	centroids [][]float32
	lists     [][]int
	nprobe    int
}

func newSemanticIndex(embedder Embedder, logger *slog.Logger) *semanticIndex {
	return &semanticIndex{
		embedder: embedder,
		logger:   logger,
		state:    readinessNotStarted,
	}
}

// state transitions run under mu; the embedding work itself does not.

// ensureReady starts initialization on first call and reports the
// current readiness. It never blocks on the build.
func (s *semanticIndex) ensureReady(words []string) readiness {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != readinessNotStarted {
		return s.state
	}
	s.state = readinessInProgress
	go s.build(words)
	return s.state
}

func (s *semanticIndex) build(words []string) {
	ctx := context.Background()
	vectors, err := s.embedder.Embed(ctx, words)
	if err != nil || len(vectors) != len(words) {
		if err == nil {
			err = fmt.Errorf("embedder returned %d vectors for %d words", len(vectors), len(words))
		}
		s.mu.Lock()
		s.state = readinessFailed
		s.initErr = err
		s.mu.Unlock()
		return
	}
	for i := range vectors {
		l2Normalize(vectors[i])
	}

	var centroids [][]float32
	var lists [][]int
	nprobe := 0
	if len(words) > ivfThreshold {
		nlist := int(math.Sqrt(float64(len(words))))
		centroids, lists = buildIVF(vectors, nlist)
		nprobe = nlist / 8
		if nprobe < 1 {
			nprobe = 1
		}
	}

	s.mu.Lock()
	s.words = words
	s.vectors = vectors
	s.centroids = centroids
	s.lists = lists
	s.nprobe = nprobe
	s.state = readinessReady
	s.mu.Unlock()
	s.logger.Info("semantic index ready",
		slog.Int("words", len(words)),
		slog.Bool("ivf", centroids != nil))
}

// failure returns the init error exactly once.
func (s *semanticIndex) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != readinessFailed || s.reported {
		return nil
	}
	s.reported = true
	return s.initErr
}

// search returns the top-k words with cosine similarity >= threshold.
// Returns nil unless the index is ready.
func (s *semanticIndex) search(ctx context.Context, query string, k int, threshold float64) ([]semanticHit, error) {
	s.mu.Lock()
	ready := s.state == readinessReady
	words, vectors := s.words, s.vectors
	centroids, lists, nprobe := s.centroids, s.lists, s.nprobe
	s.mu.Unlock()
	if !ready || k <= 0 {
		return nil, nil
	}

	embedded, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embedded) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(embedded))
	}
	q := embedded[0]
	l2Normalize(q)

	candidates := candidateSet(q, vectors, centroids, lists, nprobe)
	hits := make([]semanticHit, 0, k)
	for _, i := range candidates {
		score := float64(dot(q, vectors[i]))
		if score >= threshold {
			hits = append(hits, semanticHit{word: words[i], score: score})
		}
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// candidateSet selects the vector indexes to score: everything for the
// flat layout, the nprobe nearest lists for IVF.
func candidateSet(q []float32, vectors, centroids [][]float32, lists [][]int, nprobe int) []int {
	if centroids == nil {
		all := make([]int, len(vectors))
		for i := range all {
			all[i] = i
		}
		return all
	}

	type scored struct {
		list  int
		score float32
	}
	ranked := make([]scored, len(centroids))
	for i, c := range centroids {
		ranked[i] = scored{list: i, score: dot(q, c)}
	}
	sort.Slice(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })
	if nprobe > len(ranked) {
		nprobe = len(ranked)
	}

	var out []int
	for _, r := range ranked[:nprobe] {
		out = append(out, lists[r.list]...)
	}
	return out
}

// buildIVF assigns vectors to nlist coarse centroids with a few rounds
// of Lloyd's iteration seeded by strided sampling.
func buildIVF(vectors [][]float32, nlist int) ([][]float32, [][]int) {
	if nlist < 2 || nlist > len(vectors) {
		return nil, nil
	}
	dim := len(vectors[0])
	centroids := make([][]float32, nlist)
	stride := len(vectors) / nlist
	for i := range centroids {
		centroids[i] = append([]float32(nil), vectors[i*stride]...)
	}

	assign := make([]int, len(vectors))
	for round := 0; round < 5; round++ {
		for i, v := range vectors {
			best, bestScore := 0, float32(math.Inf(-1))
			for c, centroid := range centroids {
				if s := dot(v, centroid); s > bestScore {
					best, bestScore = c, s
				}
			}
			assign[i] = best
		}
		sums := make([][]float32, nlist)
		counts := make([]int, nlist)
		for i := range sums {
			sums[i] = make([]float32, dim)
		}
		for i, v := range vectors {
			c := assign[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += x
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range sums[c] {
				sums[c][d] /= float32(counts[c])
			}
			l2Normalize(sums[c])
			centroids[c] = sums[c]
		}
	}

	lists := make([][]int, nlist)
	for i, c := range assign {
		lists[c] = append(lists[c], i)
	}
	return centroids, lists
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
