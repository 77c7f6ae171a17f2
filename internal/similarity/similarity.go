// Package similarity ranks example utterances by embedding similarity.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// DefaultCacheSize bounds the number of cached candidate embeddings.
const DefaultCacheSize = 2048

const embedConcurrency = 4

var (
	// ErrNoCandidates is returned when there is nothing to compare against.
	ErrNoCandidates = errors.New("no candidates")
	// ErrDimensionMismatch is returned for vectors of different lengths.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// Finder picks the candidates closest to a query.
type Finder struct {
	embedder Embedder
	cache    *lru.Cache[string, []float32]
}

// NewFinder creates a finder that caches candidate vectors.
func NewFinder(e Embedder, cacheSize int) (*Finder, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Finder{embedder: e, cache: cache}, nil
}

// Scored is a candidate with its similarity to the query.
type Scored struct {
	Text  string
	Score float64
}

// MostSimilar returns the candidate with the highest cosine similarity to query.
func (f *Finder) MostSimilar(ctx context.Context, query string, candidates []string) (string, float64, error) {
	ranked, err := f.Rank(ctx, query, candidates)
	if err != nil {
		return "", 0, err
	}
	return ranked[0].Text, ranked[0].Score, nil
}

// Rank orders candidates by descending similarity to query. Ties keep their
// original order.
func (f *Finder) Rank(ctx context.Context, query string, candidates []string) ([]Scored, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	queryVec, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vecs := make([][]float32, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, text := range candidates {
		g.Go(func() error {
			v, err := f.embedCached(gctx, text)
			if err != nil {
				return fmt.Errorf("embed candidate %d: %w", i, err)
			}
			vecs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scored := make([]Scored, len(candidates))
	for i, text := range candidates {
		s, err := CosineSimilarity(queryVec, vecs[i])
		if err != nil {
			return nil, fmt.Errorf("score candidate %d: %w", i, err)
		}
		scored[i] = Scored{Text: text, Score: s}
	}
	sort.SliceStable(scored, func(a, b int) bool { return scored[a].Score > scored[b].Score })
	return scored, nil
}

func (f *Finder) embedCached(ctx context.Context, text string) ([]float32, error) {
	key := f.embedder.Name() + "\x00" + text
	if v, ok := f.cache.Get(key); ok {
		return v, nil
	}
	v, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	f.cache.Add(key, v)
	return v, nil
}

// CosineSimilarity returns the cosine of the angle between a and b. Zero
// vectors score 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
