// Package vector provides the similarity-context collaborator used for reply
// suggestions. The embedding is a deterministic content hash, not a learned
// model; it lives behind the Store so a real embedding backend can replace it
// without touching the resolver.
package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Dimensions is the embedding vector size.
const Dimensions = 1536

// Hit is one similarity match.
type Hit struct {
	Text  string
	Score float64
}

type point struct {
	id     string
	text   string
	vector []float64
}

// Store is an in-memory cosine-similarity store. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	points map[string]point
}

// NewStore creates an empty similarity store.
func NewStore() *Store {
	return &Store{points: make(map[string]point)}
}

// Upsert stores text under id, replacing any previous entry.
func (s *Store) Upsert(id, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[id] = point{id: id, text: text, vector: Embed(text)}
}

// Nearest returns up to k stored texts ranked by cosine similarity to the
// query. An empty store yields an empty result, not an error.
func (s *Store) Nearest(_ context.Context, text string, k int) ([]Hit, error) {
	query := Embed(text)

	s.mu.RLock()
	hits := make([]Hit, 0, len(s.points))
	for _, p := range s.points {
		hits = append(hits, Hit{Text: p.text, Score: cosine(query, p.vector)})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Embed produces a normalized Dimensions-length vector derived from the text
// content. Identical text always embeds identically.
func Embed(text string) []float64 {
	vec := make([]float64, Dimensions)
	for i, r := range text {
		idx := i % Dimensions
		vec[idx] = (vec[idx] + float64(r)/255) / 2
	}
	var magnitude float64
	for _, v := range vec {
		magnitude += v * v
	}
	magnitude = math.Sqrt(magnitude)
	if magnitude == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= magnitude
	}
	return vec
}

func cosine(a, b []float64) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	// Inputs are normalized at embed time, so the dot product is the cosine.
	return dot
}
