// Package vectormem implements the vector store port with an in-process
// brute-force cosine scan. It serves tests and local runs; production
// deployments swap in a real vector database behind the same port.
package vectormem

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/medtrans/qagate/internal/domain/memory"
	"github.com/medtrans/qagate/internal/port/vectorstore"
)

// Store holds entries in memory and answers knn queries by full scan.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*memory.Entry
}

// New creates an empty in-memory vector store.
func New() *Store {
	return &Store{entries: make(map[string]*memory.Entry)}
}

// Index adds or replaces an entry.
func (s *Store) Index(_ context.Context, e *memory.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.Embedding = append([]float32(nil), e.Embedding...)
	s.entries[e.ID] = &cp
	return nil
}

// Search returns up to limit entries matching the filters, ordered by
// descending cosine similarity to the query vector.
func (s *Store) Search(_ context.Context, vector []float32, f vectorstore.Filters, limit int) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]vectorstore.Hit, 0, limit)
	for _, e := range s.entries {
		if f.SourceLang != "" && e.SourceLang != f.SourceLang {
			continue
		}
		if f.TargetLang != "" && e.TargetLang != f.TargetLang {
			continue
		}
		if f.Domain != "" && e.Domain != f.Domain {
			continue
		}
		sim := Cosine(vector, e.Embedding)
		cp := *e
		hits = append(hits, vectorstore.Hit{Entry: &cp, Similarity: sim})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Cosine computes the cosine similarity of two vectors. Mismatched or
// zero-length vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
