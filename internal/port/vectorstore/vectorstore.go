// Package vectorstore defines the port for nearest-neighbor search over
// memory entry embeddings.
package vectorstore

import (
	"context"
	"errors"

	"github.com/medtrans/qagate/internal/domain/memory"
)

// ErrUnavailable is returned when the vector store cannot be reached.
var ErrUnavailable = errors.New("vector store unavailable")

// Filters restricts a search to one language pair and, optionally, domain.
// Domain filtering is left to the ranking layer when Domain is empty.
type Filters struct {
	SourceLang string
	TargetLang string
	Domain     string
}

// Hit is one nearest-neighbor result with its cosine similarity.
type Hit struct {
	Entry      *memory.Entry
	Similarity float64
}

// VectorStore indexes memory entries and answers k-nearest-neighbor
// queries over their embeddings.
type VectorStore interface {
	Index(ctx context.Context, e *memory.Entry) error
	Search(ctx context.Context, vector []float32, f Filters, limit int) ([]Hit, error)
}
