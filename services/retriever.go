package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Seungwon-Robin/Chatbot/models"
	"github.com/Seungwon-Robin/Chatbot/storage"
)

// DefaultTopK is used when Retrieve is called with k <= 0.
const DefaultTopK = 3

// Retriever finds the catalog songs closest to a query
// 1. Converting the query to an embedding (vector)
// 2. Finding the nearest catalog vectors in the L2 index
// 3. Mapping index positions back to catalog rows
type Retriever struct {
	embedder TextEmbedder
	catalog  *storage.Catalog
	index    atomic.Pointer[FlatIndex]
	topK     int
}

func NewRetriever(embedder TextEmbedder, catalog *storage.Catalog, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{
		embedder: embedder,
		catalog:  catalog,
		topK:     topK,
	}
}

// SetIndex makes the retriever ready.
func (r *Retriever) SetIndex(index *FlatIndex) {
	r.index.Store(index)
}

func (r *Retriever) Ready() bool { return r.index.Load() != nil }

// Retrieve returns up to k songs ordered by ascending distance.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	index := r.index.Load()
	if index == nil {
		return nil, fmt.Errorf("%w: index is not ready", ErrRetrieval)
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if k <= 0 {
		k = r.topK
	}

	queryEmbedding, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate query embedding: %w", ErrRetrieval, err)
	}

	neighbors, err := index.Search(queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	positions := make([]int, len(neighbors))
	for i, n := range neighbors {
		positions[i] = n.Position
	}
	songs, err := r.catalog.Get(positions)
	if err != nil {
		// index built from a different catalog
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	results := make([]models.SearchResult, len(neighbors))
	for i, n := range neighbors {
		results[i] = models.SearchResult{
			Position: n.Position,
			Distance: n.Distance,
			Song:     songs[i],
		}
	}
	return results, nil
}
