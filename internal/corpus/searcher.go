package corpus

import (
	"context"
	"fmt"
	"strings"
)

// QueryEmbedder turns a retrieval query into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Searcher struct {
	store    Store
	embedder QueryEmbedder
}

func NewSearcher(store Store, embedder QueryEmbedder) Searcher {
	return Searcher{store: store, embedder: embedder}
}

func (s Searcher) Search(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.store.Search(ctx, vector, topK)
}
