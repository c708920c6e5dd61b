package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/index"
)

// Embedder is the part of embedding.Generator a build needs.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
}

// NewBuilder returns a BuildFunc that embeds every item description as a
// passage and builds an HNSW index over the result.
func NewBuilder(embedder Embedder, items []*core.CatalogItem, catalogHash string, params core.IndexParams, opts ...index.Option) BuildFunc {
	return func(ctx context.Context) (*Built, error) {
		ids := make([]string, len(items))
		texts := make([]string, len(items))
		for i, item := range items {
			ids[i] = item.ID
			texts[i] = item.Description
		}

		start := time.Now()
		vectors, err := embedder.Embed(ctx, texts, false)
		if err != nil {
			return nil, fmt.Errorf("embed catalog: %w", err)
		}
		embedTime := time.Since(start)

		start = time.Now()
		idx, err := index.Build(ctx, vectors, ids, params, opts...)
		if err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}

		return &Built{
			Index:       idx,
			Model:       embedder.Model(),
			CatalogHash: catalogHash,
			EmbedTime:   embedTime,
			IndexTime:   time.Since(start),
		}, nil
	}
}
