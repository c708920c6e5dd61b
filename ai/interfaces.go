package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Recommender picks the best catalog item for a query among ranked
// candidates. Implementations must be thread-safe for concurrent use.
type Recommender interface {
	// Recommend asks the model to choose among req.Candidates. The returned
	// BestID is not guaranteed to be one of the candidates; callers verify it.
	// Returns core.ErrRecommenderUnavailable when no backend is configured.
	Recommend(ctx context.Context, req *RecommendationRequest) (*RecommendationResponse, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Recommender returns the recommendation service. It is never nil; an
	// unconfigured provider returns a recommender that always reports
	// core.ErrRecommenderUnavailable.
	Recommender() Recommender

	// ModelName identifies the embedding model.
	ModelName() string

	// Close releases resources held by the provider and its services.
	Close() error
}
