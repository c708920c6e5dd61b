package openai

import (
	"log/slog"

	"github.com/poiesic/catmat/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// It manages embedder and recommender instances.
type Provider struct {
	config      *ai.Config
	embedder    *Embedder
	recommender ai.Recommender
	logger      *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	recommender, err := NewRecommender(config)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider")
	if !config.RecommenderEnabled() {
		logger.Info("no recommender API key configured; AI recommendations disabled")
	}

	return &Provider{
		config:      config,
		embedder:    embedder,
		recommender: recommender,
		logger:      logger,
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Recommender returns the recommendation service.
func (p *Provider) Recommender() ai.Recommender {
	return p.recommender
}

// ModelName returns the embedding model identifier.
func (p *Provider) ModelName() string {
	return p.config.EmbeddingModel
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
