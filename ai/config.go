// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "intfloat/e5-base-v2", "text-embedding-3-small"
	EmbeddingModel string

	// EmbeddingAPIKey authenticates against the embedding service.
	// Local servers accept any value; "none" is used when empty.
	EmbeddingAPIKey string

	// RecommenderHost is the base URL for the chat completion API used to
	// pick the best candidate.
	RecommenderHost string

	// RecommenderModel is the chat model identifier.
	// Example: "gpt-4o-mini", "qwen2.5:7b"
	RecommenderModel string

	// RecommenderAPIKey authenticates against the recommender service. The
	// recommender is disabled when it is empty.
	RecommenderAPIKey string

	// Temperature is the sampling temperature for recommendations.
	// Default: 0.3
	Temperature float64

	// MaxTokens bounds the recommender response length.
	// Default: 800
	MaxTokens int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithRecommenderHost sets the recommender service host URL.
func WithRecommenderHost(host string) ConfigOption {
	return func(c *Config) {
		c.RecommenderHost = host
	}
}

// WithHost sets both embedding and recommender hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.RecommenderHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingAPIKey sets the embedding service credential.
func WithEmbeddingAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingAPIKey = key
	}
}

// WithRecommenderModel sets the recommender model identifier.
func WithRecommenderModel(model string) ConfigOption {
	return func(c *Config) {
		c.RecommenderModel = model
	}
}

// WithRecommenderAPIKey sets the recommender credential, enabling it.
func WithRecommenderAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.RecommenderAPIKey = key
	}
}

// WithTemperature sets the recommender sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithMaxTokens sets the recommender response token limit.
func WithMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = n
	}
}

// DefaultConfig returns a Config with a local embedding server and the
// hosted OpenAI API for recommendations (disabled until a key is set).
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:    "http://localhost:11434/v1",
		EmbeddingModel:   "intfloat/e5-base-v2",
		RecommenderHost:  "https://api.openai.com/v1",
		RecommenderModel: "gpt-4o-mini",
		Temperature:      0.3,
		MaxTokens:        800,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:8080"),
//	    WithRecommenderAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// RecommenderEnabled reports whether recommendations can be requested.
func (c *Config) RecommenderEnabled() bool {
	return c.RecommenderAPIKey != ""
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.RecommenderHost = normalizeHost(c.RecommenderHost)
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.RecommenderEnabled() {
		if c.RecommenderHost == "" {
			return errors.New("ai config: RecommenderHost is required")
		}
		if c.RecommenderModel == "" {
			return errors.New("ai config: RecommenderModel is required")
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens < 1 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	return nil
}
