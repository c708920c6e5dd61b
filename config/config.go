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

// Package config holds the application configuration.
//
// Every recognized option is a field of Config with a default. Values are
// read from an optional YAML file and then overridden by CATMAT_* environment
// variables (for example CATMAT_HNSW_M), after any .env file has been loaded.
// OPENAI_API_KEY is honored for the recommender key.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/catmat/ai"
	"github.com/poiesic/catmat/core"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config enumerates every recognized option.
type Config struct {
	CatalogPath string `yaml:"catalog_path"`
	DataDir     string `yaml:"data_dir"`
	InMemory    bool   `yaml:"in_memory"`

	ModelName     string `yaml:"model_name"`
	EmbeddingHost string `yaml:"embedding_host"`
	QueryPrefix   string `yaml:"query_prefix"`
	PassagePrefix string `yaml:"passage_prefix"`

	HNSWM              int `yaml:"hnsw_m"`
	HNSWEfConstruction int `yaml:"hnsw_ef_construction"`
	HNSWEfSearch       int `yaml:"hnsw_ef_search"`

	BatchSize        int     `yaml:"batch_size"`
	NWorkers         int     `yaml:"n_workers"`
	EmbedRPS         float64 `yaml:"embed_rps"`
	EmbedMaxAttempts int     `yaml:"embed_max_attempts"`

	OpenAIModel           string        `yaml:"openai_model"`
	OpenAIHost            string        `yaml:"openai_host"`
	OpenAIAPIKey          string        `yaml:"openai_api_key"`
	RecommenderTimeout    time.Duration `yaml:"recommender_timeout"`
	RecommenderCandidates int           `yaml:"recommender_candidates"`

	BatchTimeout         time.Duration `yaml:"batch_timeout"`
	DefaultTopK          int           `yaml:"default_top_k"`
	BatchTopK            int           `yaml:"batch_top_k"`
	MinDescriptionLength int           `yaml:"min_description_length"`
}

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		CatalogPath:           "catmat.csv",
		DataDir:               "./.catmat",
		ModelName:             "intfloat/e5-base-v2",
		EmbeddingHost:         "http://localhost:11434",
		QueryPrefix:           "query: ",
		PassagePrefix:         "passage: ",
		HNSWM:                 32,
		HNSWEfConstruction:    200,
		HNSWEfSearch:          100,
		BatchSize:             64,
		NWorkers:              min(runtime.NumCPU(), 8),
		EmbedMaxAttempts:      3,
		OpenAIModel:           "gpt-4o-mini",
		OpenAIHost:            "https://api.openai.com/v1",
		RecommenderTimeout:    5 * time.Second,
		RecommenderCandidates: 10,
		DefaultTopK:           15,
		BatchTopK:             5,
		MinDescriptionLength:  10,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// IndexParams returns the HNSW hyperparameters.
func (c *Config) IndexParams() core.IndexParams {
	return core.IndexParams{M: c.HNSWM, EfConstruction: c.HNSWEfConstruction, EfSearch: c.HNSWEfSearch}
}

// RecommenderEnabled reports whether an API key is configured.
func (c *Config) RecommenderEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// AIConfig maps the application settings onto the provider configuration.
func (c *Config) AIConfig() *ai.Config {
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost(c.EmbeddingHost),
		ai.WithEmbeddingModel(c.ModelName),
		ai.WithRecommenderHost(c.OpenAIHost),
		ai.WithRecommenderModel(c.OpenAIModel),
		ai.WithRecommenderAPIKey(c.OpenAIAPIKey),
	)
	cfg.Normalize()
	return cfg
}

type bound struct {
	name     string
	value    int
	min, max int // max 0 means unbounded
}

// Validate checks every option against its allowed range and reports all
// violations at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.CatalogPath == "" {
		fail("catalog_path is required")
	}
	if c.DataDir == "" && !c.InMemory {
		fail("data_dir is required unless in_memory is set")
	}
	if c.ModelName == "" {
		fail("model_name is required")
	}
	if c.EmbeddingHost == "" {
		fail("embedding_host is required")
	}

	bounds := []bound{
		{"hnsw_m", c.HNSWM, 2, 128},
		{"hnsw_ef_construction", c.HNSWEfConstruction, max(c.HNSWM, 1), 0},
		{"hnsw_ef_search", c.HNSWEfSearch, 1, 0},
		{"batch_size", c.BatchSize, 1, 4096},
		{"n_workers", c.NWorkers, 1, 256},
		{"embed_max_attempts", c.EmbedMaxAttempts, 1, 10},
		{"recommender_candidates", c.RecommenderCandidates, 1, 50},
		{"default_top_k", c.DefaultTopK, 1, 0},
		{"batch_top_k", c.BatchTopK, 1, 0},
		{"min_description_length", c.MinDescriptionLength, 0, 0},
	}
	for _, b := range bounds {
		switch {
		case b.value < b.min:
			fail("%s must be >= %d, got %d", b.name, b.min, b.value)
		case b.max > 0 && b.value > b.max:
			fail("%s must be <= %d, got %d", b.name, b.max, b.value)
		}
	}

	if c.EmbedRPS < 0 {
		fail("embed_rps must be >= 0, got %g", c.EmbedRPS)
	}
	if c.RecommenderTimeout <= 0 {
		fail("recommender_timeout must be positive, got %s", c.RecommenderTimeout)
	}
	if c.BatchTimeout < 0 {
		fail("batch_timeout must be >= 0, got %s", c.BatchTimeout)
	}
	return errors.Join(errs...)
}
