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

// Package catmat wires the catalog, embedding model, artifact cache, search
// engine and batch processor into a single Service.
package catmat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/catmat/ai"
	"github.com/poiesic/catmat/ai/openai"
	"github.com/poiesic/catmat/batch"
	"github.com/poiesic/catmat/cache"
	"github.com/poiesic/catmat/catalog"
	"github.com/poiesic/catmat/config"
	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/embedding"
	"github.com/poiesic/catmat/index"
	"github.com/poiesic/catmat/metrics"
	"github.com/poiesic/catmat/search"
	"github.com/poiesic/catmat/storage"
	"github.com/poiesic/catmat/storage/badger"
)

// ErrConfigRequired is returned by Open when cfg is nil.
var ErrConfigRequired = errors.New("config is required")

// embedRetryDelay is the base backoff between embedding attempts.
const embedRetryDelay = 200 * time.Millisecond

// Service is the process-wide search context: one catalog, one loaded
// model and one index, shared read-only by every caller.
type Service struct {
	cfg       *config.Config
	store     *catalog.Store
	backend   *badger.Backend
	artifacts storage.ArtifactRepository
	buildLog  storage.BuildLogRepository
	provider  ai.AIProvider
	generator *embedding.Generator
	cache     *cache.Cache
	processor *batch.Processor
	metrics   *metrics.Recorder
	logger    *slog.Logger

	mu     sync.RWMutex
	entry  *cache.Entry
	engine *search.Engine
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	provider      ai.AIProvider
	store         *catalog.Store
	metrics       *metrics.Recorder
	logger        *slog.Logger
	embedProgress io.Writer
	batchProgress batch.ProgressFunc
}

// WithProvider replaces the OpenAI-compatible provider built from the
// configuration. The Service takes ownership and closes it.
func WithProvider(p ai.AIProvider) Option {
	return func(o *openOptions) {
		o.provider = p
	}
}

// WithCatalog supplies an already loaded catalog instead of reading
// cfg.CatalogPath.
func WithCatalog(store *catalog.Store) Option {
	return func(o *openOptions) {
		o.store = store
	}
}

// WithMetrics sets the recorder shared by every component.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *openOptions) {
		o.metrics = m
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WithEmbedProgress reports catalog embedding progress to w during builds.
func WithEmbedProgress(w io.Writer) Option {
	return func(o *openOptions) {
		o.embedProgress = w
	}
}

// WithBatchProgress registers a callback invoked as batch jobs finish.
func WithBatchProgress(fn batch.ProgressFunc) Option {
	return func(o *openOptions) {
		o.batchProgress = fn
	}
}

// Open loads the catalog, opens storage, loads the embedding model and
// obtains the search artifact, building it when the cache has no match.
// A *core.ModelLoadError or *core.IndexBuildError aborts startup.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (svc *Service, err error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	s := &Service{
		cfg:      cfg,
		store:    o.store,
		provider: o.provider,
		metrics:  o.metrics,
		logger:   o.logger.With("component", "catmat"),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.store == nil {
		s.store, err = catalog.Load(cfg.CatalogPath,
			catalog.WithMinDescriptionLength(cfg.MinDescriptionLength),
			catalog.WithLogger(o.logger.With("component", "catalog")))
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
	}

	s.backend, err = badger.OpenBackend(cfg.DataDir, cfg.InMemory)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	s.artifacts, err = badger.NewArtifactRepository(s.backend)
	if err != nil {
		return nil, err
	}
	s.buildLog = badger.NewBuildLogRepository(s.backend)

	if s.provider == nil {
		s.provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			return nil, fmt.Errorf("create AI provider: %w", err)
		}
	}

	genOpts := []embedding.Option{
		embedding.WithBatchSize(cfg.BatchSize),
		embedding.WithWorkers(cfg.NWorkers),
		embedding.WithPrefixes(cfg.QueryPrefix, cfg.PassagePrefix),
		embedding.WithRateLimit(cfg.EmbedRPS),
		embedding.WithRetry(cfg.EmbedMaxAttempts, embedRetryDelay),
		embedding.WithLogger(o.logger.With("component", "embedding")),
	}
	if o.embedProgress != nil {
		genOpts = append(genOpts, embedding.WithProgress(o.embedProgress))
	}
	s.generator, err = embedding.NewGenerator(s.provider.Embedder(), cfg.ModelName, genOpts...)
	if err != nil {
		return nil, err
	}
	if err := s.generator.Load(ctx); err != nil {
		return nil, err
	}

	s.cache, err = cache.New(s.artifacts,
		cache.WithBuildLog(s.buildLog),
		cache.WithMetrics(s.metrics),
		cache.WithLogger(o.logger.With("component", "cache")))
	if err != nil {
		return nil, err
	}
	entry, err := s.cache.GetOrBuild(ctx, s.key(), s.builder())
	if err != nil {
		return nil, err
	}
	if err := s.install(entry); err != nil {
		return nil, err
	}

	s.processor, err = batch.NewProcessor(liveEngine{s}, s.generator,
		batch.WithWorkers(cfg.NWorkers),
		batch.WithEmbedBatchSize(cfg.BatchSize),
		batch.WithTimeout(cfg.BatchTimeout),
		batch.WithProgress(o.batchProgress),
		batch.WithMetrics(s.metrics),
		batch.WithLogger(o.logger.With("component", "batch")))
	if err != nil {
		return nil, err
	}

	s.logger.Info("service ready", "items", s.store.Len(), "fingerprint", entry.Manifest.Fingerprint.Short(),
		"dimension", entry.Manifest.Dimension, "cache_hit", entry.Hit,
		"recommender", cfg.RecommenderEnabled())
	return s, nil
}

// Fingerprint identifies the artifact for the current catalog, model and
// index parameters.
func (s *Service) Fingerprint() core.Fingerprint {
	return core.ComputeFingerprint(core.FingerprintInput{
		CatalogHash:   s.store.ContentHash(),
		Model:         s.cfg.ModelName,
		QueryPrefix:   s.cfg.QueryPrefix,
		PassagePrefix: s.cfg.PassagePrefix,
		Params:        s.cfg.IndexParams(),
	})
}

func (s *Service) key() cache.Key {
	return cache.Key{
		Fingerprint: s.Fingerprint(),
		Model:       s.cfg.ModelName,
		Dimension:   s.generator.Dimension(),
	}
}

func (s *Service) builder() cache.BuildFunc {
	return cache.NewBuilder(s.generator, s.store.Items(), s.store.ContentHash(), s.cfg.IndexParams(),
		index.WithWorkers(s.cfg.NWorkers),
		index.WithLogger(s.logger.With("component", "index")))
}

// install swaps in a new artifact and the engine serving it.
func (s *Service) install(entry *cache.Entry) error {
	engine, err := search.NewEngine(s.store, entry.Index, s.generator,
		search.WithRecommender(s.provider.Recommender()),
		search.WithRecommenderTimeout(s.cfg.RecommenderTimeout),
		search.WithRecommenderCandidates(s.cfg.RecommenderCandidates),
		search.WithMetrics(s.metrics),
		search.WithLogger(s.logger.With("component", "search")))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entry = entry
	s.engine = engine
	s.mu.Unlock()
	return nil
}

func (s *Service) current() *search.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Rebuild discards the cached artifact for the current fingerprint, builds
// a fresh one and swaps it in. Searches keep using the old index until the
// new one is ready.
func (s *Service) Rebuild(ctx context.Context) error {
	entry, err := s.cache.Rebuild(ctx, s.key(), s.builder())
	if err != nil {
		return err
	}
	return s.install(entry)
}

// Search returns the topK catalog items closest to query.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]core.SearchResult, error) {
	return s.current().Search(ctx, query, topK)
}

// SearchWithMonitor is Search with stage callbacks.
func (s *Service) SearchWithMonitor(ctx context.Context, query string, topK int, monitor search.SearchMonitor) ([]core.SearchResult, error) {
	return s.current().SearchWithMonitor(ctx, query, topK, monitor)
}

// SearchWithAI searches and asks the recommender to pick among the
// results. The recommendation degrades to the top hit instead of failing.
func (s *Service) SearchWithAI(ctx context.Context, query string, topK int) ([]core.SearchResult, *core.Recommendation, error) {
	return s.current().SearchWithAI(ctx, query, topK)
}

// SearchWithAIMonitor is SearchWithAI with stage callbacks.
func (s *Service) SearchWithAIMonitor(ctx context.Context, query string, topK int, monitor search.SearchMonitor) ([]core.SearchResult, *core.Recommendation, error) {
	return s.current().SearchWithAIMonitor(ctx, query, topK, monitor)
}

// ProcessBatch runs jobs concurrently. Per-job failures are reported in
// the results; an error means the batch could not be dispatched.
func (s *Service) ProcessBatch(ctx context.Context, jobs []core.BatchJob) (*batch.Run, error) {
	return s.processor.Process(ctx, jobs)
}

// ProcessQueries runs one job per query with shared settings.
func (s *Service) ProcessQueries(ctx context.Context, queries []string, topK int, useAI bool) (*batch.Run, error) {
	return s.processor.ProcessQueries(ctx, queries, topK, useAI)
}

// Info describes the loaded state.
type Info struct {
	Items       int              `json:"items"`
	Fingerprint core.Fingerprint `json:"fingerprint"`
	Model       string           `json:"model"`
	Dimension   int              `json:"dimension"`
	Params      core.IndexParams `json:"params"`
	CacheHit    bool             `json:"cache_hit"`
	Recommender bool             `json:"recommender"`
	Builds      int              `json:"builds"`
}

// Info reports the catalog size and the artifact in use.
func (s *Service) Info() Info {
	s.mu.RLock()
	entry := s.entry
	s.mu.RUnlock()
	return Info{
		Items:       s.store.Len(),
		Fingerprint: entry.Manifest.Fingerprint,
		Model:       entry.Manifest.Model,
		Dimension:   entry.Manifest.Dimension,
		Params:      entry.Manifest.Params,
		CacheHit:    entry.Hit,
		Recommender: s.cfg.RecommenderEnabled(),
		Builds:      s.cache.Builds(),
	}
}

// LastBuild returns the most recent build record, or nil if none exists.
func (s *Service) LastBuild(ctx context.Context) (*core.BuildRecord, error) {
	return s.buildLog.LastBuild(ctx)
}

// Catalog returns the loaded catalog.
func (s *Service) Catalog() *catalog.Store { return s.store }

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config { return s.cfg }

// Metrics returns the shared recorder.
func (s *Service) Metrics() *metrics.Recorder { return s.metrics }

// Close releases worker pools, the AI provider and storage.
func (s *Service) Close() error {
	if s.processor != nil {
		s.processor.Release()
	}
	if s.generator != nil {
		s.generator.Close()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
		}
	}
	if s.artifacts != nil {
		if err := s.artifacts.Close(); err != nil {
			s.logger.Error("error closing artifact repository", "err", err)
			return err
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			return err
		}
	}
	return nil
}

// liveEngine forwards to whichever engine is installed, so a Rebuild is
// picked up by the batch processor without recreating it.
type liveEngine struct{ s *Service }

func (l liveEngine) SearchVector(vec []float32, topK int) ([]core.SearchResult, error) {
	return l.s.current().SearchVector(vec, topK)
}

func (l liveEngine) Recommend(ctx context.Context, query string, results []core.SearchResult) *core.Recommendation {
	return l.s.current().Recommend(ctx, query, results)
}

func (l liveEngine) RecommenderTimeout() time.Duration {
	return l.s.current().RecommenderTimeout()
}
