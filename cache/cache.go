package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/index"
	"github.com/poiesic/catmat/metrics"
	"github.com/poiesic/catmat/storage"
	"golang.org/x/sync/singleflight"
)

// Key identifies the artifact a caller needs.
type Key struct {
	Fingerprint core.Fingerprint
	// Model must equal the manifest's model on a hit.
	Model string
	// Dimension must equal the manifest's dimension on a hit. Zero skips the
	// check.
	Dimension int
}

// Built is what a BuildFunc produces.
type Built struct {
	Index       *index.Index
	Model       string
	CatalogHash string
	EmbedTime   time.Duration
	IndexTime   time.Duration
}

// BuildFunc computes a fresh artifact. It runs at most once per fingerprint
// at a time.
type BuildFunc func(ctx context.Context) (*Built, error)

// Entry is a loaded artifact ready for querying.
type Entry struct {
	Manifest core.Manifest
	Index    *index.Index
	// Hit reports whether the entry was loaded rather than built.
	Hit bool
}

// Cache serves artifacts from a repository, building them on a miss.
type Cache struct {
	artifacts storage.ArtifactRepository
	buildLog  storage.BuildLogRepository
	metrics   *metrics.Recorder
	logger    *slog.Logger

	group  singleflight.Group
	builds atomic.Int64

	mu  sync.RWMutex
	hot *Entry
}

// Option configures a Cache.
type Option func(*Cache) error

// WithBuildLog records statistics for every build.
func WithBuildLog(repo storage.BuildLogRepository) Option {
	return func(c *Cache) error {
		c.buildLog = repo
		return nil
	}
}

// WithMetrics records cache lookups and build durations.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Cache) error {
		c.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger.With("component", "cache")
		return nil
	}
}

// New creates a cache over the given artifact repository.
func New(artifacts storage.ArtifactRepository, opts ...Option) (*Cache, error) {
	if artifacts == nil {
		return nil, ErrArtifactRepositoryRequired
	}
	c := &Cache{
		artifacts: artifacts,
		logger:    slog.Default().With("component", "cache"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Builds returns how many builds this cache has run.
func (c *Cache) Builds() int {
	return int(c.builds.Load())
}

// GetOrBuild returns the artifact for key, loading it when a persisted
// artifact matches and running build otherwise. A failed build returns an
// *core.IndexBuildError and leaves persisted artifacts untouched.
func (c *Cache) GetOrBuild(ctx context.Context, key Key, build BuildFunc) (*Entry, error) {
	if err := checkKey(key, build); err != nil {
		return nil, err
	}
	if e := c.cached(key); e != nil {
		c.metrics.CacheLookup(metrics.CacheHit)
		return e, nil
	}
	return c.do(ctx, key, func(ctx context.Context) (*Entry, error) {
		// Another caller may have finished while this one queued.
		if e := c.cached(key); e != nil {
			c.metrics.CacheLookup(metrics.CacheHit)
			return e, nil
		}
		e, err := c.load(ctx, key)
		if err == nil {
			c.metrics.CacheLookup(metrics.CacheHit)
			return e, nil
		}
		if errors.Is(err, core.ErrDimensionMismatch) {
			return nil, err
		}
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("discarding unreadable artifact", "fingerprint", key.Fingerprint.Short(), "err", err)
		}
		c.metrics.CacheLookup(metrics.CacheMiss)
		return c.build(ctx, key, build)
	})
}

// Rebuild runs build unconditionally and replaces any artifact stored under
// the fingerprint.
func (c *Cache) Rebuild(ctx context.Context, key Key, build BuildFunc) (*Entry, error) {
	if err := checkKey(key, build); err != nil {
		return nil, err
	}
	return c.do(ctx, key, func(ctx context.Context) (*Entry, error) {
		c.metrics.CacheLookup(metrics.CacheRebuild)
		return c.build(ctx, key, build)
	})
}

func checkKey(key Key, build BuildFunc) error {
	if key.Fingerprint == "" {
		return ErrFingerprintRequired
	}
	if build == nil {
		return ErrBuilderRequired
	}
	return nil
}

// do runs fn once per fingerprint across concurrent callers. The shared
// work is detached from any single caller's cancellation; each caller
// still stops waiting when its own context ends.
func (c *Cache) do(ctx context.Context, key Key, fn func(context.Context) (*Entry, error)) (*Entry, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(key.Fingerprint), func() (any, error) {
		return fn(shared)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	}
}

func (c *Cache) cached(key Key) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hot == nil || c.hot.Manifest.Fingerprint != key.Fingerprint {
		return nil
	}
	cp := *c.hot
	cp.Hit = true
	return &cp
}

func (c *Cache) remember(e *Entry) {
	c.mu.Lock()
	c.hot = e
	c.mu.Unlock()
}

func (c *Cache) load(ctx context.Context, key Key) (*Entry, error) {
	start := time.Now()
	artifact, err := c.artifacts.LoadArtifact(ctx, key.Fingerprint)
	if err != nil {
		return nil, err
	}
	m := artifact.Manifest
	if m.Model != key.Model {
		return nil, fmt.Errorf("%w: artifact %s was built with model %q, running %q",
			core.ErrDimensionMismatch, key.Fingerprint.Short(), m.Model, key.Model)
	}
	if key.Dimension != 0 && m.Count > 0 && m.Dimension != key.Dimension {
		return nil, fmt.Errorf("%w: artifact %s has dimension %d, model produces %d",
			core.ErrDimensionMismatch, key.Fingerprint.Short(), m.Dimension, key.Dimension)
	}

	idx, err := index.Read(bytes.NewReader(artifact.Graph), m.IDs, artifact.Embeddings)
	if err != nil {
		return nil, err
	}

	e := &Entry{Manifest: m, Index: idx, Hit: true}
	c.remember(e)
	c.logger.Info("artifact loaded", "fingerprint", key.Fingerprint.Short(), "count", m.Count,
		"dimension", m.Dimension, "duration", time.Since(start))
	return e, nil
}

func (c *Cache) build(ctx context.Context, key Key, build BuildFunc) (*Entry, error) {
	fail := func(err error) (*Entry, error) {
		c.logger.Error("artifact build failed", "fingerprint", key.Fingerprint.Short(), "err", err)
		return nil, &core.IndexBuildError{Fingerprint: key.Fingerprint, Err: err}
	}

	start := time.Now()
	c.builds.Add(1)
	c.logger.Info("building artifact", "fingerprint", key.Fingerprint.Short(), "model", key.Model)

	built, err := build(ctx)
	if err != nil {
		return fail(err)
	}
	if built == nil || built.Index == nil {
		return fail(errors.New("builder returned no index"))
	}
	idx := built.Index
	if key.Dimension != 0 && idx.Len() > 0 && idx.Dimension() != key.Dimension {
		return fail(fmt.Errorf("%w: built dimension %d, expected %d",
			core.ErrDimensionMismatch, idx.Dimension(), key.Dimension))
	}

	var graph bytes.Buffer
	if _, err := idx.WriteTo(&graph); err != nil {
		return fail(fmt.Errorf("encode graph: %w", err))
	}

	model := built.Model
	if model == "" {
		model = key.Model
	}
	artifact := &core.Artifact{
		Manifest: core.Manifest{
			Fingerprint: key.Fingerprint,
			Model:       model,
			Dimension:   idx.Dimension(),
			Count:       idx.Len(),
			Params:      idx.Params(),
			CatalogHash: built.CatalogHash,
			IDs:         idx.IDs(),
			CreatedAt:   time.Now().UTC(),
		},
		Embeddings: idx.Vectors(),
		Graph:      graph.Bytes(),
	}
	if err := c.artifacts.SaveArtifact(ctx, artifact); err != nil {
		return fail(fmt.Errorf("persist artifact: %w", err))
	}

	elapsed := time.Since(start)
	c.metrics.ObserveBuild(elapsed)
	if c.buildLog != nil {
		record := &core.BuildRecord{
			Fingerprint: key.Fingerprint,
			Count:       idx.Len(),
			Dimension:   idx.Dimension(),
			EmbedTime:   built.EmbedTime,
			IndexTime:   built.IndexTime,
			BuiltAt:     artifact.Manifest.CreatedAt,
		}
		if err := c.buildLog.RecordBuild(ctx, record); err != nil {
			c.logger.Warn("failed to record build", "err", err)
		}
	}

	e := &Entry{Manifest: artifact.Manifest, Index: idx}
	c.remember(e)
	c.logger.Info("artifact built", "fingerprint", key.Fingerprint.Short(), "count", idx.Len(),
		"dimension", idx.Dimension(), "duration", elapsed)
	return e, nil
}
