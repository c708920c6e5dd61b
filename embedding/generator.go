package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/catmat/ai"
	"github.com/poiesic/catmat/core"
	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the number of texts sent to the embedder per request.
	DefaultBatchSize = 64

	// DefaultQueryPrefix and DefaultPassagePrefix follow the E5 input convention.
	DefaultQueryPrefix   = "query: "
	DefaultPassagePrefix = "passage: "

	defaultMaxAttempts = 3
	defaultBaseDelay   = 200 * time.Millisecond

	probeText = "catmat"
)

// Generator produces normalized embeddings for queries and catalog
// passages. It is safe for concurrent use.
type Generator struct {
	embedder      ai.Embedder
	model         string
	queryPrefix   string
	passagePrefix string
	batchSize     int
	pool          *ants.Pool
	limiter       *rate.Limiter
	maxAttempts   int
	baseDelay     time.Duration
	progress      io.Writer
	logger        *slog.Logger

	loadMu  sync.Mutex
	loaded  bool
	loadErr error
	dim     int
}

// Option configures a Generator.
type Option func(*Generator) error

// WithBatchSize sets how many texts are sent per embedder request.
func WithBatchSize(size int) Option {
	return func(g *Generator) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		g.batchSize = size
		return nil
	}
}

// WithWorkers sets the number of batches embedded concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(size int) Option {
	return func(g *Generator) error {
		if size < 1 {
			size = 1
		}
		if g.pool != nil {
			g.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		g.pool = pool
		return nil
	}
}

// WithPrefixes sets the text prefixes for queries and passages.
func WithPrefixes(query, passage string) Option {
	return func(g *Generator) error {
		g.queryPrefix = query
		g.passagePrefix = passage
		return nil
	}
}

// WithRateLimit caps embedder requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(g *Generator) error {
		if rps < 0 {
			return fmt.Errorf("rate limit must not be negative, got %v", rps)
		}
		if rps == 0 {
			g.limiter = nil
			return nil
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
		return nil
	}
}

// WithRetry sets how often a failed batch request is attempted and the
// initial backoff delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(g *Generator) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		g.maxAttempts = maxAttempts
		g.baseDelay = baseDelay
		return nil
	}
}

// WithProgress reports embedding progress for multi-batch runs to w.
func WithProgress(w io.Writer) Option {
	return func(g *Generator) error {
		g.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGenerator creates a generator for the named model backed by embedder.
func NewGenerator(embedder ai.Embedder, model string, opts ...Option) (*Generator, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if strings.TrimSpace(model) == "" {
		return nil, ErrModelRequired
	}

	g := &Generator{
		embedder:      embedder,
		model:         model,
		queryPrefix:   DefaultQueryPrefix,
		passagePrefix: DefaultPassagePrefix,
		batchSize:     DefaultBatchSize,
		maxAttempts:   defaultMaxAttempts,
		baseDelay:     defaultBaseDelay,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			g.Close()
			return nil, err
		}
	}

	if g.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		g.pool = pool
	}
	g.logger = g.logger.With("component", "embedding", "model", model)

	return g, nil
}

// Model returns the model identifier.
func (g *Generator) Model() string { return g.model }

// QueryPrefix returns the prefix applied to query texts.
func (g *Generator) QueryPrefix() string { return g.queryPrefix }

// PassagePrefix returns the prefix applied to catalog passages.
func (g *Generator) PassagePrefix() string { return g.passagePrefix }

// Load probes the model once and records its dimension. Once the probe has
// completed, every later call returns its outcome: a failed load is not
// retried. A probe cut short by the caller's context is not an outcome; the
// next call probes again.
func (g *Generator) Load(ctx context.Context) error {
	g.loadMu.Lock()
	defer g.loadMu.Unlock()
	if g.loaded {
		return g.loadErr
	}

	start := time.Now()
	vecs, err := g.embedder.EmbedTexts(ctx, []string{g.passagePrefix + probeText})
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			g.logger.Warn("embedding model load interrupted", "err", err)
			return fmt.Errorf("load model %s: %w", g.model, ctxErr)
		}
	case len(vecs) != 1:
		err = fmt.Errorf("%w: got %d for 1 text", ErrCountMismatch, len(vecs))
	case len(vecs[0]) == 0:
		err = errors.New("model returned an empty vector")
	}
	g.loaded = true
	if err != nil {
		g.loadErr = &core.ModelLoadError{Model: g.model, Err: err}
		g.logger.Error("failed to load embedding model", "err", err)
		return g.loadErr
	}
	g.dim = len(vecs[0])
	g.logger.Info("embedding model loaded", "dimension", g.dim, "duration", time.Since(start))
	return nil
}

// Dimension returns the vector size, or 0 if the model is not loaded.
func (g *Generator) Dimension() int {
	g.loadMu.Lock()
	defer g.loadMu.Unlock()
	if g.loadErr != nil {
		return 0
	}
	return g.dim
}

// EmbedQuery embeds a single search query.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := g.Embed(ctx, []string{query}, true)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Embed converts texts into unit-length vectors, one per input in input
// order. isQuery selects the query prefix instead of the passage prefix.
// Batch size and worker count never change the output.
func (g *Generator) Embed(ctx context.Context, texts []string, isQuery bool) ([][]float32, error) {
	if err := g.Load(ctx); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	prefix := g.passagePrefix
	if isQuery {
		prefix = g.queryPrefix
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = prefix + strings.TrimSpace(t)
	}

	out := make([][]float32, len(inputs))

	// One batch: skip the pool so single queries stay cheap.
	if len(inputs) <= g.batchSize {
		if err := g.embedBatch(ctx, inputs, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	var tracker *ProgressTracker
	if g.progress != nil {
		tracker = NewProgressTracker(g.progress, len(inputs), g.batchSize*10)
		tracker.Start()
		defer tracker.Finish()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(inputs); start += g.batchSize {
		end := min(start+g.batchSize, len(inputs))
		batch, dst := inputs[start:end], out[start:end]

		wg.Add(1)
		err := g.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := g.embedBatch(ctx, batch, dst); err != nil {
				fail(err)
				return
			}
			if tracker != nil {
				tracker.Increment(len(batch))
			}
		})
		if err != nil {
			wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrClosed
			}
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	// A cancelled parent can stop workers before any of them reports.
	for _, v := range out {
		if v == nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, ErrCountMismatch
		}
	}
	return out, nil
}

// embedBatch embeds one micro-batch and writes normalized vectors into dst.
// Transport failures are retried; a response of the wrong shape is not.
func (g *Generator) embedBatch(ctx context.Context, batch []string, dst [][]float32) error {
	normalized := make([][]float32, len(batch))
	err := retryWithBackoff(ctx, g.logger, g.maxAttempts, g.baseDelay, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		vecs, err := g.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("%w: got %d for %d texts", ErrCountMismatch, len(vecs), len(batch))
		}
		for i, v := range vecs {
			if len(v) != g.dim {
				return fmt.Errorf("%w: model %s produced %d values, expected %d",
					core.ErrDimensionMismatch, g.model, len(v), g.dim)
			}
			// Copy so callers never alias the embedder's buffers.
			cp := make([]float32, len(v))
			copy(cp, v)
			if _, ok := Normalize(cp); !ok {
				return fmt.Errorf("%w: text %q", ErrZeroVector, batch[i])
			}
			normalized[i] = cp
		}
		return nil
	})
	if err != nil {
		g.logger.Warn("embedding batch failed", "size", len(batch), "err", err)
		return fmt.Errorf("embed batch of %d: %w", len(batch), err)
	}
	copy(dst, normalized)
	return nil
}

// Close releases the worker pool. It is safe to call more than once.
func (g *Generator) Close() {
	if g.pool != nil {
		g.pool.Release()
	}
}
