package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/metrics"
	"golang.org/x/sync/errgroup"
)

// DefaultEmbedBatchSize is how many queries are embedded per request.
const DefaultEmbedBatchSize = 32

// Engine is the part of search.Engine the processor needs.
type Engine interface {
	SearchVector(vec []float32, topK int) ([]core.SearchResult, error)
	Recommend(ctx context.Context, query string, results []core.SearchResult) *core.Recommendation
	RecommenderTimeout() time.Duration
}

// Embedder embeds query texts in one call.
type Embedder interface {
	Embed(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
}

// ProgressFunc is called as jobs finish. Calls are serialized.
type ProgressFunc func(done, total int)

// Run is the outcome of one Process call.
type Run struct {
	ID      uuid.UUID
	Results []core.BatchResult // One per job, in input order
	Summary Summary
}

// Processor executes batches of search jobs. It is safe for concurrent use.
type Processor struct {
	engine    Engine
	embedder  Embedder
	pool      *ants.Pool
	embedSize int
	timeout   time.Duration
	progress  ProgressFunc
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor) error

// WithWorkers sets the number of jobs searched concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(size int) Option {
	return func(p *Processor) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithEmbedBatchSize sets how many queries share one embedding call.
func WithEmbedBatchSize(size int) Option {
	return func(p *Processor) error {
		if size < 1 {
			return fmt.Errorf("embed batch size must be positive, got %d", size)
		}
		p.embedSize = size
		return nil
	}
}

// WithTimeout bounds a whole batch. Jobs still pending when it expires are
// marked ErrNotProcessed; finished jobs keep their results. Zero means no
// limit.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) error {
		if d < 0 {
			return fmt.Errorf("batch timeout must not be negative, got %s", d)
		}
		p.timeout = d
		return nil
	}
}

// WithProgress registers a callback invoked as jobs finish.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Processor) error {
		p.progress = fn
		return nil
	}
}

// WithMetrics records per-item status and batch duration.
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Processor) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewProcessor creates a batch processor.
func NewProcessor(engine Engine, embedder Embedder, opts ...Option) (*Processor, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Processor{
		engine:    engine,
		embedder:  embedder,
		embedSize: DefaultEmbedBatchSize,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}

	if p.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		p.pool = pool
	}
	p.logger = p.logger.With("component", "batch")

	return p, nil
}

// Release stops the worker pool.
func (p *Processor) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Jobs builds one job per query with shared settings.
func Jobs(queries []string, topK int, useAI bool) []core.BatchJob {
	jobs := make([]core.BatchJob, len(queries))
	for i, q := range queries {
		jobs[i] = core.BatchJob{Query: q, TopK: topK, UseAI: useAI}
	}
	return jobs
}

// runState is shared by the goroutines of one Process call.
type runState struct {
	results []core.BatchResult
	mu      sync.Mutex // guards done and serializes progress callbacks
	done    int
}

// Process runs every job and returns one result per job in input order.
// It returns an error only when jobs could not be dispatched.
func (p *Processor) Process(ctx context.Context, jobs []core.BatchJob) (*Run, error) {
	start := time.Now()
	run := &Run{ID: uuid.New()}
	log := p.logger.With("run_id", run.ID.String())
	log.Info("batch started", "jobs", len(jobs))

	st := &runState{results: make([]core.BatchResult, len(jobs))}
	var valid []int
	for i, job := range jobs {
		st.results[i] = core.BatchResult{Index: i, Job: job}
		if err := core.ValidateSearch(job.Query, job.TopK); err != nil {
			p.finish(st, i, start, err)
			continue
		}
		valid = append(valid, i)
	}

	runCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// Embedding calls share the pool's concurrency bound.
	var searchWG sync.WaitGroup
	var g errgroup.Group
	g.SetLimit(max(p.pool.Cap(), 1))
	for lo := 0; lo < len(valid); lo += p.embedSize {
		chunk := valid[lo:min(lo+p.embedSize, len(valid))]
		g.Go(func() error {
			return p.embedAndDispatch(runCtx, st, jobs, chunk, &searchWG)
		})
	}
	dispErr := g.Wait()
	searchWG.Wait()

	if dispErr != nil {
		log.Error("batch dispatch failed", "err", dispErr)
		return nil, dispErr
	}

	run.Results = st.results
	run.Summary = Summarize(st.results)
	run.Summary.Elapsed = time.Since(start)
	p.metrics.ObserveBatch(run.Summary.Elapsed)
	log.Info("batch finished", "total", run.Summary.Total, "succeeded", run.Summary.Succeeded,
		"degraded", run.Summary.Degraded, "failed", run.Summary.Failed, "duration", run.Summary.Elapsed)
	return run, nil
}

// ProcessQueries is Process over queries sharing topK and useAI.
func (p *Processor) ProcessQueries(ctx context.Context, queries []string, topK int, useAI bool) (*Run, error) {
	return p.Process(ctx, Jobs(queries, topK, useAI))
}

// embedAndDispatch embeds one sub-batch of queries and submits a search
// task per job. Embedding failures are recorded on the sub-batch's jobs.
func (p *Processor) embedAndDispatch(ctx context.Context, st *runState, jobs []core.BatchJob, chunk []int, wg *sync.WaitGroup) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		p.finishAll(st, chunk, start, pendingErr(err))
		return nil
	}

	texts := make([]string, len(chunk))
	for k, i := range chunk {
		texts[k] = strings.TrimSpace(jobs[i].Query)
	}
	vecs, err := p.embedder.Embed(ctx, texts, true)
	if err != nil {
		if ctx.Err() != nil {
			err = pendingErr(ctx.Err())
		}
		p.logger.Warn("query embedding failed", "queries", len(chunk), "err", err)
		p.finishAll(st, chunk, start, err)
		return nil
	}

	for k, i := range chunk {
		vec := vecs[k]
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			p.searchOne(ctx, st, i, vec, start)
		})
		if err != nil {
			wg.Done()
			p.finishAll(st, chunk[k:], start, err)
			return fmt.Errorf("dispatch job %d: %w", i, err)
		}
	}
	return nil
}

func (p *Processor) searchOne(ctx context.Context, st *runState, i int, vec []float32, start time.Time) {
	if err := ctx.Err(); err != nil {
		p.finish(st, i, start, pendingErr(err))
		return
	}

	res := &st.results[i]
	results, err := p.engine.SearchVector(vec, res.Job.TopK)
	if err != nil {
		p.finish(st, i, start, err)
		return
	}
	res.Results = results

	if res.Job.UseAI {
		rec := p.engine.Recommend(ctx, res.Job.Query, results)
		res.Recommendation = rec
		p.finish(st, i, start, p.recommendationErr(rec))
		return
	}
	p.finish(st, i, start, nil)
}

// recommendationErr turns a fallback recommendation into the error recorded
// on its job. A search without results has nothing to recommend and is not
// an error.
func (p *Processor) recommendationErr(rec *core.Recommendation) error {
	if rec == nil || !rec.Fallback {
		return nil
	}
	switch rec.FallbackReason {
	case core.FallbackNoResults:
		return nil
	case core.FallbackTimeout:
		return &core.RecommenderTimeoutError{Timeout: p.engine.RecommenderTimeout()}
	case core.FallbackUnavailable:
		return core.ErrRecommenderUnavailable
	default:
		return fmt.Errorf("%w: %s", ErrRecommendationFailed, rec.FallbackReason)
	}
}

func pendingErr(err error) error {
	return fmt.Errorf("%w: %w", ErrNotProcessed, err)
}

func (p *Processor) finishAll(st *runState, idxs []int, start time.Time, err error) {
	for _, i := range idxs {
		p.finish(st, i, start, err)
	}
}

// finish records the outcome of job i. Each job is finished exactly once.
func (p *Processor) finish(st *runState, i int, start time.Time, err error) {
	res := &st.results[i]
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = &core.BatchItemError{Index: i, Query: res.Job.Query, Err: err}
	}
	p.metrics.BatchItem(res.Status())

	st.mu.Lock()
	defer st.mu.Unlock()
	st.done++
	if p.progress != nil {
		p.progress(st.done, len(st.results))
	}
}

// IsPending reports whether err marks a job cancelled before it ran.
func IsPending(err error) bool {
	return errors.Is(err, ErrNotProcessed)
}
