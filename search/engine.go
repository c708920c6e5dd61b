package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/catmat/ai"
	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/metrics"
)

const (
	// DefaultRecommenderTimeout bounds a single recommender call.
	DefaultRecommenderTimeout = 5 * time.Second

	// DefaultRecommenderCandidates is how many top results the recommender sees.
	DefaultRecommenderCandidates = 10
)

// Catalog resolves item ids.
type Catalog interface {
	Get(id string) (*core.CatalogItem, bool)
}

// Index answers approximate nearest-neighbor queries.
type Index interface {
	Query(vec []float32, k int) ([]core.Neighbor, error)
	Len() int
}

// QueryEmbedder turns query text into a unit vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Engine runs semantic searches. It is safe for concurrent use; the catalog
// and index are shared read-only.
type Engine struct {
	catalog     Catalog
	index       Index
	embedder    QueryEmbedder
	recommender ai.Recommender
	timeout     time.Duration
	candidates  int
	metrics     *metrics.Recorder
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithRecommender sets the recommender used by SearchWithAI.
// Default is ai.DisabledRecommender, which always falls back.
func WithRecommender(r ai.Recommender) Option {
	return func(e *Engine) error {
		if r == nil {
			r = ai.DisabledRecommender{}
		}
		e.recommender = r
		return nil
	}
}

// WithRecommenderTimeout bounds each recommender call.
func WithRecommenderTimeout(d time.Duration) Option {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("recommender timeout must be positive, got %s", d)
		}
		e.timeout = d
		return nil
	}
}

// WithRecommenderCandidates sets how many top results are offered to the
// recommender.
func WithRecommenderCandidates(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("recommender candidates must be positive, got %d", n)
		}
		e.candidates = n
		return nil
	}
}

// WithMetrics records search and recommender outcomes.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a search engine.
func NewEngine(catalog Catalog, idx Index, embedder QueryEmbedder, opts ...Option) (*Engine, error) {
	if catalog == nil {
		return nil, ErrCatalogRequired
	}
	if idx == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		catalog:     catalog,
		index:       idx,
		embedder:    embedder,
		recommender: ai.DisabledRecommender{},
		timeout:     DefaultRecommenderTimeout,
		candidates:  DefaultRecommenderCandidates,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "search")

	return e, nil
}

// RecommenderTimeout returns the deadline applied to each recommender call.
func (e *Engine) RecommenderTimeout() time.Duration { return e.timeout }

// Search returns up to topK catalog items closest in meaning to query.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]core.SearchResult, error) {
	return e.SearchWithMonitor(ctx, query, topK, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (e *Engine) SearchWithMonitor(ctx context.Context, query string, topK int, monitor SearchMonitor) (results []core.SearchResult, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveSearch(time.Since(start), false, err) }()

	if monitor == nil {
		monitor = &noopMonitor{}
	}
	results, err = e.search(ctx, query, topK, monitor)
	if err != nil {
		return nil, err
	}
	monitor.Finish(results)
	return results, nil
}

// SearchWithAI runs Search and then asks the recommender to pick among the
// results. Recommender problems never fail the call; they produce a
// fallback Recommendation instead.
func (e *Engine) SearchWithAI(ctx context.Context, query string, topK int) ([]core.SearchResult, *core.Recommendation, error) {
	return e.SearchWithAIMonitor(ctx, query, topK, nil)
}

// SearchWithAIMonitor is SearchWithAI with callbacks at each stage.
func (e *Engine) SearchWithAIMonitor(ctx context.Context, query string, topK int, monitor SearchMonitor) (results []core.SearchResult, rec *core.Recommendation, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveSearch(time.Since(start), true, err) }()

	if monitor == nil {
		monitor = &noopMonitor{}
	}
	results, err = e.search(ctx, query, topK, monitor)
	if err != nil {
		return nil, nil, err
	}
	rec = e.Recommend(ctx, query, results)
	monitor.AfterRecommendation(rec)
	monitor.Finish(results)
	return results, rec, nil
}

func (e *Engine) search(ctx context.Context, query string, topK int, monitor SearchMonitor) ([]core.SearchResult, error) {
	if err := core.ValidateSearch(query, topK); err != nil {
		return nil, err
	}
	monitor.Start(query, topK)

	vec, err := e.embedder.EmbedQuery(ctx, strings.TrimSpace(query))
	if err != nil {
		e.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(len(vec))

	neighbors, err := e.index.Query(vec, topK)
	if err != nil {
		e.logger.Error("error querying index", "err", err)
		return nil, err
	}
	monitor.AfterIndexQuery(neighbors)

	return e.assemble(neighbors, topK)
}

// SearchVector ranks the neighbors of an already embedded query. The batch
// processor uses it after embedding many queries at once.
func (e *Engine) SearchVector(vec []float32, topK int) ([]core.SearchResult, error) {
	if err := core.ValidateTopK(topK); err != nil {
		return nil, err
	}
	neighbors, err := e.index.Query(vec, topK)
	if err != nil {
		return nil, err
	}
	return e.assemble(neighbors, topK)
}

// assemble maps neighbors to catalog items, orders them by descending score
// then ascending id, and assigns ranks from 1.
func (e *Engine) assemble(neighbors []core.Neighbor, topK int) ([]core.SearchResult, error) {
	results := make([]core.SearchResult, 0, min(len(neighbors), topK))
	for _, n := range neighbors {
		item, ok := e.catalog.Get(n.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownItem, n.ID)
		}
		results = append(results, core.SearchResult{Item: item, Score: clampScore(n.Score)})
	}

	slices.SortStableFunc(results, func(a, b core.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return core.CompareIDs(a.Item.ID, b.Item.ID)
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// clampScore keeps cosine similarity inside [-1, 1] despite rounding.
func clampScore(s float32) float32 {
	return min(max(s, -1), 1)
}

// Recommend asks the recommender to choose among results. It always returns
// a Recommendation; failures are reported through its Fallback fields.
func (e *Engine) Recommend(ctx context.Context, query string, results []core.SearchResult) *core.Recommendation {
	rec := e.recommend(ctx, query, results)
	e.metrics.Recommendation(rec)
	return rec
}

func (e *Engine) recommend(ctx context.Context, query string, results []core.SearchResult) *core.Recommendation {
	if len(results) == 0 {
		return &core.Recommendation{Fallback: true, FallbackReason: core.FallbackNoResults}
	}
	fallback := func(reason core.FallbackReason) *core.Recommendation {
		pick := results[0]
		return &core.Recommendation{Pick: &pick, Fallback: true, FallbackReason: reason}
	}

	candidates := ai.CandidatesFromResults(results, e.candidates)
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.recommender.Recommend(callCtx, &ai.RecommendationRequest{Query: query, Candidates: candidates})
	if err != nil {
		switch {
		case errors.Is(err, core.ErrRecommenderUnavailable):
			e.logger.Debug("recommender unavailable, using top result", "err", err)
			return fallback(core.FallbackUnavailable)
		case ctx.Err() == nil && (errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)):
			e.logger.Warn("recommender timed out, using top result", "query", query,
				"err", &core.RecommenderTimeoutError{Timeout: e.timeout})
			return fallback(core.FallbackTimeout)
		default:
			e.logger.Warn("recommender failed, using top result", "query", query, "err", err)
			return fallback(core.FallbackError)
		}
	}

	limit := len(candidates)
	pick := findResult(results[:limit], resp.BestID)
	if pick == nil {
		e.logger.Warn("recommender picked an id outside the candidates", "query", query, "best_id", resp.BestID)
		return fallback(core.FallbackInvalid)
	}

	out := &core.Recommendation{Pick: pick, Text: strings.TrimSpace(resp.Rationale)}
	seen := map[string]bool{pick.Item.ID: true}
	for _, alt := range resp.Alternatives {
		r := findResult(results[:limit], alt.ID)
		if r == nil || seen[r.Item.ID] {
			continue
		}
		seen[r.Item.ID] = true
		out.Alternatives = append(out.Alternatives, core.Alternative{Item: r.Item, Reason: strings.TrimSpace(alt.Reason)})
	}
	return out
}

// findResult looks up id among results. Ids are compared after trimming so
// "150513 " from a model still matches.
func findResult(results []core.SearchResult, id string) *core.SearchResult {
	id = strings.TrimSpace(id)
	for i := range results {
		if results[i].Item.ID == id {
			r := results[i]
			return &r
		}
	}
	return nil
}
