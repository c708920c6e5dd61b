package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/catmat/ai"
	"github.com/poiesic/catmat/ai/mock"
	"github.com/poiesic/catmat/catalog"
	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/embedding"
	"github.com/poiesic/catmat/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var concepts = map[string][]string{
	"computer": {"computer", "computador", "desktop", "notebook", "microcomputador"},
	"mouse":    {"mouse", "wireless"},
	"pen":      {"caneta", "pen", "esferografica"},
}

// countingIndex records how many queries reach the index.
type countingIndex struct {
	Index
	queries atomic.Int32
}

func (c *countingIndex) Query(vec []float32, k int) ([]core.Neighbor, error) {
	c.queries.Add(1)
	return c.Index.Query(vec, k)
}

// fixedIndex returns canned neighbors.
type fixedIndex struct {
	neighbors []core.Neighbor
}

func (f *fixedIndex) Query(_ []float32, k int) ([]core.Neighbor, error) {
	return f.neighbors[:min(k, len(f.neighbors))], nil
}

func (f *fixedIndex) Len() int { return len(f.neighbors) }

// fixedEmbedder returns the same vector for every query.
type fixedEmbedder struct{ calls atomic.Int32 }

func (f *fixedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls.Add(1)
	return []float32{1, 0}, nil
}

type testEnv struct {
	engine   *Engine
	index    *countingIndex
	embedder *mock.MockEmbedder
	store    *catalog.Store
}

func newTestEnv(t *testing.T, items []*core.CatalogItem, opts ...Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := catalog.NewStore(items)
	require.NoError(t, err)

	embedder := mock.NewLexiconEmbedder(concepts)
	gen, err := embedding.NewGenerator(embedder, "mock-model")
	require.NoError(t, err)
	t.Cleanup(gen.Close)

	ids := make([]string, len(items))
	texts := make([]string, len(items))
	for i, it := range items {
		ids[i], texts[i] = it.ID, it.Description
	}
	vecs, err := gen.Embed(ctx, texts, false)
	require.NoError(t, err)
	idx, err := index.Build(ctx, vecs, ids, core.IndexParams{M: 8, EfConstruction: 32, EfSearch: 32})
	require.NoError(t, err)

	counting := &countingIndex{Index: idx}
	engine, err := NewEngine(store, counting, gen, opts...)
	require.NoError(t, err)

	embedder.Reset()
	return &testEnv{engine: engine, index: counting, embedder: embedder, store: store}
}

func exampleItems() []*core.CatalogItem {
	return []*core.CatalogItem{
		{ID: "1", Description: "desktop computer"},
		{ID: "2", Description: "wireless mouse"},
		{ID: "3", Description: "notebook computer"},
	}
}

func TestNewEngine(t *testing.T) {
	store, err := catalog.NewStore(nil)
	require.NoError(t, err)
	idx := &fixedIndex{}
	emb := &fixedEmbedder{}

	t.Run("valid configuration", func(t *testing.T) {
		engine, err := NewEngine(store, idx, emb)
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("with options", func(t *testing.T) {
		engine, err := NewEngine(store, idx, emb,
			WithLogger(slog.Default()),
			WithRecommender(nil),
			WithRecommenderTimeout(time.Second),
			WithRecommenderCandidates(3))
		require.NoError(t, err)
		assert.Equal(t, time.Second, engine.timeout)
		assert.Equal(t, 3, engine.candidates)
		assert.IsType(t, ai.DisabledRecommender{}, engine.recommender)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		engine, err := NewEngine(store, idx, emb, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, engine.logger)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewEngine(store, idx, emb, WithRecommenderTimeout(0))
		assert.Error(t, err)
		_, err = NewEngine(store, idx, emb, WithRecommenderCandidates(0))
		assert.Error(t, err)
	})

	t.Run("nil catalog", func(t *testing.T) {
		_, err := NewEngine(nil, idx, emb)
		assert.Equal(t, ErrCatalogRequired, err)
	})

	t.Run("nil index", func(t *testing.T) {
		_, err := NewEngine(store, nil, emb)
		assert.Equal(t, ErrIndexRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewEngine(store, idx, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})
}

func TestSearch_SemanticCloseness(t *testing.T) {
	env := newTestEnv(t, exampleItems())

	results, err := env.engine.Search(context.Background(), "computador", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	rank := map[string]int{}
	for _, r := range results {
		rank[r.Item.ID] = r.Rank
	}
	assert.Less(t, rank["1"], rank["2"])
	assert.Less(t, rank["3"], rank["2"])
	assert.Equal(t, "2", results[2].Item.ID)
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query string
		topK  int
		field string
	}{
		{"empty query", "", 5, "query"},
		{"whitespace query", "  \t\n", 5, "query"},
		{"zero top_k", "computador", 0, "top_k"},
		{"negative top_k", "computador", -3, "top_k"},
	}

	env := newTestEnv(t, exampleItems())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Search(context.Background(), tt.query, tt.topK)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrValidation)

			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)

			_, _, err = env.engine.SearchWithAI(context.Background(), tt.query, tt.topK)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
	assert.Equal(t, int32(0), env.index.queries.Load(), "no index query")
	assert.Equal(t, 0, env.embedder.CallCount(), "no model call")
}

func TestSearch_OrderingAndCapping(t *testing.T) {
	items := make([]*core.CatalogItem, 40)
	for i := range items {
		items[i] = &core.CatalogItem{ID: fmt.Sprintf("%d", 100+i), Description: fmt.Sprintf("caneta modelo %d", i)}
	}
	env := newTestEnv(t, items)

	for _, k := range []int{1, 5, 40, 100} {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			results, err := env.engine.Search(context.Background(), "caneta azul", k)
			require.NoError(t, err)
			if k <= 5 {
				assert.Len(t, results, k)
			} else {
				assert.NotEmpty(t, results)
				assert.LessOrEqual(t, len(results), min(k, len(items)))
			}
			for i := range results {
				assert.Equal(t, i+1, results[i].Rank)
				if i == 0 {
					continue
				}
				prev, cur := results[i-1], results[i]
				require.GreaterOrEqual(t, prev.Score, cur.Score)
				if prev.Score == cur.Score {
					assert.Negative(t, core.CompareIDs(prev.Item.ID, cur.Item.ID))
				}
			}
		})
	}
}

func TestSearch_TieBreakByID(t *testing.T) {
	items := []*core.CatalogItem{
		{ID: "10", Description: "a"}, {ID: "9", Description: "b"}, {ID: "100", Description: "c"}, {ID: "7", Description: "d"},
	}
	store, err := catalog.NewStore(items)
	require.NoError(t, err)
	idx := &fixedIndex{neighbors: []core.Neighbor{
		{ID: "100", Score: 0.5}, {ID: "10", Score: 0.5}, {ID: "7", Score: 0.9}, {ID: "9", Score: 0.5},
	}}
	engine, err := NewEngine(store, idx, &fixedEmbedder{})
	require.NoError(t, err)

	results, err := engine.Search(context.Background(), "x", 4)
	require.NoError(t, err)
	got := make([]string, len(results))
	for i, r := range results {
		got[i] = r.Item.ID
	}
	assert.Equal(t, []string{"7", "9", "10", "100"}, got)
}

func TestSearch_TieBreakMixedIDs(t *testing.T) {
	ids := []string{"1a", "2", "10", "B7", "007"}
	items := make([]*core.CatalogItem, len(ids))
	for i, id := range ids {
		items[i] = &core.CatalogItem{ID: id, Description: "item " + id}
	}
	store, err := catalog.NewStore(items)
	require.NoError(t, err)

	want := []string{"2", "007", "10", "1a", "B7"}
	orders := [][]string{
		{"1a", "2", "10", "B7", "007"},
		{"10", "1a", "2", "007", "B7"},
		{"B7", "007", "2", "1a", "10"},
	}
	for _, order := range orders {
		neighbors := make([]core.Neighbor, len(order))
		for i, id := range order {
			neighbors[i] = core.Neighbor{ID: id, Score: 0.5}
		}
		engine, err := NewEngine(store, &fixedIndex{neighbors: neighbors}, &fixedEmbedder{})
		require.NoError(t, err)

		results, err := engine.Search(context.Background(), "x", len(ids))
		require.NoError(t, err)
		got := make([]string, len(results))
		for i, r := range results {
			got[i] = r.Item.ID
			assert.Equal(t, i+1, r.Rank)
		}
		assert.Equal(t, want, got, "input order %v", order)
	}
}

func TestSearch_ScoreClamping(t *testing.T) {
	store, err := catalog.NewStore([]*core.CatalogItem{{ID: "1", Description: "a"}, {ID: "2", Description: "b"}})
	require.NoError(t, err)
	idx := &fixedIndex{neighbors: []core.Neighbor{{ID: "1", Score: 1.0000002}, {ID: "2", Score: -1.5}}}
	engine, err := NewEngine(store, idx, &fixedEmbedder{})
	require.NoError(t, err)

	results, err := engine.Search(context.Background(), "x", 2)
	require.NoError(t, err)
	assert.Equal(t, float32(1), results[0].Score)
	assert.Equal(t, float32(-1), results[1].Score)
}

func TestSearch_UnknownItem(t *testing.T) {
	store, err := catalog.NewStore([]*core.CatalogItem{{ID: "1", Description: "a"}})
	require.NoError(t, err)
	engine, err := NewEngine(store, &fixedIndex{neighbors: []core.Neighbor{{ID: "404", Score: 1}}}, &fixedEmbedder{})
	require.NoError(t, err)

	_, err = engine.Search(context.Background(), "x", 1)
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestSearch_EmptyIndex(t *testing.T) {
	env := newTestEnv(t, nil)
	results, err := env.engine.Search(context.Background(), "computador", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, rec, err := env.engine.SearchWithAI(context.Background(), "computador", 5)
	require.NoError(t, err)
	assert.True(t, rec.Fallback)
	assert.Equal(t, core.FallbackNoResults, rec.FallbackReason)
	assert.Nil(t, rec.Pick)
}

func TestSearch_EmbedderError(t *testing.T) {
	env := newTestEnv(t, exampleItems())
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("backend down")
	}
	_, err := env.engine.Search(context.Background(), "computador", 3)
	require.Error(t, err)
	assert.Equal(t, int32(0), env.index.queries.Load())
}

func TestSearchVector(t *testing.T) {
	store, err := catalog.NewStore([]*core.CatalogItem{{ID: "1", Description: "a"}})
	require.NoError(t, err)
	engine, err := NewEngine(store, &fixedIndex{neighbors: []core.Neighbor{{ID: "1", Score: 0.8}}}, &fixedEmbedder{})
	require.NoError(t, err)

	results, err := engine.SearchVector([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Rank)

	_, err = engine.SearchVector([]float32{1, 0}, 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSearchWithAI(t *testing.T) {
	ctx := context.Background()

	t.Run("recommendation", func(t *testing.T) {
		rec := mock.NewMockRecommender()
		rec.RecommendFunc = func(ctx context.Context, req *ai.RecommendationRequest) (*ai.RecommendationResponse, error) {
			return &ai.RecommendationResponse{
				BestID:    " 3 ",
				Rationale: "notebook atende melhor",
				Alternatives: []ai.RankedReason{
					{ID: "1", Reason: "desktop tambem serve"},
					{ID: "3", Reason: "duplicado"},
					{ID: "999", Reason: "inexistente"},
				},
			}, nil
		}
		env := newTestEnv(t, exampleItems(), WithRecommender(rec))

		results, got, err := env.engine.SearchWithAI(ctx, "computador", 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		require.NotNil(t, got)
		assert.False(t, got.Fallback)
		assert.True(t, got.HasText())
		assert.Equal(t, "3", got.Pick.Item.ID)
		assert.Equal(t, "notebook atende melhor", got.Text)
		require.Len(t, got.Alternatives, 1)
		assert.Equal(t, "1", got.Alternatives[0].Item.ID)
		assert.Equal(t, 1, rec.CallCount())
	})

	t.Run("candidates are limited", func(t *testing.T) {
		var seen int
		rec := mock.NewMockRecommender()
		rec.RecommendFunc = func(ctx context.Context, req *ai.RecommendationRequest) (*ai.RecommendationResponse, error) {
			seen = len(req.Candidates)
			assert.Equal(t, "computador", req.Query)
			return &ai.RecommendationResponse{BestID: req.Candidates[0].ID}, nil
		}
		env := newTestEnv(t, exampleItems(), WithRecommender(rec), WithRecommenderCandidates(2))
		_, _, err := env.engine.SearchWithAI(ctx, "computador", 3)
		require.NoError(t, err)
		assert.Equal(t, 2, seen)
	})

	t.Run("timeout falls back to top result", func(t *testing.T) {
		rec := mock.NewMockRecommender()
		rec.Delay = time.Second
		env := newTestEnv(t, exampleItems(), WithRecommender(rec), WithRecommenderTimeout(20*time.Millisecond))

		plain, err := env.engine.Search(ctx, "computador", 3)
		require.NoError(t, err)

		start := time.Now()
		results, got, err := env.engine.SearchWithAI(ctx, "computador", 3)
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, plain, results)
		require.NotNil(t, got)
		assert.True(t, got.Fallback)
		assert.Equal(t, core.FallbackTimeout, got.FallbackReason)
		assert.False(t, got.HasText())
		assert.Empty(t, got.Text)
		assert.Equal(t, plain[0].Item.ID, got.Pick.Item.ID)
	})

	tests := []struct {
		name   string
		rec    ai.Recommender
		reason core.FallbackReason
	}{
		{"disabled", ai.DisabledRecommender{}, core.FallbackUnavailable},
		{"error", &mock.MockRecommender{Err: errors.New("500 internal")}, core.FallbackError},
		{"unknown pick", &mock.MockRecommender{RecommendFunc: func(context.Context, *ai.RecommendationRequest) (*ai.RecommendationResponse, error) {
			return &ai.RecommendationResponse{BestID: "42", Rationale: "?"}, nil
		}}, core.FallbackInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, exampleItems(), WithRecommender(tt.rec))
			results, got, err := env.engine.SearchWithAI(ctx, "computador", 3)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.True(t, got.Fallback)
			assert.Equal(t, tt.reason, got.FallbackReason)
			assert.Equal(t, results[0], *got.Pick)
		})
	}
}

type recordingMonitor struct {
	mu     sync.Mutex
	stages []string
}

func (m *recordingMonitor) add(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, s)
}

func (m *recordingMonitor) Start(string, int)                        { m.add("start") }
func (m *recordingMonitor) AfterEmbedding(int)                       { m.add("embedding") }
func (m *recordingMonitor) AfterIndexQuery([]core.Neighbor)          { m.add("index") }
func (m *recordingMonitor) AfterRecommendation(*core.Recommendation) { m.add("recommendation") }
func (m *recordingMonitor) Finish([]core.SearchResult)               { m.add("finish") }

func TestSearchWithMonitor(t *testing.T) {
	env := newTestEnv(t, exampleItems(), WithRecommender(mock.NewMockRecommender()))

	m := &recordingMonitor{}
	_, err := env.engine.SearchWithMonitor(context.Background(), "computador", 2, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "embedding", "index", "finish"}, m.stages)

	m = &recordingMonitor{}
	_, _, err = env.engine.SearchWithAIMonitor(context.Background(), "computador", 2, m)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "embedding", "index", "recommendation", "finish"}, m.stages)

	m = &recordingMonitor{}
	_, err = env.engine.SearchWithMonitor(context.Background(), "", 2, m)
	require.Error(t, err)
	assert.Empty(t, m.stages)
}

func TestSearch_Concurrent(t *testing.T) {
	env := newTestEnv(t, exampleItems())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := env.engine.Search(context.Background(), "notebook", 2)
			assert.NoError(t, err)
			assert.Len(t, results, 2)
		}()
	}
	wg.Wait()
}
