package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/catmat/ai"
	"github.com/poiesic/catmat/ai/mock"
	"github.com/poiesic/catmat/catalog"
	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/embedding"
	"github.com/poiesic/catmat/index"
	"github.com/poiesic/catmat/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var concepts = map[string][]string{
	"computer": {"computer", "computador", "desktop", "notebook"},
	"mouse":    {"mouse", "wireless"},
	"pen":      {"caneta", "pen", "esferografica"},
	"paper":    {"papel", "paper", "sulfite"},
}

type testEnv struct {
	engine   *search.Engine
	gen      *embedding.Generator
	embedder *mock.MockEmbedder
}

func newTestEnv(t *testing.T, opts ...search.Option) *testEnv {
	t.Helper()
	ctx := context.Background()

	items := []*core.CatalogItem{
		{ID: "1", Description: "desktop computer"},
		{ID: "2", Description: "wireless mouse"},
		{ID: "3", Description: "notebook computer"},
		{ID: "4", Description: "caneta esferografica azul"},
		{ID: "5", Description: "papel sulfite A4"},
	}
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
	idx, err := index.Build(ctx, vecs, ids, core.IndexParams{M: 4, EfConstruction: 16, EfSearch: 16})
	require.NoError(t, err)

	engine, err := search.NewEngine(store, idx, gen, opts...)
	require.NoError(t, err)
	embedder.Reset()
	return &testEnv{engine: engine, gen: gen, embedder: embedder}
}

func (env *testEnv) processor(t *testing.T, opts ...Option) *Processor {
	t.Helper()
	p, err := NewProcessor(env.engine, env.gen, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestNewProcessor(t *testing.T) {
	env := newTestEnv(t)

	_, err := NewProcessor(nil, env.gen)
	assert.Equal(t, ErrEngineRequired, err)

	_, err = NewProcessor(env.engine, nil)
	assert.Equal(t, ErrEmbedderRequired, err)

	_, err = NewProcessor(env.engine, env.gen, WithEmbedBatchSize(0))
	assert.Error(t, err)

	_, err = NewProcessor(env.engine, env.gen, WithTimeout(-time.Second))
	assert.Error(t, err)

	p, err := NewProcessor(env.engine, env.gen, WithWorkers(0), WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, p.pool.Cap())
	p.Release()
}

func TestProcess_OrderAndIndependence(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.processor(t, WithWorkers(4), WithEmbedBatchSize(2))

	jobs := []core.BatchJob{
		{Query: "computador", TopK: 2},
		{Query: "caneta", TopK: 1},
		{Query: "   ", TopK: 3},
		{Query: "papel", TopK: 2},
		{Query: "mouse", TopK: 0},
		{Query: "notebook", TopK: 3},
	}
	run, err := p.Process(ctx, jobs)
	require.NoError(t, err)
	require.Len(t, run.Results, len(jobs))
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", run.ID.String())

	for i, res := range run.Results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, jobs[i], res.Job)
	}

	failed := 0
	for i, res := range run.Results {
		if res.Err == nil {
			want, err := env.engine.Search(ctx, jobs[i].Query, jobs[i].TopK)
			require.NoError(t, err)
			assert.Equal(t, want, res.Results, "job %d", i)
			assert.Equal(t, core.BatchStatusOK, res.Status())
			continue
		}
		failed++
		assert.ErrorIs(t, res.Err, core.ErrBatchItem)
		assert.ErrorIs(t, res.Err, core.ErrValidation)
		var itemErr *core.BatchItemError
		require.ErrorAs(t, res.Err, &itemErr)
		assert.Equal(t, i, itemErr.Index)
		assert.Equal(t, core.BatchStatusFailed, res.Status())
	}
	assert.Equal(t, 2, failed)
	assert.Equal(t, "4", run.Results[1].Results[0].Item.ID)

	assert.Equal(t, 6, run.Summary.Total)
	assert.Equal(t, 4, run.Summary.Succeeded)
	assert.Equal(t, 2, run.Summary.Failed)
	assert.Positive(t, run.Summary.Elapsed)
}

func TestProcess_SingleMalformedQuery(t *testing.T) {
	env := newTestEnv(t)
	p := env.processor(t)

	queries := []string{"computador", "caneta", "", "papel", "mouse"}
	run, err := p.ProcessQueries(context.Background(), queries, 3, false)
	require.NoError(t, err)
	require.Len(t, run.Results, 5)

	var validationErrs int
	for _, res := range run.Results {
		if errors.Is(res.Err, core.ErrValidation) {
			validationErrs++
			continue
		}
		require.NoError(t, res.Err)
		assert.Len(t, res.Results, 3)
	}
	assert.Equal(t, 1, validationErrs)
	assert.Error(t, run.Results[2].Err)
}

func TestProcess_SubBatchEmbedding(t *testing.T) {
	env := newTestEnv(t)
	p := env.processor(t, WithEmbedBatchSize(4))

	queries := make([]string, 10)
	for i := range queries {
		queries[i] = fmt.Sprintf("caneta %d", i)
	}
	_, err := p.ProcessQueries(context.Background(), queries, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 3, env.embedder.CallCount())
	assert.Equal(t, 10, env.embedder.TextCount())
}

func TestProcess_EmbeddingFailureIsolatedToSubBatch(t *testing.T) {
	env := newTestEnv(t)
	inner := &mock.MockEmbedder{Lexicon: env.embedder.Lexicon, Dimension: env.embedder.Dimension}
	env.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, tx := range texts {
			if tx == "query: explode" {
				return nil, errors.New("model crashed")
			}
		}
		return inner.EmbedTexts(ctx, texts)
	}
	gen, err := embedding.NewGenerator(env.embedder, "mock-model", embedding.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(gen.Close)
	require.NoError(t, gen.Load(context.Background()))

	p, err := NewProcessor(env.engine, gen, WithEmbedBatchSize(2))
	require.NoError(t, err)
	t.Cleanup(p.Release)

	run, err := p.ProcessQueries(context.Background(), []string{"caneta", "explode", "papel", "mouse"}, 1, false)
	require.NoError(t, err)

	assert.NoError(t, run.Results[2].Err)
	assert.NoError(t, run.Results[3].Err)
	assert.Error(t, run.Results[0].Err)
	assert.Error(t, run.Results[1].Err)
	assert.Contains(t, run.Results[1].Err.Error(), "model crashed")
}

func TestProcess_Recommendations(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t, search.WithRecommender(mock.NewMockRecommender()))
		p := env.processor(t)

		run, err := p.ProcessQueries(ctx, []string{"computador", "caneta"}, 3, true)
		require.NoError(t, err)
		for _, res := range run.Results {
			require.NoError(t, res.Err)
			require.NotNil(t, res.Recommendation)
			assert.False(t, res.Recommendation.Fallback)
			assert.Equal(t, res.Results[0].Item.ID, res.Recommendation.Pick.Item.ID)
		}
	})

	t.Run("timeout degrades the item", func(t *testing.T) {
		rec := mock.NewMockRecommender()
		rec.Delay = time.Second
		env := newTestEnv(t, search.WithRecommender(rec), search.WithRecommenderTimeout(20*time.Millisecond))
		p := env.processor(t, WithWorkers(2))

		run, err := p.Process(ctx, []core.BatchJob{
			{Query: "computador", TopK: 2, UseAI: true},
			{Query: "caneta", TopK: 2},
		})
		require.NoError(t, err)

		slow := run.Results[0]
		assert.Equal(t, core.BatchStatusDegraded, slow.Status())
		assert.ErrorIs(t, slow.Err, core.ErrRecommenderTimeout)
		var timeoutErr *core.RecommenderTimeoutError
		require.ErrorAs(t, slow.Err, &timeoutErr)
		assert.Equal(t, 20*time.Millisecond, timeoutErr.Timeout)
		assert.Len(t, slow.Results, 2)
		require.NotNil(t, slow.Recommendation)
		assert.Equal(t, core.FallbackTimeout, slow.Recommendation.FallbackReason)

		assert.NoError(t, run.Results[1].Err)
		assert.Equal(t, 1, run.Summary.Degraded)
		assert.Equal(t, 1, run.Summary.Succeeded)
	})

	t.Run("unavailable recommender", func(t *testing.T) {
		env := newTestEnv(t, search.WithRecommender(ai.DisabledRecommender{}))
		p := env.processor(t)

		run, err := p.ProcessQueries(ctx, []string{"papel"}, 2, true)
		require.NoError(t, err)
		assert.ErrorIs(t, run.Results[0].Err, core.ErrRecommenderUnavailable)
		assert.Equal(t, core.BatchStatusDegraded, run.Results[0].Status())
	})

	t.Run("invalid pick", func(t *testing.T) {
		rec := &mock.MockRecommender{RecommendFunc: func(context.Context, *ai.RecommendationRequest) (*ai.RecommendationResponse, error) {
			return &ai.RecommendationResponse{BestID: "nope"}, nil
		}}
		env := newTestEnv(t, search.WithRecommender(rec))
		p := env.processor(t)

		run, err := p.ProcessQueries(ctx, []string{"papel"}, 2, true)
		require.NoError(t, err)
		assert.ErrorIs(t, run.Results[0].Err, ErrRecommendationFailed)
	})
}

func TestProcess_BatchTimeoutKeepsCompletedJobs(t *testing.T) {
	rec := mock.NewMockRecommender()
	rec.Delay = 5 * time.Second
	env := newTestEnv(t, search.WithRecommender(rec))
	p := env.processor(t, WithWorkers(1), WithTimeout(150*time.Millisecond))

	jobs := []core.BatchJob{
		{Query: "computador", TopK: 1},
		{Query: "caneta", TopK: 1},
		{Query: "papel", TopK: 1, UseAI: true},
		{Query: "mouse", TopK: 1},
	}
	start := time.Now()
	run, err := p.Process(context.Background(), jobs)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.NoError(t, run.Results[0].Err)
	assert.NoError(t, run.Results[1].Err)
	assert.NotEmpty(t, run.Results[0].Results)

	assert.Error(t, run.Results[2].Err)
	assert.NotEmpty(t, run.Results[2].Results, "search finished before the recommender was cut off")

	assert.True(t, IsPending(run.Results[3].Err))
	assert.ErrorIs(t, run.Results[3].Err, context.DeadlineExceeded)
	assert.Equal(t, core.BatchStatusFailed, run.Results[3].Status())
}

func TestProcess_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	p := env.processor(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := p.ProcessQueries(ctx, []string{"caneta", "papel"}, 1, false)
	require.NoError(t, err)
	for _, res := range run.Results {
		assert.True(t, IsPending(res.Err))
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
	assert.Equal(t, 2, run.Summary.Failed)
}

func TestProcess_Progress(t *testing.T) {
	env := newTestEnv(t)

	var mu sync.Mutex
	var calls []int
	p := env.processor(t, WithWorkers(3), WithEmbedBatchSize(2), WithProgress(func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 7, total)
		calls = append(calls, done)
	}))

	_, err := p.ProcessQueries(context.Background(), []string{"a1", "b2", "", "c3", "d4", "e5", "f6"}, 1, false)
	require.NoError(t, err)
	require.Len(t, calls, 7)
	assert.Equal(t, 7, calls[len(calls)-1])
}

func TestProcess_Empty(t *testing.T) {
	env := newTestEnv(t)
	p := env.processor(t)

	run, err := p.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, run.Results)
	assert.Equal(t, 0, run.Summary.Total)
}

func TestProcess_DispatchFailure(t *testing.T) {
	env := newTestEnv(t)
	p := env.processor(t)
	p.Release()

	_, err := p.ProcessQueries(context.Background(), []string{"caneta"}, 1, false)
	assert.Error(t, err)
}
