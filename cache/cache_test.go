package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/catmat/ai/mock"
	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/embedding"
	"github.com/poiesic/catmat/index"
	"github.com/poiesic/catmat/storage"
	"github.com/poiesic/catmat/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = core.IndexParams{M: 8, EfConstruction: 40, EfSearch: 40}

type fixture struct {
	artifacts storage.ArtifactRepository
	buildLog  storage.BuildLogRepository
	embedder  *mock.MockEmbedder
	gen       *embedding.Generator
	items     []*core.CatalogItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	artifacts, buildLog, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = 32
	gen, err := embedding.NewGenerator(embedder, "mock-model", embedding.WithBatchSize(16))
	require.NoError(t, err)
	t.Cleanup(gen.Close)
	require.NoError(t, gen.Load(context.Background()))

	items := make([]*core.CatalogItem, 60)
	for i := range items {
		items[i] = &core.CatalogItem{ID: fmt.Sprintf("%d", 1000+i), Description: fmt.Sprintf("ITEM DE TESTE NUMERO %d", i)}
	}
	return &fixture{artifacts: artifacts, buildLog: buildLog, embedder: embedder, gen: gen, items: items}
}

func (f *fixture) cache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(f.artifacts, WithBuildLog(f.buildLog))
	require.NoError(t, err)
	return c
}

func (f *fixture) key(fp string) Key {
	return Key{Fingerprint: core.Fingerprint(fp), Model: "mock-model", Dimension: 32}
}

func (f *fixture) builder() BuildFunc {
	return NewBuilder(f.gen, f.items, "hash", testParams, index.WithWorkers(2))
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrArtifactRepositoryRequired)
}

func TestGetOrBuild_ArgumentChecks(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)
	ctx := context.Background()

	_, err := c.GetOrBuild(ctx, Key{}, f.builder())
	assert.ErrorIs(t, err, ErrFingerprintRequired)

	_, err = c.GetOrBuild(ctx, f.key("fp"), nil)
	assert.ErrorIs(t, err, ErrBuilderRequired)
}

func TestGetOrBuild_MissThenHit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.cache(t)
	e, err := first.GetOrBuild(ctx, f.key("fp-a"), f.builder())
	require.NoError(t, err)
	assert.False(t, e.Hit)
	assert.Equal(t, 1, first.Builds())
	assert.Equal(t, 60, e.Index.Len())
	assert.Equal(t, 32, e.Manifest.Dimension)
	assert.Equal(t, "hash", e.Manifest.CatalogHash)

	record, err := f.buildLog.LastBuild(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, core.Fingerprint("fp-a"), record.Fingerprint)
	assert.Equal(t, 60, record.Count)

	t.Run("same process serves from memory", func(t *testing.T) {
		again, err := first.GetOrBuild(ctx, f.key("fp-a"), f.builder())
		require.NoError(t, err)
		assert.True(t, again.Hit)
		assert.Equal(t, 1, first.Builds())
	})

	t.Run("new process loads from storage", func(t *testing.T) {
		calls := f.embedder.CallCount()
		second := f.cache(t)

		loaded, err := second.GetOrBuild(ctx, f.key("fp-a"), f.builder())
		require.NoError(t, err)
		assert.True(t, loaded.Hit)
		assert.Equal(t, 0, second.Builds(), "no index construction")
		assert.Equal(t, calls, f.embedder.CallCount(), "no embedding generation")

		q := e.Index.Vectors()[7]
		want, err := e.Index.Query(q, 5)
		require.NoError(t, err)
		got, err := loaded.Index.Query(q, 5)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func TestGetOrBuild_SingleFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.cache(t)

	var calls atomic.Int32
	inner := f.builder()
	slow := func(ctx context.Context) (*Built, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return inner(ctx)
	}

	const callers = 8
	var wg sync.WaitGroup
	entries := make([]*Entry, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entries[i], errs[i] = c.GetOrBuild(ctx, f.key("fp-sf"), slow)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, entries[0].Index, entries[i].Index)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Builds())
}

func TestGetOrBuild_BuildFailureKeepsPreviousArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.cache(t)

	_, err := c.GetOrBuild(ctx, f.key("fp-good"), f.builder())
	require.NoError(t, err)

	boom := errors.New("embedding service down")
	_, err = c.GetOrBuild(ctx, f.key("fp-bad"), func(ctx context.Context) (*Built, error) {
		return nil, boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIndexBuild)
	assert.ErrorIs(t, err, boom)
	var buildErr *core.IndexBuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, core.Fingerprint("fp-bad"), buildErr.Fingerprint)

	current, _, err := f.artifacts.Pointers(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Fingerprint("fp-good"), current)

	_, err = f.artifacts.LoadArtifact(ctx, "fp-bad")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetOrBuild_NilBuild(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)
	_, err := c.GetOrBuild(context.Background(), f.key("fp"), func(ctx context.Context) (*Built, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, core.ErrIndexBuild)
}

func TestGetOrBuild_Mismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.cache(t).GetOrBuild(ctx, f.key("fp-m"), f.builder())
	require.NoError(t, err)

	tests := []struct {
		name string
		key  Key
	}{
		{"model", Key{Fingerprint: "fp-m", Model: "other-model", Dimension: 32}},
		{"dimension", Key{Fingerprint: "fp-m", Model: "mock-model", Dimension: 768}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := f.cache(t)
			_, err := c.GetOrBuild(ctx, tt.key, f.builder())
			assert.ErrorIs(t, err, core.ErrDimensionMismatch)
			assert.Equal(t, 0, c.Builds())
		})
	}
}

func TestGetOrBuild_UnreadableArtifactIsRebuilt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bad := &core.Artifact{
		Manifest: core.Manifest{
			Fingerprint: "fp-corrupt",
			Model:       "mock-model",
			Dimension:   2,
			Count:       1,
			IDs:         []string{"1"},
		},
		Embeddings: [][]float32{{1, 0}},
		Graph:      []byte("not a graph"),
	}
	require.NoError(t, f.artifacts.SaveArtifact(ctx, bad))

	c := f.cache(t)
	e, err := c.GetOrBuild(ctx, Key{Fingerprint: "fp-corrupt", Model: "mock-model"}, f.builder())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Builds())
	assert.Equal(t, 60, e.Manifest.Count)
}

func TestGetOrBuild_Retention(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.cache(t)

	for _, fp := range []string{"fp-1", "fp-2", "fp-3"} {
		_, err := c.GetOrBuild(ctx, f.key(fp), f.builder())
		require.NoError(t, err)
	}

	fps, err := f.artifacts.Fingerprints(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []core.Fingerprint{"fp-2", "fp-3"}, fps)
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c := f.cache(t)

	_, err := c.GetOrBuild(ctx, f.key("fp-r"), f.builder())
	require.NoError(t, err)

	e, err := c.Rebuild(ctx, f.key("fp-r"), f.builder())
	require.NoError(t, err)
	assert.False(t, e.Hit)
	assert.Equal(t, 2, c.Builds())

	loaded, err := f.cache(t).GetOrBuild(ctx, f.key("fp-r"), f.builder())
	require.NoError(t, err)
	assert.True(t, loaded.Hit)
}

func TestGetOrBuild_CallerCancellation(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)

	release := make(chan struct{})
	inner := f.builder()
	blocking := func(ctx context.Context) (*Built, error) {
		<-release
		return inner(ctx)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrBuild(ctx, f.key("fp-c"), blocking)
		done <- err
	}()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The shared build still completes for later callers.
	close(release)
	e, err := c.GetOrBuild(context.Background(), f.key("fp-c"), blocking)
	require.NoError(t, err)
	assert.Equal(t, 60, e.Index.Len())
	assert.Equal(t, 1, c.Builds())
}

func TestGetOrBuild_EmptyCatalog(t *testing.T) {
	f := newFixture(t)
	c := f.cache(t)
	empty := NewBuilder(f.gen, nil, "empty", testParams)

	e, err := c.GetOrBuild(context.Background(), f.key("fp-empty"), empty)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Index.Len())

	loaded, err := f.cache(t).GetOrBuild(context.Background(), f.key("fp-empty"), empty)
	require.NoError(t, err)
	assert.True(t, loaded.Hit)
	got, err := loaded.Index.Query(make([]float32, 32), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
