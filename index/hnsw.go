package index

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/catmat/core"
)

const maxLevelCap = 31

var (
	// ErrLengthMismatch indicates ids and vectors differ in length.
	ErrLengthMismatch = errors.New("ids and vectors must have the same length")

	// ErrEmptyVector indicates a zero-length vector was supplied.
	ErrEmptyVector = errors.New("vectors must not be empty")
)

// Option configures Build.
type Option func(*buildOptions) error

type buildOptions struct {
	workers  int
	seed     uint64
	logger   *slog.Logger
	progress func(done, total int)
}

// WithWorkers sets the number of goroutines inserting nodes concurrently.
func WithWorkers(n int) Option {
	return func(o *buildOptions) error {
		if n < 1 {
			return fmt.Errorf("workers must be positive, got %d", n)
		}
		o.workers = n
		return nil
	}
}

// WithSeed fixes the level assignment so graph layering is reproducible.
func WithSeed(seed uint64) Option {
	return func(o *buildOptions) error {
		o.seed = seed
		return nil
	}
}

// WithLogger sets the logger used for build progress.
func WithLogger(logger *slog.Logger) Option {
	return func(o *buildOptions) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithProgress registers a callback invoked as nodes are inserted.
func WithProgress(fn func(done, total int)) Option {
	return func(o *buildOptions) error {
		o.progress = fn
		return nil
	}
}

// Index is an immutable HNSW graph over a fixed set of vectors.
type Index struct {
	params   core.IndexParams
	dim      int
	ids      []string
	vectors  [][]float32
	levels   []uint8
	links    [][][]uint32 // links[node][layer]
	entry    uint32
	maxLevel int

	// Build-time synchronization; unused once the graph is frozen.
	nodeMu  []sync.Mutex
	entryMu sync.Mutex

	visited sync.Pool
}

// Build constructs an index over vectors, where vectors[i] belongs to
// ids[i]. Vectors must share one dimension and are expected to be unit
// length. The slices are retained, not copied; callers must not modify them
// afterwards. An empty input yields an empty index.
func Build(ctx context.Context, vectors [][]float32, ids []string, params core.IndexParams, opts ...Option) (*Index, error) {
	if err := core.ValidateParams(params); err != nil {
		return nil, err
	}
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: %d ids, %d vectors", ErrLengthMismatch, len(ids), len(vectors))
	}

	o := buildOptions{
		workers: runtime.NumCPU(),
		seed:    42,
		logger:  slog.Default().With("component", "index"),
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	idx := newIndex(params, ids, vectors)
	if len(vectors) == 0 {
		return idx, nil
	}
	idx.dim = len(vectors[0])
	if idx.dim == 0 {
		return nil, ErrEmptyVector
	}
	for i, v := range vectors {
		if len(v) != idx.dim {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", core.ErrDimensionMismatch, i, len(v), idx.dim)
		}
	}

	idx.assignLevels(o.seed)
	idx.nodeMu = make([]sync.Mutex, len(vectors))

	start := time.Now()
	o.logger.Info("building index", "nodes", len(vectors), "dim", idx.dim, "m", params.M,
		"ef_construction", params.EfConstruction, "workers", o.workers)

	// Node 0 seeds the graph as the first entry point.
	idx.entry = 0
	idx.maxLevel = int(idx.levels[0])

	var next atomic.Int64
	next.Store(1)
	var done atomic.Int64
	done.Store(1)
	total := len(vectors)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < o.workers; w++ {
		g.Go(func() error {
			visited := newVisitedSet(total)
			for {
				n := int(next.Add(1) - 1)
				if n >= total {
					return nil
				}
				if n%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				idx.insert(uint32(n), visited)
				d := int(done.Add(1))
				if o.progress != nil && (d%1000 == 0 || d == total) {
					o.progress(d, total)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx.nodeMu = nil
	o.logger.Info("index built", "nodes", total, "max_level", idx.maxLevel, "elapsed", time.Since(start))
	return idx, nil
}

func newIndex(params core.IndexParams, ids []string, vectors [][]float32) *Index {
	idx := &Index{
		params:  params,
		ids:     ids,
		vectors: vectors,
		levels:  make([]uint8, len(ids)),
		links:   make([][][]uint32, len(ids)),
	}
	n := len(ids)
	idx.visited.New = func() any { return newVisitedSet(n) }
	return idx
}

// assignLevels draws every node's top layer up front from a seeded source,
// so the layering does not depend on insertion scheduling.
func (x *Index) assignLevels(seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	mult := 1.0 / math.Log(float64(x.params.M))
	for i := range x.levels {
		r := max(rng.Float64(), math.SmallestNonzeroFloat64)
		level := min(int(-math.Log(r)*mult), maxLevelCap)
		x.levels[i] = uint8(level)
		x.links[i] = make([][]uint32, level+1)
	}
}

func (x *Index) maxConns(layer int) int {
	if layer == 0 {
		return x.params.M * 2
	}
	return x.params.M
}

// neighbors returns a snapshot of a node's links on one layer. During the
// build the node lock is taken; afterwards links are read directly.
func (x *Index) neighbors(n uint32, layer int) []uint32 {
	if x.nodeMu == nil {
		return x.links[n][layer]
	}
	x.nodeMu[n].Lock()
	out := slices.Clone(x.links[n][layer])
	x.nodeMu[n].Unlock()
	return out
}

func (x *Index) insert(n uint32, visited *visitedSet) {
	level := int(x.levels[n])
	vec := x.vectors[n]

	// Nodes that raise the top of the graph hold the entry lock for the whole
	// insertion; everyone else only snapshots the entry point.
	x.entryMu.Lock()
	ep, top := x.entry, x.maxLevel
	raises := level > top
	if !raises {
		x.entryMu.Unlock()
	}

	cur := ep
	curDist := distance(vec, x.vectors[cur])
	for layer := top; layer > level; layer-- {
		cur, curDist = x.greedy(vec, cur, curDist, layer)
	}

	entryPoints := []candidate{{node: cur, dist: curDist}}
	for layer := min(level, top); layer >= 0; layer-- {
		found := x.searchLayer(vec, entryPoints, x.params.EfConstruction, layer, visited)
		selected := x.selectNeighbors(found, x.maxConns(layer))

		linked := make([]uint32, len(selected))
		for i, c := range selected {
			linked[i] = c.node
		}
		x.nodeMu[n].Lock()
		x.links[n][layer] = linked
		x.nodeMu[n].Unlock()

		for _, c := range selected {
			x.connect(c.node, n, c.dist, layer)
		}
		entryPoints = found
	}

	if raises {
		x.entry = n
		x.maxLevel = level
		x.entryMu.Unlock()
	}
}

// connect adds a back-link from node to peer, shrinking node's list with the
// selection heuristic when it overflows.
func (x *Index) connect(node, peer uint32, dist float32, layer int) {
	limit := x.maxConns(layer)
	x.nodeMu[node].Lock()
	defer x.nodeMu[node].Unlock()

	current := x.links[node][layer]
	if slices.Contains(current, peer) {
		return
	}
	if len(current) < limit {
		x.links[node][layer] = append(current, peer)
		return
	}

	base := x.vectors[node]
	cands := make([]candidate, 0, len(current)+1)
	cands = append(cands, candidate{node: peer, dist: dist})
	for _, c := range current {
		cands = append(cands, candidate{node: c, dist: distance(base, x.vectors[c])})
	}
	sortCandidates(cands)
	kept := x.selectNeighbors(cands, limit)
	pruned := make([]uint32, len(kept))
	for i, c := range kept {
		pruned[i] = c.node
	}
	x.links[node][layer] = pruned
}

// greedy walks one layer towards the query, keeping only the closest node.
func (x *Index) greedy(query []float32, cur uint32, curDist float32, layer int) (uint32, float32) {
	for changed := true; changed; {
		changed = false
		for _, f := range x.neighbors(cur, layer) {
			if d := distance(query, x.vectors[f]); d < curDist {
				cur, curDist = f, d
				changed = true
			}
		}
	}
	return cur, curDist
}

// searchLayer runs a beam search of width ef on one layer and returns the
// candidates found, closest first.
func (x *Index) searchLayer(query []float32, entryPoints []candidate, ef, layer int, visited *visitedSet) []candidate {
	visited.reset()

	var frontier minHeap
	var best maxHeap
	for _, ep := range entryPoints {
		if visited.visit(ep.node) {
			continue
		}
		d := distance(query, x.vectors[ep.node])
		heap.Push(&frontier, candidate{node: ep.node, dist: d})
		heap.Push(&best, candidate{node: ep.node, dist: d})
		if best.Len() > ef {
			heap.Pop(&best)
		}
	}

	for frontier.Len() > 0 {
		closest := heap.Pop(&frontier).(candidate)
		if best.Len() >= ef && closest.dist > best[0].dist {
			break
		}
		if layer >= len(x.links[closest.node]) {
			continue
		}
		for _, f := range x.neighbors(closest.node, layer) {
			if visited.visit(f) {
				continue
			}
			d := distance(query, x.vectors[f])
			if best.Len() < ef || d < best[0].dist {
				heap.Push(&frontier, candidate{node: f, dist: d})
				heap.Push(&best, candidate{node: f, dist: d})
				if best.Len() > ef {
					heap.Pop(&best)
				}
			}
		}
	}

	out := make([]candidate, best.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&best).(candidate)
	}
	return out
}

// selectNeighbors applies the HNSW diversity heuristic to candidates sorted
// closest first: a candidate is kept only if it is closer to the base than
// to every neighbor already kept. Remaining slots are filled with the
// closest discarded candidates.
func (x *Index) selectNeighbors(cands []candidate, limit int) []candidate {
	if len(cands) <= limit {
		return cands
	}
	kept := make([]candidate, 0, limit)
	var discarded []candidate
	for _, c := range cands {
		if len(kept) >= limit {
			break
		}
		good := true
		for _, k := range kept {
			if distance(x.vectors[c.node], x.vectors[k.node]) < c.dist {
				good = false
				break
			}
		}
		if good {
			kept = append(kept, c)
		} else {
			discarded = append(discarded, c)
		}
	}
	for _, c := range discarded {
		if len(kept) >= limit {
			break
		}
		kept = append(kept, c)
	}
	return kept
}

func sortCandidates(c []candidate) {
	slices.SortFunc(c, func(a, b candidate) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return int(a.node) - int(b.node)
	})
}

// Query returns up to k approximate nearest neighbors of vec, ordered by
// descending similarity with ties broken by ascending id. An empty index
// yields no results and k is capped at the number of indexed vectors.
func (x *Index) Query(vec []float32, k int) ([]core.Neighbor, error) {
	if len(x.ids) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vec) != x.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", core.ErrDimensionMismatch, len(vec), x.dim)
	}
	k = min(k, len(x.ids))
	ef := max(x.params.EfSearch, k)

	cur := x.entry
	curDist := distance(vec, x.vectors[cur])
	for layer := x.maxLevel; layer > 0; layer-- {
		cur, curDist = x.greedy(vec, cur, curDist, layer)
	}

	visited := x.visited.Get().(*visitedSet)
	found := x.searchLayer(vec, []candidate{{node: cur, dist: curDist}}, ef, 0, visited)
	x.visited.Put(visited)

	out := make([]core.Neighbor, len(found))
	for i, c := range found {
		out[i] = core.Neighbor{ID: x.ids[c.node], Score: Dot(vec, x.vectors[c.node])}
	}
	SortNeighbors(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// SortNeighbors orders neighbors by descending score, then ascending id.
func SortNeighbors(n []core.Neighbor) {
	slices.SortStableFunc(n, func(a, b core.Neighbor) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return core.CompareIDs(a.ID, b.ID)
	})
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int { return len(x.ids) }

// Dimension returns the vector dimensionality, or 0 for an empty index.
func (x *Index) Dimension() int { return x.dim }

// Params returns the parameters the index was built with.
func (x *Index) Params() core.IndexParams { return x.params }

// IDs returns the indexed identifiers in insertion order.
func (x *Index) IDs() []string { return x.ids }

// Vectors returns the indexed vectors in insertion order.
func (x *Index) Vectors() [][]float32 { return x.vectors }
