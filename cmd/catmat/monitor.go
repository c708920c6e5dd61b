package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/catmat/core"
	"github.com/poiesic/catmat/search"
)

type quietMonitor struct{}

func (quietMonitor) Start(string, int)                        {}
func (quietMonitor) AfterEmbedding(int)                       {}
func (quietMonitor) AfterIndexQuery([]core.Neighbor)          {}
func (quietMonitor) AfterRecommendation(*core.Recommendation) {}
func (quietMonitor) Finish([]core.SearchResult)               {}

// printMonitor writes each search stage with its elapsed time.
type printMonitor struct {
	w     io.Writer
	start time.Time
	last  time.Time
}

var _ search.SearchMonitor = (*printMonitor)(nil)

func newPrintMonitor(w io.Writer) *printMonitor {
	return &printMonitor{w: w}
}

func (m *printMonitor) step(format string, args ...any) {
	now := time.Now()
	fmt.Fprintf(m.w, "[%8s] "+format+"\n", append([]any{now.Sub(m.last).Round(time.Microsecond)}, args...)...)
	m.last = now
}

func (m *printMonitor) Start(query string, topK int) {
	m.start = time.Now()
	m.last = m.start
	fmt.Fprintf(m.w, "query %q top_k=%d\n", query, topK)
}

func (m *printMonitor) AfterEmbedding(dimension int) {
	m.step("embedded query (%d dimensions)", dimension)
}

func (m *printMonitor) AfterIndexQuery(neighbors []core.Neighbor) {
	if len(neighbors) == 0 {
		m.step("index returned no neighbors")
		return
	}
	m.step("index returned %d neighbors, best %.4f", len(neighbors), neighbors[0].Score)
}

func (m *printMonitor) AfterRecommendation(rec *core.Recommendation) {
	if rec.Fallback {
		m.step("recommender fell back: %s", rec.FallbackReason)
		return
	}
	m.step("recommender picked %s", rec.Pick.Item.ID)
}

func (m *printMonitor) Finish(results []core.SearchResult) {
	fmt.Fprintf(m.w, "%d results in %s\n", len(results), time.Since(m.start).Round(time.Microsecond))
}

// batchProgress prints a single updating progress line.
type batchProgress struct {
	mu    sync.Mutex
	w     io.Writer
	start time.Time
	shown bool
}

func newBatchProgress(w io.Writer) *batchProgress {
	return &batchProgress{w: w, start: time.Now()}
}

func (p *batchProgress) update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rate := float64(done) / max(time.Since(p.start).Seconds(), 1e-9)
	fmt.Fprintf(p.w, "\rBatch: %d/%d (%.1f%%) - %.1f queries/s", done, total, 100*float64(done)/float64(max(total, 1)), rate)
	p.shown = true
}

func (p *batchProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shown {
		fmt.Fprintln(p.w)
	}
}
