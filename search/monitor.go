package search

import "github.com/poiesic/catmat/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, topK int)
	AfterEmbedding(dimension int)
	AfterIndexQuery(neighbors []core.Neighbor)
	AfterRecommendation(rec *core.Recommendation)
	Finish(results []core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)                      {}
func (n *noopMonitor) AfterEmbedding(_ int)                       {}
func (n *noopMonitor) AfterIndexQuery(_ []core.Neighbor)          {}
func (n *noopMonitor) AfterRecommendation(_ *core.Recommendation) {}
func (n *noopMonitor) Finish(_ []core.SearchResult)               {}
