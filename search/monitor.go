package search

import "github.com/poiesic/medvec/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, topK int)
	AfterQueryEmbedding(vector []float32)
	IndexRebuilt(rows int, version uint64)
	AfterIndexSearch(matches []core.Match)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)           {}
func (n *noopMonitor) AfterQueryEmbedding(_ []float32) {}
func (n *noopMonitor) IndexRebuilt(_ int, _ uint64)    {}
func (n *noopMonitor) AfterIndexSearch(_ []core.Match) {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)   {}
