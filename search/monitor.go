package search

import "github.com/poiesic/knowbank/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(req Request)
	AfterFilter(candidates []core.DocID, filtered bool)
	AfterRanking(results []core.SearchResult)
	Hit(hit *Hit)
	Finish(resp *Response)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Request)                    {}
func (n *noopMonitor) AfterFilter(_ []core.DocID, _ bool) {}
func (n *noopMonitor) AfterRanking(_ []core.SearchResult) {}
func (n *noopMonitor) Hit(_ *Hit)                         {}
func (n *noopMonitor) Finish(_ *Response)                 {}
