package cluster

import (
	"sort"

	"github.com/poiesic/knowbank/core"
)

// Registry holds clusters by id.
type Registry map[core.ClusterID]*core.Cluster

// NextID returns the id a new cluster receives: one more than the largest
// existing id, or 1 for an empty registry.
func (r Registry) NextID() core.ClusterID {
	var max core.ClusterID
	for id := range r {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// ClusterOf returns the cluster containing docID.
func (r Registry) ClusterOf(docID core.DocID) (core.ClusterID, bool) {
	for id, c := range r {
		if c.Contains(docID) {
			return id, true
		}
	}
	return core.NoCluster, false
}

// Sorted returns deep copies of all clusters ordered by id.
func (r Registry) Sorted() []*core.Cluster {
	out := make([]*core.Cluster, 0, len(r))
	for _, c := range r {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Clone returns a deep copy of the registry.
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for id, c := range r {
		out[id] = c.Clone()
	}
	return out
}
