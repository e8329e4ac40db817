package knowbank

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/poiesic/knowbank/cluster"
	"github.com/poiesic/knowbank/core"
)

// Snapshot returns a consistent copy of the bank's persistent state:
// document texts, metadata and clusters. Vectors and vocabulary statistics
// are derived and not included.
func (b *Bank) Snapshot() core.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := b.index.IDs()
	snap := core.Snapshot{
		Documents: make([]core.StoredDocument, 0, len(ids)),
		Metadata:  make([]*core.DocumentMetadata, 0, len(b.metadata)),
		Clusters:  b.clusters.Sorted(),
	}
	for _, id := range ids {
		text, _ := b.index.Text(id)
		snap.Documents = append(snap.Documents, core.StoredDocument{ID: id, Text: text})
		if md, ok := b.metadata[id]; ok {
			snap.Metadata = append(snap.Metadata, md.Clone())
		}
	}
	return snap
}

// Restore rebuilds an empty bank from a snapshot. Documents are replayed in
// ascending id order through the same vectorization as AddDocument, so the
// rebuilt index matches the one the snapshot was taken from. Metadata for
// unknown documents is skipped.
//
// The snapshot is replayed into fresh state that replaces the bank's only
// once every document and cluster has been accepted; on any such error the
// bank is left empty and usable. Cluster integrity is verified after the
// swap and any fault is returned with the restored state kept as is.
func (b *Bank) Restore(snap core.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index.Len() != 0 || len(b.clusters) != 0 {
		return fmt.Errorf("%w: restore requires an empty bank", core.ErrInvalidInput)
	}

	ix, err := b.newIndex()
	if err != nil {
		return err
	}
	docs := slices.Clone(snap.Documents)
	slices.SortFunc(docs, func(a, b core.StoredDocument) int {
		return cmp.Compare(a.ID, b.ID)
	})
	for _, d := range docs {
		if err := ix.Restore(d.ID, d.Text); err != nil {
			return fmt.Errorf("restoring document %d: %w", d.ID, err)
		}
	}

	metadata := make(map[core.DocID]*core.DocumentMetadata, len(snap.Metadata))
	for _, md := range snap.Metadata {
		if md == nil || !ix.Contains(md.DocID) {
			continue
		}
		metadata[md.DocID] = md.Clone()
	}

	clusters := make(cluster.Registry, len(snap.Clusters))
	for _, c := range snap.Clusters {
		if c == nil {
			continue
		}
		if _, dup := clusters[c.ID]; dup || c.ID <= core.NoCluster {
			return fmt.Errorf("%w: invalid or duplicate cluster id %d", core.ErrInvalidInput, c.ID)
		}
		clusters[c.ID] = c.Clone()
	}

	// A document listed twice keeps its lowest cluster; Verify reports it.
	members := make(map[core.DocID]core.ClusterID)
	for _, c := range clusters.Sorted() {
		for _, id := range c.DocIDs {
			if _, seen := members[id]; !seen {
				members[id] = c.ID
			}
		}
	}

	b.index = ix
	b.metadata = metadata
	b.clusters = clusters
	b.members = members

	b.updateSizes()
	b.logger.Info("restored bank",
		"documents", b.index.Len(), "clusters", len(b.clusters), "metadata", len(b.metadata))
	return b.verifyLocked()
}
