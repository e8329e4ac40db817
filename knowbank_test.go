package knowbank

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBank(t *testing.T, opts ...Option) *Bank {
	t.Helper()
	b, err := New(opts...)
	require.NoError(t, err)
	return b
}

func extraction(suggested string, names ...string) core.Extraction {
	concepts := make([]core.Concept, len(names))
	for i, n := range names {
		concepts[i] = core.Concept{Name: n, Category: core.CategoryTool, Confidence: 0.8}
	}
	return core.Extraction{
		Concepts:         concepts,
		SkillLevel:       core.SkillIntermediate,
		PrimaryTopic:     suggested,
		SuggestedCluster: suggested,
	}
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		b := newBank(t)
		assert.Equal(t, DefaultConfig(), b.Config())
		assert.NotNil(t, b.logger)
	})

	t.Run("invalid options", func(t *testing.T) {
		for name, opt := range map[string]Option{
			"dimension": WithDimension(0),
			"ngram":     WithNGramSize(-1),
			"snippet":   WithSnippetLength(0),
			"threshold": WithOverlapThreshold(2),
			"primary":   WithMaxPrimaryConcepts(0),
		} {
			t.Run(name, func(t *testing.T) {
				b, err := New(opt)
				assert.ErrorIs(t, err, core.ErrInvalidInput)
				assert.Nil(t, b)
			})
		}
	})
}

func TestBank_AddRemoveSearch(t *testing.T) {
	b := newBank(t)

	for i, text := range []string{
		"Docker is a containerization tool",
		"Kubernetes orchestrates containers",
		"Banana bread recipe",
	} {
		id, err := b.AddDocument(text)
		require.NoError(t, err)
		assert.Equal(t, core.DocID(i), id)
	}

	results, err := b.Search("containers", 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []core.DocID{0, 1}, []core.DocID{results[0].DocID, results[1].DocID})

	_, err = b.Search("containers", 0, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = b.AddDocument("   ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, 3, b.Stats().Documents)

	from, ok := b.RemoveDocument(1)
	assert.True(t, ok)
	assert.Equal(t, core.NoCluster, from)
	_, ok = b.RemoveDocument(1)
	assert.False(t, ok)

	results, err = b.Search("containers", 10, []core.DocID{1, 2})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.DocID(2), results[0].DocID)
}

func TestBank_DockerScenario(t *testing.T) {
	b := newBank(t)

	docA, err := b.AddDocument("Docker basics: images and containers")
	require.NoError(t, err)
	_, found := b.FindBestCluster(extraction("", "docker").Concepts, "Docker & Deployment")
	require.False(t, found)

	cid, err := b.CreateCluster(docA, "Docker & Deployment", extraction("", "docker").Concepts, core.SkillBeginner)
	require.NoError(t, err)
	require.Equal(t, core.ClusterID(1), cid)

	c, ok := b.Cluster(cid)
	require.True(t, ok)
	assert.Equal(t, 1, c.DocCount)
	assert.Equal(t, []core.DocID{docA}, c.DocIDs)

	docB, err := b.AddDocument("Docker compose for multi-container apps")
	require.NoError(t, err)
	best, found := b.FindBestCluster(extraction("", "docker", "compose").Concepts, "Docker & Deployment")
	require.True(t, found)
	require.Equal(t, cid, best)

	require.NoError(t, b.AddToCluster(best, docB))
	require.NoError(t, b.AddToCluster(best, docB))

	c, _ = b.Cluster(cid)
	assert.Equal(t, 2, c.DocCount)
	assert.Equal(t, []core.DocID{docA, docB}, c.DocIDs)
	assert.NoError(t, b.Verify())
}

func TestBank_ClusterOpsRequireDocument(t *testing.T) {
	b := newBank(t)

	_, err := b.CreateCluster(3, "x", nil, core.SkillUnknown)
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)

	id, err := b.AddDocument("something")
	require.NoError(t, err)
	cid, err := b.CreateCluster(id, "x", nil, core.SkillUnknown)
	require.NoError(t, err)

	assert.ErrorIs(t, b.AddToCluster(cid, 42), core.ErrDocumentNotFound)
	assert.ErrorIs(t, b.AddToCluster(99, id), core.ErrClusterNotFound)
	_, err = b.Reassign(42, cid)
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestBank_Commit(t *testing.T) {
	b := newBank(t)

	first, err := b.Commit("Docker is a containerization tool",
		extraction("Docker & Deployment", "docker"),
		&core.DocumentMetadata{Owner: "alice", SourceType: "url", SourceURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, CommitResult{DocID: 0, ClusterID: 1, Created: true}, first)

	second, err := b.Commit("Docker compose", extraction("docker & deployment", "docker", "compose"), nil)
	require.NoError(t, err)
	assert.Equal(t, CommitResult{DocID: 1, ClusterID: 1, Created: false}, second)

	third, err := b.Commit("Banana bread recipe", extraction("Baking", "banana", "bread"), nil)
	require.NoError(t, err)
	assert.Equal(t, CommitResult{DocID: 2, ClusterID: 2, Created: true}, third)

	md, ok := b.Metadata(0)
	require.True(t, ok)
	assert.Equal(t, "alice", md.Owner)
	assert.Equal(t, "url", md.SourceType)
	assert.Equal(t, core.ClusterID(1), md.ClusterID)
	assert.Equal(t, core.SkillIntermediate, md.SkillLevel)
	assert.Equal(t, len([]rune("Docker is a containerization tool")), md.ContentLength)
	assert.False(t, md.IngestedAt.IsZero())

	md, ok = b.Metadata(1)
	require.True(t, ok)
	assert.Equal(t, "text", md.SourceType)

	stats := b.Stats()
	assert.Equal(t, 3, stats.Documents)
	assert.Equal(t, 2, stats.Clusters)
	assert.Equal(t, 0, stats.Unclustered)
	assert.NoError(t, b.Verify())
}

func TestBank_CommitFallbackName(t *testing.T) {
	b := newBank(t)

	res, err := b.Commit("notes without concepts", core.Extraction{}, nil)
	require.NoError(t, err)
	c, ok := b.Cluster(res.ClusterID)
	require.True(t, ok)
	assert.Equal(t, core.DefaultClusterName, c.Name)

	// A second general document joins by name.
	res2, err := b.Commit("more notes", core.Extraction{SuggestedCluster: " "}, nil)
	require.NoError(t, err)
	assert.Equal(t, res.ClusterID, res2.ClusterID)
}

func TestBank_CommitRejectsBlank(t *testing.T) {
	b := newBank(t)

	_, err := b.Commit(" \t ", extraction("x", "y"), nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Equal(t, Stats{Dimension: DefaultConfig().Dimension}, b.Stats())
	assert.Empty(t, b.Clusters())
}

func TestBank_CommitConcurrent(t *testing.T) {
	b := newBank(t)
	const workers = 32

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Commit(fmt.Sprintf("docker note %d", i), extraction("Docker", "docker"), nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	clusters := b.Clusters()
	require.Len(t, clusters, 1)
	assert.Equal(t, workers, clusters[0].DocCount)
	assert.Len(t, clusters[0].DocIDs, workers)
	assert.NoError(t, b.Verify())

	ids := b.SelectDocuments(func(*core.DocumentMetadata) bool { return true })
	require.Len(t, ids, workers)
	for i, id := range ids {
		assert.Equal(t, core.DocID(i), id)
	}
}

func TestBank_ConcurrentSearchAndCommit(t *testing.T) {
	b := newBank(t)
	_, err := b.Commit("seed document about go", extraction("Go", "go"), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := b.Commit(fmt.Sprintf("go routines %d", i), extraction("Go", "go"), nil)
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := b.Search("go", 5, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 9, b.Stats().Documents)
	assert.NoError(t, b.Verify())
}

func TestBank_RemoveDetaches(t *testing.T) {
	b := newBank(t)

	r0, err := b.Commit("Docker intro", extraction("Docker", "docker"), nil)
	require.NoError(t, err)
	r1, err := b.Commit("Docker volumes", extraction("Docker", "docker"), nil)
	require.NoError(t, err)

	from, ok := b.RemoveDocument(r0.DocID)
	require.True(t, ok)
	assert.Equal(t, r0.ClusterID, from)
	_, clustered := b.ClusterOf(r0.DocID)
	assert.False(t, clustered)

	c, ok := b.Cluster(r1.ClusterID)
	require.True(t, ok)
	assert.Equal(t, []core.DocID{r1.DocID}, c.DocIDs)
	assert.Equal(t, 1, c.DocCount)
	_, ok = b.Metadata(r0.DocID)
	assert.False(t, ok)
	assert.NoError(t, b.Verify())
}

func TestBank_ReassignRenameSkill(t *testing.T) {
	b := newBank(t)

	r0, err := b.Commit("Docker intro", extraction("Docker", "docker"), nil)
	require.NoError(t, err)
	r1, err := b.Commit("Sourdough bread", extraction("Baking", "bread"), nil)
	require.NoError(t, err)

	from, err := b.Reassign(r0.DocID, r1.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, r0.ClusterID, from)
	md, _ := b.Metadata(r0.DocID)
	assert.Equal(t, r1.ClusterID, md.ClusterID)

	c0, _ := b.Cluster(r0.ClusterID)
	c1, _ := b.Cluster(r1.ClusterID)
	assert.Empty(t, c0.DocIDs)
	assert.Equal(t, 0, c0.DocCount)
	assert.Equal(t, []core.DocID{r1.DocID, r0.DocID}, c1.DocIDs)
	assert.NoError(t, b.Verify())

	_, err = b.Reassign(r0.DocID, 99)
	assert.ErrorIs(t, err, core.ErrClusterNotFound)
	c1After, _ := b.Cluster(r1.ClusterID)
	assert.Equal(t, c1, c1After)

	require.NoError(t, b.RenameCluster(r1.ClusterID, "Misc"))
	require.NoError(t, b.SetClusterSkillLevel(r1.ClusterID, core.SkillAdvanced))
	c1, _ = b.Cluster(r1.ClusterID)
	assert.Equal(t, "Misc", c1.Name)
	assert.Equal(t, core.SkillAdvanced, c1.SkillLevel)
	assert.ErrorIs(t, b.RenameCluster(42, "x"), core.ErrClusterNotFound)
}

func TestBank_ClustersAreCopies(t *testing.T) {
	b := newBank(t)
	_, err := b.Commit("Docker intro", extraction("Docker", "docker"), nil)
	require.NoError(t, err)

	cs := b.Clusters()
	cs[0].DocIDs[0] = 77
	cs[0].Name = "mutated"

	c, _ := b.Cluster(1)
	assert.Equal(t, "Docker", c.Name)
	assert.Equal(t, core.DocID(0), c.DocIDs[0])
}

func TestBank_SnapshotRestore(t *testing.T) {
	src := newBank(t)
	ingested := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, text := range []string{
		"Docker is a containerization tool",
		"Kubernetes orchestrates containers",
		"Banana bread recipe",
		"Docker compose files",
	} {
		_, err := src.Commit(text, extraction("Containers", "docker"), &core.DocumentMetadata{IngestedAt: ingested})
		require.NoError(t, err)
	}

	snap := src.Snapshot()
	require.Len(t, snap.Documents, 4)
	require.Len(t, snap.Metadata, 4)

	dst := newBank(t)
	require.NoError(t, dst.Restore(snap))

	assert.Equal(t, src.Clusters(), dst.Clusters())
	assert.Equal(t, src.Stats(), dst.Stats())

	want, err := src.Search("containers", 3, nil)
	require.NoError(t, err)
	got, err := dst.Search("containers", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	md, ok := dst.Metadata(3)
	require.True(t, ok)
	assert.Equal(t, ingested, md.IngestedAt)
	assert.Equal(t, core.ClusterID(1), md.ClusterID)

	assert.ErrorIs(t, dst.Restore(snap), core.ErrInvalidInput)
}

func TestBank_RestorePreservesIDGaps(t *testing.T) {
	src := newBank(t)
	for _, text := range []string{"first doc", "second doc", "third doc", "fourth doc"} {
		_, err := src.Commit(text, extraction("Notes", "notes"), nil)
		require.NoError(t, err)
	}
	_, removed := src.RemoveDocument(1)
	require.True(t, removed)

	snap := src.Snapshot()
	require.Len(t, snap.Documents, 3)
	assert.Equal(t, core.DocID(3), snap.Documents[2].ID)

	dst := newBank(t)
	require.NoError(t, dst.Restore(snap))
	assert.Equal(t, src.Clusters(), dst.Clusters())

	text, ok := dst.Document(3)
	require.True(t, ok)
	assert.Equal(t, "fourth doc", text.Text)
	_, ok = dst.Document(1)
	assert.False(t, ok)

	// Ids keep counting from the restored maximum.
	id, err := dst.AddDocument("new after restore")
	require.NoError(t, err)
	assert.Equal(t, core.DocID(4), id)
}

func TestBank_RestoreReportsIntegrityFault(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	b := newBank(t, WithMetrics(m))

	snap := core.Snapshot{
		Documents: []core.StoredDocument{{ID: 0, Text: "a doc"}},
		Clusters: []*core.Cluster{
			{ID: 1, Name: "Broken", DocIDs: []core.DocID{0, 5}, DocCount: 3},
		},
	}
	err := b.Restore(snap)
	assert.ErrorIs(t, err, core.ErrIntegrityFault)

	// Nothing is auto-corrected.
	c, ok := b.Cluster(1)
	require.True(t, ok)
	assert.Equal(t, 3, c.DocCount)
	assert.Equal(t, []core.DocID{0, 5}, c.DocIDs)
}

func TestBank_Assign(t *testing.T) {
	b := newBank(t)

	id, err := b.AddDocument("Docker containers")
	require.NoError(t, err)

	res, err := b.Assign(id, extraction("Docker", "docker"))
	require.NoError(t, err)
	assert.Equal(t, CommitResult{DocID: id, ClusterID: 1, Created: true}, res)

	md, ok := b.Metadata(id)
	require.True(t, ok)
	assert.Equal(t, core.ClusterID(1), md.ClusterID)
	assert.Equal(t, "text", md.SourceType)
	assert.Equal(t, len("Docker containers"), md.ContentLength)
	require.Len(t, md.Concepts, 1)

	_, err = b.Assign(id, extraction("Docker", "docker"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = b.Assign(42, extraction("Docker", "docker"))
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)

	other, err := b.AddDocument("Docker compose")
	require.NoError(t, err)
	res, err = b.Assign(other, extraction("Compose", "docker", "compose"))
	require.NoError(t, err)
	assert.Equal(t, CommitResult{DocID: other, ClusterID: 1, Created: false}, res)
	assert.NoError(t, b.Verify())
}

func TestBank_ReassignSameCluster(t *testing.T) {
	b := newBank(t)

	r0, err := b.Commit("Docker intro", extraction("Docker", "docker"), nil)
	require.NoError(t, err)
	r1, err := b.Commit("Docker volumes", extraction("Docker", "docker"), nil)
	require.NoError(t, err)
	before, _ := b.Cluster(r0.ClusterID)

	from, err := b.Reassign(r1.DocID, r0.ClusterID)
	require.NoError(t, err)
	assert.Equal(t, r0.ClusterID, from)

	after, _ := b.Cluster(r0.ClusterID)
	assert.Equal(t, before, after)
	assert.Equal(t, []core.DocID{r0.DocID, r1.DocID}, after.DocIDs)
}

func TestBank_MembershipTracksClusters(t *testing.T) {
	b := newBank(t)

	r0, err := b.Commit("Docker intro", extraction("Docker", "docker"), nil)
	require.NoError(t, err)
	r1, err := b.Commit("Sourdough bread", extraction("Baking", "bread"), nil)
	require.NoError(t, err)
	loose, err := b.AddDocument("Unsorted note")
	require.NoError(t, err)
	other, err := b.AddDocument("Another loose note")
	require.NoError(t, err)

	_, clustered := b.ClusterOf(loose)
	assert.False(t, clustered)

	created, err := b.CreateCluster(loose, "Notes", nil, core.SkillUnknown)
	require.NoError(t, err)
	require.NoError(t, b.AddToCluster(r1.ClusterID, other))
	_, err = b.Reassign(r0.DocID, r1.ClusterID)
	require.NoError(t, err)
	_, _ = b.RemoveDocument(r1.DocID)

	want := map[core.DocID]core.ClusterID{}
	for _, c := range b.Clusters() {
		for _, id := range c.DocIDs {
			want[id] = c.ID
		}
	}
	assert.Equal(t, map[core.DocID]core.ClusterID{
		r0.DocID: r1.ClusterID,
		other:    r1.ClusterID,
		loose:    created,
	}, want)
	for id, cid := range want {
		got, ok := b.ClusterOf(id)
		assert.True(t, ok)
		assert.Equal(t, cid, got)
	}
	_, clustered = b.ClusterOf(r1.DocID)
	assert.False(t, clustered)

	// Membership is rebuilt on restore.
	dst := newBank(t)
	require.NoError(t, dst.Restore(b.Snapshot()))
	for id, cid := range want {
		got, ok := dst.ClusterOf(id)
		assert.True(t, ok)
		assert.Equal(t, cid, got)
	}
	_, err = dst.Assign(other, extraction("Docker", "docker"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestBank_UpdateMetadata(t *testing.T) {
	b := newBank(t)

	res, err := b.Commit("Docker intro", extraction("Docker", "docker"), &core.DocumentMetadata{Owner: "alice"})
	require.NoError(t, err)

	topic := "  Containers  "
	md, err := b.UpdateMetadata(res.DocID, &topic, nil)
	require.NoError(t, err)
	assert.Equal(t, "Containers", md.PrimaryTopic)
	assert.Equal(t, core.SkillIntermediate, md.SkillLevel)
	assert.Equal(t, "alice", md.Owner)

	skill := core.SkillAdvanced
	md, err = b.UpdateMetadata(res.DocID, nil, &skill)
	require.NoError(t, err)
	assert.Equal(t, "Containers", md.PrimaryTopic)
	assert.Equal(t, core.SkillAdvanced, md.SkillLevel)

	stored, ok := b.Metadata(res.DocID)
	require.True(t, ok)
	assert.Equal(t, md, stored)

	// Returned metadata is a copy.
	md.PrimaryTopic = "mutated"
	stored, _ = b.Metadata(res.DocID)
	assert.Equal(t, "Containers", stored.PrimaryTopic)

	t.Run("document without metadata", func(t *testing.T) {
		id, err := b.AddDocument("plain text")
		require.NoError(t, err)
		md, err := b.UpdateMetadata(id, &topic, nil)
		require.NoError(t, err)
		assert.Equal(t, id, md.DocID)
		assert.Equal(t, core.NoCluster, md.ClusterID)
		assert.Equal(t, "text", md.SourceType)
		assert.Equal(t, len("plain text"), md.ContentLength)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := b.UpdateMetadata(99, &topic, nil)
		assert.ErrorIs(t, err, core.ErrDocumentNotFound)

		bad := core.SkillLevel(9)
		_, err = b.UpdateMetadata(res.DocID, nil, &bad)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
		stored, _ := b.Metadata(res.DocID)
		assert.Equal(t, core.SkillAdvanced, stored.SkillLevel)
	})
}

func TestBank_RestoreFailureLeavesBankEmpty(t *testing.T) {
	tests := []struct {
		name string
		snap core.Snapshot
	}{
		{
			name: "blank document",
			snap: core.Snapshot{
				Documents: []core.StoredDocument{{ID: 0, Text: "kept text"}, {ID: 1, Text: "  "}},
			},
		},
		{
			name: "duplicate cluster id",
			snap: core.Snapshot{
				Documents: []core.StoredDocument{{ID: 0, Text: "a doc"}, {ID: 1, Text: "b doc"}},
				Metadata:  []*core.DocumentMetadata{{DocID: 0, ClusterID: 1}},
				Clusters: []*core.Cluster{
					{ID: 1, Name: "A", DocIDs: []core.DocID{0}, DocCount: 1},
					{ID: 1, Name: "B", DocIDs: []core.DocID{1}, DocCount: 1},
				},
			},
		},
		{
			name: "invalid cluster id",
			snap: core.Snapshot{
				Documents: []core.StoredDocument{{ID: 0, Text: "a doc"}},
				Clusters:  []*core.Cluster{{ID: 0, Name: "Zero", DocIDs: []core.DocID{0}, DocCount: 1}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBank(t)
			require.ErrorIs(t, b.Restore(tt.snap), core.ErrInvalidInput)

			assert.Equal(t, Stats{Dimension: b.Config().Dimension}, b.Stats())
			assert.Empty(t, b.Clusters())
			_, ok := b.Metadata(0)
			assert.False(t, ok)

			// The bank accepts a good snapshot afterwards.
			require.NoError(t, b.Restore(core.Snapshot{
				Documents: []core.StoredDocument{{ID: 4, Text: "Docker containers"}},
			}))
			res, err := b.Commit("Docker compose", extraction("Docker", "docker"), nil)
			require.NoError(t, err)
			assert.Equal(t, core.DocID(5), res.DocID)
		})
	}
}
