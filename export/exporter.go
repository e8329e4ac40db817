package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/poiesic/knowbank/core"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat maps "json", "markdown" or "md" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// DefaultExcerptLength is the rune length of document bodies in a
// whole-bank Markdown export.
const DefaultExcerptLength = 500

// Source provides the state to export.
type Source interface {
	Snapshot() core.Snapshot
}

// Exporter writes exports of a Source.
type Exporter struct {
	source  Source
	now     func() time.Time
	excerpt int
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock sets the time source used for export dates.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		e.now = now
	}
}

// WithExcerptLength sets the body length of whole-bank Markdown exports.
func WithExcerptLength(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.excerpt = n
		}
	}
}

// NewExporter creates an exporter.
func NewExporter(source Source, opts ...Option) *Exporter {
	e := &Exporter{
		source:  source,
		now:     func() time.Time { return time.Now().UTC() },
		excerpt: DefaultExcerptLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// state is a snapshot indexed for lookup.
type state struct {
	snap     core.Snapshot
	texts    map[core.DocID]string
	metadata map[core.DocID]*core.DocumentMetadata
	clusters map[core.ClusterID]*core.Cluster
}

func (e *Exporter) load() *state {
	snap := e.source.Snapshot()
	st := &state{
		snap:     snap,
		texts:    make(map[core.DocID]string, len(snap.Documents)),
		metadata: make(map[core.DocID]*core.DocumentMetadata, len(snap.Metadata)),
		clusters: make(map[core.ClusterID]*core.Cluster, len(snap.Clusters)),
	}
	for _, d := range snap.Documents {
		st.texts[d.ID] = d.Text
	}
	for _, md := range snap.Metadata {
		st.metadata[md.DocID] = md
	}
	for _, c := range snap.Clusters {
		st.clusters[c.ID] = c
	}
	return st
}

// ExportCluster writes one cluster and its documents.
func (e *Exporter) ExportCluster(w io.Writer, id core.ClusterID, format Format) error {
	st := e.load()
	c, ok := st.clusters[id]
	if !ok {
		return fmt.Errorf("%w: %d", core.ErrClusterNotFound, id)
	}

	docs := make([]DocumentView, 0, len(c.DocIDs))
	for _, docID := range c.DocIDs {
		text, ok := st.texts[docID]
		if !ok {
			continue
		}
		docs = append(docs, DocumentView{
			DocID:    int64(docID),
			Content:  text,
			Metadata: metadataView(st.metadata[docID]),
		})
	}

	switch format {
	case FormatJSON:
		return writeJSON(w, ClusterExport{
			ClusterID:  int64(id),
			Cluster:    clusterView(c),
			Documents:  docs,
			ExportDate: e.now(),
		})
	case FormatMarkdown:
		return writeClusterMarkdown(w, c, docs)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// ExportAll writes every document, ascending by id, and every cluster.
func (e *Exporter) ExportAll(w io.Writer, format Format) error {
	st := e.load()

	docs := make([]DocumentView, 0, len(st.snap.Documents))
	for _, d := range st.snap.Documents {
		view := DocumentView{
			DocID:    int64(d.ID),
			Content:  d.Text,
			Metadata: metadataView(st.metadata[d.ID]),
		}
		if md := st.metadata[d.ID]; md != nil {
			if c, ok := st.clusters[md.ClusterID]; ok {
				view.ClusterName = c.Name
			}
		}
		docs = append(docs, view)
	}
	clusters := make([]ClusterView, 0, len(st.snap.Clusters))
	for _, c := range st.snap.Clusters {
		clusters = append(clusters, clusterView(c))
	}

	switch format {
	case FormatJSON:
		return writeJSON(w, BankExport{
			Documents:      docs,
			Clusters:       clusters,
			ExportDate:     e.now(),
			TotalDocuments: len(docs),
			TotalClusters:  len(clusters),
		})
	case FormatMarkdown:
		return e.writeBankMarkdown(w, st, docs)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeClusterMarkdown(w io.Writer, c *core.Cluster, docs []DocumentView) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n\n", c.Name)
	fmt.Fprintf(bw, "**Skill Level:** %s\n", c.SkillLevel)
	fmt.Fprintf(bw, "**Primary Concepts:** %s\n", strings.Join(c.PrimaryConcepts, ", "))
	fmt.Fprintf(bw, "**Documents:** %d\n\n---\n\n", len(docs))

	for _, d := range docs {
		fmt.Fprintf(bw, "## Document %d\n\n", d.DocID)
		if md := d.Metadata; md != nil {
			fmt.Fprintf(bw, "**Source:** %s\n", md.SourceType)
			fmt.Fprintf(bw, "**Topic:** %s\n", md.PrimaryTopic)
			fmt.Fprintf(bw, "**Concepts:** %s\n\n", conceptNames(md.Concepts))
		}
		fmt.Fprintf(bw, "%s\n\n---\n\n", d.Content)
	}
	return bw.Flush()
}

func (e *Exporter) writeBankMarkdown(w io.Writer, st *state, docs []DocumentView) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Knowledge Bank Export\n\n")
	fmt.Fprintf(bw, "**Export Date:** %s\n", e.now().Format(time.RFC3339))
	fmt.Fprintf(bw, "**Total Documents:** %d\n", len(docs))
	fmt.Fprintf(bw, "**Total Clusters:** %d\n\n---\n\n", len(st.snap.Clusters))

	for _, c := range st.snap.Clusters {
		fmt.Fprintf(bw, "# Cluster: %s\n\n", c.Name)
		for _, d := range docs {
			if d.Metadata == nil || d.Metadata.ClusterID != int64(c.ID) {
				continue
			}
			fmt.Fprintf(bw, "## Document %d\n\n", d.DocID)
			fmt.Fprintf(bw, "**Topic:** %s\n", d.Metadata.PrimaryTopic)
			fmt.Fprintf(bw, "%s\n\n---\n\n", excerpt(d.Content, e.excerpt))
		}
	}
	return bw.Flush()
}

func conceptNames(concepts []ConceptView) string {
	names := make([]string, len(concepts))
	for i, c := range concepts {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// excerpt returns the first n runes of text, followed by "..." when cut.
func excerpt(text string, n int) string {
	count := 0
	for i := range text {
		if count == n {
			return text[:i] + "..."
		}
		count++
	}
	return text
}
