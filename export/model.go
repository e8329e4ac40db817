package export

import (
	"time"

	"github.com/poiesic/knowbank/core"
)

// ConceptView is the exported form of a concept.
type ConceptView struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// MetadataView is the exported form of document metadata.
type MetadataView struct {
	Owner         string        `json:"owner,omitempty"`
	SourceType    string        `json:"source_type"`
	SourceURL     string        `json:"source_url,omitempty"`
	Filename      string        `json:"filename,omitempty"`
	Concepts      []ConceptView `json:"concepts"`
	SkillLevel    string        `json:"skill_level"`
	PrimaryTopic  string        `json:"primary_topic"`
	ClusterID     int64         `json:"cluster_id,omitempty"`
	IngestedAt    time.Time     `json:"ingested_at"`
	ContentLength int           `json:"content_length"`
}

// ClusterView is the exported form of a cluster.
type ClusterView struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	PrimaryConcepts []string `json:"primary_concepts"`
	SkillLevel      string   `json:"skill_level"`
	DocIDs          []int64  `json:"doc_ids"`
	DocCount        int      `json:"doc_count"`
}

// DocumentView is one exported document.
type DocumentView struct {
	DocID       int64         `json:"doc_id"`
	Content     string        `json:"content"`
	Metadata    *MetadataView `json:"metadata"`
	ClusterName string        `json:"cluster_name,omitempty"`
}

// ClusterExport is the JSON shape of a single cluster export.
type ClusterExport struct {
	ClusterID  int64          `json:"cluster_id"`
	Cluster    ClusterView    `json:"cluster"`
	Documents  []DocumentView `json:"documents"`
	ExportDate time.Time      `json:"export_date"`
}

// BankExport is the JSON shape of a whole-bank export.
type BankExport struct {
	Documents      []DocumentView `json:"documents"`
	Clusters       []ClusterView  `json:"clusters"`
	ExportDate     time.Time      `json:"export_date"`
	TotalDocuments int            `json:"total_documents"`
	TotalClusters  int            `json:"total_clusters"`
}

func metadataView(md *core.DocumentMetadata) *MetadataView {
	if md == nil {
		return nil
	}
	concepts := make([]ConceptView, len(md.Concepts))
	for i, c := range md.Concepts {
		concepts[i] = ConceptView{Name: c.Name, Category: c.Category.String(), Confidence: c.Confidence}
	}
	return &MetadataView{
		Owner:         md.Owner,
		SourceType:    md.SourceType,
		SourceURL:     md.SourceURL,
		Filename:      md.Filename,
		Concepts:      concepts,
		SkillLevel:    md.SkillLevel.String(),
		PrimaryTopic:  md.PrimaryTopic,
		ClusterID:     int64(md.ClusterID),
		IngestedAt:    md.IngestedAt,
		ContentLength: md.ContentLength,
	}
}

func clusterView(c *core.Cluster) ClusterView {
	ids := make([]int64, len(c.DocIDs))
	for i, id := range c.DocIDs {
		ids[i] = int64(id)
	}
	primary := c.PrimaryConcepts
	if primary == nil {
		primary = []string{}
	}
	return ClusterView{
		ID:              int64(c.ID),
		Name:            c.Name,
		PrimaryConcepts: primary,
		SkillLevel:      c.SkillLevel.String(),
		DocIDs:          ids,
		DocCount:        c.DocCount,
	}
}
