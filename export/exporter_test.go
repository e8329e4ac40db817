package export_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/knowbank"
	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exportTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return exportTime }

func newBank(t *testing.T) *knowbank.Bank {
	t.Helper()
	bank, err := knowbank.New()
	require.NoError(t, err)

	docker := core.Extraction{
		Concepts: []core.Concept{
			{Name: "docker", Category: core.CategoryTool, Confidence: 0.9},
			{Name: "containers", Category: core.CategoryConcept, Confidence: 0.6},
		},
		SkillLevel:       core.SkillBeginner,
		PrimaryTopic:     "containers",
		SuggestedCluster: "Docker",
	}
	_, err = bank.Commit("Docker packages applications into containers", docker, &core.DocumentMetadata{SourceType: "url"})
	require.NoError(t, err)
	_, err = bank.Commit(strings.Repeat("x", 30)+" docker containers", docker, nil)
	require.NoError(t, err)
	_, err = bank.Commit("Knead the dough", core.Extraction{PrimaryTopic: "baking", SuggestedCluster: "Baking"}, nil)
	require.NoError(t, err)
	return bank
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want export.Format
	}{
		{"", export.FormatJSON},
		{"json", export.FormatJSON},
		{"Markdown", export.FormatMarkdown},
		{"md", export.FormatMarkdown},
	}
	for _, tt := range tests {
		got, err := export.ParseFormat(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := export.ParseFormat("xml")
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
}

func TestExportCluster_JSON(t *testing.T) {
	e := export.NewExporter(newBank(t), export.WithClock(fixedClock))

	var buf bytes.Buffer
	require.NoError(t, e.ExportCluster(&buf, 1, export.FormatJSON))

	var out export.ClusterExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, int64(1), out.ClusterID)
	assert.Equal(t, "Docker", out.Cluster.Name)
	assert.Equal(t, []string{"docker", "containers"}, out.Cluster.PrimaryConcepts)
	assert.Equal(t, "beginner", out.Cluster.SkillLevel)
	assert.Equal(t, []int64{0, 1}, out.Cluster.DocIDs)
	assert.True(t, exportTime.Equal(out.ExportDate))

	require.Len(t, out.Documents, 2)
	assert.Equal(t, "Docker packages applications into containers", out.Documents[0].Content)
	require.NotNil(t, out.Documents[0].Metadata)
	assert.Equal(t, "url", out.Documents[0].Metadata.SourceType)
	assert.Equal(t, "tool", out.Documents[0].Metadata.Concepts[0].Category)
}

func TestExportCluster_Markdown(t *testing.T) {
	e := export.NewExporter(newBank(t))

	var buf bytes.Buffer
	require.NoError(t, e.ExportCluster(&buf, 1, export.FormatMarkdown))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# Docker\n\n"))
	assert.Contains(t, out, "**Skill Level:** beginner\n")
	assert.Contains(t, out, "**Primary Concepts:** docker, containers\n")
	assert.Contains(t, out, "**Documents:** 2\n")
	assert.Contains(t, out, "## Document 0\n")
	assert.Contains(t, out, "**Concepts:** docker, containers\n")
	assert.Contains(t, out, "Docker packages applications into containers\n")
}

func TestExportCluster_Errors(t *testing.T) {
	e := export.NewExporter(newBank(t))
	var buf bytes.Buffer

	assert.ErrorIs(t, e.ExportCluster(&buf, 99, export.FormatJSON), core.ErrClusterNotFound)
	assert.ErrorIs(t, e.ExportCluster(&buf, 1, export.Format("csv")), export.ErrUnknownFormat)
	assert.ErrorIs(t, e.ExportAll(&buf, export.Format("csv")), export.ErrUnknownFormat)
}

func TestExportAll_JSON(t *testing.T) {
	e := export.NewExporter(newBank(t), export.WithClock(fixedClock))

	var buf bytes.Buffer
	require.NoError(t, e.ExportAll(&buf, export.FormatJSON))

	var out export.BankExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 3, out.TotalDocuments)
	assert.Equal(t, 2, out.TotalClusters)
	require.Len(t, out.Documents, 3)
	assert.Equal(t, []int64{0, 1, 2}, []int64{out.Documents[0].DocID, out.Documents[1].DocID, out.Documents[2].DocID})
	assert.Equal(t, "Docker", out.Documents[0].ClusterName)
	assert.Equal(t, "Baking", out.Documents[2].ClusterName)
	assert.Equal(t, "Baking", out.Clusters[1].Name)
}

func TestExportAll_Markdown(t *testing.T) {
	e := export.NewExporter(newBank(t), export.WithClock(fixedClock), export.WithExcerptLength(10))

	var buf bytes.Buffer
	require.NoError(t, e.ExportAll(&buf, export.FormatMarkdown))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# Knowledge Bank Export\n\n"))
	assert.Contains(t, out, "**Export Date:** 2024-06-01T12:00:00Z\n")
	assert.Contains(t, out, "**Total Documents:** 3\n")
	assert.Contains(t, out, "**Total Clusters:** 2\n")
	assert.Contains(t, out, "# Cluster: Docker\n")
	assert.Contains(t, out, "# Cluster: Baking\n")
	assert.Contains(t, out, "xxxxxxxxxx...\n")
	assert.Contains(t, out, "Knead the ...\n")
	assert.Less(t, strings.Index(out, "# Cluster: Docker"), strings.Index(out, "# Cluster: Baking"))
}
