package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/knowbank/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"knowbank", "--log-level", "error"}, args...))
	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, 1<<18, cfg.Bank.Dimension)
		assert.Equal(t, 0.3, cfg.Bank.OverlapThreshold)
		assert.Empty(t, cfg.Metrics.Addr)
	})

	t.Run("expands env vars", func(t *testing.T) {
		t.Setenv("KB_TEST_DB", "/var/lib/knowbank")
		path := filepath.Join(t.TempDir(), "knowbank.yaml")
		data := `
database:
  path: ${KB_TEST_DB}
metrics:
  addr: ${KB_TEST_METRICS:-127.0.0.1:9090}
bank:
  dimension: 1024
ingestion:
  pool_size: 2
  extract_timeout: 5s
logging:
  level: debug
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/knowbank", cfg.Database.Path)
		assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr)
		assert.Equal(t, 1024, cfg.Bank.Dimension)
		assert.Equal(t, 3, cfg.Bank.NGramSize)
		assert.Equal(t, 2, cfg.Ingestion.PoolSize)
		assert.Equal(t, 5*time.Second, cfg.Ingestion.ExtractTimeout)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "invalid log level")

		require.NoError(t, os.WriteFile(path, []byte("bank:\n  overlap_threshold: 1.5\n"), 0o600))
		_, err = LoadConfig(path)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("bank: [unclosed"), 0o600))
		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "failed to parse config")
	})
}

func TestParseHelpers(t *testing.T) {
	t.Run("log level", func(t *testing.T) {
		for _, s := range []string{"debug", "INFO", "warn", "error"} {
			_, err := parseLevel(s)
			assert.NoError(t, err, s)
		}
		_, err := parseLevel("trace")
		assert.Error(t, err)
	})

	t.Run("date", func(t *testing.T) {
		zero, err := parseDate("", true)
		require.NoError(t, err)
		assert.True(t, zero.IsZero())

		from, err := parseDate("2024-03-01", false)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), from)

		to, err := parseDate("2024-03-01", true)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999999, time.UTC), to)

		exact, err := parseDate("2024-03-01T12:00:00Z", true)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), exact)

		_, err = parseDate("yesterday", false)
		assert.Error(t, err)
	})

	t.Run("skill", func(t *testing.T) {
		level, err := parseSkill("Advanced")
		require.NoError(t, err)
		assert.Equal(t, core.SkillAdvanced, level)

		level, err = parseSkill("unknown")
		require.NoError(t, err)
		assert.Equal(t, core.SkillUnknown, level)

		_, err = parseSkill("expert")
		assert.Error(t, err)
	})

	t.Run("doc id", func(t *testing.T) {
		id, err := parseDocID("42")
		require.NoError(t, err)
		assert.Equal(t, core.DocID(42), id)

		for _, s := range []string{"", "-1", "x"} {
			_, err := parseDocID(s)
			assert.Error(t, err, s)
		}
	})
}

func TestAcquireLock(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bank")
	assert.Equal(t, filepath.Join(filepath.Dir(dbPath), ".bank.lock"), lockPath(dbPath))

	unlock, err := acquireLock(dbPath)
	require.NoError(t, err)

	_, err = acquireLock(dbPath)
	assert.ErrorContains(t, err, "another knowbank instance")

	unlock()
	unlock, err = acquireLock(dbPath)
	require.NoError(t, err)
	unlock()
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	defaults := core.DocumentMetadata{Owner: "carol", SourceType: "text"}

	t.Run("jsonl by extension", func(t *testing.T) {
		path := filepath.Join(dir, "docs.jsonl")
		data := `{"text": "first", "source_type": "url", "source_url": "https://example.com"}

{"text": "second", "owner": "dave"}
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		items, err := readInput(path, "", defaults, nil)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "first", items[0].Text)
		assert.Equal(t, "url", items[0].Meta.SourceType)
		assert.Equal(t, "carol", items[0].Meta.Owner)
		assert.Equal(t, "https://example.com", items[0].Meta.SourceURL)
		assert.Equal(t, "dave", items[1].Meta.Owner)
		assert.Equal(t, "text", items[1].Meta.SourceType)
	})

	t.Run("text file is one document", func(t *testing.T) {
		path := filepath.Join(dir, "note.txt")
		require.NoError(t, os.WriteFile(path, []byte("line one\nline two\n"), 0o600))

		items, err := readInput(path, "", defaults, nil)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "line one\nline two\n", items[0].Text)
		assert.Equal(t, "note.txt", items[0].Meta.Filename)
	})

	t.Run("stdin", func(t *testing.T) {
		items, err := readInput("-", "jsonl", defaults, strings.NewReader(`{"text": "from stdin"}`))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "from stdin", items[0].Text)
	})

	t.Run("precomputed extraction", func(t *testing.T) {
		line := `{"text": "Terraform plans", "extraction": {"concepts": [{"name": "terraform", "category": "tool", "confidence": 0.9}], "skill_level": "advanced", "suggested_cluster": "IaC"}}`
		items, err := readInput("-", "jsonl", defaults, strings.NewReader(line))
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.NotNil(t, items[0].Extraction)
		assert.Equal(t, "IaC", items[0].Extraction.SuggestedCluster)
		assert.Equal(t, core.SkillAdvanced, items[0].Extraction.SkillLevel)

		_, err = readInput("-", "jsonl", defaults, strings.NewReader(`{"text": "x", "extraction": "oops"}`))
		assert.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := readInput("-", "jsonl", defaults, strings.NewReader("{nope"))
		assert.ErrorContains(t, err, "-:1")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := readInput("-", "csv", defaults, strings.NewReader("x"))
		assert.Error(t, err)
	})
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bank")
	input := filepath.Join(dir, "docs.jsonl")
	data := `{"text": "Docker containers package applications with their dependencies"}
{"text": "Docker compose runs several containers together"}
{"text": "Rust ownership prevents data races at compile time", "owner": "alice"}
`
	require.NoError(t, os.WriteFile(input, []byte(data), 0o600))

	t.Run("requires a database path", func(t *testing.T) {
		_, err := runApp(t, "", "stats")
		assert.ErrorContains(t, err, "database path is required")
	})

	t.Run("ingest", func(t *testing.T) {
		out, err := runApp(t, "", "--db", dbPath, "ingest", input)
		require.NoError(t, err)
		assert.Contains(t, out, "ingested 3 of 3 documents")
		assert.Contains(t, out, "item 0: doc 0 -> cluster 1")
	})

	t.Run("ingest from stdin", func(t *testing.T) {
		out, err := runApp(t, "Badger stores keys and values on disk", "--db", dbPath, "ingest", "--source-type", "note")
		require.NoError(t, err)
		assert.Contains(t, out, "doc 3")
	})

	t.Run("search", func(t *testing.T) {
		out, err := runApp(t, "", "--db", dbPath, "search", "--top-k", "2", "docker", "containers")
		require.NoError(t, err)
		assert.Contains(t, out, "[doc 0]")
		assert.Contains(t, out, "[doc 1]")
		assert.NotContains(t, out, "[doc 2]")
		assert.Contains(t, out, "Clusters:")
	})

	t.Run("search with filters", func(t *testing.T) {
		out, err := runApp(t, "", "--db", dbPath, "search", "--owner", "alice", "docker")
		require.NoError(t, err)
		assert.Contains(t, out, "[doc 2]")
		assert.NotContains(t, out, "[doc 0]")

		out, err = runApp(t, "", "--db", dbPath, "search", "--source-type", "pdf", "docker")
		require.NoError(t, err)
		assert.Contains(t, out, "no results")

		_, err = runApp(t, "", "--db", dbPath, "search", "--from", "yesterday", "docker")
		assert.Error(t, err)

		_, err = runApp(t, "", "--db", dbPath, "search", "--from", "2024-02-01", "--to", "2024-01-01", "docker")
		assert.Error(t, err)
	})

	t.Run("clusters and stats", func(t *testing.T) {
		out, err := runApp(t, "", "--db", dbPath, "clusters")
		require.NoError(t, err)
		assert.Contains(t, out, "CONCEPTS")

		out, err = runApp(t, "", "--db", dbPath, "stats")
		require.NoError(t, err)
		assert.Regexp(t, `documents\s+4`, out)
	})

	t.Run("cluster management", func(t *testing.T) {
		out, err := runApp(t, "", "--db", dbPath, "rename", "--cluster", "1", "--name", "Containers")
		require.NoError(t, err)
		assert.Contains(t, out, `renamed cluster 1 to "Containers"`)

		out, err = runApp(t, "", "--db", dbPath, "skill", "--cluster", "1", "--level", "beginner")
		require.NoError(t, err)
		assert.Contains(t, out, "beginner")

		_, err = runApp(t, "", "--db", dbPath, "skill", "--cluster", "1", "--level", "expert")
		assert.Error(t, err)

		_, err = runApp(t, "", "--db", dbPath, "rename", "--cluster", "99", "--name", "Nope")
		assert.ErrorIs(t, err, core.ErrClusterNotFound)

		out, err = runApp(t, "", "--db", dbPath, "clusters")
		require.NoError(t, err)
		assert.Contains(t, out, "Containers")
	})

	t.Run("export", func(t *testing.T) {
		path := filepath.Join(dir, "bank.json")
		_, err := runApp(t, "", "--db", dbPath, "export", "--output", path)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"documents"`)

		out, err := runApp(t, "", "--db", dbPath, "export", "--cluster", "1", "--format", "markdown")
		require.NoError(t, err)
		assert.Contains(t, out, "# Containers")

		_, err = runApp(t, "", "--db", dbPath, "export", "--cluster", "99")
		assert.ErrorIs(t, err, core.ErrClusterNotFound)

		_, err = runApp(t, "", "--db", dbPath, "export", "--format", "xml")
		assert.Error(t, err)
	})

	t.Run("document", func(t *testing.T) {
		out, err := runApp(t, "", "--db", dbPath, "document", "set", "--doc", "2", "--topic", "Memory safety", "--skill", "advanced")
		require.NoError(t, err)
		assert.Contains(t, out, `document 2: topic "Memory safety", skill advanced`)

		out, err = runApp(t, "", "--db", dbPath, "document", "show", "2")
		require.NoError(t, err)
		assert.Regexp(t, `topic\s+Memory safety`, out)
		assert.Regexp(t, `skill\s+advanced`, out)
		assert.Regexp(t, `owner\s+alice`, out)
		assert.Contains(t, out, "Rust ownership prevents data races at compile time")

		// Only the given field changes.
		_, err = runApp(t, "", "--db", dbPath, "document", "set", "--doc", "2", "--skill", "beginner")
		require.NoError(t, err)
		out, err = runApp(t, "", "--db", dbPath, "document", "show", "2")
		require.NoError(t, err)
		assert.Regexp(t, `topic\s+Memory safety`, out)
		assert.Regexp(t, `skill\s+beginner`, out)

		_, err = runApp(t, "", "--db", dbPath, "document", "set", "--doc", "2")
		assert.ErrorContains(t, err, "nothing to change")

		_, err = runApp(t, "", "--db", dbPath, "document", "set", "--doc", "2", "--skill", "expert")
		assert.Error(t, err)

		_, err = runApp(t, "", "--db", dbPath, "document", "set", "--doc", "99", "--topic", "x")
		assert.ErrorIs(t, err, core.ErrDocumentNotFound)

		_, err = runApp(t, "", "--db", dbPath, "document", "show", "99")
		assert.ErrorIs(t, err, core.ErrDocumentNotFound)
	})

	t.Run("remove and verify", func(t *testing.T) {
		out, err := runApp(t, "", "--db", dbPath, "remove", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "removed document 1")

		out, err = runApp(t, "", "--db", dbPath, "remove", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "document 1 not found")

		out, err = runApp(t, "", "--db", dbPath, "verify")
		require.NoError(t, err)
		assert.Contains(t, out, "ok: 3 documents")
	})

	t.Run("reindex", func(t *testing.T) {
		out, err := runApp(t, "", "--db", dbPath, "reindex")
		require.NoError(t, err)
		assert.Contains(t, out, "reindexed 3 documents")

		out, err = runApp(t, "", "--db", dbPath, "reindex", "--recluster", "--retry-delay", "1ms")
		require.NoError(t, err)
		assert.Contains(t, out, "reindexed 3 documents")

		_, err = runApp(t, "", "--db", dbPath, "reindex", "--batch-size", "0")
		assert.Error(t, err)

		out, err = runApp(t, "", "--db", dbPath, "verify")
		require.NoError(t, err)
		assert.Contains(t, out, "ok: 3 documents")
	})
}
