package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/export"
	"github.com/poiesic/knowbank/extract"
	"github.com/poiesic/knowbank/ingestion"
	"github.com/poiesic/knowbank/reindex"
	"github.com/poiesic/knowbank/search"
	"github.com/urfave/cli/v2"
)

const dateLayout = "2006-01-02"

func (a *app) commands() []*cli.Command {
	clusterFlag := func() cli.Flag {
		return &cli.Int64Flag{Name: "cluster", Usage: "Cluster ID", Required: true}
	}
	return []*cli.Command{
		{
			Name:      "ingest",
			Usage:     "Add documents from files (or stdin) to the bank",
			ArgsUsage: "[file ...]",
			Action:    a.ingestCommand,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "format",
					Usage: "Input format: text (one document per input) or jsonl (one document per line); guessed from the file extension when empty",
				},
				&cli.StringFlag{Name: "owner", Usage: "Owner recorded for every document"},
				&cli.StringFlag{Name: "source-type", Usage: "Source type recorded for every document", Value: "text"},
				&cli.StringFlag{Name: "source-url", Usage: "Source URL recorded for every document"},
			},
		},
		{
			Name:      "search",
			Usage:     "Search the bank",
			ArgsUsage: "<query>",
			Action:    a.searchCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "top-k", Aliases: []string{"k"}, Usage: "Number of results", Value: search.DefaultTopK},
				&cli.StringFlag{Name: "owner", Usage: "Only documents of this owner"},
				&cli.Int64Flag{Name: "cluster", Usage: "Only documents in this cluster"},
				&cli.StringFlag{Name: "source-type", Usage: "Only documents of this source type"},
				&cli.StringFlag{Name: "skill", Usage: "Only documents at this skill level"},
				&cli.StringFlag{Name: "from", Usage: "Only documents ingested on or after this date (YYYY-MM-DD or RFC3339)"},
				&cli.StringFlag{Name: "to", Usage: "Only documents ingested on or before this date (YYYY-MM-DD or RFC3339)"},
				&cli.BoolFlag{Name: "full", Usage: "Print full content instead of snippets"},
			},
		},
		{
			Name:   "clusters",
			Usage:  "List clusters",
			Action: a.clustersCommand,
		},
		{
			Name:      "remove",
			Usage:     "Remove a document",
			ArgsUsage: "<doc-id>",
			Action:    a.removeCommand,
		},
		{
			Name:  "document",
			Usage: "Show or edit a single document",
			Subcommands: []*cli.Command{
				{
					Name:      "show",
					Usage:     "Print a document's metadata and text",
					ArgsUsage: "<doc-id>",
					Action:    a.documentShowCommand,
				},
				{
					Name:   "set",
					Usage:  "Change a document's primary topic or skill level",
					Action: a.documentSetCommand,
					Flags: []cli.Flag{
						&cli.Int64Flag{Name: "doc", Usage: "Document ID", Required: true},
						&cli.StringFlag{Name: "topic", Usage: "New primary topic"},
						&cli.StringFlag{Name: "skill", Usage: "beginner, intermediate, advanced or unknown"},
					},
				},
			},
		},
		{
			Name:   "reassign",
			Usage:  "Move a document to another cluster",
			Action: a.reassignCommand,
			Flags: []cli.Flag{
				&cli.Int64Flag{Name: "doc", Usage: "Document ID", Required: true},
				clusterFlag(),
			},
		},
		{
			Name:   "rename",
			Usage:  "Rename a cluster",
			Action: a.renameCommand,
			Flags: []cli.Flag{
				clusterFlag(),
				&cli.StringFlag{Name: "name", Usage: "New cluster name", Required: true},
			},
		},
		{
			Name:   "skill",
			Usage:  "Set a cluster's skill level",
			Action: a.skillCommand,
			Flags: []cli.Flag{
				clusterFlag(),
				&cli.StringFlag{Name: "level", Usage: "beginner, intermediate, advanced or unknown", Required: true},
			},
		},
		{
			Name:   "verify",
			Usage:  "Check cluster integrity",
			Action: a.verifyCommand,
		},
		{
			Name:   "stats",
			Usage:  "Print bank statistics",
			Action: a.statsCommand,
		},
		{
			Name:   "export",
			Usage:  "Export one cluster or the whole bank",
			Action: a.exportCommand,
			Flags: []cli.Flag{
				&cli.Int64Flag{Name: "cluster", Usage: "Cluster ID; the whole bank when omitted"},
				&cli.StringFlag{Name: "format", Usage: "json or markdown", Value: string(export.FormatJSON)},
				&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file; stdout when omitted"},
			},
		},
		{
			Name:   "reindex",
			Usage:  "Rebuild the index from stored documents",
			Action: a.reindexCommand,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "recluster",
					Usage: "Drop clusters and place every document again from fresh extractions",
				},
				&cli.IntFlag{
					Name:  "batch-size",
					Usage: "Number of documents to process in each batch",
					Value: reindex.DefaultBatchSize,
				},
				&cli.IntFlag{
					Name:  "report-interval",
					Usage: "Report progress every N documents",
					Value: 100,
				},
				&cli.IntFlag{
					Name:  "max-retries",
					Usage: "Maximum retry attempts for failed extractions",
					Value: 3,
				},
				&cli.DurationFlag{
					Name:  "retry-delay",
					Usage: "Base delay for exponential backoff",
					Value: 1 * time.Second,
				},
			},
		},
	}
}

// ingestRecord is one line of JSONL input. Extraction optionally carries a
// precomputed extractor reply, which skips extraction for that document.
type ingestRecord struct {
	Text       string          `json:"text"`
	Owner      string          `json:"owner"`
	SourceType string          `json:"source_type"`
	SourceURL  string          `json:"source_url"`
	Filename   string          `json:"filename"`
	Extraction json.RawMessage `json:"extraction"`
}

func (a *app) ingestCommand(c *cli.Context) error {
	defaults := core.DocumentMetadata{
		Owner:      c.String("owner"),
		SourceType: c.String("source-type"),
		SourceURL:  c.String("source-url"),
	}

	inputs := c.Args().Slice()
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}

	var items []ingestion.Item
	for _, input := range inputs {
		read, err := readInput(input, c.String("format"), defaults, c.App.Reader)
		if err != nil {
			return err
		}
		items = append(items, read...)
	}
	if len(items) == 0 {
		return fmt.Errorf("no documents to ingest")
	}

	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	var opts []ingestion.Option
	if a.cfg.Ingestion.PoolSize > 0 {
		opts = append(opts, ingestion.WithPoolSize(a.cfg.Ingestion.PoolSize))
	}
	if a.cfg.Ingestion.ExtractTimeout > 0 {
		opts = append(opts, ingestion.WithExtractTimeout(a.cfg.Ingestion.ExtractTimeout))
	}
	pipeline, err := db.NewIngestionPipeline(opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	results, err := pipeline.Ingest(c.Context, items)
	ingested := 0
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		ingested++
		name := ""
		if cl, ok := db.Bank().Cluster(r.ClusterID); ok {
			name = cl.Name
		}
		note := ""
		if r.Created {
			note = " (new)"
		}
		if r.Fallback {
			note += " (fallback extraction)"
		}
		fmt.Fprintf(c.App.Writer, "item %d: doc %d -> cluster %d %q%s\n", i, r.DocID, r.ClusterID, name, note)
	}
	fmt.Fprintf(c.App.Writer, "ingested %d of %d documents\n", ingested, len(items))
	return err
}

// readInput reads documents from a file, or stdin for "-".
func readInput(input, format string, defaults core.DocumentMetadata, stdin io.Reader) ([]ingestion.Item, error) {
	var r io.Reader = stdin
	if input != "-" {
		f, err := os.Open(filepath.Clean(input))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", input, err)
		}
		defer f.Close()
		r = f
		if format == "" && strings.EqualFold(filepath.Ext(input), ".jsonl") {
			format = "jsonl"
		}
	}

	switch format {
	case "", "text":
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", input, err)
		}
		meta := defaults
		if input != "-" {
			meta.Filename = filepath.Base(input)
		}
		return []ingestion.Item{{Text: string(data), Meta: &meta}}, nil
	case "jsonl":
		return readJSONL(input, r, defaults)
	default:
		return nil, fmt.Errorf("unknown input format %q: must be text or jsonl", format)
	}
}

func readJSONL(input string, r io.Reader, defaults core.DocumentMetadata) ([]ingestion.Item, error) {
	var items []ingestion.Item
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec ingestRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", input, line, err)
		}
		meta := defaults
		if rec.Owner != "" {
			meta.Owner = rec.Owner
		}
		if rec.SourceType != "" {
			meta.SourceType = rec.SourceType
		}
		if rec.SourceURL != "" {
			meta.SourceURL = rec.SourceURL
		}
		meta.Filename = rec.Filename
		item := ingestion.Item{Text: rec.Text, Meta: &meta}
		if len(rec.Extraction) > 0 && string(rec.Extraction) != "null" {
			ext, err := extract.ParseExtraction(string(rec.Extraction))
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", input, line, err)
			}
			item.Extraction = &ext
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", input, err)
	}
	return items, nil
}

func (a *app) searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}

	filters := search.Filters{
		Owner:      c.String("owner"),
		ClusterID:  core.ClusterID(c.Int64("cluster")),
		SourceType: c.String("source-type"),
	}
	if s := c.String("skill"); s != "" {
		level, err := parseSkill(s)
		if err != nil {
			return err
		}
		filters.SkillLevel = level
	}
	var err error
	if filters.From, err = parseDate(c.String("from"), false); err != nil {
		return err
	}
	if filters.To, err = parseDate(c.String("to"), true); err != nil {
		return err
	}

	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}
	resp, err := searcher.Search(c.Context, search.Request{
		Query:       query,
		TopK:        c.Int("top-k"),
		Filters:     filters,
		FullContent: c.Bool("full"),
	})
	if err != nil {
		return err
	}

	w := c.App.Writer
	if len(resp.Hits) == 0 {
		fmt.Fprintln(w, "no results")
		return nil
	}
	for i, hit := range resp.Hits {
		cluster := "-"
		if hit.Cluster != nil {
			cluster = hit.Cluster.Name
		}
		fmt.Fprintf(w, "%d. [doc %d] score=%.4f cluster=%s\n", i+1, hit.DocID, hit.Score, cluster)
		fmt.Fprintf(w, "   %s\n", strings.ReplaceAll(hit.Content, "\n", " "))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Clusters:")
	for _, g := range resp.Groups {
		fmt.Fprintf(w, "  %d %s: %v\n", g.ClusterID, g.Name, g.DocIDs)
	}
	return nil
}

func (a *app) clustersCommand(c *cli.Context) error {
	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDOCS\tSKILL\tCONCEPTS")
	for _, cl := range db.Bank().Clusters() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			cl.ID, cl.Name, cl.DocCount, cl.SkillLevel, strings.Join(cl.PrimaryConcepts, ", "))
	}
	return tw.Flush()
}

func (a *app) removeCommand(c *cli.Context) error {
	id, err := parseDocID(c.Args().First())
	if err != nil {
		return err
	}

	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	removed, err := db.Remove(c.Context, id)
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintf(c.App.Writer, "removed document %d\n", id)
	} else {
		fmt.Fprintf(c.App.Writer, "document %d not found\n", id)
	}
	return nil
}

func (a *app) documentShowCommand(c *cli.Context) error {
	id, err := parseDocID(c.Args().First())
	if err != nil {
		return err
	}

	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	doc, ok := db.Bank().Document(id)
	if !ok {
		return fmt.Errorf("%w: %d", core.ErrDocumentNotFound, id)
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%d\n", doc.ID)
	if cid, clustered := db.Bank().ClusterOf(id); clustered {
		fmt.Fprintf(tw, "cluster\t%d\n", cid)
	} else {
		fmt.Fprintln(tw, "cluster\tnone")
	}
	if md, ok := db.Bank().Metadata(id); ok {
		fmt.Fprintf(tw, "topic\t%s\n", md.PrimaryTopic)
		fmt.Fprintf(tw, "skill\t%s\n", md.SkillLevel)
		fmt.Fprintf(tw, "owner\t%s\n", md.Owner)
		fmt.Fprintf(tw, "source\t%s\n", md.SourceType)
		if md.SourceURL != "" {
			fmt.Fprintf(tw, "url\t%s\n", md.SourceURL)
		}
		if !md.IngestedAt.IsZero() {
			fmt.Fprintf(tw, "ingested\t%s\n", md.IngestedAt.Format(time.RFC3339))
		}
		concepts := make([]string, len(md.Concepts))
		for i, cp := range md.Concepts {
			concepts[i] = cp.Name
		}
		fmt.Fprintf(tw, "concepts\t%s\n", strings.Join(concepts, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\n%s\n", doc.Text)
	return nil
}

func (a *app) documentSetCommand(c *cli.Context) error {
	if !c.IsSet("topic") && !c.IsSet("skill") {
		return errors.New("nothing to change: pass --topic and/or --skill")
	}
	var topic *string
	if c.IsSet("topic") {
		t := c.String("topic")
		topic = &t
	}
	var skill *core.SkillLevel
	if c.IsSet("skill") {
		level, err := parseSkill(c.String("skill"))
		if err != nil {
			return err
		}
		skill = &level
	}

	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	docID := core.DocID(c.Int64("doc"))
	md, err := db.UpdateMetadata(c.Context, docID, topic, skill)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "document %d: topic %q, skill %s\n", docID, md.PrimaryTopic, md.SkillLevel)
	return nil
}

func (a *app) reassignCommand(c *cli.Context) error {
	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	docID := core.DocID(c.Int64("doc"))
	to := core.ClusterID(c.Int64("cluster"))
	if err := db.Reassign(c.Context, docID, to); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "moved document %d to cluster %d\n", docID, to)
	return nil
}

func (a *app) renameCommand(c *cli.Context) error {
	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	id := core.ClusterID(c.Int64("cluster"))
	if err := db.RenameCluster(c.Context, id, c.String("name")); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "renamed cluster %d to %q\n", id, c.String("name"))
	return nil
}

func (a *app) skillCommand(c *cli.Context) error {
	level, err := parseSkill(c.String("level"))
	if err != nil {
		return err
	}

	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	id := core.ClusterID(c.Int64("cluster"))
	if err := db.SetClusterSkillLevel(c.Context, id, level); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "cluster %d skill level set to %s\n", id, level)
	return nil
}

func (a *app) verifyCommand(c *cli.Context) error {
	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := db.Verify(); err != nil {
		return err
	}
	stats := db.Bank().Stats()
	fmt.Fprintf(c.App.Writer, "ok: %d documents in %d clusters\n", stats.Documents, stats.Clusters)
	return nil
}

func (a *app) statsCommand(c *cli.Context) error {
	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	stats := db.Bank().Stats()
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "documents\t%d\n", stats.Documents)
	fmt.Fprintf(tw, "clusters\t%d\n", stats.Clusters)
	fmt.Fprintf(tw, "unclustered\t%d\n", stats.Unclustered)
	fmt.Fprintf(tw, "vocabulary\t%d\n", stats.Vocabulary)
	fmt.Fprintf(tw, "dimension\t%d\n", stats.Dimension)
	return tw.Flush()
}

func (a *app) exportCommand(c *cli.Context) (err error) {
	format, err := export.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	w := c.App.Writer
	if path := c.String("output"); path != "" {
		f, err := os.Create(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer func() {
			err = errors.Join(err, f.Close())
		}()
		w = f
	}

	exporter := db.NewExporter()
	if c.IsSet("cluster") {
		return exporter.ExportCluster(w, core.ClusterID(c.Int64("cluster")), format)
	}
	return exporter.ExportAll(w, format)
}

func (a *app) reindexCommand(c *cli.Context) error {
	cfg := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Recluster:      c.Bool("recluster"),
	}

	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, closeDB, err := a.open()
	if err != nil {
		return err
	}
	defer closeDB()

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", a.cfg.Database.Path)
	fmt.Fprintf(c.App.ErrWriter, "Recluster: %t\n", cfg.Recluster)
	fmt.Fprintln(c.App.ErrWriter)

	rep, err := db.Reindex(c.Context, cfg, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "reindexed %d documents, %d clusters, %d fallbacks\n",
		rep.Documents, rep.Clusters, rep.Fallbacks)
	return nil
}

func parseDocID(s string) (core.DocID, error) {
	if s == "" {
		return 0, fmt.Errorf("document id is required")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid document id %q", s)
	}
	return core.DocID(id), nil
}

func parseSkill(s string) (core.SkillLevel, error) {
	level := core.ParseSkillLevel(s)
	if level == core.SkillUnknown && !strings.EqualFold(strings.TrimSpace(s), "unknown") {
		return 0, fmt.Errorf("invalid skill level %q: must be one of beginner, intermediate, advanced, unknown", s)
	}
	return level, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339. A bare date used as an upper
// bound covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
