// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package knowbank is an in-memory semantic index that files every
// document it receives into a topical cluster. Bank is the engine;
// Database keeps a Bank in sync with a badger store.
package knowbank

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/poiesic/knowbank/cluster"
	"github.com/poiesic/knowbank/core"
	"github.com/poiesic/knowbank/index"
	"github.com/poiesic/knowbank/metrics"
	"github.com/poiesic/knowbank/vectorize"
)

// Config holds the tunable parameters of a Bank.
type Config struct {
	// Dimension is the number of hash slots per vector.
	// Default: 1<<18
	Dimension int

	// NGramSize is the character n-gram length for sub-word features.
	// Zero disables n-grams.
	// Default: 3
	NGramSize int

	// SnippetLength is the number of leading runes returned with results.
	// Default: 160
	SnippetLength int

	// OverlapThreshold is the minimum concept overlap for joining an
	// existing cluster without a name match.
	// Default: 0.3
	OverlapThreshold float64

	// MaxPrimaryConcepts is how many concept names a new cluster keeps.
	// Default: 5
	MaxPrimaryConcepts int
}

// DefaultConfig returns the default Bank configuration.
func DefaultConfig() Config {
	return Config{
		Dimension:          vectorize.DefaultDimension,
		NGramSize:          vectorize.DefaultNGramSize,
		SnippetLength:      index.DefaultSnippetLength,
		OverlapThreshold:   cluster.DefaultOverlapThreshold,
		MaxPrimaryConcepts: cluster.DefaultMaxPrimaryConcepts,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.Dimension <= 0 || c.Dimension > math.MaxUint32:
		return fmt.Errorf("%w: dimension must be in [1, 2^32), got %d", core.ErrInvalidInput, c.Dimension)
	case c.NGramSize < 0:
		return fmt.Errorf("%w: n-gram size must not be negative, got %d", core.ErrInvalidInput, c.NGramSize)
	case c.SnippetLength < 1:
		return fmt.Errorf("%w: snippet length must be positive, got %d", core.ErrInvalidInput, c.SnippetLength)
	case math.IsNaN(c.OverlapThreshold) || c.OverlapThreshold < 0 || c.OverlapThreshold > 1:
		return fmt.Errorf("%w: overlap threshold must be in [0, 1], got %v", core.ErrInvalidInput, c.OverlapThreshold)
	case c.MaxPrimaryConcepts < 1:
		return fmt.Errorf("%w: max primary concepts must be positive, got %d", core.ErrInvalidInput, c.MaxPrimaryConcepts)
	}
	return nil
}

// Bank is the in-memory knowledge bank. It owns the vector index, the
// cluster registry and document metadata, and guards all three with a
// single lock so that compound updates are never observed half done.
//
// Bank is safe for concurrent use. It performs no I/O; extraction and
// persistence belong to the caller and must happen outside Bank methods.
type Bank struct {
	mu       sync.RWMutex
	index    *index.VectorIndex
	clusters cluster.Registry
	metadata map[core.DocID]*core.DocumentMetadata
	assigner *cluster.Assigner

	// members maps every clustered document to its cluster. It mirrors
	// clusters and is updated in the same critical section.
	members map[core.DocID]core.ClusterID

	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Bank.
type Option func(*Bank) error

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(b *Bank) error {
		b.config = cfg
		return nil
	}
}

// WithDimension sets the number of hash slots per vector.
func WithDimension(dim int) Option {
	return func(b *Bank) error {
		b.config.Dimension = dim
		return nil
	}
}

// WithNGramSize sets the character n-gram length.
func WithNGramSize(n int) Option {
	return func(b *Bank) error {
		b.config.NGramSize = n
		return nil
	}
}

// WithSnippetLength sets the result snippet length in runes.
func WithSnippetLength(n int) Option {
	return func(b *Bank) error {
		b.config.SnippetLength = n
		return nil
	}
}

// WithOverlapThreshold sets the cluster eligibility threshold.
func WithOverlapThreshold(threshold float64) Option {
	return func(b *Bank) error {
		b.config.OverlapThreshold = threshold
		return nil
	}
}

// WithMaxPrimaryConcepts sets how many concept names a new cluster keeps.
func WithMaxPrimaryConcepts(n int) Option {
	return func(b *Bank) error {
		b.config.MaxPrimaryConcepts = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bank) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bank) error {
		b.metrics = m
		return nil
	}
}

// New creates an empty Bank.
func New(opts ...Option) (*Bank, error) {
	b := &Bank{
		clusters: make(cluster.Registry),
		metadata: make(map[core.DocID]*core.DocumentMetadata),
		members:  make(map[core.DocID]core.ClusterID),
		config:   DefaultConfig(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	b.logger = b.logger.With("component", "bank")

	ix, err := b.newIndex()
	if err != nil {
		return nil, err
	}

	assigner, err := cluster.NewAssigner(
		cluster.WithOverlapThreshold(b.config.OverlapThreshold),
		cluster.WithMaxPrimaryConcepts(b.config.MaxPrimaryConcepts),
		cluster.WithLogger(b.logger),
		cluster.WithFaultHook(func(error) { b.metrics.IntegrityFault() }),
	)
	if err != nil {
		return nil, err
	}

	b.index = ix
	b.assigner = assigner
	return b, nil
}

func (b *Bank) newIndex() (*index.VectorIndex, error) {
	return index.New(
		index.WithDimension(b.config.Dimension),
		index.WithNGramSize(b.config.NGramSize),
		index.WithSnippetLength(b.config.SnippetLength),
	)
}

// Config returns the bank's configuration.
func (b *Bank) Config() Config {
	return b.config
}

// AddDocument indexes text without assigning it to a cluster.
func (b *Bank) AddDocument(text string) (core.DocID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id, err := b.index.AddDocument(text)
	if err != nil {
		return 0, err
	}
	b.metrics.DocumentAdded()
	b.updateSizes()
	return id, nil
}

// RemoveDocument deletes a document, detaches it from its cluster and drops
// its metadata. It returns the cluster the document was detached from
// (core.NoCluster if it was unclustered) and whether the document existed;
// removing an unknown id is a no-op.
func (b *Bank) RemoveDocument(id core.DocID) (core.ClusterID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.index.RemoveDocument(id) {
		return core.NoCluster, false
	}
	clusterID := core.NoCluster
	if _, ok := b.members[id]; ok {
		clusterID, _ = b.assigner.Detach(id, b.clusters)
		delete(b.members, id)
	}
	delete(b.metadata, id)

	b.metrics.DocumentRemoved()
	b.updateSizes()
	b.logger.Debug("removed document", "doc_id", id, "cluster_id", clusterID)
	return clusterID, true
}

// Search ranks documents by similarity to query. A nil allowed slice
// searches every document.
func (b *Bank) Search(query string, topK int, allowed []core.DocID) ([]core.SearchResult, error) {
	start := time.Now()

	b.mu.RLock()
	results, err := b.index.Search(query, topK, allowed)
	b.mu.RUnlock()

	b.metrics.ObserveSearch(time.Since(start), err)
	return results, err
}

// FindBestCluster returns the cluster a document with these concepts and
// suggested name would join.
func (b *Bank) FindBestCluster(concepts []core.Concept, suggestedName string) (core.ClusterID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.assigner.FindBestCluster(concepts, suggestedName, b.clusters)
}

// CreateCluster creates a cluster holding only docID.
func (b *Bank) CreateCluster(docID core.DocID, name string, concepts []core.Concept, skill core.SkillLevel) (core.ClusterID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.index.Contains(docID) {
		return core.NoCluster, fmt.Errorf("%w: %d", core.ErrDocumentNotFound, docID)
	}
	id, err := b.assigner.CreateCluster(docID, name, concepts, skill, b.clusters)
	if err != nil {
		return core.NoCluster, err
	}
	b.setCluster(docID, id)
	b.updateSizes()
	return id, nil
}

// AddToCluster adds docID to a cluster. Repeating the call has no effect.
func (b *Bank) AddToCluster(clusterID core.ClusterID, docID core.DocID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.index.Contains(docID) {
		return fmt.Errorf("%w: %d", core.ErrDocumentNotFound, docID)
	}
	if err := b.assigner.AddToCluster(clusterID, docID, b.clusters); err != nil {
		return err
	}
	b.setCluster(docID, clusterID)
	return nil
}

// CommitResult describes the outcome of Commit.
type CommitResult = core.CommitResult

// Commit indexes text and places it in the best matching cluster, creating a
// cluster named after the extraction's suggestion when none is eligible.
// Both steps happen under one exclusive lock. meta may be nil; its
// classification fields are overwritten from ext.
func (b *Bank) Commit(text string, ext core.Extraction, meta *core.DocumentMetadata) (CommitResult, error) {
	if err := core.ValidateText(text); err != nil {
		return CommitResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	docID, err := b.index.AddDocument(text)
	if err != nil {
		return CommitResult{}, err
	}

	md := &core.DocumentMetadata{}
	if meta != nil {
		md = meta.Clone()
	}
	md.ContentLength = utf8.RuneCountInString(text)
	if md.SourceType == "" {
		md.SourceType = "text"
	}
	if md.IngestedAt.IsZero() {
		md.IngestedAt = time.Now().UTC()
	}

	res, err := b.placeLocked(docID, ext, md)
	if err != nil {
		b.index.RemoveDocument(docID)
		return CommitResult{}, err
	}
	b.metrics.DocumentAdded()
	b.updateSizes()
	return res, nil
}

// Assign places an existing, unclustered document the way Commit would,
// replacing the classification fields of its metadata. It is used to
// recluster a restored corpus.
func (b *Bank) Assign(docID core.DocID, ext core.Extraction) (CommitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.index.Contains(docID) {
		return CommitResult{}, fmt.Errorf("%w: %d", core.ErrDocumentNotFound, docID)
	}
	if id, ok := b.members[docID]; ok {
		return CommitResult{}, fmt.Errorf("%w: document %d already in cluster %d", core.ErrInvalidInput, docID, id)
	}

	md, ok := b.metadata[docID]
	if !ok {
		text, _ := b.index.Text(docID)
		md = &core.DocumentMetadata{SourceType: "text", ContentLength: utf8.RuneCountInString(text)}
	}
	res, err := b.placeLocked(docID, ext, md)
	if err != nil {
		return CommitResult{}, err
	}
	b.updateSizes()
	return res, nil
}

// placeLocked runs find-or-create for docID and records md as its
// metadata. The caller holds the write lock.
func (b *Bank) placeLocked(docID core.DocID, ext core.Extraction, md *core.DocumentMetadata) (CommitResult, error) {
	ext = core.SanitizeExtraction(ext)

	var err error
	res := CommitResult{DocID: docID}
	if id, found := b.assigner.FindBestCluster(ext.Concepts, ext.SuggestedCluster, b.clusters); found {
		err = b.assigner.AddToCluster(id, docID, b.clusters)
		res.ClusterID = id
	} else {
		res.ClusterID, err = b.assigner.CreateCluster(docID, ext.SuggestedCluster, ext.Concepts, ext.SkillLevel, b.clusters)
		res.Created = true
	}
	if err != nil {
		return CommitResult{}, err
	}

	b.members[docID] = res.ClusterID
	md.DocID = docID
	md.ClusterID = res.ClusterID
	md.Concepts = slices.Clone(ext.Concepts)
	md.SkillLevel = ext.SkillLevel
	md.PrimaryTopic = ext.PrimaryTopic
	b.metadata[docID] = md

	b.metrics.ClusterDecision(res.Created)
	b.logger.Debug("placed document",
		"doc_id", docID, "cluster_id", res.ClusterID, "created", res.Created)
	return res, nil
}

// Reassign moves a document to another cluster and returns the cluster it
// left (core.NoCluster if it was unclustered). Reassigning a document to
// the cluster that already holds it changes nothing and returns to.
func (b *Bank) Reassign(docID core.DocID, to core.ClusterID) (core.ClusterID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.index.Contains(docID) {
		return core.NoCluster, fmt.Errorf("%w: %d", core.ErrDocumentNotFound, docID)
	}
	if _, ok := b.clusters[to]; !ok {
		return core.NoCluster, fmt.Errorf("%w: %d", core.ErrClusterNotFound, to)
	}
	if current, ok := b.members[docID]; ok && current == to {
		return to, nil
	}
	from, err := b.assigner.Reassign(docID, to, b.clusters)
	if err != nil {
		return core.NoCluster, err
	}
	b.setCluster(docID, to)
	b.logger.Info("reassigned document", "doc_id", docID, "from", from, "to", to)
	return from, nil
}

// ClusterOf returns the cluster holding docID.
func (b *Bank) ClusterOf(docID core.DocID) (core.ClusterID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.members[docID]
	return id, ok
}

// UpdateMetadata overwrites the primary topic and skill level of a
// document. A nil argument leaves that field unchanged. A document without
// metadata gets a fresh record. The updated metadata is returned.
func (b *Bank) UpdateMetadata(docID core.DocID, topic *string, skill *core.SkillLevel) (*core.DocumentMetadata, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.index.Contains(docID) {
		return nil, fmt.Errorf("%w: %d", core.ErrDocumentNotFound, docID)
	}
	if skill != nil && (*skill < core.SkillUnknown || *skill > core.SkillAdvanced) {
		return nil, fmt.Errorf("%w: unknown skill level %d", core.ErrInvalidInput, *skill)
	}

	md, ok := b.metadata[docID]
	if !ok {
		text, _ := b.index.Text(docID)
		md = &core.DocumentMetadata{
			DocID:         docID,
			ClusterID:     core.NoCluster,
			SourceType:    "text",
			ContentLength: utf8.RuneCountInString(text),
		}
		if id, clustered := b.members[docID]; clustered {
			md.ClusterID = id
		}
		b.metadata[docID] = md
	}
	if topic != nil {
		md.PrimaryTopic = strings.TrimSpace(*topic)
	}
	if skill != nil {
		md.SkillLevel = *skill
	}
	b.logger.Debug("updated metadata", "doc_id", docID, "topic", md.PrimaryTopic, "skill", md.SkillLevel)
	return md.Clone(), nil
}

// RenameCluster changes a cluster's name.
func (b *Bank) RenameCluster(id core.ClusterID, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.assigner.Rename(id, name, b.clusters)
}

// SetClusterSkillLevel changes a cluster's skill level.
func (b *Bank) SetClusterSkillLevel(id core.ClusterID, level core.SkillLevel) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.assigner.SetSkillLevel(id, level, b.clusters)
}

// Cluster returns a copy of a cluster.
func (b *Bank) Cluster(id core.ClusterID) (*core.Cluster, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c, ok := b.clusters[id]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Clusters returns copies of all clusters ordered by id.
func (b *Bank) Clusters() []*core.Cluster {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.clusters.Sorted()
}

// Document returns a copy of a stored document.
func (b *Bank) Document(id core.DocID) (core.Document, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.index.Document(id)
}

// Metadata returns a copy of a document's metadata.
func (b *Bank) Metadata(id core.DocID) (*core.DocumentMetadata, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	md, ok := b.metadata[id]
	if !ok {
		return nil, false
	}
	return md.Clone(), true
}

// SelectDocuments returns, in ascending order, the ids of documents whose
// metadata satisfies keep. Documents without metadata are never selected.
func (b *Bank) SelectDocuments(keep func(*core.DocumentMetadata) bool) []core.DocID {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]core.DocID, 0, len(b.metadata))
	for id, md := range b.metadata {
		if keep(md) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Verify checks cluster integrity. Faults are logged and returned, never
// corrected.
func (b *Bank) Verify() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.verifyLocked()
}

func (b *Bank) verifyLocked() error {
	err := b.assigner.Verify(b.clusters)
	for _, c := range b.clusters {
		for _, id := range c.DocIDs {
			if !b.index.Contains(id) {
				b.metrics.IntegrityFault()
				fault := fmt.Errorf("%w: cluster %d lists unknown document %d", core.ErrIntegrityFault, c.ID, id)
				b.logger.Error("cluster integrity fault", "err", fault)
				err = errors.Join(err, fault)
			}
		}
	}
	return err
}

// Stats summarizes the bank's contents.
type Stats struct {
	Documents   int
	Clusters    int
	Unclustered int
	Vocabulary  int
	Dimension   int
}

// Stats returns current counts.
func (b *Bank) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	clustered := 0
	for _, c := range b.clusters {
		clustered += len(c.DocIDs)
	}
	unclustered := b.index.Len() - clustered
	if unclustered < 0 {
		unclustered = 0
	}
	return Stats{
		Documents:   b.index.Len(),
		Clusters:    len(b.clusters),
		Unclustered: unclustered,
		Vocabulary:  b.index.VocabularySize(),
		Dimension:   b.index.Dimension(),
	}
}

// setCluster records docID's membership and mirrors it into the document's
// metadata when it has any.
func (b *Bank) setCluster(docID core.DocID, id core.ClusterID) {
	b.members[docID] = id
	if md, ok := b.metadata[docID]; ok {
		md.ClusterID = id
	}
}

func (b *Bank) updateSizes() {
	b.metrics.SetSizes(b.index.Len(), len(b.clusters))
}
