package cluster

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/poiesic/knowbank/core"
)

const (
	// DefaultOverlapThreshold is the minimum concept overlap for a cluster to
	// be eligible without a name match.
	DefaultOverlapThreshold = 0.3

	// DefaultMaxPrimaryConcepts is the number of concept names kept as a
	// cluster's primary concepts.
	DefaultMaxPrimaryConcepts = 5
)

// Assigner implements cluster lookup, creation and membership changes over a
// caller-owned Registry.
type Assigner struct {
	threshold  float64
	maxPrimary int
	logger     *slog.Logger
	onFault    func(error)
}

// Option configures an Assigner.
type Option func(*Assigner) error

// WithOverlapThreshold sets the eligibility threshold, in [0, 1].
// Default is DefaultOverlapThreshold.
func WithOverlapThreshold(threshold float64) Option {
	return func(a *Assigner) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("%w: overlap threshold %v outside [0, 1]", core.ErrInvalidInput, threshold)
		}
		a.threshold = threshold
		return nil
	}
}

// WithMaxPrimaryConcepts sets how many concept names a new cluster keeps.
// Default is DefaultMaxPrimaryConcepts.
func WithMaxPrimaryConcepts(n int) Option {
	return func(a *Assigner) error {
		if n < 1 {
			return fmt.Errorf("%w: max primary concepts must be positive", core.ErrInvalidInput)
		}
		a.maxPrimary = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assigner) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger.With("component", "cluster")
		return nil
	}
}

// WithFaultHook registers a function called once for every integrity fault
// found by Verify.
func WithFaultHook(fn func(error)) Option {
	return func(a *Assigner) error {
		a.onFault = fn
		return nil
	}
}

// NewAssigner creates an Assigner.
func NewAssigner(opts ...Option) (*Assigner, error) {
	a := &Assigner{
		threshold:  DefaultOverlapThreshold,
		maxPrimary: DefaultMaxPrimaryConcepts,
		logger:     slog.Default().With("component", "cluster"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Overlap returns the Jaccard ratio of two name sets compared
// case-insensitively. Two empty sets have overlap 0.
func Overlap(a, b []string) float64 {
	setA := nameSet(a)
	setB := nameSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	inter := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		k := core.NormalizeName(n)
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func conceptNames(concepts []core.Concept) []string {
	names := make([]string, len(concepts))
	for i, c := range concepts {
		names[i] = c.Name
	}
	return names
}

// FindBestCluster returns the best eligible cluster for a document with the
// given concepts and suggested cluster name.
func (a *Assigner) FindBestCluster(concepts []core.Concept, suggestedName string, reg Registry) (core.ClusterID, bool) {
	if len(reg) == 0 {
		return core.NoCluster, false
	}

	names := conceptNames(concepts)
	wanted := core.NormalizeName(suggestedName)

	var (
		best        *core.Cluster
		bestOverlap float64
	)
	for _, c := range reg {
		overlap := Overlap(names, c.PrimaryConcepts)
		nameMatch := wanted != "" && core.NormalizeName(c.Name) == wanted
		if !nameMatch && overlap < a.threshold {
			continue
		}
		if best == nil || better(overlap, c, bestOverlap, best) {
			best = c
			bestOverlap = overlap
		}
	}

	if best == nil {
		return core.NoCluster, false
	}
	return best.ID, true
}

// better reports whether candidate c with overlap o ranks above the current
// best: higher overlap, then larger DocCount, then lower id.
func better(o float64, c *core.Cluster, bestO float64, best *core.Cluster) bool {
	if o != bestO {
		return o > bestO
	}
	if c.DocCount != best.DocCount {
		return c.DocCount > best.DocCount
	}
	return c.ID < best.ID
}

// PrimaryConcepts returns up to n distinct concept names ordered by
// descending confidence. Ties keep input order.
func PrimaryConcepts(concepts []core.Concept, n int) []string {
	ranked := slices.Clone(concepts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, c := range ranked {
		if len(out) == n {
			break
		}
		name := strings.TrimSpace(c.Name)
		k := core.NormalizeName(name)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, name)
	}
	return out
}

// CreateCluster inserts a new cluster containing only docID and returns its
// id. A blank name becomes core.DefaultClusterName. The document must not
// already belong to a cluster.
func (a *Assigner) CreateCluster(docID core.DocID, name string, concepts []core.Concept, skill core.SkillLevel, reg Registry) (core.ClusterID, error) {
	if reg == nil {
		return core.NoCluster, fmt.Errorf("%w: registry is nil", core.ErrInvalidInput)
	}
	if current, ok := reg.ClusterOf(docID); ok {
		return core.NoCluster, fmt.Errorf("%w: document %d already in cluster %d", core.ErrInvalidInput, docID, current)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = core.DefaultClusterName
	}

	id := reg.NextID()
	reg[id] = &core.Cluster{
		ID:              id,
		Name:            name,
		PrimaryConcepts: PrimaryConcepts(concepts, a.maxPrimary),
		SkillLevel:      skill,
		DocIDs:          []core.DocID{docID},
		DocCount:        1,
	}

	a.logger.Debug("created cluster", "cluster_id", id, "name", name, "doc_id", docID)
	return id, nil
}

// AddToCluster appends docID to a cluster if it is not already a member.
// Adding an existing member has no effect. A document that belongs to a
// different cluster must be moved with Reassign.
func (a *Assigner) AddToCluster(clusterID core.ClusterID, docID core.DocID, reg Registry) error {
	c, ok := reg[clusterID]
	if !ok {
		return fmt.Errorf("%w: %d", core.ErrClusterNotFound, clusterID)
	}
	if c.Contains(docID) {
		return nil
	}
	if current, ok := reg.ClusterOf(docID); ok {
		return fmt.Errorf("%w: document %d already in cluster %d", core.ErrInvalidInput, docID, current)
	}

	c.DocIDs = append(c.DocIDs, docID)
	c.DocCount = len(c.DocIDs)
	return nil
}

// Reassign moves docID into cluster to, removing it from its current cluster
// in the same step. It returns the previous cluster, or core.NoCluster if
// the document was unclustered. An unknown target leaves the registry
// untouched.
func (a *Assigner) Reassign(docID core.DocID, to core.ClusterID, reg Registry) (core.ClusterID, error) {
	target, ok := reg[to]
	if !ok {
		return core.NoCluster, fmt.Errorf("%w: %d", core.ErrClusterNotFound, to)
	}

	from, _ := reg.ClusterOf(docID)
	if from == to {
		return from, nil
	}
	if from != core.NoCluster {
		removeMember(reg[from], docID)
	}
	target.DocIDs = append(target.DocIDs, docID)
	target.DocCount = len(target.DocIDs)

	a.logger.Debug("reassigned document", "doc_id", docID, "from", from, "to", to)
	return from, nil
}

// Detach removes docID from whichever cluster holds it. Clusters left empty
// stay in the registry.
func (a *Assigner) Detach(docID core.DocID, reg Registry) (core.ClusterID, bool) {
	id, ok := reg.ClusterOf(docID)
	if !ok {
		return core.NoCluster, false
	}
	removeMember(reg[id], docID)
	return id, true
}

func removeMember(c *core.Cluster, docID core.DocID) {
	c.DocIDs = slices.DeleteFunc(c.DocIDs, func(id core.DocID) bool { return id == docID })
	c.DocCount = len(c.DocIDs)
}

// Rename changes a cluster's name.
func (a *Assigner) Rename(id core.ClusterID, name string, reg Registry) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: cluster name cannot be empty", core.ErrInvalidInput)
	}
	c, ok := reg[id]
	if !ok {
		return fmt.Errorf("%w: %d", core.ErrClusterNotFound, id)
	}
	c.Name = name
	return nil
}

// SetSkillLevel changes a cluster's skill level.
func (a *Assigner) SetSkillLevel(id core.ClusterID, level core.SkillLevel, reg Registry) error {
	c, ok := reg[id]
	if !ok {
		return fmt.Errorf("%w: %d", core.ErrClusterNotFound, id)
	}
	c.SkillLevel = level
	return nil
}

// Verify checks every cluster's membership invariant and that no document
// belongs to two clusters. Each fault is logged at error level and reported
// to the fault hook; nothing is corrected.
func (a *Assigner) Verify(reg Registry) error {
	var faults []error
	owner := make(map[core.DocID]core.ClusterID)

	for _, c := range reg.Sorted() {
		if err := core.ValidateCluster(c); err != nil {
			faults = append(faults, err)
		}
		for _, docID := range c.DocIDs {
			if prev, ok := owner[docID]; ok && prev != c.ID {
				faults = append(faults, fmt.Errorf("%w: document %d in clusters %d and %d",
					core.ErrIntegrityFault, docID, prev, c.ID))
				continue
			}
			owner[docID] = c.ID
		}
	}

	for _, err := range faults {
		a.logger.Error("cluster integrity fault", "err", err)
		if a.onFault != nil {
			a.onFault(err)
		}
	}
	return errors.Join(faults...)
}
