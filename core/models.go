package core

import (
	"encoding/binary"
	"math"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DocID identifies a document in the bank.
// IDs are assigned by the vector index starting at 0.
type DocID int64

// ClusterID identifies a cluster. Valid cluster IDs start at 1; zero means
// "no cluster".
type ClusterID int64

// NoCluster is the ClusterID of a document that has not been assigned.
const NoCluster ClusterID = 0

// Fingerprint returns a deterministic 64-bit BLAKE2b digest of text.
// It is stored alongside persisted documents so that corrupted snapshots are
// detected on reload.
func Fingerprint(text string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// Category classifies an extracted concept.
type Category int

const (
	// CategoryConcept is an abstract idea or technique.
	CategoryConcept Category = iota + 1
	// CategoryTool is a concrete tool or product.
	CategoryTool
	// CategorySkill is a practical skill.
	CategorySkill
	// CategoryLanguage is a programming or natural language.
	CategoryLanguage
	// CategoryFramework is a library or framework.
	CategoryFramework
	// CategoryDomain is a field or subject area.
	CategoryDomain
)

var categoryNames = map[Category]string{
	CategoryConcept:   "concept",
	CategoryTool:      "tool",
	CategorySkill:     "skill",
	CategoryLanguage:  "language",
	CategoryFramework: "framework",
	CategoryDomain:    "domain",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCategory maps a category label to a Category.
// "technology" is treated as a tool; any other unknown label becomes a concept.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tool", "technology":
		return CategoryTool
	case "skill":
		return CategorySkill
	case "language":
		return CategoryLanguage
	case "framework":
		return CategoryFramework
	case "domain":
		return CategoryDomain
	default:
		return CategoryConcept
	}
}

// SkillLevel is the difficulty of a document or cluster.
type SkillLevel int

const (
	SkillUnknown SkillLevel = iota
	SkillBeginner
	SkillIntermediate
	SkillAdvanced
)

func (s SkillLevel) String() string {
	switch s {
	case SkillBeginner:
		return "beginner"
	case SkillIntermediate:
		return "intermediate"
	case SkillAdvanced:
		return "advanced"
	default:
		return "unknown"
	}
}

// ParseSkillLevel maps a label to a SkillLevel. Unrecognized labels yield
// SkillUnknown.
func ParseSkillLevel(s string) SkillLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner":
		return SkillBeginner
	case "intermediate":
		return SkillIntermediate
	case "advanced":
		return SkillAdvanced
	default:
		return SkillUnknown
	}
}

// Concept is a topic, tool or skill extracted from a document upstream.
// It is only used as a clustering signal.
type Concept struct {
	Name       string
	Category   Category
	Confidence float64 // 0.0 to 1.0
}

// Key returns the case-insensitive comparison key of the concept name.
func (c Concept) Key() string {
	return NormalizeName(c.Name)
}

// NormalizeName folds a concept or cluster name for comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Fallback values used when extraction yields nothing usable.
const (
	DefaultClusterName  = "General"
	DefaultPrimaryTopic = "uncategorized"
)

// Extraction is the structured result produced by a concept extractor.
type Extraction struct {
	Concepts         []Concept
	SkillLevel       SkillLevel
	PrimaryTopic     string
	SuggestedCluster string
}

// SparseVector is a hashed term vector. Slots are strictly increasing and lie
// in [0, dim); weights are non-negative.
type SparseVector struct {
	Slots   []uint32
	Weights []float64
	norm    float64
}

// NewSparseVector builds a vector from parallel slot/weight slices that are
// already sorted by slot.
func NewSparseVector(slots []uint32, weights []float64) SparseVector {
	v := SparseVector{Slots: slots, Weights: weights}
	var sum float64
	for _, w := range weights {
		sum += w * w
	}
	v.norm = math.Sqrt(sum)
	return v
}

// Len returns the number of non-zero slots.
func (v SparseVector) Len() int {
	return len(v.Slots)
}

// Norm returns the L2 norm of the vector.
func (v SparseVector) Norm() float64 {
	return v.norm
}

// Dot returns the dot product of two sparse vectors.
func (v SparseVector) Dot(o SparseVector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Slots) && j < len(o.Slots) {
		switch {
		case v.Slots[i] == o.Slots[j]:
			sum += v.Weights[i] * o.Weights[j]
			i++
			j++
		case v.Slots[i] < o.Slots[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

// Cosine returns the cosine similarity of two vectors, or 0 when either has
// zero magnitude.
func (v SparseVector) Cosine(o SparseVector) float64 {
	den := v.norm * o.norm
	if den == 0 {
		return 0
	}
	s := v.Dot(o) / den
	// Clamp rounding noise; weights are non-negative so the true value is in [0,1].
	if s > 1 {
		return 1
	}
	if s < 0 {
		return 0
	}
	return s
}

// Document is a stored text and its vector.
type Document struct {
	ID     DocID
	Text   string
	Vector SparseVector
}

// Cluster is a named group of documents sharing concepts.
type Cluster struct {
	ID              ClusterID
	Name            string
	PrimaryConcepts []string
	SkillLevel      SkillLevel
	DocIDs          []DocID
	DocCount        int
}

// Clone returns a deep copy of the cluster.
func (c *Cluster) Clone() *Cluster {
	out := *c
	out.PrimaryConcepts = append([]string(nil), c.PrimaryConcepts...)
	out.DocIDs = append([]DocID(nil), c.DocIDs...)
	return &out
}

// Contains reports whether docID is a member of the cluster.
func (c *Cluster) Contains(docID DocID) bool {
	for _, id := range c.DocIDs {
		if id == docID {
			return true
		}
	}
	return false
}

// DocumentMetadata describes where a document came from and how it was
// classified.
type DocumentMetadata struct {
	DocID         DocID
	Owner         string
	SourceType    string // "text", "url", "pdf", "audio", "image", ...
	SourceURL     string
	Filename      string
	Concepts      []Concept
	SkillLevel    SkillLevel
	PrimaryTopic  string
	ClusterID     ClusterID
	IngestedAt    time.Time
	ContentLength int
}

// Clone returns a deep copy of the metadata.
func (m *DocumentMetadata) Clone() *DocumentMetadata {
	out := *m
	out.Concepts = append([]Concept(nil), m.Concepts...)
	return &out
}

// SearchResult is a single ranked hit.
type SearchResult struct {
	DocID   DocID
	Score   float64
	Snippet string
}

// StoredDocument is the persisted form of a document. Vectors are derived
// and never stored.
type StoredDocument struct {
	ID   DocID
	Text string
}

// Snapshot is a consistent copy of a bank's persistent state.
type Snapshot struct {
	Documents []StoredDocument // ascending by ID
	Metadata  []*DocumentMetadata
	Clusters  []*Cluster // ascending by ID
}

// CommitResult is the outcome of committing one document to a bank.
type CommitResult struct {
	DocID     DocID
	ClusterID ClusterID
	Created   bool // a new cluster was created for the document
}
