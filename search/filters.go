package search

import (
	"fmt"
	"time"

	"github.com/poiesic/knowbank/core"
)

// Filters restrict the documents a search may return. Zero values match
// everything.
type Filters struct {
	Owner      string
	ClusterID  core.ClusterID
	SourceType string
	SkillLevel core.SkillLevel
	From       time.Time // inclusive
	To         time.Time // inclusive
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.Owner == "" && f.ClusterID == core.NoCluster && f.SourceType == "" &&
		f.SkillLevel == core.SkillUnknown && f.From.IsZero() && f.To.IsZero()
}

// Validate checks the date range.
func (f Filters) Validate() error {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return fmt.Errorf("%w: %s after %s", ErrInvalidDateRange,
			f.From.Format(time.RFC3339), f.To.Format(time.RFC3339))
	}
	return nil
}

// Match reports whether md passes every set filter. Documents without an
// ingest time never pass a date filter.
func (f Filters) Match(md *core.DocumentMetadata) bool {
	if md == nil {
		return false
	}
	if f.Owner != "" && md.Owner != f.Owner {
		return false
	}
	if f.ClusterID != core.NoCluster && md.ClusterID != f.ClusterID {
		return false
	}
	if f.SourceType != "" && md.SourceType != f.SourceType {
		return false
	}
	if f.SkillLevel != core.SkillUnknown && md.SkillLevel != f.SkillLevel {
		return false
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		if md.IngestedAt.IsZero() {
			return false
		}
		if !f.From.IsZero() && md.IngestedAt.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && md.IngestedAt.After(f.To) {
			return false
		}
	}
	return true
}
