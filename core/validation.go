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


package core

import (
	"fmt"
	"math"
	"strings"
)

// ValidateText checks that document text is usable for indexing.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidInput, ErrEmptyContent)
	}
	return nil
}

// ValidateConcept validates a Concept according to domain rules.
//
// Validation rules:
//   - Name must not be empty or blank
//   - Confidence must be a number in [0, 1]
//
// Category is not validated; unknown labels are already mapped to
// CategoryConcept by ParseCategory.
func ValidateConcept(concept *Concept) error {
	if concept == nil {
		return fmt.Errorf("%w: concept is nil", ErrInvalidConcept)
	}

	if strings.TrimSpace(concept.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConcept, ErrEmptyConceptName)
	}

	if math.IsNaN(concept.Confidence) || concept.Confidence < 0 || concept.Confidence > 1 {
		return fmt.Errorf("%w: %w: %v", ErrInvalidConcept, ErrInvalidConfidence, concept.Confidence)
	}

	return nil
}

// SanitizeExtraction drops invalid concepts from an extraction result and
// fills in the fallback cluster name when none was suggested. The input is
// not modified.
func SanitizeExtraction(ext Extraction) Extraction {
	out := ext
	out.Concepts = make([]Concept, 0, len(ext.Concepts))
	for i := range ext.Concepts {
		c := ext.Concepts[i]
		c.Name = strings.TrimSpace(c.Name)
		if ValidateConcept(&c) != nil {
			continue
		}
		out.Concepts = append(out.Concepts, c)
	}
	out.SuggestedCluster = strings.TrimSpace(ext.SuggestedCluster)
	if out.SuggestedCluster == "" {
		out.SuggestedCluster = DefaultClusterName
	}
	if strings.TrimSpace(out.PrimaryTopic) == "" {
		out.PrimaryTopic = DefaultPrimaryTopic
	}
	return out
}

// FallbackExtraction is the result used when concept extraction fails or is
// unavailable.
func FallbackExtraction() Extraction {
	return Extraction{
		Concepts:         []Concept{},
		SkillLevel:       SkillUnknown,
		PrimaryTopic:     DefaultPrimaryTopic,
		SuggestedCluster: DefaultClusterName,
	}
}

// ValidateCluster checks the membership invariant of a single cluster:
// DocCount equals the number of members and members are unique.
func ValidateCluster(c *Cluster) error {
	if c == nil {
		return fmt.Errorf("%w: cluster is nil", ErrIntegrityFault)
	}
	if c.DocCount != len(c.DocIDs) {
		return fmt.Errorf("%w: cluster %d has doc_count %d but %d members",
			ErrIntegrityFault, c.ID, c.DocCount, len(c.DocIDs))
	}
	seen := make(map[DocID]struct{}, len(c.DocIDs))
	for _, id := range c.DocIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: cluster %d lists document %d twice", ErrIntegrityFault, c.ID, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
