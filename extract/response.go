package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/knowbank/core"
)

// response is the JSON shape of an extraction reply.
type response struct {
	Concepts []struct {
		Name       string  `json:"name"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	} `json:"concepts"`
	SkillLevel       string `json:"skill_level"`
	PrimaryTopic     string `json:"primary_topic"`
	SuggestedCluster string `json:"suggested_cluster"`
}

// ParseExtraction decodes a JSON extraction reply:
//
//	{"concepts": [{"name": "docker", "category": "tool", "confidence": 0.9}],
//	 "skill_level": "beginner", "primary_topic": "containers",
//	 "suggested_cluster": "Docker & Deployment"}
//
// Markdown code fences around the object are ignored and keys missing their
// opening quote are repaired. Invalid concepts are dropped and blank names
// get their fallback values.
func ParseExtraction(raw string) (core.Extraction, error) {
	text := stripFences(raw)
	if text == "" {
		return core.Extraction{}, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	var r response
	if err := json.Unmarshal([]byte(repairJSON(text)), &r); err != nil {
		return core.Extraction{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	ext := core.Extraction{
		Concepts:         make([]core.Concept, 0, len(r.Concepts)),
		SkillLevel:       core.ParseSkillLevel(r.SkillLevel),
		PrimaryTopic:     r.PrimaryTopic,
		SuggestedCluster: r.SuggestedCluster,
	}
	for _, c := range r.Concepts {
		ext.Concepts = append(ext.Concepts, core.Concept{
			Name:       c.Name,
			Category:   core.ParseCategory(c.Category),
			Confidence: c.Confidence,
		})
	}
	return core.SanitizeExtraction(ext), nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// repairJSON inserts the opening quote of object keys written as
// `{name": ...` or `, name": ...`.
func repairJSON(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in)+16)

	for i := 0; i < len(in); i++ {
		out = append(out, in[i])
		if in[i] != '{' && in[i] != ',' {
			continue
		}

		j := i + 1
		for j < len(in) && isSpace(in[j]) {
			j++
		}
		k := j
		for k < len(in) && (isLetter(in[k]) || in[k] == '_') {
			k++
		}
		if k > j && k+1 < len(in) && in[k] == '"' && in[k+1] == ':' {
			out = append(out, in[i+1:j]...)
			out = append(out, '"')
			out = append(out, in[j:k]...)
			i = k - 1
		}
	}

	return string(out)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
