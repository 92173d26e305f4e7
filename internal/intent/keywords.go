// Package intent assigns a business-meaning label and confidence score to
// document content. The scoring strategy sits behind the Detector interface
// so a model-backed implementation can replace the keyword table without
// touching the pipeline.
package intent

import (
	"fmt"
	"regexp"
	"strings"
)

// Unknown is returned when no intent scores above the confidence floor.
const Unknown = "unknown"

// minConfidence is the keyword-density floor below which the label is
// reported as unknown.
const minConfidence = 0.01

// Detector scores free text and returns the best intent label.
type Detector interface {
	Score(text string) (label string, score float64)
}

// intentKeywords drives the rule-based classification.
var intentKeywords = map[string][]string{
	"invoice":    {"invoice", "payment", "bill", "amount due", "total", "tax", "paid", "payment terms"},
	"rfq":        {"rfq", "request for quote", "quotation", "pricing", "quote", "proposal", "bid"},
	"complaint":  {"complaint", "issue", "problem", "dissatisfied", "unhappy", "refund", "compensation"},
	"compliance": {"compliance", "regulation", "legal", "requirement", "policy", "standard", "certification"},
	"update":     {"update", "status", "progress", "notification", "inform", "announcement"},
	"internal":   {"internal", "team", "staff", "employee", "department", "confidential"},
}

// KeywordDetector is the default pure scoring strategy: word-boundary
// keyword counts normalized by document length.
type KeywordDetector struct {
	patterns map[string][]*regexp.Regexp
}

// NewKeywordDetector compiles the keyword table once.
func NewKeywordDetector() *KeywordDetector {
	patterns := make(map[string][]*regexp.Regexp, len(intentKeywords))
	for intent, keywords := range intentKeywords {
		compiled := make([]*regexp.Regexp, 0, len(keywords))
		for _, kw := range keywords {
			compiled = append(compiled, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		patterns[intent] = compiled
	}
	return &KeywordDetector{patterns: patterns}
}

// Score returns the highest-density intent for the text, or unknown when
// nothing clears the confidence floor. Deterministic ties resolve to the
// lexically smallest label.
func (d *KeywordDetector) Score(text string) (string, float64) {
	text = strings.ToLower(text)
	words := float64(len(strings.Fields(text))) + 0.001

	best, bestScore := Unknown, 0.0
	for intent, patterns := range d.patterns {
		count := 0
		for _, p := range patterns {
			count += len(p.FindAllStringIndex(text, -1))
		}
		score := float64(count) / words
		if score > bestScore || (score == bestScore && score > 0 && intent < best) {
			best, bestScore = intent, score
		}
	}

	if bestScore < minConfidence {
		return Unknown, bestScore
	}
	return best, bestScore
}

// FromJSON detects intent for a parsed JSON document. An explicit "type"
// field matching a known intent wins outright; otherwise scalar fields are
// flattened to text and scored.
func FromJSON(d Detector, doc map[string]any) (string, float64) {
	if typ, ok := doc["type"].(string); ok {
		lower := strings.ToLower(typ)
		for intent := range intentKeywords {
			if strings.Contains(lower, intent) {
				return intent, 1.0
			}
		}
	}

	var sb strings.Builder
	for key, value := range doc {
		switch v := value.(type) {
		case string:
			fmt.Fprintf(&sb, "%s: %s ", key, v)
		case float64, int, bool:
			fmt.Fprintf(&sb, "%s: %v ", key, v)
		}
	}
	return d.Score(sb.String())
}

// FromEmail detects intent for an email; the subject line is weighted
// double relative to the body.
func FromEmail(d Detector, subject, body string) (string, float64) {
	return d.Score(subject + " " + subject + " " + body)
}
