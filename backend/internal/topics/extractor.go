// Package topics finds discussion topics in a batch of message texts.
package topics

import (
	"context"
	"strings"
)

// Extraction methods recorded on Topic nodes.
const (
	MethodLLM       = "llm"
	MethodFrequency = "frequency"
)

// Topic is a labeled cluster of keywords.
type Topic struct {
	Label    string   `json:"label"`
	Keywords []string `json:"keywords"`
	Score    float64  `json:"score"`
}

// Extraction is the result of one extractor run.
type Extraction struct {
	Topics []Topic
	Method string
}

// Extractor finds topics in message texts.
type Extractor interface {
	Extract(ctx context.Context, texts []string) (*Extraction, error)
}

var sentinelLabels = map[string]bool{
	"-1":       true,
	"no topic": true,
	"no_topic": true,
	"outlier":  true,
	"outliers": true,
}

// IsSentinel reports whether label means "no topic" rather than naming one.
func IsSentinel(label string) bool {
	label = strings.ToLower(strings.TrimSpace(label))
	return label == "" || sentinelLabels[label]
}
