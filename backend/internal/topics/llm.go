package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"mimic-ai/backend/internal/adapter"
	apperrors "mimic-ai/backend/pkg/errors"
	"mimic-ai/backend/pkg/logger"
)

const (
	maxPromptTexts    = 300
	maxPromptTextSize = 280
)

const systemPrompt = `You label the discussion topics of a group chat.
Reply with a JSON object of the form
{"topics": [{"label": "short_topic_name", "keywords": ["word", ...], "score": 0.0}]}
Rules:
- at most %d topics, most prominent first
- each label is two to four lowercase words joined by underscores
- keywords are 3 to 6 lowercase words that literally occur in the messages
- score is the share of messages about the topic, between 0 and 1
- reply {"topics": []} when the messages have no clear topics`

// Generator produces a JSON chat completion.
type Generator interface {
	GenerateJSON(ctx context.Context, systemPrompt, userMsg string) (*adapter.Response, error)
}

// LLMExtractor asks a chat model to name topics.
type LLMExtractor struct {
	llm       Generator
	maxTopics int
	logger    *zap.Logger
}

// NewLLMExtractor creates an extractor returning at most maxTopics topics.
func NewLLMExtractor(llm Generator, maxTopics int) *LLMExtractor {
	if maxTopics < 1 {
		maxTopics = 1
	}
	return &LLMExtractor{
		llm:       llm,
		maxTopics: maxTopics,
		logger:    logger.Named("topics"),
	}
}

type llmReply struct {
	Topics []Topic `json:"topics"`
}

// Extract sends a numbered sample of texts and parses the model's topics.
func (e *LLMExtractor) Extract(ctx context.Context, texts []string) (*Extraction, error) {
	resp, err := e.llm.GenerateJSON(ctx, fmt.Sprintf(systemPrompt, e.maxTopics), buildPrompt(texts))
	if err != nil {
		return nil, apperrors.NewExtractorError(MethodLLM, err)
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(stripFence(resp.Content)), &reply); err != nil {
		return nil, apperrors.NewExtractorError(MethodLLM, fmt.Errorf("invalid topic JSON: %w", err))
	}

	topics := make([]Topic, 0, len(reply.Topics))
	for _, t := range reply.Topics {
		t.Label = strings.TrimSpace(t.Label)
		if IsSentinel(t.Label) {
			continue
		}
		t.Keywords = cleanKeywords(t.Keywords)
		if t.Score < 0 {
			t.Score = 0
		}
		if t.Score > 1 {
			t.Score = 1
		}
		topics = append(topics, t)
	}
	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Score > topics[j].Score })
	topics = dedupeLabels(topics)
	if len(topics) > e.maxTopics {
		topics = topics[:e.maxTopics]
	}

	e.logger.Info("Extracted topics",
		zap.String("method", MethodLLM),
		zap.Int("topics", len(topics)),
		zap.Int("texts", len(texts)),
	)
	return &Extraction{Topics: topics, Method: MethodLLM}, nil
}

// dedupeLabels keeps the first topic of each label, case-insensitively.
func dedupeLabels(in []Topic) []Topic {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, t := range in {
		key := strings.ToLower(t.Label)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func buildPrompt(texts []string) string {
	var b strings.Builder
	b.WriteString("Messages:\n")
	for i, text := range texts {
		if i == maxPromptTexts {
			break
		}
		text = strings.Join(strings.Fields(text), " ")
		if r := []rune(text); len(r) > maxPromptTextSize {
			text = string(r[:maxPromptTextSize]) + "..."
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, text)
	}
	return b.String()
}

// stripFence removes a markdown code fence some models wrap JSON in.
func stripFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func cleanKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
