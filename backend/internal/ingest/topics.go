package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mimic-ai/backend/internal/graph"
	"mimic-ai/backend/internal/metrics"
	"mimic-ai/backend/internal/topics"
	"mimic-ai/backend/internal/transcript"
)

// topicStep extracts topics from the batch's text messages and replaces the
// DISCUSSES edges of every sender in the batch.
func (c *Coordinator) topicStep(ctx context.Context, log *zap.Logger, messages []transcript.Message, senders []string, now time.Time, result *Result) {
	texts := make([]string, 0, len(messages))
	for _, msg := range messages {
		if !msg.IsMedia {
			texts = append(texts, msg.Body)
		}
	}
	if len(texts) < c.minTopicMessages {
		log.Info("Not enough text messages for topic extraction",
			zap.Int("texts", len(texts)),
			zap.Int("required", c.minTopicMessages),
		)
		return
	}

	extraction := c.extract(ctx, log, texts)
	if extraction == nil {
		result.TopicMethod = MethodNone
		metrics.TopicExtractions.WithLabelValues(MethodNone).Inc()
		return
	}
	result.TopicMethod = extraction.Method
	metrics.TopicExtractions.WithLabelValues(extraction.Method).Inc()

	// Upsert topics; only stored topics take part in matching. The first
	// occurrence of a label is the highest ranked one.
	var stored []topics.Topic
	seen := make(map[string]bool, len(extraction.Topics))
	for _, topic := range extraction.Topics {
		if topics.IsSentinel(topic.Label) || seen[topic.Label] {
			continue
		}
		seen[topic.Label] = true
		keywords := topic.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		_, err := c.store.UpsertNode(ctx, graph.TopicRef(topic.Label), map[string]interface{}{
			graph.PropKeywords:         keywords,
			graph.PropScore:            topic.Score,
			graph.PropExtractionMethod: extraction.Method,
			graph.PropLastUpdated:      now,
		}, graph.WithCreateProps(map[string]interface{}{
			graph.PropID:        uuid.NewString(),
			graph.PropCreatedAt: now,
		}))
		if err != nil {
			c.writeFailed(log, result, "topic", topic.Label, err)
			continue
		}
		result.TopicsUpserted++
		stored = append(stored, topic)
	}

	counts := c.matchTopics(messages, stored)

	for _, sender := range senders {
		if _, err := c.store.DeleteEdges(ctx, graph.ParticipantRef(sender), graph.RelDiscusses); err != nil {
			c.writeFailed(log, result, "clear discusses", sender, err)
		}
	}
	for _, sender := range senders {
		for _, topic := range stored {
			n := counts[sender][topic.Label]
			if n == 0 {
				continue
			}
			err := c.store.MergeEdge(ctx, graph.ParticipantRef(sender), graph.RelDiscusses, graph.TopicRef(topic.Label), map[string]interface{}{
				graph.PropCount:       n,
				graph.PropLastUpdated: now,
			})
			if err != nil {
				c.writeFailed(log, result, "discusses", sender+"->"+topic.Label, err)
				continue
			}
			result.DiscussesSet++
		}
	}
}

// extract tries the primary extractor, then the fallback. It returns nil when
// both fail or neither is configured.
func (c *Coordinator) extract(ctx context.Context, log *zap.Logger, texts []string) *topics.Extraction {
	for _, ex := range []topics.Extractor{c.primary, c.fallback} {
		if ex == nil {
			continue
		}
		extraction, err := ex.Extract(ctx, texts)
		if err == nil && extraction != nil {
			return extraction
		}
		log.Warn("Topic extraction failed", zap.Error(err))
	}
	return nil
}

// matchTopics counts, per sender and topic, the text messages whose body
// contains any of the topic's leading keywords, case-insensitively.
func (c *Coordinator) matchTopics(messages []transcript.Message, stored []topics.Topic) map[string]map[string]int {
	type matcher struct {
		label    string
		keywords []string
	}
	matchers := make([]matcher, 0, len(stored))
	for _, topic := range stored {
		m := matcher{label: topic.Label}
		for _, kw := range topic.Keywords {
			if len(m.keywords) == c.matchKeywords {
				break
			}
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				m.keywords = append(m.keywords, kw)
			}
		}
		if len(m.keywords) == 0 {
			m.keywords = []string{strings.ToLower(strings.ReplaceAll(topic.Label, "_", " "))}
		}
		matchers = append(matchers, m)
	}

	counts := make(map[string]map[string]int)
	for _, msg := range messages {
		if msg.IsMedia {
			continue
		}
		body := strings.ToLower(msg.Body)
		for _, m := range matchers {
			for _, kw := range m.keywords {
				if strings.Contains(body, kw) {
					if counts[msg.Sender] == nil {
						counts[msg.Sender] = make(map[string]int)
					}
					counts[msg.Sender][m.label]++
					break
				}
			}
		}
	}
	return counts
}
