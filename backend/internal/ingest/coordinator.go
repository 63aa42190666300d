// Package ingest writes assembled transcript messages into the graph.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mimic-ai/backend/internal/graph"
	"mimic-ai/backend/internal/metrics"
	"mimic-ai/backend/internal/topics"
	"mimic-ai/backend/internal/transcript"
	apperrors "mimic-ai/backend/pkg/errors"
	"mimic-ai/backend/pkg/logger"
)

const (
	DefaultMinTopicMessages = 5
	DefaultMatchKeywords    = 3
	DefaultMaxTopics        = 10

	// MethodNone marks a topic step where every extractor failed.
	MethodNone = "none"
)

// Result summarizes one ingestion call.
type Result struct {
	BatchID             string `json:"batch_id"`
	ParticipantsTouched int    `json:"participants_touched"`
	MessagesCreated     int    `json:"messages_created"`
	FollowsCreated      int    `json:"follows_created"`
	TopicsUpserted      int    `json:"topics_upserted"`
	DiscussesSet        int    `json:"discusses_set"`
	WriteFailures       int    `json:"write_failures"`
	// TopicMethod is empty when the topic step was skipped.
	TopicMethod string `json:"topic_method,omitempty"`

	Summary *transcript.Summary     `json:"summary,omitempty"`
	Report  *transcript.ParseReport `json:"parse_report,omitempty"`
}

// Coordinator runs the ingestion protocol against a Store. It is not safe to
// run two ingestions of the same conversation concurrently.
type Coordinator struct {
	store            graph.Store
	parser           *transcript.Parser
	primary          topics.Extractor
	fallback         topics.Extractor
	minTopicMessages int
	matchKeywords    int
	now              func() time.Time
	newBatchID       func() string
	logger           *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithExtractors sets the primary and fallback topic extractors. Either may be nil.
func WithExtractors(primary, fallback topics.Extractor) Option {
	return func(c *Coordinator) {
		c.primary = primary
		c.fallback = fallback
	}
}

// WithMinTopicMessages sets how many text messages a batch needs before topics are extracted.
func WithMinTopicMessages(n int) Option {
	return func(c *Coordinator) { c.minTopicMessages = n }
}

// WithMatchKeywords sets how many leading keywords of a topic are matched against bodies.
func WithMatchKeywords(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.matchKeywords = n
		}
	}
}

// WithParser replaces the default UTC parser.
func WithParser(p *transcript.Parser) Option {
	return func(c *Coordinator) { c.parser = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithBatchIDs replaces the random per-call batch token.
func WithBatchIDs(next func() string) Option {
	return func(c *Coordinator) { c.newBatchID = next }
}

// NewCoordinator creates a coordinator. Without WithExtractors it extracts
// topics by word frequency only.
func NewCoordinator(store graph.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:            store,
		fallback:         topics.NewFrequencyExtractor(DefaultMaxTopics),
		minTopicMessages: DefaultMinTopicMessages,
		matchKeywords:    DefaultMatchKeywords,
		now:              func() time.Time { return time.Now().UTC() },
		newBatchID:       func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:12] },
		logger:           logger.Named("ingest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.parser == nil {
		c.parser = transcript.NewParser(time.UTC)
	}
	return c
}

// ParseAndIngest parses raw transcript text and ingests the messages. It
// fails with EmptyBatchError when no message survives parsing, and without
// writing anything when the text cannot be read to the end.
func (c *Coordinator) ParseAndIngest(ctx context.Context, raw string) (*Result, error) {
	messages, report, err := c.parser.ParseReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, apperrors.NewEmptyBatchError(report.Lines)
	}

	result, err := c.Ingest(ctx, messages)
	if result != nil {
		summary := transcript.Summarize(messages)
		result.Summary = &summary
		result.Report = &report
	}
	return result, err
}

// Ingest writes messages in their given order. Individual write failures are
// logged and counted, never returned; the error is non-nil only when ctx ends.
func (c *Coordinator) Ingest(ctx context.Context, messages []transcript.Message) (*Result, error) {
	if len(messages) == 0 {
		return nil, apperrors.NewEmptyBatchError(0)
	}

	now := c.now()
	start := time.Now()
	defer func() { metrics.IngestDuration.Observe(time.Since(start).Seconds()) }()
	result := &Result{BatchID: c.newBatchID()}
	log := c.logger.With(zap.String("batch_id", result.BatchID))

	senders, bySender := partition(messages)

	// Participants
	for _, sender := range senders {
		idx := bySender[sender]
		total := 0
		for _, i := range idx {
			total += messages[i].Length()
		}
		_, err := c.store.UpsertNode(ctx, graph.ParticipantRef(sender), map[string]interface{}{
			graph.PropMessageCount:     len(idx),
			graph.PropAvgMessageLength: float64(total) / float64(len(idx)),
			graph.PropLastUpdated:      now,
		})
		if err != nil {
			c.writeFailed(log, result, "participant", sender, err)
			continue
		}
		result.ParticipantsTouched++
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	// Messages, SENT and FOLLOWS
	prev := ""
	for i, msg := range messages {
		id := fmt.Sprintf("msg_%d_%d_%s", now.UnixNano(), i, result.BatchID)

		var mediaType interface{}
		if msg.IsMedia {
			mediaType = string(msg.MediaKind)
		}
		_, err := c.store.UpsertNode(ctx, graph.MessageRef(id), map[string]interface{}{
			graph.PropContent:   msg.Body,
			graph.PropTimestamp: msg.Timestamp,
			graph.PropIsMedia:   msg.IsMedia,
			graph.PropMediaType: mediaType,
			graph.PropLength:    msg.Length(),
			graph.PropOrdinal:   i,
			graph.PropBatchID:   result.BatchID,
		})
		if err != nil {
			c.writeFailed(log, result, "message", id, err)
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			continue
		}
		result.MessagesCreated++
		metrics.MessagesStored.Inc()

		if err := c.store.CreateEdge(ctx, graph.ParticipantRef(msg.Sender), graph.RelSent, graph.MessageRef(id), nil); err != nil {
			c.writeFailed(log, result, "sent", id, err)
		}
		if prev != "" {
			if err := c.store.CreateEdge(ctx, graph.MessageRef(id), graph.RelFollows, graph.MessageRef(prev), nil); err != nil {
				c.writeFailed(log, result, "follows", id, err)
			} else {
				result.FollowsCreated++
			}
		}
		prev = id
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if result.MessagesCreated > 0 {
		metrics.BatchesIngested.Inc()
	}
	c.topicStep(ctx, log, messages, senders, now, result)

	log.Info("Ingestion complete",
		zap.Int("participants", result.ParticipantsTouched),
		zap.Int("messages", result.MessagesCreated),
		zap.Int("follows", result.FollowsCreated),
		zap.Int("topics", result.TopicsUpserted),
		zap.Int("discusses", result.DiscussesSet),
		zap.Int("write_failures", result.WriteFailures),
		zap.String("topic_method", result.TopicMethod),
	)
	return result, ctx.Err()
}

func (c *Coordinator) writeFailed(log *zap.Logger, result *Result, kind, target string, err error) {
	result.WriteFailures++
	metrics.WriteFailures.WithLabelValues(kind).Inc()
	log.Warn("Graph write failed, skipping",
		zap.String("kind", kind),
		zap.String("target", target),
		zap.Error(err),
	)
}

// partition groups message indexes by sender, keeping first-appearance order
// of senders and original order within each group.
func partition(messages []transcript.Message) ([]string, map[string][]int) {
	var senders []string
	bySender := make(map[string][]int)
	for i, msg := range messages {
		if _, ok := bySender[msg.Sender]; !ok {
			senders = append(senders, msg.Sender)
		}
		bySender[msg.Sender] = append(bySender[msg.Sender], i)
	}
	return senders, bySender
}
