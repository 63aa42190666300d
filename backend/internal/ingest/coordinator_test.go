package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimic-ai/backend/internal/graph"
	"mimic-ai/backend/internal/topics"
	"mimic-ai/backend/internal/transcript"
	apperrors "mimic-ai/backend/pkg/errors"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type stubExtractor struct {
	extraction *topics.Extraction
	err        error
	calls      int
	texts      []string
}

func (s *stubExtractor) Extract(ctx context.Context, texts []string) (*topics.Extraction, error) {
	s.calls++
	s.texts = texts
	if s.err != nil {
		return nil, s.err
	}
	return s.extraction, nil
}

func extractorWith(method string, ts ...topics.Topic) *stubExtractor {
	return &stubExtractor{extraction: &topics.Extraction{Topics: ts, Method: method}}
}

// failingStore fails selected writes and delegates the rest.
type failingStore struct {
	*graph.MemoryStore
	failUpsert func(ref graph.NodeRef, props map[string]interface{}) bool
}

func (f *failingStore) UpsertNode(ctx context.Context, ref graph.NodeRef, props map[string]interface{}, opts ...graph.UpsertOption) (*graph.Node, error) {
	if f.failUpsert != nil && f.failUpsert(ref, props) {
		return nil, apperrors.NewStoreWriteError("upsert", ref.Key, errors.New("connection reset"))
	}
	return f.MemoryStore.UpsertNode(ctx, ref, props, opts...)
}

func newTestCoordinator(store graph.Store, opts ...Option) *Coordinator {
	batch := 0
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithBatchIDs(func() string {
			batch++
			return fmt.Sprintf("b%d", batch)
		}),
	}
	return NewCoordinator(store, append(base, opts...)...)
}

func msg(sender, body string, minute int) transcript.Message {
	return transcript.Message{
		Timestamp: time.Date(2022, 7, 21, 5, minute, 0, 0, time.UTC),
		Sender:    sender,
		Body:      body,
	}
}

func media(sender string, minute int) transcript.Message {
	m := msg(sender, "image omitted", minute)
	m.IsMedia = true
	m.MediaKind = transcript.MediaImage
	return m
}

func TestParseAndIngest_EndToEndScenario(t *testing.T) {
	store := graph.NewMemoryStore()
	c := newTestCoordinator(store)

	result, err := c.ParseAndIngest(context.Background(),
		"[2022/7/21 05:11:12] Alice: Hi\n[2022/7/21 05:21:28] Bob: hello\n  still talking")

	require.NoError(t, err)
	assert.Equal(t, 2, result.ParticipantsTouched)
	assert.Equal(t, 2, result.MessagesCreated)
	assert.Equal(t, 1, result.FollowsCreated)
	assert.Equal(t, 0, result.WriteFailures)
	assert.Empty(t, result.TopicMethod)
	require.NotNil(t, result.Summary)
	assert.Equal(t, 2, result.Summary.UniqueSenders)

	assert.Len(t, store.Nodes(graph.LabelParticipant), 2)
	messages := store.Nodes(graph.LabelStoredMessage)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello\n  still talking", messages[1].Props[graph.PropContent])
	assert.Equal(t, false, messages[1].Props[graph.PropIsMedia])

	follows := store.Edges(graph.RelFollows)
	require.Len(t, follows, 1)
	assert.Equal(t, messages[1].Key, follows[0].From.Key)
	assert.Equal(t, messages[0].Key, follows[0].To.Key)

	sent := store.Edges(graph.RelSent)
	require.Len(t, sent, 2)
	assert.Equal(t, graph.ParticipantRef("Alice"), sent[0].From)
	assert.Equal(t, graph.ParticipantRef("Bob"), sent[1].From)

	alice, ok := store.Node(graph.ParticipantRef("Alice"))
	require.True(t, ok)
	assert.Equal(t, 1, alice.Props[graph.PropMessageCount])
	assert.Equal(t, 2.0, alice.Props[graph.PropAvgMessageLength])
	assert.Equal(t, fixedNow, alice.Props[graph.PropLastUpdated])
}

func TestParseAndIngest_EmptyBatch(t *testing.T) {
	store := graph.NewMemoryStore()

	_, err := newTestCoordinator(store).ParseAndIngest(context.Background(),
		"[2022/7/21 05:11:12] Group: \u200eMessages and calls are end-to-end encrypted.\nnoise\n")

	var empty *apperrors.EmptyBatchError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, 2, empty.Lines)
	assert.Empty(t, store.Nodes(graph.LabelParticipant))
}

func TestIngest_MessageIDsAreUniqueAndOrdered(t *testing.T) {
	store := graph.NewMemoryStore()
	msgs := []transcript.Message{msg("Alice", "one", 1), msg("Bob", "two", 0), msg("Alice", "three", 2)}

	_, err := newTestCoordinator(store).Ingest(context.Background(), msgs)
	require.NoError(t, err)

	nodes := store.Nodes(graph.LabelStoredMessage)
	require.Len(t, nodes, 3)
	for i, n := range nodes {
		assert.Equal(t, fmt.Sprintf("msg_%d_%d_b1", fixedNow.UnixNano(), i), n.Key)
		assert.Equal(t, i, n.Props[graph.PropOrdinal])
		assert.Equal(t, "b1", n.Props[graph.PropBatchID])
	}
}

func TestIngest_FollowsIgnoresSender(t *testing.T) {
	store := graph.NewMemoryStore()
	msgs := []transcript.Message{msg("Alice", "a", 0), msg("Alice", "b", 1), msg("Bob", "c", 2), msg("Alice", "d", 3)}

	result, err := newTestCoordinator(store).Ingest(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, 3, result.FollowsCreated)

	nodes := store.Nodes(graph.LabelStoredMessage)
	follows := store.Edges(graph.RelFollows)
	require.Len(t, follows, 3)
	for i, e := range follows {
		assert.Equal(t, nodes[i+1].Key, e.From.Key)
		assert.Equal(t, nodes[i].Key, e.To.Key)
	}
}

func TestIngest_ReingestTwiceKeepsAggregatesAndAddsChain(t *testing.T) {
	store := graph.NewMemoryStore()
	c := newTestCoordinator(store)
	msgs := []transcript.Message{msg("Alice", "hello there", 0), msg("Bob", "hi", 1), msg("Alice", "how are you", 2)}

	_, err := c.Ingest(context.Background(), msgs)
	require.NoError(t, err)
	first, _ := store.Node(graph.ParticipantRef("Alice"))

	_, err = c.Ingest(context.Background(), msgs)
	require.NoError(t, err)
	second, _ := store.Node(graph.ParticipantRef("Alice"))

	assert.Equal(t, first.Props[graph.PropMessageCount], second.Props[graph.PropMessageCount])
	assert.Equal(t, first.Props[graph.PropAvgMessageLength], second.Props[graph.PropAvgMessageLength])
	assert.Equal(t, 2, second.Props[graph.PropMessageCount])

	assert.Len(t, store.Nodes(graph.LabelParticipant), 2)
	assert.Len(t, store.Nodes(graph.LabelStoredMessage), 6)
	assert.Len(t, store.Edges(graph.RelSent), 6)

	// two independent chains: no FOLLOWS edge crosses batches
	follows := store.Edges(graph.RelFollows)
	require.Len(t, follows, 4)
	for _, e := range follows {
		from, _ := store.Node(e.From)
		to, _ := store.Node(e.To)
		assert.Equal(t, from.Props[graph.PropBatchID], to.Props[graph.PropBatchID])
	}
}

func TestIngest_MediaCountedButNotMatched(t *testing.T) {
	store := graph.NewMemoryStore()
	extractor := extractorWith("stub", topics.Topic{Label: "pictures", Keywords: []string{"image"}, Score: 0.5})
	c := newTestCoordinator(store, WithExtractors(extractor, nil))

	msgs := []transcript.Message{
		msg("Alice", "morning", 0),
		msg("Alice", "look at this", 1),
		media("Alice", 2),
		msg("Alice", "nice right", 3),
		msg("Bob", "wow", 4),
		msg("Bob", "that image is great", 5),
	}

	result, err := c.Ingest(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, 1, extractor.calls)
	assert.Len(t, extractor.texts, 5)
	assert.NotContains(t, extractor.texts, "image omitted")

	alice, _ := store.Node(graph.ParticipantRef("Alice"))
	assert.Equal(t, 4, alice.Props[graph.PropMessageCount])

	mediaNode := store.Nodes(graph.LabelStoredMessage)[2]
	assert.Equal(t, true, mediaNode.Props[graph.PropIsMedia])
	assert.Equal(t, "image", mediaNode.Props[graph.PropMediaType])
	_, hasType := store.Nodes(graph.LabelStoredMessage)[0].Props[graph.PropMediaType]
	assert.False(t, hasType)

	discusses := store.Edges(graph.RelDiscusses)
	require.Len(t, discusses, 1)
	assert.Equal(t, graph.ParticipantRef("Bob"), discusses[0].From)
	assert.Equal(t, 1, discusses[0].Props[graph.PropCount])
	assert.Equal(t, 1, result.DiscussesSet)
	assert.Equal(t, 5, result.FollowsCreated)
}

func TestIngest_TopicStepSkippedBelowMinimum(t *testing.T) {
	store := graph.NewMemoryStore()
	extractor := extractorWith("stub", topics.Topic{Label: "greetings", Keywords: []string{"hi"}})
	c := newTestCoordinator(store, WithExtractors(extractor, nil))

	msgs := []transcript.Message{msg("Alice", "hi", 0), msg("Bob", "hi", 1), msg("Alice", "hi", 2), msg("Bob", "hi", 3), media("Alice", 4)}

	result, err := c.Ingest(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, 0, extractor.calls)
	assert.Empty(t, result.TopicMethod)
	assert.Empty(t, store.Nodes(graph.LabelTopic))
}

func TestIngest_FallbackExtractor(t *testing.T) {
	store := graph.NewMemoryStore()
	primary := &stubExtractor{err: apperrors.NewExtractorError(topics.MethodLLM, errors.New("timeout"))}
	fallback := extractorWith(topics.MethodFrequency, topics.Topic{Label: "hotel", Keywords: []string{"hotel"}, Score: 0.6})
	c := newTestCoordinator(store, WithExtractors(primary, fallback), WithMinTopicMessages(2))

	result, err := c.Ingest(context.Background(), []transcript.Message{msg("Alice", "the Hotel is nice", 0), msg("Bob", "which hotel?", 1)})
	require.NoError(t, err)

	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, topics.MethodFrequency, result.TopicMethod)
	assert.Equal(t, 1, result.TopicsUpserted)
	assert.Equal(t, 2, result.DiscussesSet)

	topic, ok := store.Node(graph.TopicRef("hotel"))
	require.True(t, ok)
	assert.Equal(t, topics.MethodFrequency, topic.Props[graph.PropExtractionMethod])
	assert.NotEmpty(t, topic.Props[graph.PropID])
}

func TestIngest_AllExtractorsFailKeepsExistingEdges(t *testing.T) {
	store := graph.NewMemoryStore()
	ctx := context.Background()
	msgs := []transcript.Message{msg("Alice", "hotel time", 0), msg("Bob", "hotel again", 1)}

	good := extractorWith("stub", topics.Topic{Label: "hotel", Keywords: []string{"hotel"}})
	_, err := newTestCoordinator(store, WithExtractors(good, nil), WithMinTopicMessages(2)).Ingest(ctx, msgs)
	require.NoError(t, err)
	require.Len(t, store.Edges(graph.RelDiscusses), 2)

	bad := &stubExtractor{err: errors.New("down")}
	result, err := newTestCoordinator(store, WithExtractors(bad, bad), WithMinTopicMessages(2)).Ingest(ctx, msgs)
	require.NoError(t, err)

	assert.Equal(t, MethodNone, result.TopicMethod)
	assert.Equal(t, 2, bad.calls)
	assert.Len(t, store.Edges(graph.RelDiscusses), 2)
}

func TestIngest_DiscussesCountIsSetNotIncremented(t *testing.T) {
	store := graph.NewMemoryStore()
	extractor := extractorWith("stub", topics.Topic{Label: "flights", Keywords: []string{"flight"}})
	c := newTestCoordinator(store, WithExtractors(extractor, nil), WithMinTopicMessages(1))
	msgs := []transcript.Message{msg("Alice", "my flight", 0), msg("Alice", "FLIGHT delayed", 1), msg("Alice", "lunch", 2)}

	for i := 0; i < 3; i++ {
		_, err := c.Ingest(context.Background(), msgs)
		require.NoError(t, err)
	}

	discusses := store.Edges(graph.RelDiscusses)
	require.Len(t, discusses, 1)
	assert.Equal(t, 2, discusses[0].Props[graph.PropCount])
}

func TestIngest_DiscussesReplacedWholesale(t *testing.T) {
	store := graph.NewMemoryStore()
	ctx := context.Background()

	first := extractorWith("stub", topics.Topic{Label: "hotel", Keywords: []string{"hotel"}})
	_, err := newTestCoordinator(store, WithExtractors(first, nil), WithMinTopicMessages(1)).
		Ingest(ctx, []transcript.Message{msg("Alice", "hotel", 0)})
	require.NoError(t, err)

	second := extractorWith("stub", topics.Topic{Label: "food", Keywords: []string{"noodles"}})
	_, err = newTestCoordinator(store, WithExtractors(second, nil), WithMinTopicMessages(1)).
		Ingest(ctx, []transcript.Message{msg("Alice", "noodles", 0)})
	require.NoError(t, err)

	discusses := store.Edges(graph.RelDiscusses)
	require.Len(t, discusses, 1)
	assert.Equal(t, graph.TopicRef("food"), discusses[0].To)
	assert.Len(t, store.Nodes(graph.LabelTopic), 2, "topics persist")
}

func TestIngest_OnlyLeadingKeywordsMatch(t *testing.T) {
	store := graph.NewMemoryStore()
	extractor := extractorWith("stub",
		topics.Topic{Label: "travel", Keywords: []string{"flight", "hotel", "airport", "passport"}},
		topics.Topic{Label: "visa_paperwork", Keywords: nil},
	)
	c := newTestCoordinator(store, WithExtractors(extractor, nil), WithMinTopicMessages(1))

	_, err := c.Ingest(context.Background(), []transcript.Message{
		msg("Alice", "lost my passport", 0),
		msg("Bob", "Visa Paperwork is done", 1),
	})
	require.NoError(t, err)

	discusses := store.Edges(graph.RelDiscusses)
	require.Len(t, discusses, 1)
	assert.Equal(t, graph.ParticipantRef("Bob"), discusses[0].From)
	assert.Equal(t, graph.TopicRef("visa_paperwork"), discusses[0].To)
}

func TestIngest_SentinelTopicsSkipped(t *testing.T) {
	store := graph.NewMemoryStore()
	extractor := extractorWith("stub",
		topics.Topic{Label: "-1", Keywords: []string{"the"}},
		topics.Topic{Label: "Outliers", Keywords: []string{"a"}},
		topics.Topic{Label: "no_topic"},
		topics.Topic{Label: ""},
	)
	c := newTestCoordinator(store, WithExtractors(extractor, nil), WithMinTopicMessages(1))

	result, err := c.Ingest(context.Background(), []transcript.Message{msg("Alice", "the a", 0)})
	require.NoError(t, err)

	assert.Equal(t, "stub", result.TopicMethod)
	assert.Equal(t, 0, result.TopicsUpserted)
	assert.Empty(t, store.Nodes(graph.LabelTopic))
	assert.Empty(t, store.Edges(graph.RelDiscusses))
}

func TestIngest_WriteFailuresAreSkipped(t *testing.T) {
	store := &failingStore{
		MemoryStore: graph.NewMemoryStore(),
		failUpsert: func(ref graph.NodeRef, props map[string]interface{}) bool {
			return ref.Label == graph.LabelStoredMessage && strings.Contains(ref.Key, "_1_")
		},
	}
	msgs := []transcript.Message{msg("Alice", "one", 0), msg("Bob", "two", 1), msg("Alice", "three", 2)}

	result, err := newTestCoordinator(store).Ingest(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, 1, result.WriteFailures)
	assert.Equal(t, 2, result.MessagesCreated)
	assert.Equal(t, 1, result.FollowsCreated)

	nodes := store.Nodes(graph.LabelStoredMessage)
	require.Len(t, nodes, 2)
	follows := store.Edges(graph.RelFollows)
	require.Len(t, follows, 1)
	assert.Equal(t, nodes[1].Key, follows[0].From.Key)
	assert.Equal(t, nodes[0].Key, follows[0].To.Key)
}

func TestIngest_ParticipantFailureSkipsItsEdges(t *testing.T) {
	store := &failingStore{
		MemoryStore: graph.NewMemoryStore(),
		failUpsert: func(ref graph.NodeRef, props map[string]interface{}) bool {
			return ref == graph.ParticipantRef("Bob")
		},
	}
	msgs := []transcript.Message{msg("Alice", "one", 0), msg("Bob", "two", 1)}

	result, err := newTestCoordinator(store).Ingest(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ParticipantsTouched)
	assert.Equal(t, 2, result.MessagesCreated)
	assert.Equal(t, 2, result.WriteFailures, "participant upsert and its SENT edge")
	assert.Len(t, store.Edges(graph.RelSent), 1)
	assert.Equal(t, 1, result.FollowsCreated)
}

func TestIngest_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestCoordinator(graph.NewMemoryStore()).Ingest(ctx, []transcript.Message{msg("Alice", "one", 0)})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.MessagesCreated)
}

func TestIngest_DefaultFrequencyFallback(t *testing.T) {
	store := graph.NewMemoryStore()
	c := newTestCoordinator(store)

	msgs := []transcript.Message{
		msg("Alice", "the hotel quarantine starts", 0),
		msg("Bob", "hotel quarantine is strict", 1),
		msg("Alice", "quarantine food at the hotel", 2),
		msg("Bob", "when is your flight", 3),
		msg("Alice", "flight is on monday", 4),
	}
	result, err := c.Ingest(context.Background(), msgs)
	require.NoError(t, err)

	assert.Equal(t, topics.MethodFrequency, result.TopicMethod)
	_, ok := store.Node(graph.TopicRef("hotel_quarantine"))
	assert.True(t, ok)
	assert.Greater(t, result.DiscussesSet, 0)
}

func TestIngest_DuplicateTopicLabelsCountOnce(t *testing.T) {
	store := graph.NewMemoryStore()
	extractor := extractorWith("stub",
		topics.Topic{Label: "food", Keywords: []string{"pizza"}, Score: 0.9},
		topics.Topic{Label: "food", Keywords: []string{"burger"}, Score: 0.4},
	)
	c := newTestCoordinator(store, WithExtractors(extractor, nil), WithMinTopicMessages(1))

	result, err := c.Ingest(context.Background(), []transcript.Message{msg("Alice", "pizza and burger", 0)})
	require.NoError(t, err)

	assert.Equal(t, 1, result.TopicsUpserted)
	discusses := store.Edges(graph.RelDiscusses)
	require.Len(t, discusses, 1)
	assert.Equal(t, 1, discusses[0].Props[graph.PropCount])

	topic, ok := store.Node(graph.TopicRef("food"))
	require.True(t, ok)
	assert.Equal(t, []string{"pizza"}, topic.Props[graph.PropKeywords])
}

func TestParseAndIngest_VeryLongLine(t *testing.T) {
	store := graph.NewMemoryStore()
	raw := "[2022/7/21 05:11:12] Alice: " + strings.Repeat("x", 2<<20) + "\n" +
		"[2022/7/21 05:12:00] Bob: two\n" +
		"[2022/7/21 05:13:00] Alice: three\n"

	result, err := newTestCoordinator(store).ParseAndIngest(context.Background(), raw)

	require.NoError(t, err)
	assert.Equal(t, 3, result.MessagesCreated)
	assert.Equal(t, 3, result.Report.Lines)
}
