package graph

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests require a running Neo4j instance. Set NEO4J_URI, NEO4J_USER and
// NEO4J_PASSWORD; they are skipped otherwise. The database is wiped.
func newTestNeo4jStore(t *testing.T) *Neo4jStore {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}
	user := os.Getenv("NEO4J_USER")
	if user == "" {
		user = "neo4j"
	}

	ctx := context.Background()
	driver, err := Connect(ctx, uri, user, os.Getenv("NEO4J_PASSWORD"))
	require.NoError(t, err)

	store := NewNeo4jStore(driver, os.Getenv("NEO4J_DATABASE"))
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.Reset(ctx))
	t.Cleanup(func() {
		_ = store.Reset(ctx)
		_ = store.Close(ctx)
	})
	return store
}

func TestNeo4jStore_UpsertMergesProperties(t *testing.T) {
	store := newTestNeo4jStore(t)
	ctx := context.Background()

	_, err := store.UpsertNode(ctx, TopicRef("travel"),
		map[string]interface{}{PropScore: 0.5},
		WithCreateProps(map[string]interface{}{PropID: "topic-1"}))
	require.NoError(t, err)

	node, err := store.UpsertNode(ctx, TopicRef("travel"),
		map[string]interface{}{PropScore: 0.9},
		WithCreateProps(map[string]interface{}{PropID: "topic-2"}))
	require.NoError(t, err)

	assert.Equal(t, "topic-1", node.Props[PropID])
	assert.Equal(t, 0.9, node.Props[PropScore])

	stats, err := store.DatabaseStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Topics)
}

func TestNeo4jStore_EdgesAndProfile(t *testing.T) {
	store := newTestNeo4jStore(t)
	ctx := context.Background()
	ts := time.Date(2022, 7, 21, 5, 11, 12, 0, time.UTC)

	_, err := store.UpsertNode(ctx, ParticipantRef("Alice"), map[string]interface{}{
		PropMessageCount: 2, PropAvgMessageLength: 3.5, PropLastUpdated: ts,
	})
	require.NoError(t, err)
	for i, id := range []string{"m1", "m2"} {
		_, err := store.UpsertNode(ctx, MessageRef(id), map[string]interface{}{
			PropContent: id, PropTimestamp: ts.Add(time.Duration(i) * time.Minute), PropIsMedia: false, PropOrdinal: i,
		})
		require.NoError(t, err)
		require.NoError(t, store.CreateEdge(ctx, ParticipantRef("Alice"), RelSent, MessageRef(id), nil))
	}
	require.NoError(t, store.CreateEdge(ctx, MessageRef("m2"), RelFollows, MessageRef("m1"), nil))

	_, err = store.UpsertNode(ctx, TopicRef("travel"), nil)
	require.NoError(t, err)
	require.NoError(t, store.MergeEdge(ctx, ParticipantRef("Alice"), RelDiscusses, TopicRef("travel"), map[string]interface{}{PropCount: 1}))
	require.NoError(t, store.MergeEdge(ctx, ParticipantRef("Alice"), RelDiscusses, TopicRef("travel"), map[string]interface{}{PropCount: 4}))

	profile, err := store.ParticipantProfile(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), profile.StoredMessages)
	require.Len(t, profile.TopTopics, 1)
	assert.Equal(t, int64(4), profile.TopTopics[0].Frequency)
	require.Len(t, profile.RecentMessages, 2)
	assert.Equal(t, "m2", profile.RecentMessages[0].Content)

	deleted, err := store.DeleteEdges(ctx, ParticipantRef("Alice"), RelDiscusses)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	err = store.CreateEdge(ctx, ParticipantRef("Nobody"), RelSent, MessageRef("m1"), nil)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}
