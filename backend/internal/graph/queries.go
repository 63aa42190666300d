package graph

import (
	"context"

	"golang.org/x/sync/errgroup"

	apperrors "mimic-ai/backend/pkg/errors"
)

// ============================================================================
// Read Queries
// ============================================================================

const statsQuery = `
	CALL { MATCH (p:Participant) RETURN count(p) AS participants }
	CALL { MATCH (m:StoredMessage) RETURN count(m) AS messages }
	CALL { MATCH (t:Topic) RETURN count(t) AS topics }
	CALL { MATCH ()-[r]->() RETURN count(r) AS relationships }
	RETURN participants, messages, topics, relationships
`

// DatabaseStats counts nodes per label and all relationships.
func (s *Neo4jStore) DatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	rows, err := s.RunRead(ctx, statsQuery, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &DatabaseStats{}, nil
	}
	row := rows[0]
	return &DatabaseStats{
		Participants:  getInt64FromRow(row, "participants"),
		Messages:      getInt64FromRow(row, "messages"),
		Topics:        getInt64FromRow(row, "topics"),
		Relationships: getInt64FromRow(row, "relationships"),
	}, nil
}

// ListParticipants returns all participant names in alphabetical order.
func (s *Neo4jStore) ListParticipants(ctx context.Context) ([]string, error) {
	rows, err := s.RunRead(ctx, `MATCH (p:Participant) RETURN p.name AS name ORDER BY p.name`, nil)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, getStringFromRow(row, "name"))
	}
	return names, nil
}

// ParticipantProfile loads a participant's aggregates, top topics and recent
// text messages. The three reads run concurrently.
func (s *Neo4jStore) ParticipantProfile(ctx context.Context, name string) (*ParticipantProfile, error) {
	var (
		profile ParticipantProfile
		found   bool
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := s.RunRead(gctx, `
			MATCH (p:Participant {name: $name})
			OPTIONAL MATCH (p)-[:SENT]->(m:StoredMessage)
			RETURN p.name AS name,
			       p.message_count AS message_count,
			       p.avg_message_length AS avg_message_length,
			       p.last_updated AS last_updated,
			       count(m) AS stored_messages
		`, map[string]interface{}{"name": name})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		found = true
		row := rows[0]
		profile.Participant = Participant{
			Name:             getStringFromRow(row, "name"),
			MessageCount:     getInt64FromRow(row, "message_count"),
			AvgMessageLength: getFloat64FromRow(row, "avg_message_length"),
			LastUpdated:      getTimeFromRow(row, "last_updated"),
		}
		profile.StoredMessages = getInt64FromRow(row, "stored_messages")
		return nil
	})

	g.Go(func() error {
		rows, err := s.RunRead(gctx, `
			MATCH (:Participant {name: $name})-[d:DISCUSSES]->(t:Topic)
			RETURN t.name AS topic, d.count AS frequency
			ORDER BY d.count DESC, t.name
			LIMIT $limit
		`, map[string]interface{}{"name": name, "limit": profileTopicLimit})
		if err != nil {
			return err
		}
		profile.TopTopics = make([]TopicCount, 0, len(rows))
		for _, row := range rows {
			profile.TopTopics = append(profile.TopTopics, TopicCount{
				Topic:     getStringFromRow(row, "topic"),
				Frequency: getInt64FromRow(row, "frequency"),
			})
		}
		return nil
	})

	g.Go(func() error {
		recent, err := s.recentMessages(gctx, name, profileRecentLimit, false)
		if err != nil {
			return err
		}
		profile.RecentMessages = recent
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewParticipantNotFound(name)
	}
	profile.MessageSamples = samplesOf(profile.RecentMessages)
	return &profile, nil
}

// RecentMessages returns a participant's latest messages, media included.
func (s *Neo4jStore) RecentMessages(ctx context.Context, name string, limit int) ([]MessageSample, error) {
	return s.recentMessages(ctx, name, limit, true)
}

func (s *Neo4jStore) recentMessages(ctx context.Context, name string, limit int, includeMedia bool) ([]MessageSample, error) {
	rows, err := s.RunRead(ctx, `
		MATCH (:Participant {name: $name})-[:SENT]->(m:StoredMessage)
		WHERE $includeMedia OR NOT m.is_media
		RETURN m.content AS content, m.timestamp AS timestamp, m.is_media AS is_media
		ORDER BY m.timestamp DESC, m.ordinal DESC
		LIMIT $limit
	`, map[string]interface{}{"name": name, "limit": limit, "includeMedia": includeMedia})
	if err != nil {
		return nil, err
	}

	out := make([]MessageSample, 0, len(rows))
	for _, row := range rows {
		out = append(out, MessageSample{
			Content:   getStringFromRow(row, "content"),
			Timestamp: getTimeFromRow(row, "timestamp"),
			IsMedia:   getBoolFromRow(row, "is_media"),
		})
	}
	return out, nil
}
