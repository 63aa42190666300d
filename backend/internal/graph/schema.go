package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "mimic-ai/backend/pkg/errors"
)

var schemaStatements = []string{
	"CREATE CONSTRAINT participant_name IF NOT EXISTS FOR (p:Participant) REQUIRE p.name IS UNIQUE",
	"CREATE CONSTRAINT stored_message_id IF NOT EXISTS FOR (m:StoredMessage) REQUIRE m.id IS UNIQUE",
	"CREATE CONSTRAINT topic_name IF NOT EXISTS FOR (t:Topic) REQUIRE t.name IS UNIQUE",
	"CREATE INDEX stored_message_timestamp IF NOT EXISTS FOR (m:StoredMessage) ON (m.timestamp)",
}

// EnsureSchema creates the unique-key constraints and the message timestamp
// index. It is safe to call on every start.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		result, err := session.Run(ctx, stmt, nil)
		if err == nil {
			_, err = result.Consume(ctx)
		}
		if err != nil {
			return apperrors.NewGraphQueryFailed(stmt, err)
		}
	}

	s.logger.Info("Graph schema ready", zap.Int("statements", len(schemaStatements)))
	return nil
}
