package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "mimic-ai/backend/pkg/errors"
	"mimic-ai/backend/pkg/logger"
)

// Neo4jStore handles all Neo4j database operations
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewNeo4jStore creates a store on an open driver. An empty database selects
// the server default.
func NewNeo4jStore(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{
		driver:   driver,
		database: database,
		logger:   logger.Named("graph"),
	}
}

// Connect opens a driver and verifies connectivity.
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	return driver, nil
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// write runs query in its own write transaction and returns the single result row.
func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]interface{}) (map[string]interface{}, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	row, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		return record.AsMap(), nil
	})
	if err != nil {
		return nil, err
	}
	return row.(map[string]interface{}), nil
}

// UpsertNode merges the node on its key and applies props with SET +=.
func (s *Neo4jStore) UpsertNode(ctx context.Context, ref NodeRef, props map[string]interface{}, opts ...UpsertOption) (*Node, error) {
	if !ref.Label.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, ref.Label)
	}
	o := applyUpsertOptions(opts)

	query := fmt.Sprintf(`
		MERGE (n:%s {%s: $key})
		ON CREATE SET n += $onCreate
		SET n += $props
		RETURN properties(n) AS props
	`, ref.Label, ref.Label.KeyProperty())

	row, err := s.write(ctx, query, map[string]interface{}{
		"key":      ref.Key,
		"props":    props,
		"onCreate": o.onCreate,
	})
	if err != nil {
		return nil, apperrors.NewStoreWriteError("upsert "+string(ref.Label), ref.Key, err)
	}

	merged, _ := row["props"].(map[string]interface{})
	return &Node{Label: ref.Label, Key: ref.Key, Props: merged}, nil
}

// CreateEdge creates a new relationship. Both endpoints must already exist.
func (s *Neo4jStore) CreateEdge(ctx context.Context, from NodeRef, rel Relationship, to NodeRef, props map[string]interface{}) error {
	return s.edge(ctx, "CREATE", from, rel, to, props)
}

// MergeEdge creates the relationship or updates the existing one.
func (s *Neo4jStore) MergeEdge(ctx context.Context, from NodeRef, rel Relationship, to NodeRef, props map[string]interface{}) error {
	return s.edge(ctx, "MERGE", from, rel, to, props)
}

func (s *Neo4jStore) edge(ctx context.Context, verb string, from NodeRef, rel Relationship, to NodeRef, props map[string]interface{}) error {
	if !from.Label.Valid() || !to.Label.Valid() || !rel.Valid() {
		return fmt.Errorf("%w: (%s)-[%s]->(%s)", ErrInvalidSchema, from.Label, rel, to.Label)
	}
	if props == nil {
		props = map[string]interface{}{}
	}

	query := fmt.Sprintf(`
		MATCH (a:%s {%s: $from})
		MATCH (b:%s {%s: $to})
		%s (a)-[r:%s]->(b)
		SET r += $props
		RETURN count(r) AS edges
	`, from.Label, from.Label.KeyProperty(), to.Label, to.Label.KeyProperty(), verb, rel)

	target := fmt.Sprintf("%s->%s", from.Key, to.Key)
	row, err := s.write(ctx, query, map[string]interface{}{
		"from":  from.Key,
		"to":    to.Key,
		"props": props,
	})
	if err != nil {
		return apperrors.NewStoreWriteError(string(rel), target, err)
	}
	if getInt64FromRow(row, "edges") == 0 {
		return apperrors.NewStoreWriteError(string(rel), target, ErrNodeNotFound)
	}
	return nil
}

// DeleteEdges removes every outgoing rel relationship of from.
func (s *Neo4jStore) DeleteEdges(ctx context.Context, from NodeRef, rel Relationship) (int, error) {
	if !from.Label.Valid() || !rel.Valid() {
		return 0, fmt.Errorf("%w: (%s)-[%s]", ErrInvalidSchema, from.Label, rel)
	}

	query := fmt.Sprintf(`
		OPTIONAL MATCH (:%s {%s: $from})-[r:%s]->()
		DELETE r
		RETURN count(r) AS deleted
	`, from.Label, from.Label.KeyProperty(), rel)

	row, err := s.write(ctx, query, map[string]interface{}{"from": from.Key})
	if err != nil {
		return 0, apperrors.NewStoreWriteError("delete "+string(rel), from.Key, err)
	}
	return int(getInt64FromRow(row, "deleted")), nil
}

// RunRead runs a read query and returns every row.
func (s *Neo4jStore) RunRead(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]interface{}, 0, len(records))
		for _, record := range records {
			out = append(out, record.AsMap())
		}
		return out, nil
	})
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed(query, err)
	}
	return rows.([]map[string]interface{}), nil
}

// Reset deletes every node and relationship.
func (s *Neo4jStore) Reset(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := "MATCH (n) DETACH DELETE n"
	result, err := session.Run(ctx, query, nil)
	if err == nil {
		_, err = result.Consume(ctx)
	}
	if err != nil {
		return apperrors.NewGraphQueryFailed(query, err)
	}
	s.logger.Warn("Cleared all graph data")
	return nil
}
