package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "mimic-ai/backend/pkg/errors"
)

// Edge is a stored relationship.
type Edge struct {
	From  NodeRef
	Rel   Relationship
	To    NodeRef
	Props map[string]interface{}
}

// MemoryStore is an in-process Store and Reader. It backs dry runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[NodeRef]map[string]interface{}
	order []NodeRef
	edges []*Edge
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nodes: make(map[NodeRef]map[string]interface{})}
}

// UpsertNode merges props into the node. A nil value removes the property.
func (m *MemoryStore) UpsertNode(ctx context.Context, ref NodeRef, props map[string]interface{}, opts ...UpsertOption) (*Node, error) {
	if !ref.Label.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, ref.Label)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := applyUpsertOptions(opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.nodes[ref]
	if !ok {
		current = map[string]interface{}{ref.Label.KeyProperty(): ref.Key}
		mergeProps(current, o.onCreate)
		m.nodes[ref] = current
		m.order = append(m.order, ref)
	}
	mergeProps(current, props)
	current[ref.Label.KeyProperty()] = ref.Key

	return &Node{Label: ref.Label, Key: ref.Key, Props: copyProps(current)}, nil
}

// CreateEdge appends a new edge between existing nodes.
func (m *MemoryStore) CreateEdge(ctx context.Context, from NodeRef, rel Relationship, to NodeRef, props map[string]interface{}) error {
	if err := m.checkEdge(ctx, from, rel, to); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkEndpoints(from, rel, to); err != nil {
		return err
	}
	edge := &Edge{From: from, Rel: rel, To: to, Props: map[string]interface{}{}}
	mergeProps(edge.Props, props)
	m.edges = append(m.edges, edge)
	return nil
}

// MergeEdge updates the first matching edge or creates one.
func (m *MemoryStore) MergeEdge(ctx context.Context, from NodeRef, rel Relationship, to NodeRef, props map[string]interface{}) error {
	if err := m.checkEdge(ctx, from, rel, to); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkEndpoints(from, rel, to); err != nil {
		return err
	}
	for _, e := range m.edges {
		if e.From == from && e.Rel == rel && e.To == to {
			mergeProps(e.Props, props)
			return nil
		}
	}
	edge := &Edge{From: from, Rel: rel, To: to, Props: map[string]interface{}{}}
	mergeProps(edge.Props, props)
	m.edges = append(m.edges, edge)
	return nil
}

// DeleteEdges removes every outgoing rel edge of from.
func (m *MemoryStore) DeleteEdges(ctx context.Context, from NodeRef, rel Relationship) (int, error) {
	if !from.Label.Valid() || !rel.Valid() {
		return 0, fmt.Errorf("%w: (%s)-[%s]", ErrInvalidSchema, from.Label, rel)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.edges[:0]
	deleted := 0
	for _, e := range m.edges {
		if e.From == from && e.Rel == rel {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.edges = kept
	return deleted, nil
}

// RunRead is not available without a query engine.
func (m *MemoryStore) RunRead(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return nil, ErrUnsupportedQuery
}

// Reset removes everything.
func (m *MemoryStore) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = make(map[NodeRef]map[string]interface{})
	m.order = nil
	m.edges = nil
	return nil
}

func (m *MemoryStore) checkEdge(ctx context.Context, from NodeRef, rel Relationship, to NodeRef) error {
	if !from.Label.Valid() || !to.Label.Valid() || !rel.Valid() {
		return fmt.Errorf("%w: (%s)-[%s]->(%s)", ErrInvalidSchema, from.Label, rel, to.Label)
	}
	return ctx.Err()
}

// checkEndpoints must be called with the lock held.
func (m *MemoryStore) checkEndpoints(from NodeRef, rel Relationship, to NodeRef) error {
	for _, ref := range []NodeRef{from, to} {
		if _, ok := m.nodes[ref]; !ok {
			return apperrors.NewStoreWriteError(string(rel), fmt.Sprintf("%s->%s", from.Key, to.Key), ErrNodeNotFound)
		}
	}
	return nil
}

func mergeProps(dst, src map[string]interface{}) {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

// ============================================================================
// Inspection
// ============================================================================

// Node returns a copy of the node, if present.
func (m *MemoryStore) Node(ref NodeRef) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	props, ok := m.nodes[ref]
	if !ok {
		return nil, false
	}
	return &Node{Label: ref.Label, Key: ref.Key, Props: copyProps(props)}, true
}

// Nodes returns every node with the label in creation order.
func (m *MemoryStore) Nodes(label Label) []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Node
	for _, ref := range m.order {
		if ref.Label == label {
			out = append(out, &Node{Label: ref.Label, Key: ref.Key, Props: copyProps(m.nodes[ref])})
		}
	}
	return out
}

// Edges returns copies of every edge of the type in creation order.
func (m *MemoryStore) Edges(rel Relationship) []Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Edge
	for _, e := range m.edges {
		if e.Rel == rel {
			out = append(out, Edge{From: e.From, Rel: e.Rel, To: e.To, Props: copyProps(e.Props)})
		}
	}
	return out
}

// ============================================================================
// Reader
// ============================================================================

// DatabaseStats counts nodes per label and all edges.
func (m *MemoryStore) DatabaseStats(ctx context.Context) (*DatabaseStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &DatabaseStats{Relationships: int64(len(m.edges))}
	for ref := range m.nodes {
		switch ref.Label {
		case LabelParticipant:
			stats.Participants++
		case LabelStoredMessage:
			stats.Messages++
		case LabelTopic:
			stats.Topics++
		}
	}
	return stats, nil
}

// ListParticipants returns all participant names in alphabetical order.
func (m *MemoryStore) ListParticipants(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := []string{}
	for ref := range m.nodes {
		if ref.Label == LabelParticipant {
			names = append(names, ref.Key)
		}
	}
	sort.Strings(names)
	return names, nil
}

// ParticipantProfile mirrors the Neo4j profile queries.
func (m *MemoryStore) ParticipantProfile(ctx context.Context, name string) (*ParticipantProfile, error) {
	m.mu.RLock()
	props, ok := m.nodes[ParticipantRef(name)]
	if !ok {
		m.mu.RUnlock()
		return nil, apperrors.NewParticipantNotFound(name)
	}

	profile := &ParticipantProfile{
		Participant: Participant{
			Name:             name,
			MessageCount:     getInt64FromRow(props, PropMessageCount),
			AvgMessageLength: getFloat64FromRow(props, PropAvgMessageLength),
			LastUpdated:      getTimeFromRow(props, PropLastUpdated),
		},
		TopTopics: []TopicCount{},
	}
	from := ParticipantRef(name)
	for _, e := range m.edges {
		if e.From != from {
			continue
		}
		switch e.Rel {
		case RelSent:
			profile.StoredMessages++
		case RelDiscusses:
			profile.TopTopics = append(profile.TopTopics, TopicCount{
				Topic:     e.To.Key,
				Frequency: getInt64FromRow(e.Props, PropCount),
			})
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(profile.TopTopics, func(i, j int) bool {
		a, b := profile.TopTopics[i], profile.TopTopics[j]
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		return a.Topic < b.Topic
	})
	if len(profile.TopTopics) > profileTopicLimit {
		profile.TopTopics = profile.TopTopics[:profileTopicLimit]
	}

	recent, err := m.recentMessages(name, profileRecentLimit, false)
	if err != nil {
		return nil, err
	}
	profile.RecentMessages = recent
	profile.MessageSamples = samplesOf(recent)
	return profile, nil
}

// RecentMessages returns a participant's latest messages, media included.
func (m *MemoryStore) RecentMessages(ctx context.Context, name string, limit int) ([]MessageSample, error) {
	return m.recentMessages(name, limit, true)
}

func (m *MemoryStore) recentMessages(name string, limit int, includeMedia bool) ([]MessageSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type sample struct {
		MessageSample
		ordinal int64
	}
	var all []sample
	from := ParticipantRef(name)
	for _, e := range m.edges {
		if e.From != from || e.Rel != RelSent {
			continue
		}
		props := m.nodes[e.To]
		isMedia := getBoolFromRow(props, PropIsMedia)
		if isMedia && !includeMedia {
			continue
		}
		all = append(all, sample{
			MessageSample: MessageSample{
				Content:   getStringFromRow(props, PropContent),
				Timestamp: getTimeFromRow(props, PropTimestamp),
				IsMedia:   isMedia,
			},
			ordinal: getInt64FromRow(props, PropOrdinal),
		})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].Timestamp.After(all[j].Timestamp)
		}
		return all[i].ordinal > all[j].ordinal
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	out := make([]MessageSample, 0, len(all))
	for _, s := range all {
		out = append(out, s.MessageSample)
	}
	return out, nil
}

var _ interface {
	Store
	Reader
} = (*MemoryStore)(nil)

var _ interface {
	Store
	Reader
} = (*Neo4jStore)(nil)
