package graph

import (
	"context"
	"errors"
	"time"
)

// ============================================================================
// Schema vocabulary
// ============================================================================

// Label is a node label with a declared unique key property.
type Label string

const (
	LabelParticipant   Label = "Participant"
	LabelStoredMessage Label = "StoredMessage"
	LabelTopic         Label = "Topic"
)

// KeyProperty returns the unique key property of the label.
func (l Label) KeyProperty() string {
	if l == LabelStoredMessage {
		return PropID
	}
	return PropName
}

// Valid reports whether l is part of the schema. Labels are interpolated into
// Cypher, so only these are accepted.
func (l Label) Valid() bool {
	switch l {
	case LabelParticipant, LabelStoredMessage, LabelTopic:
		return true
	}
	return false
}

// Relationship is an edge type.
type Relationship string

const (
	RelSent      Relationship = "SENT"
	RelFollows   Relationship = "FOLLOWS"
	RelDiscusses Relationship = "DISCUSSES"
)

// Valid reports whether r is part of the schema.
func (r Relationship) Valid() bool {
	switch r {
	case RelSent, RelFollows, RelDiscusses:
		return true
	}
	return false
}

// Property names
const (
	PropName             = "name"
	PropID               = "id"
	PropMessageCount     = "message_count"
	PropAvgMessageLength = "avg_message_length"
	PropLastUpdated      = "last_updated"
	PropContent          = "content"
	PropTimestamp        = "timestamp"
	PropIsMedia          = "is_media"
	PropMediaType        = "media_type"
	PropLength           = "length"
	PropOrdinal          = "ordinal"
	PropBatchID          = "batch_id"
	PropKeywords         = "keywords"
	PropScore            = "score"
	PropExtractionMethod = "extraction_method"
	PropCreatedAt        = "created_at"
	PropCount            = "count"
)

var (
	// ErrNodeNotFound is returned when an edge endpoint does not exist
	ErrNodeNotFound = errors.New("node not found")
	// ErrInvalidSchema is returned for labels or relationships outside the schema
	ErrInvalidSchema = errors.New("label or relationship not in schema")
	// ErrUnsupportedQuery is returned by stores that cannot run Cypher
	ErrUnsupportedQuery = errors.New("raw queries not supported by this store")
)

// NodeRef identifies a node by label and unique key.
type NodeRef struct {
	Label Label
	Key   string
}

// ParticipantRef returns a reference to a Participant node.
func ParticipantRef(name string) NodeRef { return NodeRef{Label: LabelParticipant, Key: name} }

// MessageRef returns a reference to a StoredMessage node.
func MessageRef(id string) NodeRef { return NodeRef{Label: LabelStoredMessage, Key: id} }

// TopicRef returns a reference to a Topic node.
func TopicRef(name string) NodeRef { return NodeRef{Label: LabelTopic, Key: name} }

// Node is a node with its merged properties.
type Node struct {
	Label Label
	Key   string
	Props map[string]interface{}
}

// UpsertOption configures a single upsert.
type UpsertOption func(*upsertOptions)

type upsertOptions struct {
	onCreate map[string]interface{}
}

// WithCreateProps sets properties only when the node is created.
func WithCreateProps(props map[string]interface{}) UpsertOption {
	return func(o *upsertOptions) {
		o.onCreate = props
	}
}

func applyUpsertOptions(opts []UpsertOption) upsertOptions {
	o := upsertOptions{onCreate: map[string]interface{}{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.onCreate == nil {
		o.onCreate = map[string]interface{}{}
	}
	return o
}

// Store is a node/edge store with unique-key upserts. Every call is its own
// write; there is no transaction spanning calls.
type Store interface {
	// UpsertNode creates the node or merges props into it and returns the merged node.
	UpsertNode(ctx context.Context, ref NodeRef, props map[string]interface{}, opts ...UpsertOption) (*Node, error)
	// CreateEdge always creates a new edge.
	CreateEdge(ctx context.Context, from NodeRef, rel Relationship, to NodeRef, props map[string]interface{}) error
	// MergeEdge creates or updates the single edge between the endpoint pair.
	MergeEdge(ctx context.Context, from NodeRef, rel Relationship, to NodeRef, props map[string]interface{}) error
	// DeleteEdges removes every outgoing rel edge of from and returns how many were removed.
	DeleteEdges(ctx context.Context, from NodeRef, rel Relationship) (int, error)
	// RunRead runs a read-only query.
	RunRead(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error)
}

// ============================================================================
// Read models
// ============================================================================

// Participant is a chat participant with its stored aggregates.
type Participant struct {
	Name             string    `json:"name"`
	MessageCount     int64     `json:"message_count"`
	AvgMessageLength float64   `json:"avg_length"`
	LastUpdated      time.Time `json:"last_updated"`
}

// TopicCount is a topic with a participant's DISCUSSES count.
type TopicCount struct {
	Topic     string `json:"topic"`
	Frequency int64  `json:"frequency"`
}

// MessageSample is a stored message returned by context queries.
type MessageSample struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsMedia   bool      `json:"is_media"`
}

// ParticipantProfile is everything the graph knows about one participant.
type ParticipantProfile struct {
	Participant    Participant     `json:"user"`
	StoredMessages int64           `json:"total_messages"`
	TopTopics      []TopicCount    `json:"top_topics"`
	RecentMessages []MessageSample `json:"recent_messages"`
	MessageSamples []string        `json:"message_samples"`
}

// DatabaseStats holds node and relationship totals.
type DatabaseStats struct {
	Participants  int64 `json:"users"`
	Messages      int64 `json:"messages"`
	Topics        int64 `json:"topics"`
	Relationships int64 `json:"relationships"`
}

const (
	profileTopicLimit  = 10
	profileRecentLimit = 50
	profileSampleLimit = 10
)

// Reader answers the participant queries used by the API.
type Reader interface {
	DatabaseStats(ctx context.Context) (*DatabaseStats, error)
	ListParticipants(ctx context.Context) ([]string, error)
	ParticipantProfile(ctx context.Context, name string) (*ParticipantProfile, error)
	RecentMessages(ctx context.Context, name string, limit int) ([]MessageSample, error)
}

func samplesOf(recent []MessageSample) []string {
	samples := make([]string, 0, profileSampleLimit)
	for _, m := range recent {
		if len(samples) == profileSampleLimit {
			break
		}
		samples = append(samples, m.Content)
	}
	return samples
}
