package transcript

import (
	"strings"
	"time"

	apperrors "mimic-ai/backend/pkg/errors"
)

// LineKind is the outcome of classifying one transcript line.
type LineKind int

const (
	// KindContinuation lines extend the open message (or are dropped if none is open)
	KindContinuation LineKind = iota
	// KindHeader lines open a new message
	KindHeader
	// KindSystem lines are group notices and are dropped
	KindSystem
	// KindEmpty lines had a header but nothing left after stripping markers
	KindEmpty
)

func (k LineKind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindSystem:
		return "system"
	case KindEmpty:
		return "empty"
	default:
		return "continuation"
	}
}

// Header is a parsed message header line.
type Header struct {
	Grammar    string
	DateToken  string
	TimeToken  string
	Sender     string
	Remainder  string
	Timestamp  time.Time
	DateLayout string
	TimeLayout string
	IsMedia    bool
	MediaKind  MediaKind
}

// Classification is the per-line result. Expected noise is reported through
// Kind and Reason, never as an error return.
type Classification struct {
	Kind   LineKind
	Header *Header
	// Reason explains a continuation: a FormatError when no grammar matched,
	// or the TimestampError of the last grammar that matched but failed.
	Reason error
}

// Classifier decides whether a line opens a new message.
type Classifier struct {
	grammars []headerGrammar
	resolver *TimestampResolver
}

// NewClassifier creates a classifier resolving timestamps in loc.
func NewClassifier(loc *time.Location) *Classifier {
	return &Classifier{
		grammars: headerGrammars,
		resolver: NewTimestampResolver(loc),
	}
}

// Classify tries every header grammar in priority order.
func (c *Classifier) Classify(line string) Classification {
	trimmed := strings.TrimSpace(line)
	var reason error = apperrors.NewFormatError(line)

	for _, g := range c.grammars {
		m := g.pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		dateToken, timeToken := m[1], m[2]
		sender := strings.TrimSpace(stripInvisible(m[3]))
		if sender == "" {
			continue
		}

		remainder := strings.TrimSpace(stripInvisible(strings.TrimSpace(m[4])))
		if isSystemNotice(remainder) || isSystemNotice(sender) {
			return Classification{Kind: KindSystem}
		}

		res, err := c.resolver.Resolve(dateToken, timeToken)
		if err != nil {
			reason = apperrors.NewTimestampError(g.name, dateToken, timeToken)
			continue
		}

		if remainder == "" {
			return Classification{Kind: KindEmpty}
		}

		h := &Header{
			Grammar:    g.name,
			DateToken:  dateToken,
			TimeToken:  timeToken,
			Sender:     sender,
			Remainder:  remainder,
			Timestamp:  res.Time,
			DateLayout: res.DateLayout,
			TimeLayout: res.TimeLayout,
		}
		if isMediaPlaceholder(remainder) {
			h.IsMedia = true
			h.MediaKind = detectMediaKind(remainder)
		}
		return Classification{Kind: KindHeader, Header: h}
	}

	if text, ok := noticeText(trimmed); ok && isSystemNotice(text) {
		return Classification{Kind: KindSystem}
	}
	return Classification{Kind: KindContinuation, Reason: reason}
}
