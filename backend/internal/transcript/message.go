package transcript

import (
	"time"
	"unicode/utf8"
)

// MediaKind is the coarse type of an omitted attachment.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaSticker  MediaKind = "sticker"
	MediaGIF      MediaKind = "gif"
	MediaGeneric  MediaKind = "media"
)

// Message is one assembled transcript message. It is not modified after the
// assembler closes it.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	IsMedia   bool      `json:"is_media"`
	MediaKind MediaKind `json:"media_kind,omitempty"`
}

// Length is the body length in characters.
func (m Message) Length() int {
	return utf8.RuneCountInString(m.Body)
}

// Summary describes a parsed message sequence.
type Summary struct {
	TotalMessages int        `json:"total_messages"`
	UniqueSenders int        `json:"unique_users"`
	MediaMessages int        `json:"media_messages"`
	TextMessages  int        `json:"text_messages"`
	Start         *time.Time `json:"start,omitempty"`
	End           *time.Time `json:"end,omitempty"`
	Senders       []string   `json:"users"`
}

// Summarize computes counts and the covered date range. Senders are listed in
// order of first appearance.
func Summarize(messages []Message) Summary {
	summary := Summary{Senders: []string{}}
	if len(messages) == 0 {
		return summary
	}

	seen := make(map[string]struct{})
	start, end := messages[0].Timestamp, messages[0].Timestamp
	for _, msg := range messages {
		if _, ok := seen[msg.Sender]; !ok {
			seen[msg.Sender] = struct{}{}
			summary.Senders = append(summary.Senders, msg.Sender)
		}
		if msg.IsMedia {
			summary.MediaMessages++
		}
		if msg.Timestamp.Before(start) {
			start = msg.Timestamp
		}
		if msg.Timestamp.After(end) {
			end = msg.Timestamp
		}
	}

	summary.TotalMessages = len(messages)
	summary.UniqueSenders = len(summary.Senders)
	summary.TextMessages = summary.TotalMessages - summary.MediaMessages
	summary.Start = &start
	summary.End = &end
	return summary
}
