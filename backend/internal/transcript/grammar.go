package transcript

import (
	"regexp"
	"strings"
)

// Whitespace as it appears in exports, including the no-break spaces some
// clients put before AM/PM.
const sp = `[\s\x{00A0}\x{202F}]`

const (
	invisiblePrefix = `^[\x{200B}-\x{200F}\x{2060}\x{FEFF}]*`
	meridiem        = `(?:` + sp + `*[AaPp]\.?[Mm]\.?)?`
	isoDate         = `(\d{4}/\d{1,2}/\d{1,2})`
	dayFirstDate    = `(\d{1,2}/\d{1,2}/\d{2,4})`
	clockHMS        = `(\d{1,2}:\d{2}:\d{2})`
	clockOptSeconds = `(\d{1,2}:\d{2}(?::\d{2})?` + meridiem + `)`
	senderAndText   = sp + `*([^:]+):` + sp + `*(.+)$`
)

// headerGrammar is one supported header dialect. Every pattern captures
// date, time, sender and remainder in that order.
type headerGrammar struct {
	name    string
	pattern *regexp.Regexp
}

// headerGrammars is tried in order; the first grammar that matches and whose
// timestamp resolves wins. Reordering changes how ambiguous lines resolve.
var headerGrammars = []headerGrammar{
	{
		name:    "bracketed-iso",
		pattern: regexp.MustCompile(invisiblePrefix + `\[` + isoDate + sp + `+` + clockHMS + `\]` + senderAndText),
	},
	{
		name:    "bracketed-european",
		pattern: regexp.MustCompile(invisiblePrefix + `\[` + dayFirstDate + `,` + sp + `*` + clockOptSeconds + `\]` + senderAndText),
	},
	{
		name:    "dash",
		pattern: regexp.MustCompile(invisiblePrefix + dayFirstDate + `,` + sp + `*` + clockOptSeconds + sp + `*-` + senderAndText),
	},
	{
		name:    "dash-iso",
		pattern: regexp.MustCompile(invisiblePrefix + isoDate + `,` + sp + `*` + `(\d{1,2}:\d{2}(?::\d{2})?)` + sp + `*-` + senderAndText),
	},
}

// noticePrefixes match a header's date and time with no "Sender:" after it,
// which is how some clients write group notices. The last group is the rest
// of the line.
var noticePrefixes = []*regexp.Regexp{
	regexp.MustCompile(invisiblePrefix + `\[` + isoDate + sp + `+` + clockHMS + `\]` + sp + `*(.+)$`),
	regexp.MustCompile(invisiblePrefix + `\[` + dayFirstDate + `,` + sp + `*` + clockOptSeconds + `\]` + sp + `*(.+)$`),
	regexp.MustCompile(invisiblePrefix + dayFirstDate + `,` + sp + `*` + clockOptSeconds + sp + `*-` + sp + `*(.+)$`),
	regexp.MustCompile(invisiblePrefix + isoDate + `,` + sp + `*` + `(\d{1,2}:\d{2}(?::\d{2})?)` + sp + `*-` + sp + `*(.+)$`),
}

// GrammarNames lists the header grammars in priority order.
func GrammarNames() []string {
	names := make([]string, len(headerGrammars))
	for i, g := range headerGrammars {
		names[i] = g.name
	}
	return names
}

// System notices are dropped entirely. Patterns run against the remainder
// after invisible markers are stripped.
var systemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)messages and calls are end-to-end encrypted`),
	regexp.MustCompile(`消息和通话已进行端到端加密`),
	regexp.MustCompile(`(?i)joined using this group`),
	regexp.MustCompile(`(?i)\bcreated (?:this )?group\b`),
	regexp.MustCompile(`(?i)\bchanged the subject\b`),
	regexp.MustCompile(`(?i)\bchanged this group`),
	regexp.MustCompile(`(?i)\bchanged the group (?:description|icon|name)\b`),
	regexp.MustCompile(`(?i)\bdeleted this group'?s icon\b`),
	regexp.MustCompile(`(?i)\bsecurity code\b.*\bchanged\b`),
	regexp.MustCompile(`(?i)\bchanged (?:their )?phone number\b`),
	regexp.MustCompile(`(?i)\bnow an admin\b`),
	regexp.MustCompile(`(?i)\bturned (?:on|off) disappearing messages\b`),
}

// Membership notices name people: capitalised names or phone numbers.
const (
	person     = `(?:\p{Lu}[^\s,:]*(?:\s\p{Lu}[^\s,:]*){0,2}|\+\d[\d\s()-]*\d)`
	personList = person + `(?:(?:,\s*|\s+and\s+)` + person + `)*`
)

var (
	membershipNotice = regexp.MustCompile(`^(You|` + person + `)\s(?:added|removed)\s(?:you|` + personList + `)\.?$`)
	departureNotice  = regexp.MustCompile(`^(You|` + person + `)\sleft\.?$`)
)

// pronouns are never the subject of a membership notice.
var pronouns = map[string]bool{"I": true, "We": true, "He": true, "She": true, "They": true, "It": true}

var mediaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<media omitted>`),
	regexp.MustCompile(`(?i)<attached:[^>]*>`),
	regexp.MustCompile(`(?i)\b(?:image|photo|video|audio|document|sticker|gif|contact card)\s+omitted\b`),
	regexp.MustCompile(`(?:图片|图像|视频|音频|语音|文档|贴纸|动图)已(?:忽略|省略)`),
}

// mediaKeywords maps remainder keywords to a media kind, checked in order.
var mediaKeywords = []struct {
	kind     MediaKind
	keywords []string
}{
	{MediaImage, []string{"image", "photo", "图片", "图像"}},
	{MediaVideo, []string{"video", "视频"}},
	{MediaAudio, []string{"audio", "voice", "音频", "语音"}},
	{MediaDocument, []string{"document", "pdf", "文档"}},
	{MediaSticker, []string{"sticker", "贴纸"}},
	{MediaGIF, []string{"gif", "动图"}},
}

func isSystemNotice(text string) bool {
	for _, p := range systemPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	for _, p := range []*regexp.Regexp{membershipNotice, departureNotice} {
		if m := p.FindStringSubmatch(text); m != nil && !pronouns[m[1]] {
			return true
		}
	}
	return false
}

// noticeText returns the text after a sender-less date/time prefix.
func noticeText(line string) (string, bool) {
	for _, p := range noticePrefixes {
		if m := p.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(stripInvisible(m[len(m)-1])), true
		}
	}
	return "", false
}

func isMediaPlaceholder(text string) bool {
	for _, p := range mediaPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func detectMediaKind(text string) MediaKind {
	lower := strings.ToLower(text)
	for _, mk := range mediaKeywords {
		for _, kw := range mk.keywords {
			if strings.Contains(lower, kw) {
				return mk.kind
			}
		}
	}
	return MediaGeneric
}

// stripInvisible removes leading zero-width and direction marks.
func stripInvisible(s string) string {
	return strings.TrimLeft(s, "\u200b\u200c\u200d\u200e\u200f\u2060\ufeff")
}
