package transcript

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// ErrUnresolvedTimestamp is returned when no date/time layout pair parses.
var ErrUnresolvedTimestamp = errors.New("no date/time layout matched")

type layout struct {
	name   string
	layout string
}

// Date candidates in priority order. Unpadded layouts accept one or two digit
// days and months, so 7/21 and 07/21 both parse.
var dateLayouts = []layout{
	{"year-month-day", "2006/1/2"},
	{"day-month-year", "2/1/2006"},
	{"day-month-short-year", "2/1/06"},
	{"month-day-year", "1/2/2006"},
	{"month-day-short-year", "1/2/06"},
}

var timeLayouts = []layout{
	{"24h-seconds", "15:04:05"},
	{"24h", "15:04"},
	{"12h-seconds", "3:04:05 PM"},
	{"12h", "3:04 PM"},
}

var (
	wideSpace      = regexp.MustCompile(`[\s\x{00A0}\x{202F}]+`)
	dottedMeridiem = regexp.MustCompile(`([AP])\.M\.?$`)
	joinedMeridiem = regexp.MustCompile(`(\d)([AP]M)$`)
)

// TimestampResolver turns a date token and a time token into an instant by
// trying every date layout against every time layout in a fixed order.
type TimestampResolver struct {
	loc *time.Location
}

// NewTimestampResolver creates a resolver interpreting wall-clock times in loc.
func NewTimestampResolver(loc *time.Location) *TimestampResolver {
	if loc == nil {
		loc = time.UTC
	}
	return &TimestampResolver{loc: loc}
}

// Resolution records which layouts produced a timestamp.
type Resolution struct {
	Time       time.Time
	DateLayout string
	TimeLayout string
}

// Resolve returns the first successful (date layout, time layout) parse.
func (r *TimestampResolver) Resolve(dateToken, timeToken string) (Resolution, error) {
	dateToken = strings.TrimSpace(dateToken)
	timeToken = normalizeClock(timeToken)

	value := dateToken + " " + timeToken
	for _, dl := range dateLayouts {
		for _, tl := range timeLayouts {
			t, err := time.ParseInLocation(dl.layout+" "+tl.layout, value, r.loc)
			if err == nil {
				return Resolution{Time: t, DateLayout: dl.name, TimeLayout: tl.name}, nil
			}
		}
	}
	return Resolution{}, ErrUnresolvedTimestamp
}

// normalizeClock rewrites the meridiem spellings found in exports
// ("5:11pm", "5:11 p.m.", "5:11\u202fPM") to the "5:11 PM" form.
func normalizeClock(token string) string {
	token = strings.ToUpper(strings.TrimSpace(wideSpace.ReplaceAllString(token, " ")))
	token = dottedMeridiem.ReplaceAllString(token, "${1}M")
	token = strings.ReplaceAll(token, " ", "")
	token = joinedMeridiem.ReplaceAllString(token, "$1 $2")
	return token
}
