// Package datetime parses free-text infobox dates and times.
package datetime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day in 24-hour form.
type Clock struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant at this clock on the calendar day of d, in loc.
// A nil loc keeps d's location.
func (c Clock) On(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = d.Location()
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// TimeResult is a parsed time of day with an optional end and UTC offset.
type TimeResult struct {
	Start Clock
	End   *Clock
	Zone  *time.Location
}

var (
	utcOffsetRe = regexp.MustCompile(`UTC(?P<h>[+-]\d\d?)(?::(?P<m>\d\d))?`)

	meridiem = `(?:(?P<am%[1]s>[aA]\.?[mM]\.?)|(?P<pm%[1]s>[pP]\.?[mM]\.?))?`
	clockRe  = regexp.MustCompile(
		`(?P<hs>\d\d?):(?P<ms>\d\d)\s*` + fmt.Sprintf(meridiem, "s") +
			`(?:\s*(?:-|and|to)\s*` +
			`(?P<he>\d\d?):(?P<me>\d\d)\s*` + fmt.Sprintf(meridiem, "e") +
			`)?`)

	dashReplacer = strings.NewReplacer("–", "-", "−", "-")
)

// ParseTime extracts a time of day, an optional end time and an optional
// UTC offset from text. It reports false when no start time is found.
func ParseTime(text string) (TimeResult, bool) {
	text = dashReplacer.Replace(text)

	var zone *time.Location
	if loc := utcOffsetRe.FindStringSubmatchIndex(text); loc != nil {
		zone = zoneFromMatch(text, loc)
		// keep the offset's own H:MM out of the clock search
		text = text[:loc[0]] + text[loc[1]:]
	}

	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return TimeResult{}, false
	}
	group := func(name string) string {
		return m[clockRe.SubexpIndex(name)]
	}

	start, ok := clock(group("hs"), group("ms"), group("ams"), group("pms"))
	if !ok {
		return TimeResult{}, false
	}
	result := TimeResult{Start: start, Zone: zone}
	if group("he") != "" {
		if end, ok := clock(group("he"), group("me"), group("ame"), group("pme")); ok {
			result.End = &end
		}
	}
	return result, true
}

func zoneFromMatch(text string, loc []int) *time.Location {
	hours, err := strconv.Atoi(text[loc[2]:loc[3]])
	if err != nil {
		return nil
	}
	minutes := 0
	if loc[4] >= 0 {
		minutes, _ = strconv.Atoi(text[loc[4]:loc[5]])
	}
	offset := hours*3600 + minutes*60
	if strings.HasPrefix(text[loc[2]:loc[3]], "-") {
		offset = hours*3600 - minutes*60
	}
	return time.FixedZone(formatOffset(offset), offset)
}

func formatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, seconds/3600, seconds%3600/60)
}

// clock builds a 24-hour Clock. The 12-hour conversion applies only when a
// meridiem marker was matched.
func clock(h, m, am, pm string) (Clock, bool) {
	hour, err := strconv.Atoi(h)
	if err != nil {
		return Clock{}, false
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return Clock{}, false
	}
	switch {
	case pm != "" && hour != 12:
		hour += 12
	case am != "" && hour == 12:
		hour = 0
	}
	if hour > 23 || minute > 59 {
		return Clock{}, false
	}
	return Clock{Hour: hour, Minute: minute}, true
}
