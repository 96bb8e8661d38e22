package datetime

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateResult is a parsed calendar date with an optional end or open end.
type DateResult struct {
	Date    time.Time
	Until   *time.Time
	Ongoing bool
}

var monthNames = []string{
	"january", "february", "march", "april", "may", "june", "july",
	"august", "september", "october", "november", "december",
}

type datePattern struct {
	name string
	re   *regexp.Regexp
}

// datePatterns is ordered from most to least specific. Span patterns must
// precede their prefixes or the span end is lost.
var datePatterns = compileDatePatterns()

func compileDatePatterns() []datePattern {
	const (
		to      = `\s*(?:-|until|to)\s*`
		ongoing = `(?P<on>[Pp]resent|[Oo]ngoing)`
		day     = `(?P<day>\d\d?)`
		day2    = `(?P<day2>\d\d?)`
		month   = `(?P<mon>\w{3,9})`
		month2  = `(?P<mon2>\w{3,9})`
		year    = `(?P<year>\d{2,4})`
		year2   = `(?P<year2>\d{2,4})`
	)

	dm := day + `\s+` + month
	dmy := dm + `\s+` + year
	dmyOn := dmy + to + ongoing
	ddmy := day + to + day2 + `\s+` + month + `\s+` + year
	dmdmy := dm + to + day2 + `\s+` + month2 + `\s+` + year
	dmydmy := dmy + to + day2 + `\s+` + month2 + `\s+` + year2

	md := month + `\s*(?:/|\s)\s*` + day
	mdy := md + `\s*[/,]\s*` + year
	mdyOn := mdy + to + ongoing
	mddy := md + to + day2 + `\s*[/,]\s*` + year
	mdmdy := md + to + month2 + `\s*` + day2 + `\s*[/,]\s*` + year
	mdymdy := mdy + to + month2 + `\s*(?:/|\s)\s*` + day2 + `\s*[/,]\s*` + year2

	ordered := []struct{ name, expr string }{
		{"mdymdy", mdymdy},
		{"dmydmy", dmydmy},
		{"mdmdy", mdmdy},
		{"dmdmy", dmdmy},
		{"mddy", mddy},
		{"ddmy", ddmy},
		{"mdyOn", mdyOn},
		{"dmyOn", dmyOn},
		{"mdy", mdy},
		{"dmy", dmy},
	}
	patterns := make([]datePattern, 0, len(ordered))
	for _, p := range ordered {
		patterns = append(patterns, datePattern{name: p.name, re: regexp.MustCompile(p.expr)})
	}
	return patterns
}

// ParseDate finds the first date or date span in text. Patterns are tried
// in a fixed order and the first structural match with a valid calendar
// date wins; an invalid match falls through to the next pattern.
func ParseDate(text string) (DateResult, bool) {
	text = dashReplacer.Replace(text)

	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if res, ok := buildDate(p.re, m); ok {
			return res, true
		}
	}
	return DateResult{}, false
}

func buildDate(re *regexp.Regexp, m []string) (DateResult, bool) {
	group := func(name string) (string, bool) {
		i := re.SubexpIndex(name)
		if i < 0 {
			return "", false
		}
		return m[i], true
	}

	monStr, _ := group("mon")
	dayStr, _ := group("day")
	yearStr, _ := group("year")

	mon, ok := monthIndex(monStr)
	if !ok {
		return DateResult{}, false
	}
	year, _ := strconv.Atoi(yearStr)
	d, _ := strconv.Atoi(dayStr)
	date, ok := calendarDate(year, mon, d)
	if !ok {
		return DateResult{}, false
	}
	res := DateResult{Date: date}

	if day2Str, hasDay2 := group("day2"); hasDay2 {
		mon2 := mon
		if mon2Str, hasMon2 := group("mon2"); hasMon2 {
			if mon2, ok = monthIndex(mon2Str); !ok {
				return DateResult{}, false
			}
		}
		year2 := year
		if year2Str, hasYear2 := group("year2"); hasYear2 {
			year2, _ = strconv.Atoi(year2Str)
		}
		d2, _ := strconv.Atoi(day2Str)
		until, ok := calendarDate(year2, mon2, d2)
		if !ok {
			return DateResult{}, false
		}
		res.Until = &until
	} else if on, _ := group("on"); on != "" {
		res.Ongoing = true
	}
	return res, true
}

func monthIndex(name string) (time.Month, bool) {
	name = strings.ToLower(name)
	for i, n := range monthNames {
		if n == name {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// calendarDate rejects dates that time.Date would normalise, such as
// 31 February.
func calendarDate(year int, month time.Month, day int) (time.Time, bool) {
	if year < 1 || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
