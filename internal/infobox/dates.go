package infobox

import (
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/datetime"
	"github.com/ppiankov/currentevents/internal/extract"
	"github.com/ppiankov/currentevents/internal/model"
	"golang.org/x/net/html"
)

var (
	// StartLabels hold values whose single date marks a beginning.
	StartLabels = []string{"Date", "Date(s)", "First outbreak", "Arrival Date", "Start Date"}
	// EndLabels hold values whose single date marks an end.
	EndLabels = []string{"End Date", "Duration"}
	// TimeLabel holds a time of day.
	TimeLabel = "Time"

	asOfRe         = regexp.MustCompile(`[aA]s of`)
	isoDateRe      = regexp.MustCompile(`(?P<y>[0-9]{4})-(?P<m>[0-9]{2})-(?P<d>[0-9]{2})`)
	noiseLocations = map[string]bool{"Wuhan, Hubei, China": true, "Wuhan, China": true}
)

const (
	dtstart = "dtstart"
	dtend   = "dtend"
)

// microformats reads hCalendar dtstart/dtend spans of a vevent infobox.
func (p *Parser) microformats(table *html.Node) map[string]time.Time {
	found := make(map[string]time.Time)
	if !extract.HasClass(table, "vevent") {
		return found
	}
	for _, class := range []string{dtstart, dtend} {
		span := extract.FindFirst(table, extract.ElementClass("span", class))
		if span == nil {
			continue
		}
		m := isoDateRe.FindStringSubmatch(extract.Text(span))
		if m == nil {
			continue
		}
		t, err := time.Parse(time.DateOnly, m[1]+"-"+m[2]+"-"+m[3])
		if err != nil {
			continue
		}
		found[class] = t
		if class == dtstart {
			p.recorder.RecordAnalytic(analytics.TopicsWithDtstart, 1)
		} else {
			p.recorder.RecordAnalytic(analytics.TopicsWithDtend, 1)
		}
	}
	return found
}

// dateValue reads the leading run of a date cell. Hidden spans and
// footnotes are skipped, line breaks kept, anything else ends the value.
func dateValue(cell *html.Node) (string, []model.Link, error) {
	var b strings.Builder
	var links []model.Link
	for c := cell.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case extract.IsElement(c, "span") &&
			(extract.HasClass(c, "noprint") || strings.Contains(strings.ReplaceAll(extract.Attr(c, "style"), " ", ""), "display:none")):
			continue
		case c.Type == html.TextNode,
			extract.IsElement(c, "a"), extract.IsElement(c, "b"), extract.IsElement(c, "abbr"), extract.IsElement(c, "span"):
			text, l, err := extract.TextAndLinks(c, b.Len())
			if err != nil {
				return "", nil, err
			}
			b.WriteString(text)
			links = append(links, l...)
		case extract.IsElement(c, "br"):
			b.WriteString("\n")
		case c.Type == html.CommentNode, extract.IsElement(c, "sup"):
			continue
		default:
			return b.String(), links, nil
		}
	}
	return b.String(), links, nil
}

type rawRow struct {
	label string
	value string
	links []model.Link
}

func (p *Parser) collect(tbody *html.Node, labels []string) []rawRow {
	var rows []rawRow
	for _, label := range labels {
		td := findValueCell(tbody, label, false)
		if td == nil {
			continue
		}
		value, links, err := dateValue(td)
		if err != nil {
			p.logger.Warn("unreadable date cell", "label", label, "err", err)
			continue
		}
		rows = append(rows, rawRow{label: label, value: value, links: links})
	}
	return rows
}

// dateRows parses the date-ish and time-ish rows of a topic infobox.
//
// Start-group rows keep a single date as their start and end-group rows
// turn it into an end. A time found in the same value, or failing that in
// the Time row, is applied to a single date. Microformat dates replace the
// parsed start and end.
func (p *Parser) dateRows(tbody *html.Node, mf map[string]time.Time) map[string]model.InfoboxRow {
	rows := make(map[string]model.InfoboxRow)
	hasTime, hasTimeSpan := false, false

	var rowTime *datetime.TimeResult
	for _, raw := range p.collect(tbody, []string{TimeLabel}) {
		tr, ok := datetime.ParseTime(raw.value)
		if !ok {
			p.logger.Warn("unparsed time", "label", raw.label, "value", raw.value)
			p.recorder.RecordAnalytic(analytics.TimeParseErrors, 1)
			continue
		}
		hasTime = true
		hasTimeSpan = hasTimeSpan || tr.End != nil
		row := &model.TimeRow{
			RowBase:  model.RowBase{Label: raw.label, Value: raw.value, ValueLinks: raw.links},
			Start:    &tr.Start,
			End:      tr.End,
			Timezone: tr.Zone,
		}
		rows[raw.label] = row
		rowTime = &tr
	}

	groups := []struct {
		labels []string
		ending bool
	}{
		{StartLabels, false},
		{EndLabels, true},
	}
	for _, group := range groups {
		for _, raw := range p.collect(tbody, group.labels) {
			if asOfRe.MatchString(raw.value) || noiseLocations[strings.TrimSpace(raw.value)] {
				continue
			}

			tr, timeOK := datetime.ParseTime(raw.value)
			if timeOK {
				hasTime = true
				hasTimeSpan = hasTimeSpan || tr.End != nil
			}

			row := &model.DateRow{RowBase: model.RowBase{Label: raw.label, Value: raw.value, ValueLinks: raw.links}}
			dr, ok := datetime.ParseDate(raw.value)
			if ok {
				p.recorder.RecordAnalytic(analytics.TopicsWithDate, 1)
				start := dr.Date
				row.Start = &start
				row.End = dr.Until
				row.Ongoing = dr.Ongoing
				switch {
				case dr.Until != nil:
					p.recorder.RecordAnalytic(analytics.TopicsWithDateSpan, 1)
				case dr.Ongoing:
					p.recorder.RecordAnalytic(analytics.TopicsWithDateOngoing, 1)
				}

				single := row.End == nil && !row.Ongoing
				switch {
				case single && timeOK:
					applyTime(row, tr)
				case single && rowTime != nil && !group.ending:
					applyTime(row, *rowTime)
				case !single && timeOK:
					p.logger.Warn("time discarded on date span", "label", raw.label, "value", raw.value)
				}

				if group.ending && row.End == nil && !row.Ongoing {
					row.End, row.Start = row.Start, nil
				}
			}

			applyMicroformats(row, group.ending, mf)
			if row.Start == nil && row.End == nil && !row.Ongoing {
				p.logger.Warn("unparsed date", "label", raw.label, "value", raw.value)
				p.recorder.RecordAnalytic(analytics.DateParseErrors, 1)
				continue
			}
			rows[raw.label] = row
		}
	}

	if hasTime {
		p.recorder.RecordAnalytic(analytics.TopicsWithTime, 1)
		if hasTimeSpan {
			p.recorder.RecordAnalytic(analytics.TopicsWithTimeSpan, 1)
		}
	}
	return rows
}

// applyTime moves a single date onto its time of day; an end time turns the
// day into a span. An end clock before the start falls on the next day.
func applyTime(row *model.DateRow, tr datetime.TimeResult) {
	start := tr.Start.On(*row.Start, tr.Zone)
	row.Start = &start
	row.Timezone = tr.Zone
	if tr.End != nil {
		end := tr.End.On(*row.Start, tr.Zone)
		if end.Before(start) {
			end = end.AddDate(0, 0, 1)
		}
		row.End = &end
	}
}

// applyMicroformats lets dtstart and dtend override regex dates. A parsed
// value on the same calendar day is kept for its time of day.
func applyMicroformats(row *model.DateRow, ending bool, mf map[string]time.Time) {
	if start, ok := mf[dtstart]; ok && !ending {
		row.Start = sameDayOr(row.Start, start)
	}
	if end, ok := mf[dtend]; ok {
		if ending || row.Start != nil {
			row.End = sameDayOr(row.End, end)
			row.Ongoing = false
		}
	}
}

func sameDayOr(parsed *time.Time, authoritative time.Time) *time.Time {
	if parsed != nil {
		y1, m1, d1 := parsed.Date()
		y2, m2, d2 := authoritative.Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			return parsed
		}
	}
	return &authoritative
}
