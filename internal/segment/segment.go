// Package segment splits event text into sentences without breaking links.
package segment

import (
	"strings"

	"github.com/ppiankov/currentevents/internal/model"
)

const boundary = ". "

// Stats reports diagnostics gathered while splitting.
type Stats struct {
	// MultiLocationSentences counts sentences linking more than one
	// place-classified article.
	MultiLocationSentences int
	// LocationLinks counts links to place-classified articles.
	LocationLinks int
}

// Split cuts text after each ". " that does not fall strictly inside a link.
// Links must be sorted by position; each is assigned to the first sentence
// whose end is not before the link end and rebased to that sentence.
// Concatenating the sentence texts yields text.
func Split(text string, links []model.Link) ([]model.Sentence, Stats) {
	var sentences []model.Sentence
	var stats Stats
	next := 0

	emit := func(start, end int) {
		s := model.Sentence{Text: text[start:end], StartPos: start, EndPos: end}
		locations := 0
		for next < len(links) && links[next].EndPos <= end {
			l := links[next].Rebased(start)
			s.Links = append(s.Links, l)
			if l.IsLocation() {
				locations++
			}
			next++
		}
		if locations > 1 {
			stats.MultiLocationSentences++
		}
		stats.LocationLinks += locations
		sentences = append(sentences, s)
	}

	start := 0
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], boundary)
		if j < 0 {
			break
		}
		end := i + j + len(boundary)
		i = i + j + 1
		if insideLink(end, links) {
			continue
		}
		emit(start, end)
		start = end
	}

	if start < len(text) {
		if len(sentences) == 0 || strings.HasSuffix(text, ".") {
			emit(start, len(text))
		} else {
			extendLast(&sentences, text, links, &next, &stats)
		}
	} else if len(sentences) == 0 {
		emit(0, 0)
	}

	return sentences, stats
}

// extendLast appends the unterminated tail to the final sentence so no text
// is lost.
func extendLast(sentences *[]model.Sentence, text string, links []model.Link, next *int, stats *Stats) {
	last := &(*sentences)[len(*sentences)-1]
	last.EndPos = len(text)
	last.Text = text[last.StartPos:]

	locations := 0
	for _, l := range last.Links {
		if l.IsLocation() {
			locations++
		}
	}
	before := locations
	for *next < len(links) {
		l := links[*next].Rebased(last.StartPos)
		last.Links = append(last.Links, l)
		if l.IsLocation() {
			locations++
		}
		*next++
	}
	stats.LocationLinks += locations - before
	if before <= 1 && locations > 1 {
		stats.MultiLocationSentences++
	}
}

func insideLink(pos int, links []model.Link) bool {
	for _, l := range links {
		if pos > l.StartPos && pos < l.EndPos {
			return true
		}
	}
	return false
}
