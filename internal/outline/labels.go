package outline

import (
	"strings"

	"github.com/ppiankov/currentevents/internal/extract"
	"github.com/ppiankov/currentevents/internal/model"
	"golang.org/x/net/html"
)

// head is the text of a topic item before its nested list.
type head struct {
	text  string
	links []model.Link
}

// anchor is a topic link of an item: a direct <a> or an <i><a>.
type anchor struct {
	node  *html.Node
	text  string
	start int
}

// itemHead reads the children of li up to the one holding nested and
// collects its topic anchors in document order.
func itemHead(li, nested *html.Node) (head, []anchor, error) {
	var b strings.Builder
	var h head
	var anchors []anchor
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c == nested || extract.FindFirst(c, func(n *html.Node) bool { return n == nested }) != nil {
			break
		}
		start := b.Len()
		text, links, err := extract.TextAndLinks(c, start)
		if err != nil {
			return head{}, nil, err
		}
		b.WriteString(text)
		h.links = append(h.links, links...)

		switch {
		case extract.IsElement(c, "a") && extract.HasAttr(c, "href"):
			anchors = append(anchors, anchor{node: c, text: text, start: start})
		case extract.IsElement(c, "i"):
			for _, a := range extract.ChildElements(c) {
				if extract.IsElement(a, "a") && extract.HasAttr(a, "href") {
					anchors = append(anchors, anchor{node: a, text: extract.Text(a), start: start})
					break
				}
			}
		}
	}
	h.text = b.String()
	return h, anchors, nil
}

// portion is a comma separated piece of a topic label.
type portion struct {
	start, end int
	text       string
}

// splitOutsideLinks cuts text at commas that are not inside a link.
func splitOutsideLinks(text string, links []model.Link) []portion {
	var out []portion
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] != ',' || insideLink(i, links) {
			continue
		}
		out = append(out, portion{start: start, end: i, text: text[start:i]})
		start = i + 1
	}
	return append(out, portion{start: start, end: len(text), text: text[start:]})
}

func insideLink(pos int, links []model.Link) bool {
	for _, l := range links {
		if pos >= l.StartPos && pos < l.EndPos {
			return true
		}
	}
	return false
}

// labelFor returns the trimmed portion that contains pos.
func labelFor(portions []portion, pos int) string {
	for _, p := range portions {
		if pos >= p.start && pos < p.end {
			return strings.TrimSpace(p.text)
		}
	}
	return ""
}
