// Package extract turns outline and infobox markup into plain text with
// offset-addressed links.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/currentevents/internal/model"
	"golang.org/x/net/html"
)

// ErrUnexpectedNode is returned when the markup contains a node kind the
// extractor does not understand.
var ErrUnexpectedNode = errors.New("unexpected markup node")

// TextAndLinks walks n depth-first and returns its text together with every
// hyperlink found. Link offsets start at offset and count bytes of the
// returned text.
func TextAndLinks(n *html.Node, offset int) (string, []model.Link, error) {
	var buf strings.Builder
	var links []model.Link
	if err := appendTextAndLinks(n, offset, &buf, &links); err != nil {
		return "", nil, err
	}
	return buf.String(), links, nil
}

func appendTextAndLinks(n *html.Node, offset int, buf *strings.Builder, links *[]model.Link) error {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return nil
	case html.CommentNode:
		return nil
	case html.ElementNode:
	default:
		return fmt.Errorf("%w: type %d %q", ErrUnexpectedNode, n.Type, n.Data)
	}

	start := offset + buf.Len()
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := appendTextAndLinks(c, offset, buf, links); err != nil {
			return err
		}
	}

	if n.Data == "a" && HasAttr(n, "href") {
		end := offset + buf.Len()
		*links = append(*links, model.Link{
			Href:     AbsoluteURL(Attr(n, "href")),
			Text:     buf.String()[start-offset:],
			StartPos: start,
			EndPos:   end,
			External: HasClass(n, "external"),
		})
	}
	return nil
}
