package extract

import (
	"fmt"
	"strings"

	"github.com/ppiankov/currentevents/internal/model"
	"golang.org/x/net/html"
)

// EventItem is the text of one outline event split into the narrative body
// and its trailing news sources such as "(Reuters)".
type EventItem struct {
	Text        string
	Links       []model.Link
	SourceText  string
	SourceLinks []model.Link
}

// References numbers the source links in order of appearance.
func (e EventItem) References() []model.Reference {
	refs := make([]model.Reference, 0, len(e.SourceLinks))
	for i, l := range e.SourceLinks {
		refs = append(refs, model.Reference{
			Nr:         i + 1,
			URL:        l.Href,
			AnchorText: strings.Trim(strings.TrimSpace(l.Text), "()"),
		})
	}
	return refs
}

// ParseEventItem extracts body and source text from an event list item.
// Body link offsets count bytes of Text, source link offsets bytes of
// SourceText. Trailing whitespace is dropped from Text.
func ParseEventItem(li *html.Node) (EventItem, error) {
	var item EventItem
	var body, source strings.Builder

	var walk func(n *html.Node) error
	walk = func(n *html.Node) error {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				body.WriteString(c.Data)
			case html.CommentNode:
			case html.ElementNode:
				if isSourceLink(c) {
					text, _, err := TextAndLinks(c, 0)
					if err != nil {
						return err
					}
					start := source.Len()
					source.WriteString(text)
					item.SourceLinks = append(item.SourceLinks, model.Link{
						Href:     AbsoluteURL(Attr(c, "href")),
						Text:     text,
						StartPos: start,
						EndPos:   source.Len(),
						External: true,
					})
					continue
				}

				start := body.Len()
				if err := walk(c); err != nil {
					return err
				}
				if c.Data == "a" && HasAttr(c, "href") {
					item.Links = append(item.Links, model.Link{
						Href:     AbsoluteURL(Attr(c, "href")),
						Text:     body.String()[start:],
						StartPos: start,
						EndPos:   body.Len(),
						External: HasClass(c, "external"),
					})
				}
			default:
				return fmt.Errorf("%w: type %d %q", ErrUnexpectedNode, c.Type, c.Data)
			}
		}
		return nil
	}

	if err := walk(li); err != nil {
		return EventItem{}, err
	}

	item.Text = strings.TrimRight(body.String(), " \t\r\n")
	item.SourceText = source.String()
	for i := range item.Links {
		item.Links[i].StartPos = min(item.Links[i].StartPos, len(item.Text))
		item.Links[i].EndPos = min(item.Links[i].EndPos, len(item.Text))
	}
	return item, nil
}

// isSourceLink matches external links whose anchor text is parenthesised,
// which is how the outline cites news agencies.
func isSourceLink(n *html.Node) bool {
	if !IsElement(n, "a") || !HasClass(n, "external") {
		return false
	}
	text := strings.TrimSpace(Text(n))
	return strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")")
}

// ArticleLinkIndexes returns the positions of in-scope article links.
func ArticleLinkIndexes(links []model.Link) []int {
	var idx []int
	for i, l := range links {
		if !l.External && IsArticleURL(l.Href) {
			idx = append(idx, i)
		}
	}
	return idx
}
