package article

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/currentevents/internal/infobox"
	"github.com/ppiankov/currentevents/internal/model"
)

// PlaceMarkerClasses are infobox CSS classes that mark settlement-like pages.
var PlaceMarkerClasses = []string{
	"ib-settlement",
	"ib-country",
	"ib-islands",
	"ib-pol-div",
	"ib-school-district",
	"ib-uk-place",
}

var templateRe = regexp.MustCompile(`Template:\w+`)

// linkedData is the subset of the page's JSON-LD block we read.
type linkedData struct {
	URL           string `json:"url"`
	Name          string `json:"name"`
	Headline      string `json:"headline"`
	DatePublished string `json:"datePublished"`
	DateModified  string `json:"dateModified"`
	MainEntity    string `json:"mainEntity"`
}

// page is a fetched article document with the lookups the resolver needs.
type page struct {
	doc *goquery.Document
}

func newPage(markup string) (*page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	return &page{doc: doc}, nil
}

// linkedData returns the first JSON-LD block. ok is false when the page has
// none, which is how redirect and special pages look.
func (p *page) linkedData() (linkedData, bool, error) {
	script := p.doc.Find(`script[type="application/ld+json"]`).First()
	if script.Length() == 0 {
		return linkedData{}, false, nil
	}
	var ld linkedData
	if err := json.Unmarshal([]byte(script.Text()), &ld); err != nil {
		return linkedData{}, false, err
	}
	return ld, true, nil
}

// templates lists the templates named in the parser profile that MediaWiki
// embeds in its config script.
func (p *page) templates() []string {
	seen := make(map[string]struct{})
	p.doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		i := strings.Index(text, "wgPageParseReport")
		if i < 0 {
			return true
		}
		for _, t := range templateRe.FindAllString(text[i:], -1) {
			seen[t] = struct{}{}
		}
		return false
	})
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (p *page) infobox() *goquery.Selection {
	return p.doc.Find("table.infobox").First()
}

// coordinates reads the title coordinates shown at the top of the page.
func (p *page) coordinates() *model.Coordinates {
	dms := p.doc.Find("#coordinates span.geo-dms").First()
	if dms.Length() == 0 {
		return nil
	}
	return infobox.ParseCoordinates(dms.Nodes[0])
}

// hasPlaceMarker reports whether the infobox carries a place CSS class.
func hasPlaceMarker(table *goquery.Selection) bool {
	if table == nil || table.Length() == 0 {
		return false
	}
	for _, c := range PlaceMarkerClasses {
		if table.HasClass(c) {
			return true
		}
	}
	return false
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
