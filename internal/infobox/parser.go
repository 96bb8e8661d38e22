// Package infobox extracts typed location, date and time rows from a wiki
// infobox table.
package infobox

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/extract"
	"github.com/ppiankov/currentevents/internal/model"
	"golang.org/x/net/html"
)

// Resolver resolves article URLs found inside infobox cells.
type Resolver interface {
	Resolve(ctx context.Context, key model.ResolveKey) (*model.Article, error)
}

// EntityRecognizer finds knowledge-base entities mentioned in free text.
type EntityRecognizer interface {
	RecognizeEntities(ctx context.Context, text string) (wikidata []string, dbpedia []string, err error)
}

// EntityLinker maps knowledge-base entities to their wiki article URLs.
type EntityLinker interface {
	ArticleURLs(ctx context.Context, entities []string) (map[string]string, error)
}

// Geocoder geocodes free text. A nil element means no result.
type Geocoder interface {
	Query(ctx context.Context, text string) (*model.OSMElement, error)
}

// StormTemplate switches the location label to "Areas affected".
const StormTemplate = "Template:Infobox_storm"

// Options configures a Parser. Nil collaborators disable their step.
type Options struct {
	Resolver   Resolver
	Recognizer EntityRecognizer
	Linker     EntityLinker
	Geocoder   Geocoder
	Recorder   analytics.Recorder
	Logger     *log.Logger
}

// Parser extracts rows from infobox tables
type Parser struct {
	resolver   Resolver
	recognizer EntityRecognizer
	linker     EntityLinker
	geocoder   Geocoder
	recorder   analytics.Recorder
	logger     *log.Logger
}

// NewParser creates a new infobox parser
func NewParser(opts Options) *Parser {
	p := &Parser{
		resolver:   opts.Resolver,
		recognizer: opts.Recognizer,
		linker:     opts.Linker,
		geocoder:   opts.Geocoder,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
	}
	if p.recorder == nil {
		p.recorder = analytics.Nop{}
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	return p
}

// SetResolver wires the resolver after construction, for the mutual
// dependency between resolver and parser.
func (p *Parser) SetResolver(r Resolver) {
	p.resolver = r
}

// Result holds everything extracted from one infobox
type Result struct {
	Rows         map[string]model.InfoboxRow
	Microformats map[string]time.Time
	Coordinates  *model.Coordinates
}

// Parse extracts the location row in every scope and the date and time rows
// in topic scope. Location links are resolved and geocoded in topic scope
// only. budget is the caller's already spent budget; nested resolution
// happens only while it has hops left.
func (p *Parser) Parse(ctx context.Context, table *html.Node, templates []string, scope model.Scope, budget model.Budget) (Result, error) {
	res := Result{
		Rows:         make(map[string]model.InfoboxRow),
		Microformats: make(map[string]time.Time),
	}
	tbody := extract.FindFirst(table, extract.ElementTag("tbody"))
	if tbody == nil {
		return res, nil
	}

	loc, coords, err := p.location(ctx, tbody, templates, scope, budget)
	if err != nil {
		return Result{}, err
	}
	if loc != nil {
		res.Rows[loc.Label] = loc
	}
	res.Coordinates = coords

	if scope == model.ScopeTopic {
		res.Microformats = p.microformats(table)
		for label, row := range p.dateRows(tbody, res.Microformats) {
			res.Rows[label] = row
		}
	}
	return res, nil
}

// findValueCell returns the td following the th whose text equals label.
func findValueCell(tbody *html.Node, label string, requireLabelClass bool) *html.Node {
	th := extract.FindFirst(tbody, func(n *html.Node) bool {
		if !extract.IsElement(n, "th") {
			return false
		}
		if requireLabelClass && !extract.HasClass(n, "infobox-label") {
			return false
		}
		return strings.TrimSpace(extract.Text(n)) == label
	})
	if th == nil {
		return nil
	}
	for s := extract.NextElementSibling(th); s != nil; s = extract.NextElementSibling(s) {
		if extract.IsElement(s, "td") {
			return s
		}
	}
	return nil
}

func locationLabel(templates []string) string {
	for _, t := range templates {
		if t == StormTemplate {
			return "Areas affected"
		}
	}
	return "Location"
}

func (p *Parser) location(ctx context.Context, tbody *html.Node, templates []string, scope model.Scope, budget model.Budget) (*model.LocationRow, *model.Coordinates, error) {
	label := locationLabel(templates)
	td := findValueCell(tbody, label, true)
	if td == nil {
		return nil, nil, nil
	}

	coords := ParseCoordinates(extract.FindFirst(td, extract.ElementClass("span", "geo-dms")))

	cell := td
	for _, c := range extract.ChildElements(td) {
		if extract.IsElement(c, "div") && extract.HasClass(c, "location") {
			cell = c
			break
		}
	}

	text, links, err := locationValue(cell)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, coords, nil
	}

	row := &model.LocationRow{
		RowBase:        model.RowBase{Label: label, Value: text, ValueLinks: links},
		GeocodeResults: make(map[string]model.OSMElement),
		Coordinates:    coords,
	}

	if scope == model.ScopeTopic && p.recognizer != nil {
		wd, db, err := p.recognizer.RecognizeEntities(ctx, text)
		if err != nil {
			return nil, nil, fmt.Errorf("recognize entities: %w", err)
		}
		row.KnowledgeBaseEntities = wd
		row.DBpediaEntities = db
		if len(wd) > 0 {
			p.recorder.RecordAnalytic(analytics.EntityRecognitions, 1)
		}
	}

	if scope == model.ScopeTopic && budget.Hops() > 0 && p.resolver != nil {
		places, err := p.linkArticles(ctx, row.ValueLinks, budget)
		if err != nil {
			return nil, nil, err
		}

		if p.linker != nil && len(row.KnowledgeBaseEntities) > 0 {
			articles, err := p.entityArticles(ctx, row.KnowledgeBaseEntities, budget)
			if err != nil {
				return nil, nil, err
			}
			if len(articles) > 0 {
				p.recorder.RecordAnalytic(analytics.EntityLocationArticles, 1)
			}
			places = appendPlaces(places, articles...)
		}
		row.ResolvedArticles = places
	}

	if scope == model.ScopeTopic && p.geocoder != nil {
		for _, l := range row.ValueLinks {
			el, err := p.geocoder.Query(ctx, l.Text)
			if err != nil {
				return nil, nil, fmt.Errorf("geocode %q: %w", l.Text, err)
			}
			if el != nil {
				row.GeocodeResults[l.Href] = *el
			}
		}
	}

	if scope == model.ScopeTopic {
		p.recorder.RecordAnalytic(analytics.TopicsWithLocation, 1)
	}
	return row, coords, nil
}

// linkArticles resolves the cell's own wiki links and keeps the
// place-classified results. Each kept place is also attached to its link.
func (p *Parser) linkArticles(ctx context.Context, links []model.Link, budget model.Budget) ([]*model.Article, error) {
	var places []*model.Article
	for i := range links {
		if links[i].External {
			continue
		}
		a, err := p.resolver.Resolve(ctx, model.ResolveKey{URL: links[i].Href, Scope: model.ScopeEvent, Budget: budget})
		if err != nil {
			return nil, err
		}
		if a != nil && a.IsLocation {
			links[i].Article = a
			places = appendPlaces(places, a)
		}
	}
	return places, nil
}

// appendPlaces appends articles whose URL is not in places yet.
func appendPlaces(places []*model.Article, articles ...*model.Article) []*model.Article {
	for _, a := range articles {
		if !slices.ContainsFunc(places, func(b *model.Article) bool { return b.URL == a.URL }) {
			places = append(places, a)
		}
	}
	return places
}

// entityArticles resolves the wiki articles of recognised entities and keeps
// the place-classified ones.
func (p *Parser) entityArticles(ctx context.Context, entities []string, budget model.Budget) ([]*model.Article, error) {
	urls, err := p.linker.ArticleURLs(ctx, entities)
	if err != nil {
		return nil, fmt.Errorf("entity article urls: %w", err)
	}
	keys := make([]string, 0, len(urls))
	for entity := range urls {
		keys = append(keys, entity)
	}
	sort.Strings(keys)

	var places []*model.Article
	for _, entity := range keys {
		a, err := p.resolver.Resolve(ctx, model.ResolveKey{URL: urls[entity], Scope: model.ScopeEvent, Budget: budget})
		if err != nil {
			return nil, err
		}
		if a != nil && a.IsLocation {
			places = append(places, a)
		}
	}
	return places, nil
}

// locationValue reads text and links from the leading run of plain content
// in a location cell. Flag icons and footnotes are skipped, line breaks kept,
// and any other element ends the value.
func locationValue(cell *html.Node) (string, []model.Link, error) {
	var b strings.Builder
	var links []model.Link
	for c := cell.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode,
			extract.IsElement(c, "a"), extract.IsElement(c, "b"), extract.IsElement(c, "abbr"):
			text, l, err := extract.TextAndLinks(c, b.Len())
			if err != nil {
				return "", nil, err
			}
			b.WriteString(text)
			links = append(links, l...)
		case extract.IsElement(c, "br"):
			b.WriteString("\n")
		case c.Type == html.CommentNode, extract.HasClass(c, "flagicon"), extract.IsElement(c, "sup"):
			continue
		default:
			return b.String(), links, nil
		}
	}
	return b.String(), links, nil
}
