// Package article resolves wiki article URLs into parsed, memoised Article
// records.
package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/extract"
	"github.com/ppiankov/currentevents/internal/infobox"
	"github.com/ppiankov/currentevents/internal/model"
	"golang.org/x/sync/singleflight"
)

// InstanceOf is the knowledge-base predicate whose objects become type labels.
const InstanceOf = "http://www.wikidata.org/prop/direct/P31"

// DefaultCacheSize bounds the memo when Options.CacheSize is not set.
const DefaultCacheSize = 10000

// ErrBudgetUnset is returned for keys whose budget was not built with
// model.NewBudget.
var ErrBudgetUnset = errors.New("article: resolve key without budget")

// Key identifies one memoised resolution.
type Key = model.ResolveKey

// PageFetcher returns raw article markup.
type PageFetcher interface {
	FetchArticlePage(ctx context.Context, url string) (string, error)
}

// PlaceTemplateSource returns the infobox templates that denote places.
type PlaceTemplateSource interface {
	PlaceTemplates(ctx context.Context) (map[string]struct{}, error)
}

// KnowledgeBase answers entity queries about an article's main entity.
type KnowledgeBase interface {
	ParentLocations(ctx context.Context, entity string) (map[string][]string, error)
	OSMEntities(ctx context.Context, entity string) (relations []string, objects []string, err error)
	OneHopSubgraph(ctx context.Context, entity string) ([]model.Triple, error)
	EntityLabels(ctx context.Context, entities []string) (map[string]string, error)
}

// Geocoder looks up OpenStreetMap objects by reference or free text.
type Geocoder interface {
	Lookup(ctx context.Context, ref string) (*model.OSMElement, error)
	Query(ctx context.Context, text string) (*model.OSMElement, error)
}

// Options configures a Resolver. Nil KnowledgeBase and Geocoder skip the
// enrichment steps.
type Options struct {
	Fetcher        PageFetcher
	PlaceTemplates PlaceTemplateSource
	KnowledgeBase  KnowledgeBase
	Geocoder       Geocoder
	Infobox        *infobox.Parser
	Recorder       analytics.Recorder
	Logger         *log.Logger
	CacheSize      int
}

// Resolver fetches, parses and memoises articles. It is safe for
// concurrent use; each key is computed at most once while it stays cached.
type Resolver struct {
	fetcher  PageFetcher
	places   PlaceTemplateSource
	kb       KnowledgeBase
	geocoder Geocoder
	infobox  *infobox.Parser
	recorder analytics.Recorder
	logger   *log.Logger

	cache *lru.Cache[Key, *model.Article]
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	placeMu  sync.Mutex
	placeSet map[string]struct{}
}

// NewResolver creates a resolver and wires itself into the infobox parser
// for nested resolution.
func NewResolver(opts Options) (*Resolver, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("article: fetcher is required")
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[Key, *model.Article](size)
	if err != nil {
		return nil, fmt.Errorf("create article cache: %w", err)
	}

	r := &Resolver{
		fetcher:  opts.Fetcher,
		places:   opts.PlaceTemplates,
		kb:       opts.KnowledgeBase,
		geocoder: opts.Geocoder,
		infobox:  opts.Infobox,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		cache:    cache,
	}
	if r.recorder == nil {
		r.recorder = analytics.Nop{}
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	if r.infobox == nil {
		r.infobox = infobox.NewParser(infobox.Options{Recorder: r.recorder, Logger: r.logger})
	}
	r.infobox.SetResolver(r)
	return r, nil
}

// Resolve returns the article behind key.URL, or nil when the URL is not an
// in-scope article. Nil results are cached; errors are not.
func (r *Resolver) Resolve(ctx context.Context, key Key) (*model.Article, error) {
	if !key.Budget.IsSet() {
		return nil, ErrBudgetUnset
	}
	if a, ok := r.cache.Get(key); ok {
		r.hits.Add(1)
		return a, nil
	}

	computed := false
	flight := fmt.Sprintf("%s|%d|%d", key.URL, key.Scope, key.Budget.Hops())
	v, err, _ := r.group.Do(flight, func() (any, error) {
		if a, ok := r.cache.Get(key); ok {
			return a, nil
		}
		computed = true
		r.misses.Add(1)
		a, err := r.resolve(ctx, key)
		if err != nil {
			return nil, err
		}
		r.cache.Add(key, a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	if !computed {
		r.hits.Add(1)
	}
	a, _ := v.(*model.Article)
	return a, nil
}

// Stats returns memo hits, misses and current size.
func (r *Resolver) Stats() (hits, misses, size int) {
	return int(r.hits.Load()), int(r.misses.Load()), r.cache.Len()
}

func (r *Resolver) resolve(ctx context.Context, key Key) (*model.Article, error) {
	if !extract.IsArticleURL(key.URL) {
		return nil, nil
	}

	markup, err := r.fetcher.FetchArticlePage(ctx, key.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch article: %w", err)
	}
	p, err := newPage(markup)
	if err != nil {
		return nil, fmt.Errorf("parse article %s: %w", key.URL, err)
	}

	ld, ok, err := p.linkedData()
	if err != nil {
		r.logger.Warn("unreadable linked data", "url", key.URL, "err", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	canonical := extract.StripFragment(ld.URL)
	if !extract.IsArticleURL(canonical) {
		return nil, nil
	}

	a := &model.Article{
		URL:            canonical,
		Name:           ld.Name,
		Headline:       ld.Headline,
		WikidataEntity: ld.MainEntity,
		Templates:      p.templates(),
		DatePublished:  parseTimestamp(ld.DatePublished),
		DateModified:   parseTimestamp(ld.DateModified),
		Coordinates:    p.coordinates(),
	}

	budget := key.Budget.Spend()
	table := p.infobox()
	if table.Length() > 0 {
		a.InfoboxHTML, _ = goquery.OuterHtml(table)
		res, err := r.infobox.Parse(ctx, table.Nodes[0], a.Templates, key.Scope, budget)
		if err != nil {
			return nil, fmt.Errorf("parse infobox of %s: %w", canonical, err)
		}
		a.InfoboxRows = res.Rows
		if len(res.Microformats) > 0 {
			a.Microformats = res.Microformats
		}
		if a.Coordinates == nil {
			a.Coordinates = res.Coordinates
		}
		r.recorder.RecordAnalytic(analytics.ArticlesWithInfobox, 1)
	}

	a.IsLocation, err = r.isPlace(ctx, table, a.Templates)
	if err != nil {
		return nil, err
	}
	if a.IsLocation {
		r.recorder.RecordAnalytic(analytics.LocationArticles, 1)
	}

	if a.WikidataEntity != "" {
		if err := r.enrich(ctx, a); err != nil {
			return nil, fmt.Errorf("enrich %s: %w", canonical, err)
		}
		if key.Scope == model.ScopeTopic && len(a.TypeLabels) > 0 {
			r.recorder.RecordAnalytic(analytics.TopicsWithType, 1)
		}
	}

	r.recorder.RecordAnalytic(analytics.Articles, 1)
	return a, nil
}

// isPlace classifies the article by infobox CSS marker or, failing that, by
// membership of one of its templates in the place template set.
func (r *Resolver) isPlace(ctx context.Context, table *goquery.Selection, templates []string) (bool, error) {
	if hasPlaceMarker(table) {
		return true, nil
	}
	set, err := r.placeTemplates(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range templates {
		if _, ok := set[t]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) placeTemplates(ctx context.Context) (map[string]struct{}, error) {
	if r.places == nil {
		return nil, nil
	}
	r.placeMu.Lock()
	defer r.placeMu.Unlock()
	if r.placeSet != nil {
		return r.placeSet, nil
	}
	set, err := r.places.PlaceTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("place templates: %w", err)
	}
	r.placeSet = set
	return set, nil
}

// enrich fills the knowledge-base derived fields of a.
func (r *Resolver) enrich(ctx context.Context, a *model.Article) error {
	if r.kb == nil {
		return nil
	}
	entity := a.WikidataEntity

	parents, err := r.kb.ParentLocations(ctx, entity)
	if err != nil {
		return fmt.Errorf("parent locations: %w", err)
	}
	if len(parents) > 0 {
		a.ParentLocations = parents
	}

	relations, objects, err := r.kb.OSMEntities(ctx, entity)
	if err != nil {
		return fmt.Errorf("osm entities: %w", err)
	}
	refs := objects
	if len(relations) > 0 {
		refs = make([]string, 0, len(relations))
		for _, id := range relations {
			refs = append(refs, "relation/"+id)
		}
	}
	if r.geocoder != nil {
		for _, ref := range refs {
			el, err := r.geocoder.Lookup(ctx, ref)
			if err != nil {
				return fmt.Errorf("lookup %s: %w", ref, err)
			}
			if el != nil {
				a.OSMElements = append(a.OSMElements, *el)
			}
		}
		if len(a.OSMElements) > 0 {
			r.recorder.RecordAnalytic(analytics.ArticlesWithOSMElement, 1)
		}
	}

	triples, err := r.kb.OneHopSubgraph(ctx, entity)
	if err != nil {
		return fmt.Errorf("one-hop subgraph: %w", err)
	}
	a.OneHop = triples

	var classes []string
	for _, t := range triples {
		if t.Subject == entity && t.Predicate == InstanceOf {
			classes = append(classes, t.Object)
		}
	}
	if len(classes) == 0 {
		return nil
	}
	labels, err := r.kb.EntityLabels(ctx, classes)
	if err != nil {
		return fmt.Errorf("type labels: %w", err)
	}
	if len(labels) > 0 {
		a.TypeLabels = labels
	}
	return nil
}
