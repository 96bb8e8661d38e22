package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/ppiankov/currentevents/internal/cache"
	"github.com/ppiankov/currentevents/internal/extract"
	"github.com/ppiankov/currentevents/internal/util"
	"github.com/ppiankov/currentevents/internal/worker"
)

// ErrDisallowed is wrapped in a FetchError when robots.txt forbids a page.
var ErrDisallowed = errors.New("disallowed by robots.txt")

const (
	outlinePath    = "/wiki/Portal:Current_events/"
	placeListTitle = "/wiki/Wikipedia:List_of_infoboxes/Place"
)

// SourceOptions configures a WikiSource. Nil caches, limiter and robots
// checker are skipped.
type SourceOptions struct {
	Fetcher      *Fetcher
	Limiter      *worker.Limiter
	Robots       *util.RobotsChecker
	OutlineCache cache.Cache
	ArticleCache cache.Cache

	// IgnoreOutlineCache and IgnoreArticleCache refetch pages and overwrite
	// the cached copies.
	IgnoreOutlineCache bool
	IgnoreArticleCache bool

	// BaseURL replaces the wiki origin for every request. Cache keys and
	// returned URLs keep the canonical origin.
	BaseURL string
	Logger  *log.Logger
}

// WikiSource serves month pages, article pages and the place template set,
// through the page caches.
type WikiSource struct {
	fetcher            *Fetcher
	limiter            *worker.Limiter
	robots             *util.RobotsChecker
	outlineCache       cache.Cache
	articleCache       cache.Cache
	ignoreOutlineCache bool
	ignoreArticleCache bool
	baseURL            string
	logger             *log.Logger
}

// NewWikiSource creates a WikiSource
func NewWikiSource(opts SourceOptions) *WikiSource {
	s := &WikiSource{
		fetcher:            opts.Fetcher,
		limiter:            opts.Limiter,
		robots:             opts.Robots,
		outlineCache:       opts.OutlineCache,
		articleCache:       opts.ArticleCache,
		ignoreOutlineCache: opts.IgnoreOutlineCache,
		ignoreArticleCache: opts.IgnoreArticleCache,
		baseURL:            strings.TrimSuffix(opts.BaseURL, "/"),
		logger:             opts.Logger,
	}
	if s.logger == nil {
		s.logger = log.New(io.Discard)
	}
	return s
}

// OutlineURL returns the portal URL of a month page
func OutlineURL(monthLabel string) string {
	return extract.WikiBaseURL + outlinePath + monthLabel
}

// FetchOutlinePage returns the month page for monthLabel, e.g. "January_2022".
func (s *WikiSource) FetchOutlinePage(ctx context.Context, monthLabel string) (string, string, error) {
	sourceURL := OutlineURL(monthLabel)
	markup, err := s.page(ctx, cache.NamespaceOutline, sourceURL, s.outlineCache, s.ignoreOutlineCache)
	if err != nil {
		return "", "", err
	}
	return sourceURL, markup, nil
}

// FetchArticlePage returns the markup of an article page
func (s *WikiSource) FetchArticlePage(ctx context.Context, rawURL string) (string, error) {
	return s.page(ctx, cache.NamespaceArticle, rawURL, s.articleCache, s.ignoreArticleCache)
}

// PlaceTemplates returns the infobox templates listed as place templates,
// e.g. "Template:Infobox_settlement". The set is cached as a JSON list.
func (s *WikiSource) PlaceTemplates(ctx context.Context) (map[string]struct{}, error) {
	listURL := extract.WikiBaseURL + placeListTitle
	key := cache.CacheKey(cache.NamespacePlaces, listURL)
	if s.articleCache != nil && !s.ignoreArticleCache {
		if data, ok := s.articleCache.Get(ctx, key); ok {
			var names []string
			if err := json.Unmarshal(data, &names); err == nil {
				return toSet(names), nil
			}
			s.logger.Warn("discarding unreadable place template cache", "key", key)
		}
	}

	markup, err := s.page(ctx, cache.NamespaceArticle, listURL, s.articleCache, s.ignoreArticleCache)
	if err != nil {
		return nil, err
	}
	names, err := parsePlaceTemplates(markup)
	if err != nil {
		return nil, fmt.Errorf("parse place templates: %w", err)
	}

	if s.articleCache != nil {
		data, _ := json.Marshal(names)
		if err := s.articleCache.Set(ctx, key, data, 0); err != nil {
			s.logger.Warn("cache place templates", "err", err)
		}
	}
	return toSet(names), nil
}

// parsePlaceTemplates collects the template names linked from the list
// page's content area.
func parsePlaceTemplates(markup string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var names []string
	doc.Find("div.mw-parser-output a").Each(func(_ int, a *goquery.Selection) {
		if !strings.HasPrefix(strings.TrimSpace(a.Text()), "Template:Infobox") {
			return
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		name := path.Base(extract.StripFragment(href))
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		names = append(names, name)
	})
	return names, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// page returns rawURL's markup from c, or fetches and stores it.
func (s *WikiSource) page(ctx context.Context, namespace, rawURL string, c cache.Cache, ignore bool) (string, error) {
	key := cache.CacheKey(namespace, rawURL)
	if c != nil && !ignore {
		if data, ok := c.Get(ctx, key); ok {
			return string(data), nil
		}
	}

	target := s.requestURL(rawURL)
	if s.robots != nil {
		allowed, delay, err := s.robots.CanFetch(ctx, target)
		if err != nil {
			return "", &FetchError{URL: rawURL, Err: err}
		}
		if !allowed {
			return "", &FetchError{URL: rawURL, Err: ErrDisallowed}
		}
		if s.limiter != nil && delay > 0 {
			if u, err := url.Parse(target); err == nil {
				s.limiter.RaiseHostSpacing(u.Host, delay)
			}
		}
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, target); err != nil {
			return "", &FetchError{URL: rawURL, Err: err}
		}
	}

	s.logger.Debug("fetching", "url", rawURL)
	res, err := s.fetcher.FetchWithRetry(ctx, target)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}

	if c != nil {
		if err := c.Set(ctx, key, []byte(res.HTML), 0); err != nil {
			s.logger.Warn("cache page", "url", rawURL, "err", err)
		}
	}
	return res.HTML, nil
}

// requestURL points rawURL at the configured origin.
func (s *WikiSource) requestURL(rawURL string) string {
	if s.baseURL == "" {
		return rawURL
	}
	if rest, ok := strings.CutPrefix(rawURL, extract.WikiBaseURL); ok {
		return s.baseURL + rest
	}
	return rawURL
}
