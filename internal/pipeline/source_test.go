package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/currentevents/internal/cache"
	"github.com/ppiankov/currentevents/internal/util"
	"github.com/ppiankov/currentevents/internal/worker"
)

const placeListPage = `<html><body><div class="mw-parser-output">
<ul>
<li><a href="/wiki/Template:Infobox_settlement" title="Template:Infobox settlement">Template:Infobox settlement</a></li>
<li><a href="/wiki/Template:Infobox_country" title="Template:Infobox country">Template:Infobox country</a></li>
<li><a href="/wiki/Template:Infobox_country">Template:Infobox country</a></li>
<li><a href="/wiki/Help:Infobox">Help:Infobox</a></li>
</ul></div>
<div class="navbox"><a href="/wiki/Template:Infobox_person">Template:Infobox person</a></div>
</body></html>`

type wikiServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newWikiServer(t *testing.T) *wikiServer {
	t.Helper()
	ws := &wikiServer{hits: make(map[string]int)}
	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		ws.hits[r.URL.Path]++
		ws.mu.Unlock()
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /w/\n")
		case "/wiki/Portal:Current_events/January_2022":
			_, _ = fmt.Fprint(w, "<html>january</html>")
		case "/wiki/Kharkiv":
			_, _ = fmt.Fprint(w, "<html>kharkiv</html>")
		case "/wiki/Wikipedia:List_of_infoboxes/Place":
			_, _ = fmt.Fprint(w, placeListPage)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ws.Close)
	return ws
}

func (ws *wikiServer) count(path string) int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.hits[path]
}

func newTestSource(ws *wikiServer, opts SourceOptions) *WikiSource {
	opts.Fetcher = NewFetcher(5*time.Second, "test-agent", 1<<20, false, "", "", "")
	opts.BaseURL = ws.URL
	return NewWikiSource(opts)
}

func TestWikiSource_OutlinePageCached(t *testing.T) {
	ws := newWikiServer(t)
	src := newTestSource(ws, SourceOptions{OutlineCache: cache.NewMemoryCache(0, time.Minute)})
	ctx := context.Background()

	for range 2 {
		sourceURL, markup, err := src.FetchOutlinePage(ctx, "January_2022")
		if err != nil {
			t.Fatalf("FetchOutlinePage: %v", err)
		}
		if sourceURL != "https://en.wikipedia.org/wiki/Portal:Current_events/January_2022" {
			t.Errorf("sourceURL = %q", sourceURL)
		}
		if markup != "<html>january</html>" {
			t.Errorf("markup = %q", markup)
		}
	}
	if n := ws.count("/wiki/Portal:Current_events/January_2022"); n != 1 {
		t.Errorf("outline fetched %d times, want 1", n)
	}
}

func TestWikiSource_IgnoreCache(t *testing.T) {
	ws := newWikiServer(t)
	articles := cache.NewMemoryCache(0, time.Minute)
	src := newTestSource(ws, SourceOptions{ArticleCache: articles, IgnoreArticleCache: true})
	ctx := context.Background()

	for range 2 {
		if _, err := src.FetchArticlePage(ctx, "https://en.wikipedia.org/wiki/Kharkiv"); err != nil {
			t.Fatalf("FetchArticlePage: %v", err)
		}
	}
	if n := ws.count("/wiki/Kharkiv"); n != 2 {
		t.Errorf("article fetched %d times, want 2", n)
	}
	// ignored caches are still refreshed
	if _, ok := articles.Get(ctx, cache.CacheKey(cache.NamespaceArticle, "https://en.wikipedia.org/wiki/Kharkiv")); !ok {
		t.Error("expected refreshed cache entry")
	}
}

func TestWikiSource_FetchError(t *testing.T) {
	ws := newWikiServer(t)
	src := newTestSource(ws, SourceOptions{})

	_, err := src.FetchArticlePage(context.Background(), "https://en.wikipedia.org/wiki/Red_link")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.URL != "https://en.wikipedia.org/wiki/Red_link" {
		t.Errorf("FetchError.URL = %q", fe.URL)
	}
}

func TestWikiSource_Robots(t *testing.T) {
	ws := newWikiServer(t)
	src := newTestSource(ws, SourceOptions{Robots: util.NewRobotsChecker("test-agent", 5*time.Second, nil)})
	ctx := context.Background()

	_, err := src.FetchArticlePage(ctx, "https://en.wikipedia.org/w/index.php?title=Kharkiv")
	if !errors.Is(err, ErrDisallowed) {
		t.Fatalf("expected ErrDisallowed, got %v", err)
	}
	if _, err := src.FetchArticlePage(ctx, "https://en.wikipedia.org/wiki/Kharkiv"); err != nil {
		t.Fatalf("allowed page: %v", err)
	}
}

func TestWikiSource_Limiter(t *testing.T) {
	ws := newWikiServer(t)
	src := newTestSource(ws, SourceOptions{Limiter: worker.NewLimiter(50 * time.Millisecond)})
	ctx := context.Background()

	start := time.Now()
	for range 3 {
		if _, err := src.FetchArticlePage(ctx, "https://en.wikipedia.org/wiki/Kharkiv"); err != nil {
			t.Fatalf("FetchArticlePage: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("three spaced requests took %v, want about 100ms", elapsed)
	}
}

func TestWikiSource_PlaceTemplates(t *testing.T) {
	ws := newWikiServer(t)
	src := newTestSource(ws, SourceOptions{ArticleCache: cache.NewMemoryCache(0, time.Minute)})
	ctx := context.Background()

	for range 2 {
		set, err := src.PlaceTemplates(ctx)
		if err != nil {
			t.Fatalf("PlaceTemplates: %v", err)
		}
		if len(set) != 2 {
			t.Errorf("got %d templates, want 2: %v", len(set), set)
		}
		for _, name := range []string{"Template:Infobox_settlement", "Template:Infobox_country"} {
			if _, ok := set[name]; !ok {
				t.Errorf("missing %s", name)
			}
		}
		if _, ok := set["Template:Infobox_person"]; ok {
			t.Error("links outside the content area must be ignored")
		}
	}
	if n := ws.count("/wiki/Wikipedia:List_of_infoboxes/Place"); n != 1 {
		t.Errorf("list page fetched %d times, want 1", n)
	}
}

func TestOutlineURL(t *testing.T) {
	if got := OutlineURL("March_2022"); got != "https://en.wikipedia.org/wiki/Portal:Current_events/March_2022" {
		t.Errorf("OutlineURL = %q", got)
	}
}
