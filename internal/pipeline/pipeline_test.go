package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/model"
	"github.com/ppiankov/currentevents/internal/sink"
)

const januaryPage = `<html><body><div class="mw-parser-output">
<div class="current-events-main vevent" id="2022_January_5">
<div class="current-events-content description">
<div class="current-events-content-heading" role="heading">Armed conflicts and attacks</div>
<ul>
<li><a href="/wiki/Kazakh_unrest" title="2022 Kazakh unrest">2022 Kazakh unrest</a>
<ul>
<li>Protesters storm the akimat in <a href="/wiki/Almaty" title="Almaty">Almaty</a>. The government resigns. <a rel="nofollow" class="external text" href="https://www.reuters.com/world/asia-pacific/kazakhstan">(Reuters)</a></li>
</ul>
</li>
</ul>
<p><b>Health and environment</b></p>
<ul>
<li>Case numbers rise across <a href="/wiki/Europe" title="Europe">Europe</a>. <a rel="nofollow" class="external text" href="https://apnews.com/article/x">(AP)</a></li>
</ul>
</div></div></div></body></html>`

func testArticle(canonical, entity, infobox string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head>
<script type="application/ld+json">{"url":"%s","name":"%s","mainEntity":"%s"}</script>
</head><body><div class="mw-parser-output">%s<p>Body.</p></div></body></html>`,
		canonical, filepath.Base(canonical), entity, infobox)
}

var testPages = map[string]string{
	"/wiki/Portal:Current_events/January_2022": januaryPage,
	"/wiki/Kazakh_unrest": testArticle("https://en.wikipedia.org/wiki/Kazakh_unrest", "http://www.wikidata.org/entity/Q110", `<table class="infobox vevent"><tbody>
<tr><th class="infobox-label">Date</th><td class="infobox-data">17 November 2019 - present</td></tr>
<tr><th class="infobox-label">Location</th><td class="infobox-data"><a href="/wiki/Almaty">Almaty</a></td></tr>
</tbody></table>`),
	"/wiki/Almaty": testArticle("https://en.wikipedia.org/wiki/Almaty", "http://www.wikidata.org/entity/Q35493", `<table class="infobox ib-settlement vcard"><tbody>
<tr><th class="infobox-label">Country</th><td class="infobox-data">Kazakhstan</td></tr>
</tbody></table>`),
	"/wiki/Wikipedia:List_of_infoboxes/Place": placeListPage,
}

type fakeServices struct {
	wiki      *httptest.Server
	sparql    *httptest.Server
	nominatim *httptest.Server

	mu          sync.Mutex
	wikiHits    map[string]int
	sparqlCalls atomic.Int32
}

func newFakeServices(t *testing.T) *fakeServices {
	t.Helper()
	fs := &fakeServices{wikiHits: make(map[string]int)}

	fs.wiki = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /w/\n")
			return
		}
		fs.mu.Lock()
		fs.wikiHits[r.URL.Path]++
		fs.mu.Unlock()
		if page, ok := testPages[r.URL.Path]; ok {
			_, _ = fmt.Fprint(w, page)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/wiki/Portal:") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = fmt.Fprint(w, "<html><body>no metadata</body></html>")
	}))
	t.Cleanup(fs.wiki.Close)

	fs.sparql = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.sparqlCalls.Add(1)
		_ = r.ParseForm()
		q := r.PostForm.Get("query")
		var bindings []map[string]any
		switch {
		case strings.Contains(q, "wd:Q35493 wdt:P402"):
			bindings = []map[string]any{{"relation": map[string]string{"type": "literal", "value": "214665"}}}
		case strings.Contains(q, "<http://www.wikidata.org/entity/Q35493> ?p ?o"):
			bindings = []map[string]any{{
				"p": map[string]string{"type": "uri", "value": "http://www.wikidata.org/prop/direct/P31"},
				"o": map[string]string{"type": "uri", "value": "http://www.wikidata.org/entity/Q515"},
			}}
		case strings.Contains(q, "rdfs:label"):
			bindings = []map[string]any{{
				"e":     map[string]string{"type": "uri", "value": "http://www.wikidata.org/entity/Q515"},
				"label": map[string]string{"type": "literal", "value": "city"},
			}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": map[string]any{"bindings": bindings}})
	}))
	t.Cleanup(fs.sparql.Close)

	fs.nominatim = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/lookup" && r.URL.Query().Get("osm_ids") == "R214665" {
			_, _ = fmt.Fprint(w, `[{"osm_type":"relation","osm_id":214665,"geotext":"POINT(76.9 43.2)"}]`)
			return
		}
		_, _ = fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(fs.nominatim.Close)
	return fs
}

func (fs *fakeServices) hits(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.wikiHits[path]
}

func (fs *fakeServices) config(dir string) *model.Config {
	cfg := model.DefaultConfig()
	cfg.HTTP.BaseURL = fs.wiki.URL
	cfg.HTTP.Spacing = 0
	cfg.HTTP.Timeout = 5 * time.Second
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	cfg.Wikidata = model.ServiceConfig{Endpoint: fs.sparql.URL, Retries: 1}
	cfg.Nominatim = model.ServiceConfig{Endpoint: fs.nominatim.URL, Retries: 1}
	cfg.NER.Provider = "none"
	cfg.Sink = model.SinkConfig{Type: "jsonl", Path: filepath.Join(dir, "dataset")}
	cfg.Analytics.TextfilePath = filepath.Join(dir, "analytics", "run.prom")
	cfg.Run.StartDay = 5
	cfg.Run.EndDay = 5
	return cfg
}

func runPipeline(t *testing.T, cfg *model.Config, months ...Month) *Summary {
	t.Helper()
	ctx := context.Background()
	p, err := NewPipeline(ctx, cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	summary, runErr := p.Run(ctx, months)
	if err := p.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	return summary
}

func readRecords[T any](t *testing.T, path string) []T {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var recs []T
	for line := range strings.Lines(string(data)) {
		var rec T
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		recs = append(recs, rec)
	}
	return recs
}

func TestPipeline_Run(t *testing.T) {
	fs := newFakeServices(t)
	dir := t.TempDir()
	cfg := fs.config(dir)

	summary := runPipeline(t, cfg,
		Month{Year: 2022, Month: time.January},
		Month{Year: 2022, Month: time.February},
	)

	if len(summary.Parsed) != 1 || summary.Parsed[0] != (Month{Year: 2022, Month: time.January}) {
		t.Errorf("parsed = %v", summary.Parsed)
	}
	if len(summary.Skipped) != 1 || summary.Skipped[0].Month.Month != time.February {
		t.Fatalf("skipped = %v", summary.Skipped)
	}
	if summary.Analytics[analytics.MonthsSkipped] != 1 {
		t.Errorf("months_skipped = %d", summary.Analytics[analytics.MonthsSkipped])
	}
	if summary.Analytics[analytics.Events] != 2 || summary.Analytics[analytics.Topics] != 3 {
		t.Errorf("analytics = %v", summary.Analytics)
	}
	if jan := summary.PerMonth[Month{Year: 2022, Month: time.January}]; jan[analytics.Events] != 2 {
		t.Errorf("january analytics = %v", jan)
	}
	if summary.Cache.Misses == 0 {
		t.Error("expected cache stats to be recorded")
	}

	events := readRecords[sink.EventRecord](t, filepath.Join(cfg.Sink.Path, sink.EventsFile))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Category != "Armed conflicts and attacks" || len(events[0].ParentIDs) != 1 {
		t.Errorf("event = %+v", events[0])
	}
	if len(events[0].Articles) != 1 {
		t.Fatalf("expected the Almaty article, got %+v", events[0].Articles)
	}
	almaty := events[0].Articles[0]
	if !almaty.IsLocation || almaty.TypeLabels["Q515"] != "city" {
		t.Errorf("almaty = %+v", almaty.Article)
	}
	if len(almaty.OSMElements) != 1 || almaty.OSMElements[0].ID != "214665" {
		t.Errorf("osm elements = %+v", almaty.OSMElements)
	}

	topics := readRecords[sink.TopicRecord](t, filepath.Join(cfg.Sink.Path, sink.TopicsFile))
	if len(topics) != 3 {
		t.Fatalf("got %d topics, want 3", len(topics))
	}
	unrest := topics[1]
	if unrest.Article == nil || len(unrest.Article.Infobox) != 2 {
		t.Fatalf("unrest article = %+v", unrest.Article)
	}

	for _, path := range []string{
		cfg.Analytics.TextfilePath,
		filepath.Join(cfg.Cache.Dir, wikidataSnapshot),
		filepath.Join(cfg.Cache.Dir, nominatimSnapshot),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s: %v", path, err)
		}
	}
	prom, _ := os.ReadFile(cfg.Analytics.TextfilePath)
	if !strings.Contains(string(prom), "currentevents_extracted_total") {
		t.Error("analytics textfile lacks counters")
	}
}

func TestPipeline_CachesAcrossRuns(t *testing.T) {
	fs := newFakeServices(t)
	dir := t.TempDir()
	cfg := fs.config(dir)
	january := Month{Year: 2022, Month: time.January}

	runPipeline(t, cfg, january)
	articleHits := fs.hits("/wiki/Almaty")
	sparqlCalls := fs.sparqlCalls.Load()
	if articleHits != 1 || sparqlCalls == 0 {
		t.Fatalf("first run: article hits %d, sparql calls %d", articleHits, sparqlCalls)
	}

	runPipeline(t, cfg, january)
	if got := fs.hits("/wiki/Almaty"); got != articleHits {
		t.Errorf("article refetched: %d hits", got)
	}
	if got := fs.hits("/wiki/Portal:Current_events/January_2022"); got != 1 {
		t.Errorf("month page fetched %d times, want 1", got)
	}
	if got := fs.sparqlCalls.Load(); got != sparqlCalls {
		t.Errorf("sparql queried again: %d calls, want %d", got, sparqlCalls)
	}

	cfg.Cache.IgnoreOutlineCache = true
	runPipeline(t, cfg, january)
	if got := fs.hits("/wiki/Portal:Current_events/January_2022"); got != 2 {
		t.Errorf("ignored outline cache: month page fetched %d times, want 2", got)
	}
}

func TestPipeline_CrashOnError(t *testing.T) {
	fs := newFakeServices(t)
	cfg := fs.config(t.TempDir())
	cfg.Run.CrashOnError = true
	ctx := context.Background()

	p, err := NewPipeline(ctx, cfg, log.New(io.Discard))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer func() { _ = p.Close(ctx) }()

	summary, err := p.Run(ctx, []Month{{Year: 2022, Month: time.February}, {Year: 2022, Month: time.January}})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(summary.Parsed) != 0 || len(summary.Skipped) != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestPipeline_UnknownSink(t *testing.T) {
	fs := newFakeServices(t)
	cfg := fs.config(t.TempDir())
	cfg.Sink.Type = "kafka"

	if _, err := NewPipeline(context.Background(), cfg, log.New(io.Discard)); err == nil {
		t.Fatal("expected error for unknown sink")
	}
}

func TestMonthRange(t *testing.T) {
	tests := []struct {
		start, end string
		want       []string
		wantErr    bool
	}{
		{"1/2022", "3/2022", []string{"1/2022", "2/2022", "3/2022"}, false},
		{"11/2021", "2/2022", []string{"11/2021", "12/2021", "1/2022", "2/2022"}, false},
		{"5/2022", "", []string{"5/2022"}, false},
		{"3/2022", "1/2022", nil, true},
		{"13/2022", "", nil, true},
		{"2022-01", "", nil, true},
		{"1/22", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.start+"-"+tt.end, func(t *testing.T) {
			months, err := MonthRange(tt.start, tt.end)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			var got []string
			for _, m := range months {
				got = append(got, m.String())
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("MonthRange = %v, want %v", got, tt.want)
			}
		})
	}
}
