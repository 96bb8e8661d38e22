package outline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/currentevents/internal/article"
	"github.com/ppiankov/currentevents/internal/model"
)

const sourceURL = "https://en.wikipedia.org/wiki/Portal:Current_events/January_2022"

type recordingSink struct {
	mu     sync.Mutex
	topics []*model.Topic
	events []*model.Event
}

func (s *recordingSink) StoreTopic(_ context.Context, t *model.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, t)
	return nil
}

func (s *recordingSink) StoreEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

type fakeResolver struct {
	mu       sync.Mutex
	articles map[string]*model.Article
	keys     []model.ResolveKey
}

func (r *fakeResolver) Resolve(_ context.Context, key model.ResolveKey) (*model.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return r.articles[key.URL], nil
}

func (r *fakeResolver) Stats() (int, int, int) { return 0, len(r.keys), len(r.keys) }

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) FetchArticlePage(_ context.Context, url string) (string, error) {
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return "<html><body></body></html>", nil
}

// monthPage wraps day sections into a portal page.
func monthPage(days ...string) string {
	return `<html><body><div class="mw-parser-output">` + strings.Join(days, "\n") + `</div></body></html>`
}

func daySection(id, content string) string {
	return fmt.Sprintf(`<div class="current-events-main vevent" id="%s">
<div class="current-events-heading plainlinks"><span class="summary">%s</span></div>
<div class="current-events-content description">
%s
</div></div>`, id, id, content)
}

const januaryFifth = `<div class="current-events-content-heading" role="heading">Armed conflicts and attacks</div>
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
</ul>`

const unrestPage = `<!DOCTYPE html><html><head>
<script type="application/ld+json">{"url":"https://en.wikipedia.org/wiki/Kazakh_unrest","name":"2022 Kazakh unrest"}</script>
</head><body><table class="infobox vevent"><tbody>
<tr><th class="infobox-label">Date</th><td class="infobox-data">17 November 2019 - present</td></tr>
<tr><th class="infobox-label">Location</th><td class="infobox-data"><a href="/wiki/Kazakhstan">Kazakhstan</a></td></tr>
</tbody></table></body></html>`

func TestParseMonth_EndToEnd(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://en.wikipedia.org/wiki/Kazakh_unrest": unrestPage,
	}}
	resolver, err := article.NewResolver(article.Options{Fetcher: fetcher})
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	p := NewParser(Options{Resolver: resolver, Sink: sink, TopicBudget: 2, EventBudget: 1, StartDay: 5, EndDay: 5})

	page := monthPage(daySection("2022_January_5", januaryFifth))
	if err := p.ParseMonth(context.Background(), sourceURL, page, 2022, time.January); err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}

	if len(sink.topics) != 3 {
		t.Fatalf("topics = %d, want 3", len(sink.topics))
	}
	root, unrest, health := sink.topics[0], sink.topics[1], sink.topics[2]
	if root.Label != "Armed conflicts and attacks" || root.Index != 0 {
		t.Errorf("root = %q #%d", root.Label, root.Index)
	}
	if unrest.Label != "2022 Kazakh unrest" || unrest.Href != "https://en.wikipedia.org/wiki/Kazakh_unrest" {
		t.Errorf("nested topic = %q %q", unrest.Label, unrest.Href)
	}
	if len(unrest.ParentTopics) != 1 || unrest.ParentTopics[0] != root {
		t.Errorf("nested topic parents = %v", unrest.ParentTopics)
	}
	if health.Label != "Health and environment" || health.Index != 2 {
		t.Errorf("second heading = %q #%d", health.Label, health.Index)
	}

	if unrest.Article == nil {
		t.Fatal("nested topic article not resolved")
	}
	row, ok := unrest.Article.InfoboxRows["Date"].(*model.DateRow)
	if !ok {
		t.Fatalf("Date row = %T", unrest.Article.InfoboxRows["Date"])
	}
	if !row.Ongoing {
		t.Error("expected ongoing date")
	}
	if row.End != nil {
		t.Errorf("End = %v, want nil", row.End)
	}
	if row.Start == nil || !row.Start.Equal(time.Date(2019, time.November, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", row.Start)
	}

	if len(sink.events) != 2 {
		t.Fatalf("events = %d, want 2", len(sink.events))
	}
	e := sink.events[0]
	if e.Text != "Protesters storm the akimat in Almaty. The government resigns." {
		t.Errorf("Text = %q", e.Text)
	}
	if e.Category != "Armed conflicts and attacks" {
		t.Errorf("Category = %q", e.Category)
	}
	if len(e.Sentences) != 2 || e.Sentences[0].Text != "Protesters storm the akimat in Almaty. " {
		t.Errorf("Sentences = %+v", e.Sentences)
	}
	var joined strings.Builder
	for _, s := range e.Sentences {
		joined.WriteString(s.Text)
	}
	if joined.String() != e.Text {
		t.Errorf("sentences do not cover text: %q", joined.String())
	}
	if e.SourceText != "(Reuters)" || len(e.References) != 1 || e.References[0].AnchorText != "Reuters" {
		t.Errorf("source = %q refs = %+v", e.SourceText, e.References)
	}
	if e.ID() != sourceURL+"#2022-01-05_E0" {
		t.Errorf("ID = %q", e.ID())
	}
	if sink.events[1].Category != "Health and environment" || sink.events[1].Index != 1 {
		t.Errorf("second event = %q #%d", sink.events[1].Category, sink.events[1].Index)
	}
}

func TestParseMonth_MissingDay(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(Options{Sink: sink, StartDay: 4, EndDay: 5})

	page := monthPage(daySection("2022_January_5", januaryFifth))
	err := p.ParseMonth(context.Background(), sourceURL, page, 2022, time.January)
	if !errors.Is(err, ErrDayNotFound) {
		t.Fatalf("err = %v, want ErrDayNotFound", err)
	}
	if !strings.Contains(err.Error(), "2022_January_4") {
		t.Errorf("error does not name the day: %v", err)
	}
	if len(sink.events) != 2 {
		t.Errorf("events = %d, the other day must still be parsed", len(sink.events))
	}
}

func TestParseMonth_DaysPastMonthEnd(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(Options{Sink: sink, StartDay: 28, EndDay: 31})

	page := monthPage(daySection("2022_February_28", januaryFifth))
	if err := p.ParseMonth(context.Background(), sourceURL, page, 2022, time.February); err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	if len(sink.events) != 2 {
		t.Errorf("events = %d, want 2", len(sink.events))
	}
}

func TestParseMonth_ParallelDays(t *testing.T) {
	var days []string
	for d := 1; d <= 10; d++ {
		days = append(days, daySection(fmt.Sprintf("2022_January_%d", d), januaryFifth))
	}
	page := monthPage(days...)

	sink := &recordingSink{}
	p := NewParser(Options{Sink: sink, Workers: 4, StartDay: 1, EndDay: 10})
	if err := p.ParseMonth(context.Background(), sourceURL, page, 2022, time.January); err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	if len(sink.events) != 20 || len(sink.topics) != 30 {
		t.Errorf("events = %d topics = %d, want 20 and 30", len(sink.events), len(sink.topics))
	}
	ids := make(map[string]bool)
	for _, e := range sink.events {
		ids[e.ID()] = true
	}
	if len(ids) != 20 {
		t.Errorf("event ids collide: %d unique", len(ids))
	}
}

func TestParseDay_MultipleAnchors(t *testing.T) {
	content := `<div class="current-events-content-heading">Armed conflicts and attacks</div>
<ul><li><a href="/wiki/Russo-Ukrainian_War">Russo-Ukrainian War</a>, <a href="/wiki/Kharkiv">Kharkiv, Ukraine</a>, <i><a href="/wiki/Siege_of_Kharkiv">Siege of Kharkiv</a></i> (ongoing)
<ul><li>Shelling continues.</li></ul></li></ul>`
	resolver := &fakeResolver{}
	sink := &recordingSink{}
	p := NewParser(Options{Resolver: resolver, Sink: sink, TopicBudget: 2, EventBudget: 1, StartDay: 1, EndDay: 1})

	page := monthPage(daySection("2022_March_1", content))
	if err := p.ParseMonth(context.Background(), sourceURL, page, 2022, time.March); err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}

	want := []string{"Armed conflicts and attacks", "Russo-Ukrainian War", "Kharkiv, Ukraine", "Siege of Kharkiv (ongoing)"}
	if len(sink.topics) != len(want) {
		t.Fatalf("topics = %d, want %d", len(sink.topics), len(want))
	}
	for i, w := range want {
		if sink.topics[i].Label != w {
			t.Errorf("topic %d label = %q, want %q", i, sink.topics[i].Label, w)
		}
		if sink.topics[i].Index != i {
			t.Errorf("topic %d index = %d", i, sink.topics[i].Index)
		}
	}
	if got := len(sink.events[0].ParentTopics); got != 3 {
		t.Errorf("event parents = %d, want 3", got)
	}

	for _, k := range resolver.keys {
		if k.Scope != model.ScopeTopic || k.Budget.Hops() != 2 {
			t.Errorf("topic key = %+v", k)
		}
	}
	if len(resolver.keys) != 3 {
		t.Errorf("resolutions = %d, want 3", len(resolver.keys))
	}
}

func TestParseDay_UnlinkedTopic(t *testing.T) {
	content := `<p><b>Disasters and accidents</b></p>
<ul><li>Flooding
<ul><li>Rivers burst their banks.</li></ul></li></ul>`
	sink := &recordingSink{}
	p := NewParser(Options{Sink: sink, StartDay: 2, EndDay: 2})

	page := monthPage(daySection("2022_January_2", content))
	if err := p.ParseMonth(context.Background(), sourceURL, page, 2022, time.January); err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	if len(sink.topics) != 2 || sink.topics[1].Label != "Flooding" || sink.topics[1].Href != "" {
		t.Fatalf("topics = %+v", sink.topics)
	}
	if sink.events[0].Category != "Disasters and accidents" {
		t.Errorf("Category = %q", sink.events[0].Category)
	}
}

func TestParseDay_EventLinksResolvedInEventScope(t *testing.T) {
	almaty := &model.Article{URL: "https://en.wikipedia.org/wiki/Almaty", IsLocation: true}
	resolver := &fakeResolver{articles: map[string]*model.Article{almaty.URL: almaty}}
	sink := &recordingSink{}
	p := NewParser(Options{Resolver: resolver, Sink: sink, TopicBudget: 2, EventBudget: 1, StartDay: 5, EndDay: 5})

	page := monthPage(daySection("2022_January_5", januaryFifth))
	if err := p.ParseMonth(context.Background(), sourceURL, page, 2022, time.January); err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	var eventKeys int
	for _, k := range resolver.keys {
		if k.Scope == model.ScopeEvent {
			eventKeys++
			if k.Budget.Hops() != 1 {
				t.Errorf("event key budget = %d", k.Budget.Hops())
			}
			if strings.Contains(k.URL, "reuters") || strings.Contains(k.URL, "apnews") {
				t.Errorf("source link resolved: %s", k.URL)
			}
		}
	}
	if eventKeys != 2 {
		t.Errorf("event resolutions = %d, want 2", eventKeys)
	}
	links := sink.events[0].Sentences[0].Links
	if len(links) != 1 || links[0].Article != almaty || !links[0].IsLocation() {
		t.Errorf("sentence links = %+v", links)
	}
}

func TestParseDay_Sample(t *testing.T) {
	sink := &recordingSink{}
	p := NewParser(Options{Sink: sink, StartDay: 5, EndDay: 5, Sample: 1})

	page := monthPage(daySection("2022_January_5", januaryFifth))
	if err := p.ParseMonth(context.Background(), sourceURL, page, 2022, time.January); err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	if len(sink.events) != 1 {
		t.Errorf("events = %d, want 1", len(sink.events))
	}
}

func TestParseDay_DeepNesting(t *testing.T) {
	const depth = 200
	var b strings.Builder
	b.WriteString(`<div class="current-events-content-heading">Politics and elections</div><ul>`)
	for i := range depth {
		fmt.Fprintf(&b, `<li><a href="/wiki/Topic_%d">Topic %d</a><ul>`, i, i)
	}
	b.WriteString(`<li>Leaf event.</li>`)
	for range depth {
		b.WriteString(`</ul></li>`)
	}
	b.WriteString(`</ul>`)

	sink := &recordingSink{}
	p := NewParser(Options{Sink: sink, StartDay: 3, EndDay: 3})
	page := monthPage(daySection("2022_January_3", b.String()))
	if err := p.ParseMonth(context.Background(), sourceURL, page, 2022, time.January); err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	if len(sink.topics) != depth+1 || len(sink.events) != 1 {
		t.Fatalf("topics = %d events = %d", len(sink.topics), len(sink.events))
	}
	if sink.events[0].Category != "Politics and elections" {
		t.Errorf("Category = %q", sink.events[0].Category)
	}
}

type fakeSource struct {
	label string
}

func (s *fakeSource) FetchOutlinePage(_ context.Context, label string) (string, string, error) {
	s.label = label
	return sourceURL, monthPage(daySection("2022_January_5", januaryFifth)), nil
}

func TestRunMonth(t *testing.T) {
	source := &fakeSource{}
	sink := &recordingSink{}
	p := NewParser(Options{Source: source, Sink: sink, StartDay: 5, EndDay: 5})
	if err := p.RunMonth(context.Background(), 2022, time.January); err != nil {
		t.Fatalf("RunMonth: %v", err)
	}
	if source.label != "January_2022" {
		t.Errorf("label = %q", source.label)
	}
	if len(sink.events) != 2 {
		t.Errorf("events = %d", len(sink.events))
	}
}

func TestEventTypes(t *testing.T) {
	protest := map[string]string{"http://www.wikidata.org/entity/Q273120": "protest"}
	war := map[string]string{"http://www.wikidata.org/entity/Q198": "war"}

	root := &model.Topic{Label: "Armed conflicts and attacks"}
	typed := &model.Topic{Label: "War", Article: &model.Article{TypeLabels: war}, ParentTopics: []*model.Topic{root}}
	untyped := &model.Topic{Label: "Kharkiv", Article: &model.Article{}, ParentTopics: []*model.Topic{typed}}
	other := &model.Topic{Label: "Protests", Article: &model.Article{TypeLabels: protest}, ParentTopics: []*model.Topic{root}}

	tests := []struct {
		name    string
		parents []*model.Topic
		want    []string
	}{
		{"direct", []*model.Topic{typed}, []string{"war"}},
		{"inherited", []*model.Topic{untyped}, []string{"war"}},
		{"union of siblings", []*model.Topic{typed, other}, []string{"war", "protest"}},
		{"nearest wins", []*model.Topic{untyped, other}, []string{"protest"}},
		{"none", []*model.Topic{root}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eventTypes(tt.parents)
			if len(got) != len(tt.want) {
				t.Fatalf("eventTypes = %v, want %v", got, tt.want)
			}
			labels := make(map[string]bool)
			for _, l := range got {
				labels[l] = true
			}
			for _, w := range tt.want {
				if !labels[w] {
					t.Errorf("missing %q in %v", w, got)
				}
			}
		})
	}
}

func TestSplitOutsideLinks(t *testing.T) {
	text := "Russo-Ukrainian War, Kharkiv, Ukraine, Siege"
	links := []model.Link{{StartPos: 21, EndPos: 37}}
	got := splitOutsideLinks(text, links)
	want := []string{"Russo-Ukrainian War", " Kharkiv, Ukraine", " Siege"}
	if len(got) != len(want) {
		t.Fatalf("portions = %+v", got)
	}
	for i, w := range want {
		if got[i].text != w {
			t.Errorf("portion %d = %q, want %q", i, got[i].text, w)
		}
	}
	if labelFor(got, 21) != "Kharkiv, Ukraine" {
		t.Errorf("labelFor = %q", labelFor(got, 21))
	}
}

func TestDayID(t *testing.T) {
	if got := DayID(time.Date(2022, time.January, 5, 0, 0, 0, 0, time.UTC)); got != "2022_January_5" {
		t.Errorf("DayID = %q", got)
	}
	if got := MonthLabel(2022, time.February); got != "February_2022" {
		t.Errorf("MonthLabel = %q", got)
	}
}
