// Package outline walks the day sections of a current-events month page and
// turns their nested lists into topics and events.
package outline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/model"
	"github.com/ppiankov/currentevents/internal/worker"
)

// ErrDayNotFound is returned when a day's outline container is missing.
var ErrDayNotFound = errors.New("outline: day container not found")

// PageSource fetches the month page, e.g. for monthLabel "January_2022".
type PageSource interface {
	FetchOutlinePage(ctx context.Context, monthLabel string) (sourceURL string, markup string, err error)
}

// Resolver resolves linked articles and reports its memo state.
type Resolver interface {
	Resolve(ctx context.Context, key model.ResolveKey) (*model.Article, error)
	Stats() (hits, misses, size int)
}

// Sink receives every topic and event as it is built.
type Sink interface {
	StoreTopic(ctx context.Context, t *model.Topic) error
	StoreEvent(ctx context.Context, e *model.Event) error
}

// Options configures a Parser.
type Options struct {
	Source   PageSource
	Resolver Resolver
	Sink     Sink
	Recorder analytics.Recorder
	Logger   *log.Logger

	// TopicBudget and EventBudget are the resolution budgets for topic
	// anchors and event links.
	TopicBudget int
	EventBudget int

	// StartDay and EndDay bound the days parsed in each month. Zero means
	// the first and last day.
	StartDay int
	EndDay   int

	// Workers above one parses days in parallel.
	Workers int

	// Sample stops each day after this many events when positive.
	Sample int
}

// Parser extracts topics and events from month pages.
type Parser struct {
	source      PageSource
	resolver    Resolver
	sink        Sink
	recorder    analytics.Recorder
	logger      *log.Logger
	topicBudget model.Budget
	eventBudget model.Budget
	startDay    int
	endDay      int
	pool        *worker.Pool
	sample      int
}

// NewParser creates a new outline parser
func NewParser(opts Options) *Parser {
	p := &Parser{
		source:      opts.Source,
		resolver:    opts.Resolver,
		sink:        opts.Sink,
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		topicBudget: model.NewBudget(opts.TopicBudget),
		eventBudget: model.NewBudget(opts.EventBudget),
		startDay:    max(opts.StartDay, 1),
		endDay:      opts.EndDay,
		pool:        worker.NewPool(opts.Workers),
		sample:      opts.Sample,
	}
	if p.endDay <= 0 {
		p.endDay = 31
	}
	if p.recorder == nil {
		p.recorder = analytics.Nop{}
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	return p
}

// MonthLabel names a month the way the portal page titles do.
func MonthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s_%d", month, year)
}

// RunMonth fetches and parses one month page.
func (p *Parser) RunMonth(ctx context.Context, year int, month time.Month) error {
	if p.source == nil {
		return errors.New("outline: no page source")
	}
	sourceURL, markup, err := p.source.FetchOutlinePage(ctx, MonthLabel(year, month))
	if err != nil {
		return fmt.Errorf("fetch %s: %w", MonthLabel(year, month), err)
	}
	return p.ParseMonth(ctx, sourceURL, markup, year, month)
}

// ParseMonth parses the configured day range of a month page. Days past the
// end of the month are skipped. A failing day does not stop the others; all
// day errors are joined.
func (p *Parser) ParseMonth(ctx context.Context, sourceURL, markup string, year int, month time.Month) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("parse %s: %w", sourceURL, err)
	}

	last := min(p.endDay, daysIn(year, month))
	var jobs []worker.Job
	for day := p.startDay; day <= last; day++ {
		jobs = append(jobs, &dayJob{
			parser:    p,
			doc:       doc,
			sourceURL: sourceURL,
			date:      time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		})
	}

	p.logger.Debug("parsing month", "source", sourceURL, "days", len(jobs), "workers", p.pool.Workers())
	results, err := p.pool.Run(ctx, jobs)
	return errors.Join(worker.JoinErrors(results), err)
}

// ParseDay parses the outline of one day of doc.
func (p *Parser) ParseDay(ctx context.Context, doc *goquery.Document, sourceURL string, date time.Time) error {
	id := DayID(date)
	box := doc.Find(fmt.Sprintf("[id=%q]", id)).First()
	if box.Length() == 0 {
		return fmt.Errorf("%w: %s", ErrDayNotFound, id)
	}
	desc := box.Find(".description").First()
	if desc.Length() == 0 {
		return fmt.Errorf("%w: %s has no description", ErrDayNotFound, id)
	}

	d := &dayParser{parser: p, sourceURL: sourceURL, date: date}
	if err := d.run(ctx, desc.Nodes[0]); err != nil {
		return fmt.Errorf("day %s: %w", id, err)
	}

	p.recorder.RecordAnalytic(analytics.DaysParsed, 1)
	if p.resolver != nil {
		p.recorder.RecordCacheStats(p.resolver.Stats())
	}
	p.logger.Debug("day parsed", "day", id, "topics", d.topics, "events", d.events)
	return nil
}

// DayID returns the element id of a day's section, e.g. "2022_January_5".
func DayID(date time.Time) string {
	return fmt.Sprintf("%d_%s_%d", date.Year(), date.Month(), date.Day())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

type dayJob struct {
	parser    *Parser
	doc       *goquery.Document
	sourceURL string
	date      time.Time
}

func (j *dayJob) Execute(ctx context.Context) worker.Result {
	return &dayResult{date: j.date, err: j.parser.ParseDay(ctx, j.doc, j.sourceURL, j.date)}
}

type dayResult struct {
	date time.Time
	err  error
}

func (r *dayResult) GetError() error {
	return r.err
}
