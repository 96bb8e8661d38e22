package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/article"
	"github.com/ppiankov/currentevents/internal/cache"
	"github.com/ppiankov/currentevents/internal/infobox"
	"github.com/ppiankov/currentevents/internal/kb"
	"github.com/ppiankov/currentevents/internal/model"
	"github.com/ppiankov/currentevents/internal/outline"
	"github.com/ppiankov/currentevents/internal/sink"
	"github.com/ppiankov/currentevents/internal/util"
	"github.com/ppiankov/currentevents/internal/worker"
)

// Snapshot files of the service query caches, inside the cache dir.
const (
	wikidataSnapshot  = "wikidata.gob"
	nominatimSnapshot = "nominatim.gob"
	nerSnapshot       = "ner.gob"
)

// Pipeline wires page sources, services, the resolver, the outline parser
// and the sink for a run over a range of months.
type Pipeline struct {
	config    *model.Config
	logger    *log.Logger
	collector *analytics.Collector
	source    *WikiSource
	resolver  *article.Resolver
	parser    *outline.Parser
	sink      sink.Sink
	snapshots []*cache.SnapshotCache
	redis     *cache.RedisCache
}

// NewPipeline creates a new pipeline with the given configuration
func NewPipeline(ctx context.Context, cfg *model.Config, logger *log.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	p := &Pipeline{
		config:    cfg,
		logger:    logger,
		collector: analytics.NewCollector(),
	}
	if err := p.build(ctx); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build(ctx context.Context) error {
	cfg := p.config

	outlineCache, articleCache, err := p.pageCaches(ctx)
	if err != nil {
		return err
	}

	limiter := worker.NewLimiter(cfg.HTTP.Spacing)
	for _, svc := range []model.ServiceConfig{cfg.Wikidata, cfg.Nominatim} {
		if u, err := url.Parse(svc.Endpoint); err == nil && u.Host != "" {
			limiter.SetHostSpacing(u.Host, svc.Spacing)
		}
	}

	var robots *util.RobotsChecker
	if cfg.HTTP.RespectRobots {
		robots = util.NewRobotsChecker(util.NormalizeUserAgent(cfg.HTTP.UserAgent), cfg.HTTP.Timeout,
			util.NewTransport(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy))
	}

	p.source = NewWikiSource(SourceOptions{
		Fetcher:            NewFetcher(cfg.HTTP.Timeout, cfg.HTTP.UserAgent, cfg.HTTP.MaxBodyBytes, cfg.HTTP.InsecureTLS, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy),
		Limiter:            limiter,
		Robots:             robots,
		OutlineCache:       outlineCache,
		ArticleCache:       articleCache,
		IgnoreOutlineCache: cfg.Cache.IgnoreOutlineCache,
		IgnoreArticleCache: cfg.Cache.IgnoreArticleCache,
		BaseURL:            cfg.HTTP.BaseURL,
		Logger:             p.logger,
	})

	serviceOpts := func(svc model.ServiceConfig, snapshot string) (kb.ServiceOptions, error) {
		c, err := p.snapshot(snapshot)
		if err != nil {
			return kb.ServiceOptions{}, err
		}
		return kb.ServiceOptions{
			Endpoint: svc.Endpoint,
			HTTPClient: &http.Client{
				Timeout:   cfg.HTTP.Timeout,
				Transport: util.NewTransport(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy),
			},
			UserAgent: cfg.HTTP.UserAgent,
			Limiter:   limiter,
			Cache:     c,
			Retries:   svc.Retries,
			Recorder:  p.collector,
			Logger:    p.logger,
		}, nil
	}

	var (
		knowledge  article.KnowledgeBase
		geocoder   article.Geocoder
		linker     infobox.EntityLinker
		recognizer infobox.EntityRecognizer
		ibGeocoder infobox.Geocoder
	)
	if cfg.Wikidata.Endpoint != "" {
		opts, err := serviceOpts(cfg.Wikidata, wikidataSnapshot)
		if err != nil {
			return err
		}
		wd := kb.NewWikidata(opts)
		knowledge, linker = wd, wd
	}
	if cfg.Nominatim.Endpoint != "" {
		opts, err := serviceOpts(cfg.Nominatim, nominatimSnapshot)
		if err != nil {
			return err
		}
		nom := kb.NewNominatim(opts)
		geocoder, ibGeocoder = nom, nom
	}
	opts, err := serviceOpts(model.ServiceConfig{Retries: 3}, nerSnapshot)
	if err != nil {
		return err
	}
	r, err := kb.NewRecognizer(cfg.NER, opts)
	if err != nil {
		return fmt.Errorf("create recognizer: %w", err)
	}
	if r != nil {
		recognizer = r
	}

	ib := infobox.NewParser(infobox.Options{
		Recognizer: recognizer,
		Linker:     linker,
		Geocoder:   ibGeocoder,
		Recorder:   p.collector,
		Logger:     p.logger,
	})
	p.resolver, err = article.NewResolver(article.Options{
		Fetcher:        p.source,
		PlaceTemplates: p.source,
		KnowledgeBase:  knowledge,
		Geocoder:       geocoder,
		Infobox:        ib,
		Recorder:       p.collector,
		Logger:         p.logger,
		CacheSize:      cfg.Cache.ArticleCacheSize,
	})
	if err != nil {
		return err
	}

	p.sink, err = sink.New(ctx, cfg.Sink)
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}

	p.parser = outline.NewParser(outline.Options{
		Source:      p.source,
		Resolver:    p.resolver,
		Sink:        p.sink,
		Recorder:    p.collector,
		Logger:      p.logger,
		TopicBudget: cfg.Run.TopicBudget,
		EventBudget: cfg.Run.EventBudget,
		StartDay:    cfg.Run.StartDay,
		EndDay:      cfg.Run.EndDay,
		Workers:     cfg.Run.Workers,
		Sample:      cfg.Run.Sample,
	})
	return nil
}

// pageCaches builds the raw page caches: an optional shared Redis layer in
// front of one disk directory per namespace.
func (p *Pipeline) pageCaches(ctx context.Context) (cache.Cache, cache.Cache, error) {
	cfg := p.config.Cache
	if !cfg.Enabled {
		return nil, nil, nil
	}

	var shared []cache.Cache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisTTL)
		if err != nil {
			return nil, nil, err
		}
		p.redis = rc
		shared = append(shared, rc)
	}
	layered := func(namespace string) cache.Cache {
		layers := slices.Clone(shared)
		layers = append(layers, cache.NewDiskCache(filepath.Join(cfg.Dir, namespace), 0))
		return cache.NewLayeredCache(layers...)
	}
	return layered(cache.NamespaceOutline), layered(cache.NamespaceArticle), nil
}

// snapshot returns a flushable query cache. With caching off, queries are
// still shared within the run but never written out.
func (p *Pipeline) snapshot(name string) (cache.Cache, error) {
	if !p.config.Cache.Enabled {
		return cache.NewMemoryCache(0, 0), nil
	}
	c, err := cache.NewSnapshotCache(cache.FilePersistence(filepath.Join(p.config.Cache.Dir, name)))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	p.snapshots = append(p.snapshots, c)
	return c, nil
}

// SkippedMonth is a month whose page could not be processed.
type SkippedMonth struct {
	Month Month
	Err   error
}

// Summary reports the outcome of Run.
type Summary struct {
	Parsed    []Month
	Skipped   []SkippedMonth
	PerMonth  map[Month]map[string]int
	Analytics map[string]int
	Cache     analytics.CacheStats
}

// Run parses every month in order. A failing month is recorded and skipped
// unless run.crash_on_error is set.
func (p *Pipeline) Run(ctx context.Context, months []Month) (*Summary, error) {
	summary := &Summary{PerMonth: make(map[Month]map[string]int)}
	defer func() {
		summary.Analytics = p.collector.Snapshot()
		summary.Cache = p.collector.Cache()
	}()

	for _, m := range months {
		p.logger.Info("parsing month", "month", m)
		before := p.collector.Snapshot()
		err := p.parser.RunMonth(ctx, m.Year, m.Month)
		if err == nil {
			diff := analytics.Diff(before, p.collector.Snapshot())
			summary.PerMonth[m] = diff
			summary.Parsed = append(summary.Parsed, m)
			p.logger.Info("month parsed", "month", m, "topics", diff[analytics.Topics], "events", diff[analytics.Events])
			continue
		}
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		p.collector.RecordAnalytic(analytics.MonthsSkipped, 1)
		summary.Skipped = append(summary.Skipped, SkippedMonth{Month: m, Err: err})
		if p.config.Run.CrashOnError {
			return summary, fmt.Errorf("month %s: %w", m, err)
		}
		p.logger.Error("skipping month", "month", m, "err", err)
	}

	hits, misses, size := p.resolver.Stats()
	p.collector.RecordCacheStats(hits, misses, size)
	return summary, nil
}

// Collector exposes the run analytics
func (p *Pipeline) Collector() *analytics.Collector {
	return p.collector
}

// Close flushes the query caches, writes the analytics textfile and closes
// the sink and shared cache connections.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	for _, s := range p.snapshots {
		p.logger.Debug("flushing query cache", "entries", s.Len())
		errs = append(errs, s.Flush())
	}
	if path := p.config.Analytics.TextfilePath; path != "" && p.parser != nil {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			errs = append(errs, err)
		} else {
			errs = append(errs, p.collector.WriteTextfile(path))
		}
	}
	if p.sink != nil {
		errs = append(errs, p.sink.Close(ctx))
	}
	if p.redis != nil {
		errs = append(errs, p.redis.Close())
	}
	return errors.Join(errs...)
}
