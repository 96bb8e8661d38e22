// Package analytics counts what a run extracted and how the caches behaved.
package analytics

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter names recorded by the extraction packages.
const (
	Topics                        = "topics"
	Events                        = "events"
	Articles                      = "articles"
	ArticlesWithInfobox           = "articles_with_infobox"
	LocationArticles              = "location_articles"
	ArticlesWithOSMElement        = "articles_with_osm_element"
	TopicsWithType                = "topics_with_type"
	EventsWithType                = "events_with_type"
	EventsWithLocation            = "events_with_location"
	EventsWithMultipleLocations   = "events_with_multiple_locations"
	EventSentences                = "event_sentences"
	SentencesWithMultipleLocation = "event_sentences_with_multiple_locations"
	TopicsWithLocation            = "topics_with_location"
	TopicsWithDate                = "topics_with_date"
	TopicsWithDateSpan            = "topics_with_date_span"
	TopicsWithDateOngoing         = "topics_with_date_ongoing"
	TopicsWithTime                = "topics_with_time"
	TopicsWithTimeSpan            = "topics_with_time_span"
	TopicsWithDtstart             = "topics_with_dtstart"
	TopicsWithDtend               = "topics_with_dtend"
	DateParseErrors               = "date_parse_errors"
	TimeParseErrors               = "time_parse_errors"
	EntityRecognitions            = "articles_with_ner_entity"
	EntityLocationArticles        = "articles_with_ner_location_article"
	DaysParsed                    = "days_parsed"
	MonthsSkipped                 = "months_skipped"
	WikidataQueries               = "wikidata_queries"
	NominatimQueries              = "nominatim_queries"
	RecognizerQueries             = "ner_queries"
)

// Recorder receives fire-and-forget counters.
type Recorder interface {
	RecordAnalytic(name string, delta int)
	RecordCacheStats(hits, misses, size int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAnalytic(string, int)     {}
func (Nop) RecordCacheStats(int, int, int) {}

// Collector records counters in a Prometheus registry and keeps plain totals
// for end-of-run summaries.
type Collector struct {
	registry    *prometheus.Registry
	counters    *prometheus.CounterVec
	cacheHits   prometheus.Gauge
	cacheMisses prometheus.Gauge
	cacheSize   prometheus.Gauge

	mu     sync.Mutex
	totals map[string]int
	cache  CacheStats
}

// CacheStats is the last reported state of the article cache.
type CacheStats struct {
	Hits   int
	Misses int
	Size   int
}

// NewCollector creates a collector with its own registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		counters: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "currentevents_extracted_total",
			Help: "Extraction counters by name",
		}, []string{"name"}),
		cacheHits: factory.NewGauge(prometheus.GaugeOpts{
			Name: "currentevents_article_cache_hits",
			Help: "Article cache hits",
		}),
		cacheMisses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "currentevents_article_cache_misses",
			Help: "Article cache misses",
		}),
		cacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "currentevents_article_cache_size",
			Help: "Article cache entries",
		}),
		totals: make(map[string]int),
	}
}

// RecordAnalytic adds delta to the named counter. Negative deltas are ignored.
func (c *Collector) RecordAnalytic(name string, delta int) {
	if delta <= 0 {
		return
	}
	c.counters.WithLabelValues(name).Add(float64(delta))

	c.mu.Lock()
	c.totals[name] += delta
	c.mu.Unlock()
}

// RecordCacheStats stores the current article cache state
func (c *Collector) RecordCacheStats(hits, misses, size int) {
	c.cacheHits.Set(float64(hits))
	c.cacheMisses.Set(float64(misses))
	c.cacheSize.Set(float64(size))

	c.mu.Lock()
	c.cache = CacheStats{Hits: hits, Misses: misses, Size: size}
	c.mu.Unlock()
}

// Snapshot returns a copy of all counter totals
func (c *Collector) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.totals)
}

// Cache returns the last reported cache state
func (c *Collector) Cache() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

// WriteTextfile writes all metrics in the Prometheus text format
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write analytics: %w", err)
	}
	return nil
}

// Summary renders totals sorted by name, one per line
func (c *Collector) Summary() string {
	totals := c.Snapshot()
	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%-45s %d\n", name, totals[name])
	}
	cache := c.Cache()
	fmt.Fprintf(&b, "%-45s %d/%d (size %d)\n", "article_cache_hits/misses", cache.Hits, cache.Misses, cache.Size)
	return b.String()
}

// Diff returns after-before for every counter that changed
func Diff(before, after map[string]int) map[string]int {
	diff := make(map[string]int)
	for name, v := range after {
		if d := v - before[name]; d != 0 {
			diff[name] = d
		}
	}
	return diff
}
