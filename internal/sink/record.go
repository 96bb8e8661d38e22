package sink

import (
	"time"

	"github.com/ppiankov/currentevents/internal/model"
)

// Row kinds of RowRecord.
const (
	KindPlain    = "plain"
	KindLocation = "location"
	KindDate     = "date"
	KindTime     = "time"
)

// TopicRecord is the stored form of a topic.
type TopicRecord struct {
	ID string `json:"id"`
	model.Topic
	ParentIDs []string       `json:"parent_ids,omitempty"`
	Article   *ArticleRecord `json:"article,omitempty"`
}

// EventRecord is the stored form of an event. Articles holds every
// resolved article linked from the event text, in order of first mention.
type EventRecord struct {
	ID string `json:"id"`
	model.Event
	ParentIDs []string        `json:"parent_ids,omitempty"`
	Articles  []ArticleRecord `json:"articles,omitempty"`
}

// ArticleRecord is the stored form of an article with its infobox rows
// flattened into tagged records.
type ArticleRecord struct {
	model.Article
	Infobox []RowRecord `json:"infobox,omitempty"`
}

// RowRecord is the stored form of any infobox row variant.
type RowRecord struct {
	Kind string `json:"kind"`
	model.RowBase

	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
	Ongoing  bool   `json:"ongoing,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	KnowledgeBaseEntities []string                    `json:"knowledge_base_entities,omitempty"`
	DBpediaEntities       []string                    `json:"dbpedia_entities,omitempty"`
	ResolvedArticles      []string                    `json:"resolved_articles,omitempty"`
	GeocodeResults        map[string]model.OSMElement `json:"geocode_results,omitempty"`
	Coordinates           *model.Coordinates          `json:"coordinates,omitempty"`
}

// NewTopicRecord converts a topic
func NewTopicRecord(t *model.Topic) TopicRecord {
	return TopicRecord{
		ID:        t.ID(),
		Topic:     *t,
		ParentIDs: topicIDs(t.ParentTopics),
		Article:   newArticleRecord(t.Article),
	}
}

// NewEventRecord converts an event
func NewEventRecord(e *model.Event) EventRecord {
	rec := EventRecord{
		ID:        e.ID(),
		Event:     *e,
		ParentIDs: topicIDs(e.ParentTopics),
	}
	seen := make(map[string]struct{})
	for _, s := range e.Sentences {
		for _, l := range s.Links {
			if l.Article == nil {
				continue
			}
			if _, ok := seen[l.Article.URL]; ok {
				continue
			}
			seen[l.Article.URL] = struct{}{}
			rec.Articles = append(rec.Articles, *newArticleRecord(l.Article))
		}
	}
	return rec
}

func topicIDs(topics []*model.Topic) []string {
	if len(topics) == 0 {
		return nil
	}
	ids := make([]string, len(topics))
	for i, t := range topics {
		ids[i] = t.ID()
	}
	return ids
}

func newArticleRecord(a *model.Article) *ArticleRecord {
	if a == nil {
		return nil
	}
	rec := &ArticleRecord{Article: *a}
	for _, label := range sortedLabels(a.InfoboxRows) {
		rec.Infobox = append(rec.Infobox, NewRowRecord(a.InfoboxRows[label]))
	}
	return rec
}

// NewRowRecord converts any infobox row variant
func NewRowRecord(row model.InfoboxRow) RowRecord {
	rec := RowRecord{RowBase: row.Base()}
	switch r := row.(type) {
	case *model.PlainRow:
		rec.Kind = KindPlain
	case *model.LocationRow:
		rec.Kind = KindLocation
		rec.KnowledgeBaseEntities = r.KnowledgeBaseEntities
		rec.DBpediaEntities = r.DBpediaEntities
		for _, a := range r.ResolvedArticles {
			rec.ResolvedArticles = append(rec.ResolvedArticles, a.URL)
		}
		if len(r.GeocodeResults) > 0 {
			rec.GeocodeResults = r.GeocodeResults
		}
		rec.Coordinates = r.Coordinates
	case *model.DateRow:
		rec.Kind = KindDate
		rec.Start = formatTime(r.Start)
		rec.End = formatTime(r.End)
		rec.Ongoing = r.Ongoing
		rec.Timezone = zoneName(r.Timezone)
	case *model.TimeRow:
		rec.Kind = KindTime
		if r.Start != nil {
			rec.Start = r.Start.String()
		}
		if r.End != nil {
			rec.End = r.End.String()
		}
		rec.Timezone = zoneName(r.Timezone)
	}
	return rec
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func zoneName(loc *time.Location) string {
	if loc == nil {
		return ""
	}
	return loc.String()
}
