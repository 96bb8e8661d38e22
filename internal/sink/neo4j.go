package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/ppiankov/currentevents/internal/model"
)

const (
	mergeTopic = `MERGE (t:Topic {id: $id}) SET t += $props
WITH t
UNWIND $parents AS pid
MERGE (p:Topic {id: pid})
MERGE (t)-[:SUBTOPIC_OF]->(p)`

	mergeTopicArticle = `MATCH (t:Topic {id: $id})
MERGE (a:Article {url: $url}) SET a += $props
MERGE (t)-[:ABOUT]->(a)`

	mergeEvent = `MERGE (e:Event {id: $id}) SET e += $props
WITH e
UNWIND $parents AS pid
MERGE (p:Topic {id: pid})
MERGE (e)-[:IN_TOPIC]->(p)`

	mergeEventArticle = `MATCH (e:Event {id: $id})
MERGE (a:Article {url: $url}) SET a += $props
MERGE (e)-[:MENTIONS]->(a)`
)

// Neo4jSink merges topics, events and their articles into a graph.
type Neo4jSink struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jSink connects to a Neo4j server
func NewNeo4jSink(ctx context.Context, uri, user, password string) (*Neo4jSink, error) {
	drv, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := drv.VerifyConnectivity(ctx); err != nil {
		_ = drv.Close(ctx)
		return nil, fmt.Errorf("connect neo4j: %w", err)
	}
	return &Neo4jSink{driver: drv}, nil
}

type statement struct {
	cypher string
	params map[string]any
}

// StoreTopic merges the topic, its parent edges and its article
func (s *Neo4jSink) StoreTopic(ctx context.Context, t *model.Topic) error {
	return s.write(ctx, topicStatements(t))
}

// StoreEvent merges the event, its topic edges and the articles it mentions
func (s *Neo4jSink) StoreEvent(ctx context.Context, e *model.Event) error {
	return s.write(ctx, eventStatements(e))
}

func (s *Neo4jSink) write(ctx context.Context, stmts []statement) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = sess.Close(ctx) }()

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			if _, err := tx.Run(ctx, st.cypher, st.params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j write: %w", err)
	}
	return nil
}

// Close closes the driver
func (s *Neo4jSink) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func topicStatements(t *model.Topic) []statement {
	rec := NewTopicRecord(t)
	stmts := []statement{{
		cypher: mergeTopic,
		params: map[string]any{
			"id":      rec.ID,
			"parents": stringsOrEmpty(rec.ParentIDs),
			"props": map[string]any{
				"label":      t.Label,
				"href":       t.Href,
				"date":       t.Date.Format(time.DateOnly),
				"source_url": t.SourceURL,
				"index":      t.Index,
			},
		},
	}}
	if t.Article != nil {
		stmts = append(stmts, statement{
			cypher: mergeTopicArticle,
			params: map[string]any{"id": rec.ID, "url": t.Article.URL, "props": articleProps(t.Article)},
		})
	}
	return stmts
}

func eventStatements(e *model.Event) []statement {
	rec := NewEventRecord(e)
	stmts := []statement{{
		cypher: mergeEvent,
		params: map[string]any{
			"id":      rec.ID,
			"parents": stringsOrEmpty(rec.ParentIDs),
			"props": map[string]any{
				"text":       e.Text,
				"category":   e.Category,
				"date":       e.Date.Format(time.DateOnly),
				"source_url": e.SourceURL,
				"index":      e.Index,
				"sentences":  len(e.Sentences),
			},
		},
	}}
	for _, a := range rec.Articles {
		stmts = append(stmts, statement{
			cypher: mergeEventArticle,
			params: map[string]any{"id": rec.ID, "url": a.URL, "props": articleProps(&a.Article)},
		})
	}
	return stmts
}

func articleProps(a *model.Article) map[string]any {
	props := map[string]any{
		"name":        a.Name,
		"is_location": a.IsLocation,
	}
	if a.WikidataEntity != "" {
		props["wikidata"] = a.WikidataEntity
	}
	if a.Coordinates != nil {
		props["lat"] = a.Coordinates.Lat
		props["lon"] = a.Coordinates.Lon
	}
	return props
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
