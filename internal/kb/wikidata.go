package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/cache"
	"github.com/ppiankov/currentevents/internal/model"
)

// EntityPrefix is the URI prefix of Wikidata entities.
const EntityPrefix = "http://www.wikidata.org/entity/"

const (
	namespaceWikidata = "wikidata"
	labelBatchSize    = 50
)

var entityIDRe = regexp.MustCompile(`^[QP]\d+$`)

// Wikidata runs SPARQL queries against a Wikidata query service.
type Wikidata struct {
	service
}

// NewWikidata creates a Wikidata client
func NewWikidata(opts ServiceOptions) *Wikidata {
	return &Wikidata{service: newService("wikidata", analytics.WikidataQueries, opts)}
}

type sparqlValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sparqlResults struct {
	Results struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

// EntityID returns the bare id of an entity URI, e.g. "Q656".
func EntityID(entity string) string {
	return entity[strings.LastIndexByte(entity, '/')+1:]
}

func checkedID(entity string) (string, error) {
	id := EntityID(entity)
	if !entityIDRe.MatchString(id) {
		return "", fmt.Errorf("wikidata: invalid entity %q", entity)
	}
	return id, nil
}

// ParentLocations maps each location the entity is placed in to the
// properties that place it there, e.g. P131 (located in the administrative
// territorial entity). Image-valued location properties are excluded.
func (w *Wikidata) ParentLocations(ctx context.Context, entity string) (map[string][]string, error) {
	id, err := checkedID(entity)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`PREFIX wd: <http://www.wikidata.org/entity/>
PREFIX wdt: <http://www.wikidata.org/prop/direct/>
PREFIX wikibase: <http://wikiba.se/ontology#>
SELECT DISTINCT ?prop ?loc WHERE {
  wd:%s ?direct ?loc .
  ?prop wdt:P1647* wd:P276 .
  ?prop wikibase:directClaim ?direct .
  FILTER NOT EXISTS { ?prop wdt:P1647 wd:P18 . }
}`, id)

	rows, err := w.query(ctx, q)
	if err != nil {
		return nil, err
	}
	result := make(map[string][]string)
	for _, row := range rows {
		loc, prop := row["loc"].Value, row["prop"].Value
		if loc == "" || prop == "" {
			continue
		}
		result[loc] = append(result[loc], prop)
	}
	return result, nil
}

// OSMEntities returns the entity's OpenStreetMap relation ids (P402) and
// "way/<id>" or "node/<id>" object references (P10689).
func (w *Wikidata) OSMEntities(ctx context.Context, entity string) ([]string, []string, error) {
	id, err := checkedID(entity)
	if err != nil {
		return nil, nil, err
	}
	q := fmt.Sprintf(`PREFIX wd: <http://www.wikidata.org/entity/>
PREFIX wdt: <http://www.wikidata.org/prop/direct/>
SELECT DISTINCT ?relation ?object WHERE {
  OPTIONAL { wd:%[1]s wdt:P402 ?relation . }
  OPTIONAL { wd:%[1]s wdt:P10689 ?object . }
}`, id)

	rows, err := w.query(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	var relations, objects []string
	for _, row := range rows {
		if v, ok := row["relation"]; ok && !slices.Contains(relations, v.Value) {
			relations = append(relations, v.Value)
		}
		if v, ok := row["object"]; ok && !slices.Contains(objects, v.Value) {
			objects = append(objects, v.Value)
		}
	}
	slices.Sort(relations)
	slices.Sort(objects)
	return relations, objects, nil
}

// OneHopSubgraph returns every triple with the entity as subject. The
// subject of each triple is entity exactly as passed.
func (w *Wikidata) OneHopSubgraph(ctx context.Context, entity string) ([]model.Triple, error) {
	id, err := checkedID(entity)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT ?p ?o WHERE {\n  <%s%s> ?p ?o .\n}", EntityPrefix, id)

	rows, err := w.query(ctx, q)
	if err != nil {
		return nil, err
	}
	triples := make([]model.Triple, 0, len(rows))
	for _, row := range rows {
		p, o := row["p"], row["o"]
		if p.Type != "uri" {
			return nil, fmt.Errorf("wikidata: unexpected predicate type %q", p.Type)
		}
		triples = append(triples, model.Triple{Subject: entity, Predicate: p.Value, Object: o.Value})
	}
	return triples, nil
}

// EntityLabels returns the English labels of entities keyed by entity id.
// Entities without an English label are absent.
func (w *Wikidata) EntityLabels(ctx context.Context, entities []string) (map[string]string, error) {
	ids, err := sortedIDs(entities)
	if err != nil {
		return nil, err
	}
	labels := make(map[string]string, len(ids))
	for batch := range slices.Chunk(ids, labelBatchSize) {
		q := fmt.Sprintf(`PREFIX wd: <http://www.wikidata.org/entity/>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
SELECT DISTINCT ?e ?label WHERE {
  VALUES ?e { %s }
  ?e rdfs:label ?label .
  FILTER(LANG(?label) = "en")
}`, values(batch))

		rows, err := w.query(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			labels[EntityID(row["e"].Value)] = row["label"].Value
		}
	}
	return labels, nil
}

// ArticleURLs maps entities to their English Wikipedia article URLs, keyed
// by entity as passed.
func (w *Wikidata) ArticleURLs(ctx context.Context, entities []string) (map[string]string, error) {
	byID := make(map[string]string, len(entities))
	for _, e := range entities {
		id, err := checkedID(e)
		if err != nil {
			return nil, err
		}
		byID[id] = e
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	urls := make(map[string]string, len(ids))
	for batch := range slices.Chunk(ids, labelBatchSize) {
		q := fmt.Sprintf(`PREFIX wd: <http://www.wikidata.org/entity/>
PREFIX schema: <http://schema.org/>
SELECT ?e ?article WHERE {
  VALUES ?e { %s }
  ?article schema:about ?e ;
           schema:isPartOf <https://en.wikipedia.org/> .
}`, values(batch))

		rows, err := w.query(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if e, ok := byID[EntityID(row["e"].Value)]; ok {
				urls[e] = row["article"].Value
			}
		}
	}
	return urls, nil
}

func sortedIDs(entities []string) ([]string, error) {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		id, err := checkedID(e)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

func values(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "wd:" + id
	}
	return strings.Join(parts, " ")
}

func (w *Wikidata) query(ctx context.Context, q string) ([]map[string]sparqlValue, error) {
	body, err := w.do(ctx, cache.CacheKey(namespaceWikidata, q), func(ctx context.Context) (*http.Request, error) {
		form := url.Values{"query": {q}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/sparql-results+json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var res sparqlResults
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("wikidata: decode results: %w", err)
	}
	return res.Results.Bindings, nil
}
