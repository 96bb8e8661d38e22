package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/cache"
)

const namespaceFalcon = "falcon2"

// Recognizer finds knowledge-base entities mentioned in free text.
type Recognizer interface {
	RecognizeEntities(ctx context.Context, text string) (wikidata []string, dbpedia []string, err error)
}

// Falcon recognizes entities with the Falcon 2.0 API in long mode.
type Falcon struct {
	service
}

// NewFalcon creates a Falcon 2.0 client
func NewFalcon(opts ServiceOptions) *Falcon {
	return &Falcon{service: newService("falcon2", analytics.RecognizerQueries, opts)}
}

type falconResponse struct {
	Wikidata [][]string `json:"entities_wikidata"`
	DBpedia  [][]string `json:"entities_dbpedia"`
}

// RecognizeEntities returns the Wikidata and DBpedia entity URIs found in text.
func (f *Falcon) RecognizeEntities(ctx context.Context, text string) ([]string, []string, error) {
	endpoint, err := url.Parse(f.endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("falcon2: parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("mode", "long")
	q.Set("db", "1")
	endpoint.RawQuery = q.Encode()

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, nil, fmt.Errorf("falcon2: encode request: %w", err)
	}

	body, err := f.do(ctx, cache.CacheKey(namespaceFalcon, text), func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept-Charset", "UTF-8")
		return req, nil
	})
	if err != nil {
		return nil, nil, err
	}

	var res falconResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, nil, fmt.Errorf("falcon2: decode response: %w", err)
	}

	var wikidata, dbpedia []string
	for _, e := range res.Wikidata {
		if len(e) > 1 {
			wikidata = append(wikidata, strings.Trim(e[1], "<>"))
		}
	}
	for _, e := range res.DBpedia {
		if len(e) > 0 {
			dbpedia = append(dbpedia, strings.Trim(e[0], "<>"))
		}
	}
	return wikidata, dbpedia, nil
}
