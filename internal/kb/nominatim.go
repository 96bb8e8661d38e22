package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/currentevents/internal/analytics"
	"github.com/ppiankov/currentevents/internal/cache"
	"github.com/ppiankov/currentevents/internal/model"
)

const namespaceNominatim = "nominatim"

var osmTypePrefixes = map[string]string{
	"relation": "R",
	"way":      "W",
	"node":     "N",
}

// Nominatim geocodes against an OpenStreetMap Nominatim server.
type Nominatim struct {
	service
}

// NewNominatim creates a Nominatim client
func NewNominatim(opts ServiceOptions) *Nominatim {
	opts.Endpoint = strings.TrimSuffix(opts.Endpoint, "/")
	return &Nominatim{service: newService("nominatim", analytics.NominatimQueries, opts)}
}

type place struct {
	OSMType string `json:"osm_type"`
	OSMID   int64  `json:"osm_id"`
	GeoText string `json:"geotext"`
}

// Lookup returns the element behind a reference such as "relation/62422"
// or "way/4305522", or nil when Nominatim does not know it.
func (n *Nominatim) Lookup(ctx context.Context, ref string) (*model.OSMElement, error) {
	kind, id, ok := strings.Cut(ref, "/")
	prefix, known := osmTypePrefixes[kind]
	if !ok || !known || id == "" {
		return nil, fmt.Errorf("nominatim: invalid osm reference %q", ref)
	}
	return n.first(ctx, "/lookup", url.Values{"osm_ids": {prefix + id}})
}

// Query returns the best match for free text, or nil when nothing matches.
func (n *Nominatim) Query(ctx context.Context, text string) (*model.OSMElement, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return n.first(ctx, "/search", url.Values{"q": {text}, "limit": {"1"}})
}

func (n *Nominatim) first(ctx context.Context, path string, params url.Values) (*model.OSMElement, error) {
	params.Set("format", "json")
	params.Set("polygon_text", "1")
	target := n.endpoint + path + "?" + params.Encode()

	body, err := n.do(ctx, cache.CacheKey(namespaceNominatim, target), func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	})
	if err != nil {
		return nil, err
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, fmt.Errorf("nominatim: decode results: %w", err)
	}
	if len(places) == 0 {
		return nil, nil
	}
	p := places[0]
	return &model.OSMElement{
		ID:   strconv.FormatInt(p.OSMID, 10),
		Type: p.OSMType,
		WKT:  p.GeoText,
	}, nil
}
