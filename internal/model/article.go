package model

import "time"

// Article is the parsed form of one resolved wiki article.
type Article struct {
	URL             string                `json:"url"`
	Name            string                `json:"name,omitempty"`
	Headline        string                `json:"headline,omitempty"`
	IsLocation      bool                  `json:"is_location"`
	Coordinates     *Coordinates          `json:"coordinates,omitempty"`
	InfoboxHTML     string                `json:"infobox_html,omitempty"`
	InfoboxRows     map[string]InfoboxRow `json:"-"`
	Templates       []string              `json:"templates,omitempty"`
	WikidataEntity  string                `json:"wikidata_entity,omitempty"`
	ParentLocations map[string][]string   `json:"parent_locations,omitempty"`
	TypeLabels      map[string]string     `json:"type_labels,omitempty"`
	OSMElements     []OSMElement          `json:"osm_elements,omitempty"`
	OneHop          []Triple              `json:"-"`
	Microformats    map[string]time.Time  `json:"microformats,omitempty"`
	DatePublished   *time.Time            `json:"date_published,omitempty"`
	DateModified    *time.Time            `json:"date_modified,omitempty"`
}

// Coordinates is a WGS84 point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// OSMElement is a geocoded OpenStreetMap object with its geometry as WKT.
type OSMElement struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	WKT  string `json:"wkt,omitempty"`
}

// Triple is one edge of a knowledge-base subgraph.
type Triple struct {
	Subject   string `json:"s"`
	Predicate string `json:"p"`
	Object    string `json:"o"`
}
