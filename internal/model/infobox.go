package model

import (
	"time"

	"github.com/ppiankov/currentevents/internal/datetime"
)

// InfoboxRow is one typed row of an infobox. The set of variants is closed:
// *PlainRow, *LocationRow, *DateRow and *TimeRow.
type InfoboxRow interface {
	Base() RowBase
	infoboxRow()
}

// RowBase holds the fields shared by every row variant.
type RowBase struct {
	Label      string `json:"label"`
	Value      string `json:"value"`
	ValueLinks []Link `json:"value_links,omitempty"`
}

// PlainRow is a row without typed interpretation.
type PlainRow struct {
	RowBase
}

// LocationRow is the Location (or Areas affected) row of an infobox.
type LocationRow struct {
	RowBase
	KnowledgeBaseEntities []string              `json:"knowledge_base_entities,omitempty"`
	DBpediaEntities       []string              `json:"dbpedia_entities,omitempty"`
	ResolvedArticles      []*Article            `json:"-"`
	GeocodeResults        map[string]OSMElement `json:"geocode_results,omitempty"`
	Coordinates           *Coordinates          `json:"coordinates,omitempty"`
}

// DateRow is a parsed date-ish row. End is nil for open spans and single days.
type DateRow struct {
	RowBase
	Start    *time.Time     `json:"start,omitempty"`
	End      *time.Time     `json:"end,omitempty"`
	Ongoing  bool           `json:"ongoing"`
	Timezone *time.Location `json:"-"`
}

// TimeRow is a parsed time-of-day row.
type TimeRow struct {
	RowBase
	Start    *datetime.Clock `json:"start,omitempty"`
	End      *datetime.Clock `json:"end,omitempty"`
	Timezone *time.Location  `json:"-"`
}

func (r *PlainRow) Base() RowBase    { return r.RowBase }
func (r *LocationRow) Base() RowBase { return r.RowBase }
func (r *DateRow) Base() RowBase     { return r.RowBase }
func (r *TimeRow) Base() RowBase     { return r.RowBase }

func (*PlainRow) infoboxRow()    {}
func (*LocationRow) infoboxRow() {}
func (*DateRow) infoboxRow()     {}
func (*TimeRow) infoboxRow()     {}
