package model

// Link is a hyperlink inside some owning text. StartPos and EndPos are byte
// offsets local to that text.
type Link struct {
	Href     string   `json:"href"`
	Text     string   `json:"text"`
	StartPos int      `json:"start_pos"`
	EndPos   int      `json:"end_pos"`
	External bool     `json:"external"`
	Article  *Article `json:"-"`
}

// Rebased returns a copy of the link with offsets shifted left by offset.
func (l Link) Rebased(offset int) Link {
	l.StartPos -= offset
	l.EndPos -= offset
	return l
}

// IsLocation reports whether the link resolved to a place-classified article.
func (l Link) IsLocation() bool {
	return l.Article != nil && l.Article.IsLocation
}

// Sentence is an ordered slice of an event's text. Links are rebased to
// sentence-local coordinates.
type Sentence struct {
	Text     string `json:"text"`
	StartPos int    `json:"start_pos"`
	EndPos   int    `json:"end_pos"`
	Links    []Link `json:"links,omitempty"`
}

// Reference is a numbered news source cited by an event.
type Reference struct {
	Nr         int    `json:"nr"`
	URL        string `json:"url"`
	AnchorText string `json:"anchor_text"`
}
