package model

import (
	"fmt"
	"time"
)

// Topic is a named grouping node of a day's outline.
type Topic struct {
	Raw          string    `json:"raw"`
	Label        string    `json:"label"`
	Href         string    `json:"href,omitempty"`
	Article      *Article  `json:"-"`
	ParentTopics []*Topic  `json:"-"`
	Date         time.Time `json:"date"`
	Index        int       `json:"index"`
	SourceURL    string    `json:"source_url"`
}

// ID returns a stable identifier for the topic within its source page.
func (t *Topic) ID() string {
	return fmt.Sprintf("%s#%s_T%d", t.SourceURL, t.Date.Format(time.DateOnly), t.Index)
}

// Event is a leaf narrative item of a day's outline.
type Event struct {
	Raw          string            `json:"raw"`
	ParentTopics []*Topic          `json:"-"`
	Text         string            `json:"text"`
	SourceURL    string            `json:"source_url"`
	Date         time.Time         `json:"date"`
	Sentences    []Sentence        `json:"sentences"`
	SourceLinks  []Link            `json:"source_links,omitempty"`
	SourceText   string            `json:"source_text,omitempty"`
	EventTypes   map[string]string `json:"event_types,omitempty"`
	Index        int               `json:"index"`
	Category     string            `json:"category,omitempty"`
	References   []Reference       `json:"references,omitempty"`
}

// ID returns a stable identifier for the event within its source page.
func (e *Event) ID() string {
	return fmt.Sprintf("%s#%s_E%d", e.SourceURL, e.Date.Format(time.DateOnly), e.Index)
}
