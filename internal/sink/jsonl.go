package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/currentevents/internal/model"
)

// File names inside a JSONLSink directory.
const (
	TopicsFile = "topics.jsonl"
	EventsFile = "events.jsonl"
)

// JSONLSink appends one JSON record per line to topics.jsonl and
// events.jsonl in a directory.
type JSONLSink struct {
	mu     sync.Mutex
	topics *os.File
	events *os.File
	topicW *json.Encoder
	eventW *json.Encoder
}

// NewJSONLSink creates dir if needed and opens both files for appending
func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sink dir: %w", err)
	}
	topics, err := openAppend(filepath.Join(dir, TopicsFile))
	if err != nil {
		return nil, err
	}
	events, err := openAppend(filepath.Join(dir, EventsFile))
	if err != nil {
		_ = topics.Close()
		return nil, err
	}
	return &JSONLSink{
		topics: topics,
		events: events,
		topicW: json.NewEncoder(topics),
		eventW: json.NewEncoder(events),
	}, nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// StoreTopic appends the topic record
func (s *JSONLSink) StoreTopic(_ context.Context, t *model.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.topicW.Encode(NewTopicRecord(t)); err != nil {
		return fmt.Errorf("write topic: %w", err)
	}
	return nil
}

// StoreEvent appends the event record
func (s *JSONLSink) StoreEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.eventW.Encode(NewEventRecord(e)); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close closes both files
func (s *JSONLSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.topics.Close(), s.events.Close())
}
