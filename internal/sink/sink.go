// Package sink writes extracted topics and events to their destinations.
package sink

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ppiankov/currentevents/internal/model"
)

// Sink receives every topic and event of a run.
type Sink interface {
	StoreTopic(ctx context.Context, t *model.Topic) error
	StoreEvent(ctx context.Context, e *model.Event) error
	Close(ctx context.Context) error
}

// New creates the sinks named in cfg.Type, a comma separated list such as
// "jsonl,nats". More than one name yields a Multi.
func New(ctx context.Context, cfg model.SinkConfig) (Sink, error) {
	var sinks []Sink
	for name := range strings.SplitSeq(cfg.Type, ",") {
		s, err := newNamed(ctx, strings.ToLower(strings.TrimSpace(name)), cfg)
		if err != nil {
			_ = NewMulti(sinks...).Close(ctx)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMulti(sinks...), nil
}

func newNamed(ctx context.Context, name string, cfg model.SinkConfig) (Sink, error) {
	switch name {
	case "jsonl", "":
		return NewJSONLSink(cfg.Path)
	case "postgres":
		return NewPostgresSink(ctx, cfg.PostgresDSN)
	case "neo4j":
		return NewNeo4jSink(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	case "nats":
		return NewNATSSink(cfg.NATSURL, cfg.NATSSubject)
	default:
		return nil, fmt.Errorf("unknown sink: %s (supported: jsonl, postgres, neo4j, nats)", name)
	}
}

// Multi fans every write out to several sinks.
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// StoreTopic writes t to every sink and joins their errors
func (m *Multi) StoreTopic(ctx context.Context, t *model.Topic) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.StoreTopic(ctx, t))
	}
	return errors.Join(errs...)
}

// StoreEvent writes e to every sink and joins their errors
func (m *Multi) StoreEvent(ctx context.Context, e *model.Event) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.StoreEvent(ctx, e))
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close(ctx))
	}
	return errors.Join(errs...)
}

func sortedLabels(rows map[string]model.InfoboxRow) []string {
	return slices.Sorted(maps.Keys(rows))
}
