package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ppiankov/currentevents/internal/model"
)

// NATSSink publishes records on <subject>.topics and <subject>.events.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to a NATS server
func NewNATSSink(url, subject string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("currentevents"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if subject == "" {
		subject = "currentevents"
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

// StoreTopic publishes the topic record
func (s *NATSSink) StoreTopic(_ context.Context, t *model.Topic) error {
	return s.publish(s.subject+".topics", NewTopicRecord(t))
}

// StoreEvent publishes the event record
func (s *NATSSink) StoreEvent(_ context.Context, e *model.Event) error {
	return s.publish(s.subject+".events", NewEventRecord(e))
}

func (s *NATSSink) publish(subject string, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection
func (s *NATSSink) Close(context.Context) error {
	return s.nc.Drain()
}
