package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ppiankov/currentevents/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS topics (
	id TEXT PRIMARY KEY,
	date DATE NOT NULL,
	label TEXT NOT NULL,
	href TEXT,
	source_url TEXT NOT NULL,
	record JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	date DATE NOT NULL,
	category TEXT,
	text TEXT NOT NULL,
	source_url TEXT NOT NULL,
	record JSONB NOT NULL
);`

const upsertTopic = `
	INSERT INTO topics (id, date, label, href, source_url, record)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		date = EXCLUDED.date,
		label = EXCLUDED.label,
		href = EXCLUDED.href,
		source_url = EXCLUDED.source_url,
		record = EXCLUDED.record;
`

const upsertEvent = `
	INSERT INTO events (id, date, category, text, source_url, record)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		date = EXCLUDED.date,
		category = EXCLUDED.category,
		text = EXCLUDED.text,
		source_url = EXCLUDED.source_url,
		record = EXCLUDED.record;
`

// execer is the part of pgxpool.Pool the sink writes through.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink upserts topic and event records into Postgres, keyed by id.
type PostgresSink struct {
	db    execer
	close func()
}

// NewPostgresSink connects to dsn and creates the tables if missing
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresSink{db: pool, close: pool.Close}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// StoreTopic upserts the topic record
func (s *PostgresSink) StoreTopic(ctx context.Context, t *model.Topic) error {
	rec := NewTopicRecord(t)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, upsertTopic, rec.ID, t.Date, t.Label, t.Href, t.SourceURL, data); err != nil {
		return fmt.Errorf("upsert topic: %w", err)
	}
	return nil
}

// StoreEvent upserts the event record
func (s *PostgresSink) StoreEvent(ctx context.Context, e *model.Event) error {
	rec := NewEventRecord(e)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, upsertEvent, rec.ID, e.Date, e.Category, e.Text, e.SourceURL, data); err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (s *PostgresSink) Close(context.Context) error {
	if s.close != nil {
		s.close()
	}
	return nil
}
