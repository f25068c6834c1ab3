package events

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"did-registry/pkg/domain"
	platformtx "did-registry/pkg/platform/tx"
)

// PostgresStore persists the event log in PostgreSQL. The BIGSERIAL sequence
// column assigns sequence numbers in commit order, which matches call order
// because mutations for one identifier are serialized upstream.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the events table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS registry_events (
			sequence   BIGSERIAL PRIMARY KEY,
			id         TEXT NOT NULL,
			kind       TEXT NOT NULL,
			did        TEXT NOT NULL,
			actor      TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS registry_events_did_idx ON registry_events (did, sequence);
	`)
	if err != nil {
		return fmt.Errorf("ensure events schema: %w", err)
	}
	return nil
}

// Append inserts the event. When the context carries a SQL transaction (the
// registry store opens one around each mutation) the insert joins it, so the
// notification commits or rolls back with the state change it describes.
func (s *PostgresStore) Append(ctx context.Context, event *Event) error {
	const query = `
		INSERT INTO registry_events (id, kind, did, actor, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING sequence
	`
	var row *sql.Row
	if tx, ok := platformtx.From(ctx); ok {
		row = tx.QueryRowContext(ctx, query,
			event.ID, string(event.Kind), event.DID.String(), event.Actor.String(), event.Timestamp)
	} else {
		row = s.db.QueryRowContext(ctx, query,
			event.ID, string(event.Kind), event.DID.String(), event.Actor.String(), event.Timestamp)
	}
	if err := row.Scan(&event.Sequence); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByDID(ctx context.Context, did domain.DID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, id, kind, did, actor, occurred_at
		FROM registry_events
		WHERE did = $1
		ORDER BY sequence
	`, did.String())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) Tail(ctx context.Context, after uint64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, id, kind, did, actor, occurred_at
		FROM registry_events
		WHERE sequence > $1
		ORDER BY sequence
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("tail events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var (
			ev         Event
			kind, did  string
			actor      string
			occurredAt time.Time
		)
		if err := rows.Scan(&ev.Sequence, &ev.ID, &kind, &did, &actor, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = Kind(kind)
		ev.DID = domain.DID(did)
		ev.Actor = domain.Address(actor)
		ev.Timestamp = occurredAt
		out = append(out, ev)
	}
	return out, rows.Err()
}
