package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"did-registry/internal/registry/models"
	"did-registry/pkg/domain"
	"did-registry/pkg/platform/sentinel"
	platformtx "did-registry/pkg/platform/tx"
)

// Postgres persists records in PostgreSQL via database/sql and lib/pq.
// Execute serializes per-identifier mutations with SELECT ... FOR UPDATE;
// the log callback sees the open transaction through its context, so the
// mutation and its change event commit atomically.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the registry tables if missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS did_records (
			did        TEXT PRIMARY KEY,
			document   TEXT NOT NULL,
			controller TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			active     BOOLEAN NOT NULL
		);
		CREATE TABLE IF NOT EXISTS did_delegates (
			did      TEXT NOT NULL REFERENCES did_records (did) ON DELETE CASCADE,
			delegate TEXT NOT NULL,
			PRIMARY KEY (did, delegate)
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure registry schema: %w", err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, record *models.Record, log func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO did_records (did, document, controller, updated_at, active)
		VALUES ($1, $2, $3, $4, $5)
	`, record.DID.String(), record.Document, record.Controller.String(), record.UpdatedAt, record.Active)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("create record: %w", err)
	}

	if log != nil {
		if err := log(platformtx.WithTx(ctx, tx)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Postgres) Find(ctx context.Context, did domain.DID) (*models.Record, error) {
	return s.find(ctx, s.db, did, false)
}

func (s *Postgres) Execute(
	ctx context.Context,
	did domain.DID,
	validate func(record *models.Record) error,
	apply func(record *models.Record),
	log func(ctx context.Context) error,
) (*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	record, err := s.find(ctx, tx, did, true)
	if err != nil {
		return nil, err
	}

	if err := validate(record); err != nil {
		return nil, err
	}

	before := record.Clone()
	apply(record)

	_, err = tx.ExecContext(ctx, `
		UPDATE did_records
		SET document = $2, updated_at = $3, active = $4
		WHERE did = $1
	`, record.DID.String(), record.Document, record.UpdatedAt, record.Active)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	if err := s.applyDelegateDiff(ctx, tx, before, record); err != nil {
		return nil, err
	}

	if log != nil {
		if err := log(platformtx.WithTx(ctx, tx)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return record.Clone(), nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) find(ctx context.Context, q querier, did domain.DID, forUpdate bool) (*models.Record, error) {
	query := `
		SELECT did, document, controller, updated_at, active
		FROM did_records
		WHERE did = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	record := &models.Record{Delegates: make(map[domain.Address]struct{})}
	var didCol, controller string
	err := q.QueryRowContext(ctx, query, did.String()).Scan(
		&didCol, &record.Document, &controller, &record.UpdatedAt, &record.Active,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	record.DID = domain.DID(didCol)
	record.Controller = domain.Address(controller)

	rows, err := q.QueryContext(ctx, `SELECT delegate FROM did_delegates WHERE did = $1`, did.String())
	if err != nil {
		return nil, fmt.Errorf("load delegates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var delegate string
		if err := rows.Scan(&delegate); err != nil {
			return nil, fmt.Errorf("scan delegate: %w", err)
		}
		record.Delegates[domain.Address(delegate)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load delegates: %w", err)
	}
	return record, nil
}

func (s *Postgres) applyDelegateDiff(ctx context.Context, tx *sql.Tx, before, after *models.Record) error {
	for delegate := range after.Delegates {
		if before.HasDelegate(delegate) {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO did_delegates (did, delegate) VALUES ($1, $2)
		`, after.DID.String(), delegate.String())
		if err != nil {
			return fmt.Errorf("insert delegate: %w", err)
		}
	}
	for delegate := range before.Delegates {
		if after.HasDelegate(delegate) {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			DELETE FROM did_delegates WHERE did = $1 AND delegate = $2
		`, after.DID.String(), delegate.String())
		if err != nil {
			return fmt.Errorf("delete delegate: %w", err)
		}
	}
	return nil
}
