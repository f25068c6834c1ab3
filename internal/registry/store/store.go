// Package store provides persistence for registry records.
//
// Implementations return pkg/platform/sentinel errors; the service layer
// translates them into domain errors. Execute is the atomicity primitive: it
// holds the entry lock (mutex in memory, SELECT ... FOR UPDATE in Postgres)
// across validation and mutation so a failed precondition can never leave a
// partial write behind.
//
// Create and Execute accept a log callback that runs inside the same commit
// boundary as the write, with any SQL transaction carried in the callback's
// context. The service appends the change event there, so state change and
// notification commit together or not at all.
package store

import (
	"context"

	"did-registry/internal/registry/models"
	"did-registry/pkg/domain"
)

// Store is the persistence contract for DID records.
type Store interface {
	// Create persists a new record, failing with sentinel.ErrAlreadyExists
	// when the identifier is taken. Existence is a key-presence fact, never
	// a field comparison. A non-nil log runs before the write commits; if it
	// fails, the record is not created.
	Create(ctx context.Context, record *models.Record, log func(ctx context.Context) error) error

	// Find returns a copy of the record or sentinel.ErrNotFound.
	Find(ctx context.Context, did domain.DID) (*models.Record, error)

	// Execute atomically loads the record, runs validate, and if validate
	// returns nil applies the mutation, runs log, and persists everything
	// together. On validation or log error the stored state is untouched.
	// Returns sentinel.ErrNotFound when the identifier is unregistered. The
	// returned record reflects the state after a successful apply.
	Execute(
		ctx context.Context,
		did domain.DID,
		validate func(record *models.Record) error,
		apply func(record *models.Record),
		log func(ctx context.Context) error,
	) (*models.Record, error)
}
