package store

import (
	"context"
	"sync"

	"did-registry/internal/registry/models"
	"did-registry/pkg/domain"
	"did-registry/pkg/platform/sentinel"
)

// InMemory keeps records in a mutex-guarded map. It intentionally favors
// clarity over performance and backs dev mode and unit tests.
type InMemory struct {
	mu      sync.RWMutex
	records map[domain.DID]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[domain.DID]*models.Record)}
}

func (s *InMemory) Create(ctx context.Context, record *models.Record, log func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.DID]; ok {
		return sentinel.ErrAlreadyExists
	}
	if log != nil {
		if err := log(ctx); err != nil {
			return err
		}
	}
	s.records[record.DID] = record.Clone()
	return nil
}

func (s *InMemory) Find(_ context.Context, did domain.DID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[did]; ok {
		return record.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) Execute(
	ctx context.Context,
	did domain.DID,
	validate func(record *models.Record) error,
	apply func(record *models.Record),
	log func(ctx context.Context) error,
) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[did]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	// Validate against a copy so a panicking or misbehaving callback cannot
	// leave half-applied state. The copy is swapped in only after log
	// succeeds, so a lost notification never accompanies a committed change.
	working := record.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	apply(working)
	if log != nil {
		if err := log(ctx); err != nil {
			return nil, err
		}
	}
	s.records[did] = working
	return working.Clone(), nil
}
