package events

import (
	"context"
	"sync"

	"did-registry/pkg/domain"
)

// InMemoryStore keeps the event log in an append-only slice. Suitable for
// dev mode and tests; production deployments persist through PostgresStore.
type InMemoryStore struct {
	mu      sync.RWMutex
	log     []Event
	lastSeq uint64
	byDID   map[domain.DID][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byDID: make(map[domain.DID][]int)}
}

func (s *InMemoryStore) Append(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq++
	event.Sequence = s.lastSeq
	s.byDID[event.DID] = append(s.byDID[event.DID], len(s.log))
	s.log = append(s.log, *event)
	return nil
}

func (s *InMemoryStore) ListByDID(_ context.Context, did domain.DID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idxs := s.byDID[did]
	out := make([]Event, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.log[i])
	}
	return out, nil
}

func (s *InMemoryStore) Tail(_ context.Context, after uint64, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = len(s.log)
	}
	out := make([]Event, 0, limit)
	for _, ev := range s.log {
		if ev.Sequence <= after {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
