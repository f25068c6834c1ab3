// Package events is the registry's change-notification log.
//
// Every successful mutation appends exactly one event, in call order, inside
// the same transaction boundary as the state change. External indexers
// consume the log through the HTTP tail endpoints or the Kafka sink; sequence
// numbers and timestamps make delivery idempotent, so at-least-once sinks are
// acceptable.
package events

import (
	"context"
	"time"

	"did-registry/pkg/domain"
)

// Kind discriminates the five notification kinds.
type Kind string

const (
	KindRegistered      Kind = "registered"
	KindUpdated         Kind = "updated"
	KindDelegateAdded   Kind = "delegate_added"
	KindDelegateRemoved Kind = "delegate_removed"
	KindDeactivated     Kind = "deactivated"
)

// Event is emitted from the registry service to capture one state transition.
// Actor carries the relevant principal: the caller for registered/updated,
// the affected delegate for delegate changes, empty for deactivated.
type Event struct {
	ID        string         `json:"id"`
	Sequence  uint64         `json:"sequence"`
	Kind      Kind           `json:"kind"`
	DID       domain.DID     `json:"did"`
	Actor     domain.Address `json:"actor,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store is the append-only persistence for events. Append assigns the
// sequence number under the store's own lock, so sequence order matches the
// serialized call order.
type Store interface {
	Append(ctx context.Context, event *Event) error
	ListByDID(ctx context.Context, did domain.DID) ([]Event, error)
	// Tail returns up to limit events with Sequence > after, oldest first.
	Tail(ctx context.Context, after uint64, limit int) ([]Event, error)
}

// Sink receives events after they are durably appended. Sinks are best-effort
// fan-out; the Store is the source of truth indexers can replay from.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close()
}
