package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"did-registry/pkg/domain"
)

// Publisher appends events to the store and fans them out to an optional
// sink. Emit runs inside the caller's commit boundary (the store joins any
// SQL transaction carried in the context); Forward runs after commit, so the
// sink never sees an event that rolled back. Sink delivery may be deferred
// to a background worker with a bounded buffer.
type Publisher struct {
	store  Store
	sink   Sink
	logger *slog.Logger

	inbox chan Event
	wg    sync.WaitGroup
	once  sync.Once
}

type Option func(p *Publisher)

// WithSink attaches a fan-out sink (e.g. Kafka) fed after each append.
func WithSink(sink Sink) Option {
	return func(p *Publisher) { p.sink = sink }
}

// WithAsyncBuffer makes sink delivery asynchronous through a bounded channel.
// When the buffer is full the event is dropped from the sink path (never from
// the store) and the drop is logged; indexers recover via the tail endpoint.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) { p.inbox = make(chan Event, size) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit appends the event to the store. The sequence number is assigned by
// the store; the assigned value is visible to the caller through the event
// pointer. Sink delivery is a separate Forward call made after the caller's
// transaction commits.
func (p *Publisher) Emit(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return p.store.Append(ctx, event)
}

// Forward fans the committed event out to the sink. Best effort: failures
// and buffer overflow are logged, never surfaced, because the store is the
// source of truth indexers replay from.
func (p *Publisher) Forward(ctx context.Context, event Event) {
	if p.sink == nil {
		return
	}
	if p.inbox == nil {
		if err := p.sink.Publish(ctx, event); err != nil {
			p.logger.WarnContext(ctx, "event sink publish failed",
				"sequence", event.Sequence,
				"kind", event.Kind,
				"error", err,
			)
		}
		return
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("event sink buffer full, dropping from sink path",
			"sequence", event.Sequence,
			"kind", event.Kind,
		)
	}
}

// ListByDID returns the per-identifier change history.
func (p *Publisher) ListByDID(ctx context.Context, did domain.DID) ([]Event, error) {
	return p.store.ListByDID(ctx, did)
}

// Tail returns events after the given sequence for indexer catch-up.
func (p *Publisher) Tail(ctx context.Context, after uint64, limit int) ([]Event, error) {
	return p.store.Tail(ctx, after, limit)
}

// Close drains the async buffer and stops the forwarder.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.inbox {
		if err := p.sink.Publish(context.Background(), event); err != nil {
			p.logger.Warn("event sink publish failed",
				"sequence", event.Sequence,
				"kind", event.Kind,
				"error", err,
			)
		}
	}
}
