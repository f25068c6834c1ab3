// Package service implements the registry state machine.
//
// Every mutating operation follows the same shape: enter the per-identifier
// transaction boundary, run the fixed-order precondition guard inside the
// store's Execute callback, apply the mutation, and append the change event
// through the store's log callback so both land in one commit. A failed
// precondition or append leaves no observable side effect: no state change,
// no event. Sink fan-out happens only after the commit.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"did-registry/internal/events"
	registrymetrics "did-registry/internal/registry/metrics"
	"did-registry/internal/registry/models"
	"did-registry/pkg/domain"
	dErrors "did-registry/pkg/domain-errors"
	"did-registry/pkg/platform/sentinel"
	"did-registry/pkg/requestcontext"
)

// Store is the persistence contract the service depends on. Implementations
// live in internal/registry/store. The log callback runs inside the same
// commit boundary as the write; the service appends the change event there.
type Store interface {
	Create(ctx context.Context, record *models.Record, log func(ctx context.Context) error) error
	Find(ctx context.Context, did domain.DID) (*models.Record, error)
	Execute(
		ctx context.Context,
		did domain.DID,
		validate func(record *models.Record) error,
		apply func(record *models.Record),
		log func(ctx context.Context) error,
	) (*models.Record, error)
}

// ResolveCache is an optional read-through cache for resolutions.
type ResolveCache interface {
	Find(ctx context.Context, did domain.DID) (*models.Resolution, error)
	Save(ctx context.Context, resolution *models.Resolution) error
	Invalidate(ctx context.Context, did domain.DID) error
}

// EventPublisher appends change notifications; satisfied by events.Publisher.
// Emit is called inside the store's commit boundary, Forward after it.
type EventPublisher interface {
	Emit(ctx context.Context, event *events.Event) error
	Forward(ctx context.Context, event events.Event)
	ListByDID(ctx context.Context, did domain.DID) ([]events.Event, error)
	Tail(ctx context.Context, after uint64, limit int) ([]events.Event, error)
}

// Service orchestrates the identifier lifecycle.
type Service struct {
	store   Store
	events  EventPublisher
	cache   ResolveCache
	tx      RegistryTx
	logger  *slog.Logger
	metrics *registrymetrics.Metrics
	tracer  trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithResolveCache(cache ResolveCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithTx(tx RegistryTx) Option {
	return func(s *Service) { s.tx = tx }
}

// New constructs a Service.
func New(store Store, publisher EventPublisher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		events: publisher,
		logger: slog.Default(),
		tracer: otel.Tracer("did-registry/registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = newShardedTx()
	}
	return s
}

// Register creates a new identifier owned by the caller.
func (s *Service) Register(ctx context.Context, did domain.DID, document string) error {
	ctx, span := s.tracer.Start(ctx, "registry.Register")
	defer span.End()
	start := time.Now()

	caller := requestcontext.Caller(ctx)

	var ev *events.Event
	err := s.tx.RunInTx(ctx, did, func(txCtx context.Context) error {
		record, err := models.NewRecord(did, document, caller, requestcontext.Now(txCtx))
		if err != nil {
			return err
		}
		err = s.store.Create(txCtx, record, func(logCtx context.Context) error {
			var appendErr error
			ev, appendErr = s.append(logCtx, events.KindRegistered, did, caller)
			return appendErr
		})
		if err != nil {
			if errors.Is(err, sentinel.ErrAlreadyExists) {
				return dErrors.New(dErrors.CodeAlreadyRegistered, "identifier already registered")
			}
			var de *dErrors.Error
			if errors.As(err, &de) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create record")
		}
		return nil
	})
	if err != nil {
		s.failed("register", err)
		return err
	}

	s.forward(ctx, ev)
	s.logAudit(ctx, "did_registered", "did", did.String(), "controller", caller.String())
	s.observeMutation(start)
	if s.metrics != nil {
		s.metrics.Registered.Inc()
	}
	return nil
}

// Update replaces the document of an active identifier. This is the only
// operation that refreshes UpdatedAt.
func (s *Service) Update(ctx context.Context, did domain.DID, document string) error {
	ctx, span := s.tracer.Start(ctx, "registry.Update")
	defer span.End()
	start := time.Now()

	caller := requestcontext.Caller(ctx)
	now := requestcontext.Now(ctx)

	var ev *events.Event
	err := s.tx.RunInTx(ctx, did, func(txCtx context.Context) error {
		_, err := s.execute(txCtx, did,
			func(record *models.Record) error {
				if err := record.CanMutate(caller); err != nil {
					return err
				}
				return record.CanUpdate(document)
			},
			func(record *models.Record) {
				record.ApplyUpdate(document, now)
			},
			func(logCtx context.Context) error {
				var appendErr error
				ev, appendErr = s.append(logCtx, events.KindUpdated, did, caller)
				return appendErr
			},
		)
		return err
	})
	if err != nil {
		s.failed("update", err)
		return err
	}

	s.forward(ctx, ev)
	s.invalidate(ctx, did)
	s.logAudit(ctx, "did_updated", "did", did.String(), "caller", caller.String())
	s.observeMutation(start)
	if s.metrics != nil {
		s.metrics.Updated.Inc()
	}
	return nil
}

// AddDelegate grants delegate rights on an active identifier.
func (s *Service) AddDelegate(ctx context.Context, did domain.DID, delegate domain.Address) error {
	ctx, span := s.tracer.Start(ctx, "registry.AddDelegate")
	defer span.End()
	start := time.Now()

	caller := requestcontext.Caller(ctx)

	var ev *events.Event
	err := s.tx.RunInTx(ctx, did, func(txCtx context.Context) error {
		_, err := s.execute(txCtx, did,
			func(record *models.Record) error {
				if err := record.CanMutate(caller); err != nil {
					return err
				}
				return record.CanAddDelegate(delegate)
			},
			func(record *models.Record) {
				record.ApplyAddDelegate(delegate)
			},
			func(logCtx context.Context) error {
				var appendErr error
				ev, appendErr = s.append(logCtx, events.KindDelegateAdded, did, delegate)
				return appendErr
			},
		)
		return err
	})
	if err != nil {
		s.failed("add_delegate", err)
		return err
	}

	s.forward(ctx, ev)
	s.logAudit(ctx, "delegate_added", "did", did.String(), "caller", caller.String(), "delegate", delegate.String())
	s.observeMutation(start)
	if s.metrics != nil {
		s.metrics.DelegatesAdded.Inc()
	}
	return nil
}

// RemoveDelegate revokes delegate rights on an active identifier.
func (s *Service) RemoveDelegate(ctx context.Context, did domain.DID, delegate domain.Address) error {
	ctx, span := s.tracer.Start(ctx, "registry.RemoveDelegate")
	defer span.End()
	start := time.Now()

	caller := requestcontext.Caller(ctx)

	var ev *events.Event
	err := s.tx.RunInTx(ctx, did, func(txCtx context.Context) error {
		_, err := s.execute(txCtx, did,
			func(record *models.Record) error {
				if err := record.CanMutate(caller); err != nil {
					return err
				}
				return record.CanRemoveDelegate(delegate)
			},
			func(record *models.Record) {
				record.ApplyRemoveDelegate(delegate)
			},
			func(logCtx context.Context) error {
				var appendErr error
				ev, appendErr = s.append(logCtx, events.KindDelegateRemoved, did, delegate)
				return appendErr
			},
		)
		return err
	})
	if err != nil {
		s.failed("remove_delegate", err)
		return err
	}

	s.forward(ctx, ev)
	s.logAudit(ctx, "delegate_removed", "did", did.String(), "caller", caller.String(), "delegate", delegate.String())
	s.observeMutation(start)
	if s.metrics != nil {
		s.metrics.DelegatesRemoved.Inc()
	}
	return nil
}

// Deactivate terminally retires an identifier. The record stays resolvable
// but accepts no further mutation, including a second deactivation.
func (s *Service) Deactivate(ctx context.Context, did domain.DID) error {
	ctx, span := s.tracer.Start(ctx, "registry.Deactivate")
	defer span.End()
	start := time.Now()

	caller := requestcontext.Caller(ctx)

	var ev *events.Event
	err := s.tx.RunInTx(ctx, did, func(txCtx context.Context) error {
		_, err := s.execute(txCtx, did,
			func(record *models.Record) error {
				return record.CanMutate(caller)
			},
			func(record *models.Record) {
				record.ApplyDeactivation()
			},
			func(logCtx context.Context) error {
				var appendErr error
				ev, appendErr = s.append(logCtx, events.KindDeactivated, did, domain.Address(""))
				return appendErr
			},
		)
		return err
	})
	if err != nil {
		s.failed("deactivate", err)
		return err
	}

	s.forward(ctx, ev)
	s.invalidate(ctx, did)
	s.logAudit(ctx, "did_deactivated", "did", did.String(), "caller", caller.String())
	s.observeMutation(start)
	if s.metrics != nil {
		s.metrics.Deactivated.Inc()
	}
	return nil
}

// Resolve returns the public view of an identifier. No authorization:
// resolution is public, and deactivated identifiers stay resolvable.
func (s *Service) Resolve(ctx context.Context, did domain.DID) (*models.Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Resolve")
	defer span.End()
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveResolve(start)
		}
	}()

	if s.cache != nil {
		if resolution, err := s.cache.Find(ctx, did); err == nil {
			if s.metrics != nil {
				s.metrics.CacheHits.Inc()
			}
			return resolution, nil
		}
		if s.metrics != nil {
			s.metrics.CacheMisses.Inc()
		}
	}

	record, err := s.store.Find(ctx, did)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identifier not registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identifier")
	}

	resolution := record.Resolve()
	if s.cache != nil {
		if err := s.cache.Save(ctx, resolution); err != nil {
			s.logger.WarnContext(ctx, "resolve cache save failed", "did", did.String(), "error", err)
		}
	}
	return resolution, nil
}

// IsDelegate reports delegate membership. Never fails: unregistered
// identifiers and absent delegates both answer false.
func (s *Service) IsDelegate(ctx context.Context, did domain.DID, addr domain.Address) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "registry.IsDelegate")
	defer span.End()

	record, err := s.store.Find(ctx, did)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	return record.HasDelegate(addr), nil
}

// Exists answers whether an identifier is registered. By contract it can only
// ever answer true: an unregistered identifier is a NotFound error, an
// asymmetry preserved from the operation's check-then-answer shape.
func (s *Service) Exists(ctx context.Context, did domain.DID) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Exists")
	defer span.End()

	_, err := s.store.Find(ctx, did)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.New(dErrors.CodeNotFound, "identifier not registered")
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	return true, nil
}

// Changes returns the per-identifier change history.
func (s *Service) Changes(ctx context.Context, did domain.DID) ([]events.Event, error) {
	return s.events.ListByDID(ctx, did)
}

// ChangesTail returns events after the given sequence, for indexer catch-up.
func (s *Service) ChangesTail(ctx context.Context, after uint64, limit int) ([]events.Event, error) {
	return s.events.Tail(ctx, after, limit)
}

// execute adapts store errors to domain errors; the NotFound leg of the
// documented precondition order happens here, before any guard runs.
func (s *Service) execute(
	ctx context.Context,
	did domain.DID,
	validate func(record *models.Record) error,
	apply func(record *models.Record),
	log func(ctx context.Context) error,
) (*models.Record, error) {
	record, err := s.store.Execute(ctx, did, validate, apply, log)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identifier not registered")
		}
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store mutation failed")
	}
	return record, nil
}

// append runs inside the store's commit boundary so the mutation and its
// change event are durable together or not at all.
func (s *Service) append(ctx context.Context, kind events.Kind, did domain.DID, actor domain.Address) (*events.Event, error) {
	event := &events.Event{
		Kind:      kind,
		DID:       did,
		Actor:     actor,
		Timestamp: requestcontext.Now(ctx),
	}
	if err := s.events.Emit(ctx, event); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append change event")
	}
	return event, nil
}

// forward hands a committed event to the external sink. Runs only after the
// store transaction succeeded, so the sink never sees a rolled-back change.
func (s *Service) forward(ctx context.Context, event *events.Event) {
	if event == nil {
		return
	}
	s.events.Forward(ctx, *event)
}

func (s *Service) invalidate(ctx context.Context, did domain.DID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, did); err != nil {
		s.logger.WarnContext(ctx, "resolve cache invalidation failed", "did", did.String(), "error", err)
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

func (s *Service) failed(operation string, err error) {
	if s.metrics != nil {
		s.metrics.IncrementFailure(operation, string(dErrors.CodeOf(err)))
	}
}

func (s *Service) observeMutation(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveMutation(start)
	}
}
