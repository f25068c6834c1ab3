package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"did-registry/internal/events"
	"did-registry/internal/registry/store"
	"did-registry/pkg/domain"
	dErrors "did-registry/pkg/domain-errors"
	"did-registry/pkg/requestcontext"
)

var (
	alice    = domain.Address("0xaaaa")
	bob      = domain.Address("0xbbbb")
	mallory  = domain.Address("0xcccc")
	exampleA = domain.DID("did:example:alpha")
)

type fixture struct {
	service  *Service
	events   *events.InMemoryStore
	baseTime time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eventStore := events.NewInMemoryStore()
	publisher := events.NewPublisher(eventStore)
	t.Cleanup(publisher.Close)
	return &fixture{
		service:  New(store.NewInMemory(), publisher),
		events:   eventStore,
		baseTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// as builds a context carrying the caller identity and a logical timestamp,
// the two inputs the execution environment supplies per call.
func (f *fixture) as(caller domain.Address, at time.Time) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), caller)
	return requestcontext.WithTime(ctx, at)
}

func (f *fixture) register(t *testing.T, did domain.DID, document string, controller domain.Address) {
	t.Helper()
	require.NoError(t, f.service.Register(f.as(controller, f.baseTime), did, document))
}

func TestRegister(t *testing.T) {
	t.Run("creates an active record owned by the caller", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		resolution, err := f.service.Resolve(context.Background(), exampleA)
		require.NoError(t, err)
		assert.Equal(t, "doc1", resolution.Document)
		assert.Equal(t, alice, resolution.Controller)
		assert.Equal(t, f.baseTime, resolution.UpdatedAt)
		assert.True(t, resolution.Active)
	})

	t.Run("rejects an unauthenticated caller", func(t *testing.T) {
		f := newFixture(t)
		ctx := requestcontext.WithTime(context.Background(), f.baseTime)
		err := f.service.Register(ctx, exampleA, "doc1")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
	})

	// P1: no double registration, regardless of caller.
	t.Run("rejects re-registration regardless of caller", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		for _, caller := range []domain.Address{alice, bob} {
			err := f.service.Register(f.as(caller, f.baseTime), exampleA, "other")
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyRegistered))
		}
	})

	t.Run("emits Registered", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		log, err := f.events.ListByDID(context.Background(), exampleA)
		require.NoError(t, err)
		require.Len(t, log, 1)
		assert.Equal(t, events.KindRegistered, log[0].Kind)
		assert.Equal(t, alice, log[0].Actor)
	})

	// The record write and its event append share one commit boundary: when
	// the append fails the registration must not be observable afterwards.
	t.Run("failed event append leaves no record behind", func(t *testing.T) {
		publisher := events.NewPublisher(&failingEventStore{})
		t.Cleanup(publisher.Close)
		svc := New(store.NewInMemory(), publisher)

		ctx := requestcontext.WithCaller(context.Background(), alice)
		err := svc.Register(ctx, exampleA, "doc1")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

		_, err = svc.Resolve(context.Background(), exampleA)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound),
			"a registration whose event never landed must not resolve")
	})
}

// failingEventStore rejects every append; reads answer empty.
type failingEventStore struct{}

func (f *failingEventStore) Append(context.Context, *events.Event) error {
	return errEventStoreDown
}

func (f *failingEventStore) ListByDID(context.Context, domain.DID) ([]events.Event, error) {
	return nil, nil
}

func (f *failingEventStore) Tail(context.Context, uint64, int) ([]events.Event, error) {
	return nil, nil
}

var errEventStoreDown = errors.New("event store unavailable")

func TestUpdate(t *testing.T) {
	t.Run("replaces document and refreshes timestamp", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		later := f.baseTime.Add(time.Minute)
		require.NoError(t, f.service.Update(f.as(alice, later), exampleA, "doc2"))

		resolution, err := f.service.Resolve(context.Background(), exampleA)
		require.NoError(t, err)
		assert.Equal(t, "doc2", resolution.Document)
		assert.Equal(t, later, resolution.UpdatedAt)
	})

	t.Run("unregistered identifier fails NotFound", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.Update(f.as(alice, f.baseTime), exampleA, "doc2")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	// P5: strangers are rejected with Unauthorized.
	t.Run("stranger fails Unauthorized", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		err := f.service.Update(f.as(mallory, f.baseTime), exampleA, "doc2")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("delegate may update", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)
		require.NoError(t, f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, bob))

		require.NoError(t, f.service.Update(f.as(bob, f.baseTime.Add(time.Second)), exampleA, "doc2"))
	})

	t.Run("failed update leaves no event behind", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		_ = f.service.Update(f.as(mallory, f.baseTime), exampleA, "doc2")

		log, err := f.events.ListByDID(context.Background(), exampleA)
		require.NoError(t, err)
		assert.Len(t, log, 1, "only the Registered event should exist")
	})
}

func TestDelegates(t *testing.T) {
	// P4: no silent no-ops on the delegate set.
	t.Run("double add fails AlreadyDelegate", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		require.NoError(t, f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, bob))
		err := f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, bob)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeAlreadyDelegate))
	})

	t.Run("removing absent delegate fails NotDelegate", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		err := f.service.RemoveDelegate(f.as(alice, f.baseTime), exampleA, bob)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotDelegate))
	})

	t.Run("zero delegate fails InvalidDelegate after authorization", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		err := f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, domain.Address(""))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidDelegate))

		// A stranger presenting the same bad payload hits Unauthorized first:
		// the check order is fixed.
		err = f.service.AddDelegate(f.as(mallory, f.baseTime), exampleA, domain.Address(""))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	// P5 second half: adding the caller as delegate makes the retry succeed.
	t.Run("delegate gains controller-equivalent rights", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		err := f.service.AddDelegate(f.as(bob, f.baseTime), exampleA, mallory)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

		require.NoError(t, f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, bob))
		require.NoError(t, f.service.AddDelegate(f.as(bob, f.baseTime), exampleA, mallory))
	})

	t.Run("delegate changes do not refresh UpdatedAt", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		later := f.baseTime.Add(time.Hour)
		require.NoError(t, f.service.AddDelegate(f.as(alice, later), exampleA, bob))
		require.NoError(t, f.service.RemoveDelegate(f.as(alice, later), exampleA, bob))

		resolution, err := f.service.Resolve(context.Background(), exampleA)
		require.NoError(t, err)
		assert.Equal(t, f.baseTime, resolution.UpdatedAt)
	})

	t.Run("events carry the delegate as actor", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)
		require.NoError(t, f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, bob))
		require.NoError(t, f.service.RemoveDelegate(f.as(alice, f.baseTime), exampleA, bob))

		log, err := f.events.ListByDID(context.Background(), exampleA)
		require.NoError(t, err)
		require.Len(t, log, 3)
		assert.Equal(t, events.KindDelegateAdded, log[1].Kind)
		assert.Equal(t, bob, log[1].Actor)
		assert.Equal(t, events.KindDelegateRemoved, log[2].Kind)
		assert.Equal(t, bob, log[2].Actor)
	})
}

// P3: deactivation is terminal.
func TestDeactivate(t *testing.T) {
	t.Run("every subsequent mutation fails Inactive", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)
		require.NoError(t, f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, bob))
		require.NoError(t, f.service.Deactivate(f.as(alice, f.baseTime), exampleA))

		mutations := map[string]error{
			"update":          f.service.Update(f.as(alice, f.baseTime), exampleA, "doc2"),
			"addDelegate":     f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, mallory),
			"removeDelegate":  f.service.RemoveDelegate(f.as(alice, f.baseTime), exampleA, bob),
			"deactivate":      f.service.Deactivate(f.as(alice, f.baseTime), exampleA),
			"delegate update": f.service.Update(f.as(bob, f.baseTime), exampleA, "doc2"),
		}
		for name, err := range mutations {
			require.Error(t, err, name)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInactive), name)
		}
	})

	t.Run("reads still succeed and report inactive", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)
		require.NoError(t, f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, bob))
		require.NoError(t, f.service.Deactivate(f.as(alice, f.baseTime), exampleA))

		resolution, err := f.service.Resolve(context.Background(), exampleA)
		require.NoError(t, err)
		assert.False(t, resolution.Active)

		isDelegate, err := f.service.IsDelegate(context.Background(), exampleA, bob)
		require.NoError(t, err)
		assert.True(t, isDelegate, "delegate set survives deactivation for historical reads")
	})

	t.Run("stranger cannot deactivate", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, exampleA, "doc1", alice)

		err := f.service.Deactivate(f.as(mallory, f.baseTime), exampleA)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

// P2: controller immutability across arbitrary operation sequences.
func TestControllerImmutable(t *testing.T) {
	f := newFixture(t)
	f.register(t, exampleA, "doc1", alice)

	require.NoError(t, f.service.AddDelegate(f.as(alice, f.baseTime), exampleA, bob))
	require.NoError(t, f.service.Update(f.as(bob, f.baseTime.Add(time.Second)), exampleA, "doc2"))
	require.NoError(t, f.service.RemoveDelegate(f.as(alice, f.baseTime), exampleA, bob))
	require.NoError(t, f.service.Deactivate(f.as(alice, f.baseTime), exampleA))

	resolution, err := f.service.Resolve(context.Background(), exampleA)
	require.NoError(t, err)
	assert.Equal(t, alice, resolution.Controller)
}

func TestReads(t *testing.T) {
	t.Run("resolve unregistered fails NotFound", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Resolve(context.Background(), exampleA)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("isDelegate never fails", func(t *testing.T) {
		f := newFixture(t)

		isDelegate, err := f.service.IsDelegate(context.Background(), exampleA, bob)
		require.NoError(t, err)
		assert.False(t, isDelegate, "unregistered identifier answers false")

		f.register(t, exampleA, "doc1", alice)
		isDelegate, err = f.service.IsDelegate(context.Background(), exampleA, bob)
		require.NoError(t, err)
		assert.False(t, isDelegate, "absent delegate answers false")
	})

	t.Run("exists can only ever answer true", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Exists(context.Background(), exampleA)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

		f.register(t, exampleA, "doc1", alice)
		exists, err := f.service.Exists(context.Background(), exampleA)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

// Full lifecycle walkthrough: register, delegate, delegate update,
// deactivate, with event and timestamp assertions at each step.
func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	did := domain.DID("did:x:1")
	t0 := f.baseTime
	t1 := t0.Add(5 * time.Minute)

	require.NoError(t, f.service.Register(f.as(alice, t0), did, "doc1"))

	resolution, err := f.service.Resolve(context.Background(), did)
	require.NoError(t, err)
	assert.Equal(t, "doc1", resolution.Document)
	assert.Equal(t, alice, resolution.Controller)
	assert.Equal(t, t0, resolution.UpdatedAt)
	assert.True(t, resolution.Active)

	require.NoError(t, f.service.AddDelegate(f.as(alice, t0), did, bob))

	require.NoError(t, f.service.Update(f.as(bob, t1), did, "doc2"))
	resolution, err = f.service.Resolve(context.Background(), did)
	require.NoError(t, err)
	assert.Equal(t, "doc2", resolution.Document)
	assert.Equal(t, alice, resolution.Controller)
	assert.True(t, !resolution.UpdatedAt.Before(t0), "t1 >= t0")
	assert.True(t, resolution.Active)

	require.NoError(t, f.service.Deactivate(f.as(alice, t1), did))
	resolution, err = f.service.Resolve(context.Background(), did)
	require.NoError(t, err)
	assert.False(t, resolution.Active)

	err = f.service.Update(f.as(bob, t1), did, "doc3")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInactive))

	// The change log captures the full history in call order.
	log, err := f.service.Changes(context.Background(), did)
	require.NoError(t, err)
	require.Len(t, log, 4)
	kinds := []events.Kind{log[0].Kind, log[1].Kind, log[2].Kind, log[3].Kind}
	assert.Equal(t, []events.Kind{
		events.KindRegistered,
		events.KindDelegateAdded,
		events.KindUpdated,
		events.KindDeactivated,
	}, kinds)
	for i := 1; i < len(log); i++ {
		assert.Greater(t, log[i].Sequence, log[i-1].Sequence)
	}
}
