package models

import (
	"time"

	"did-registry/pkg/domain"
	dErrors "did-registry/pkg/domain-errors"
)

// Record is the aggregate root for one registered identifier.
//
// Invariants:
//   - Controller is non-zero and immutable after registration
//   - Active starts true; the transition to false is terminal
//   - UpdatedAt changes only when the document changes, never on delegate
//     changes or deactivation (indexers rely on this to distinguish content
//     changes from authorization/status changes)
//   - Delegates never contains the zero identity
//
// Lifecycle per identifier: Unregistered -> Active -> Inactive (terminal).
// Non-existence is a store miss, never a field sentinel: a *Record in hand
// is always a registered identifier.
type Record struct {
	DID        domain.DID                  `json:"did"`
	Document   string                      `json:"document"`
	Controller domain.Address              `json:"controller"`
	UpdatedAt  time.Time                   `json:"updated_at"`
	Active     bool                        `json:"active"`
	Delegates  map[domain.Address]struct{} `json:"-"`
}

const maxDocumentLen = 1 << 20 // 1 MiB; payload is opaque but bounded

// NewRecord constructs a freshly registered record.
func NewRecord(did domain.DID, document string, controller domain.Address, now time.Time) (*Record, error) {
	if controller.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthenticated, "controller identity is required")
	}
	if len(document) > maxDocumentLen {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document exceeds maximum size")
	}
	return &Record{
		DID:        did,
		Document:   document,
		Controller: controller,
		UpdatedAt:  now,
		Active:     true,
		Delegates:  make(map[domain.Address]struct{}),
	}, nil
}

func (r *Record) IsActive() bool { return r.Active }

// HasDelegate reports membership; the controller is not a delegate.
func (r *Record) HasDelegate(addr domain.Address) bool {
	_, ok := r.Delegates[addr]
	return ok
}

// IsAuthorized reports whether caller may mutate this record: the controller
// is always implicitly authorized, delegates hold controller-equivalent
// rights while present in the set.
func (r *Record) IsAuthorized(caller domain.Address) bool {
	if caller.IsZero() {
		return false
	}
	return caller == r.Controller || r.HasDelegate(caller)
}

// CanMutate is the shared precondition guard for every mutating operation.
// Check order is fixed: Inactive before Unauthorized, so a deactivated
// identifier reports Inactive even to a stranger. The NotFound leg of the
// documented ordering lives in the store miss, before a Record exists at all.
func (r *Record) CanMutate(caller domain.Address) error {
	if !r.Active {
		return dErrors.New(dErrors.CodeInactive, "identifier is deactivated")
	}
	if !r.IsAuthorized(caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is neither controller nor delegate")
	}
	return nil
}

// ApplyUpdate replaces the document and refreshes the timestamp. Call
// CanMutate first; pair them inside a store Execute callback.
func (r *Record) ApplyUpdate(document string, now time.Time) {
	r.Document = document
	r.UpdatedAt = now
}

// CanUpdate validates an update payload beyond the shared guard.
func (r *Record) CanUpdate(document string) error {
	if len(document) > maxDocumentLen {
		return dErrors.New(dErrors.CodeInvalidInput, "document exceeds maximum size")
	}
	return nil
}

// CanAddDelegate checks delegate-specific preconditions, in order: the zero
// identity is rejected before the duplicate check.
func (r *Record) CanAddDelegate(delegate domain.Address) error {
	if delegate.IsZero() {
		return dErrors.New(dErrors.CodeInvalidDelegate, "delegate identity is required")
	}
	if r.HasDelegate(delegate) {
		return dErrors.New(dErrors.CodeAlreadyDelegate, "delegate already present")
	}
	return nil
}

// ApplyAddDelegate adds the delegate. UpdatedAt is deliberately untouched.
func (r *Record) ApplyAddDelegate(delegate domain.Address) {
	r.Delegates[delegate] = struct{}{}
}

// CanRemoveDelegate rejects removal of an absent delegate; there are no
// silent no-ops.
func (r *Record) CanRemoveDelegate(delegate domain.Address) error {
	if !r.HasDelegate(delegate) {
		return dErrors.New(dErrors.CodeNotDelegate, "delegate not present")
	}
	return nil
}

// ApplyRemoveDelegate removes the delegate. UpdatedAt is deliberately untouched.
func (r *Record) ApplyRemoveDelegate(delegate domain.Address) {
	delete(r.Delegates, delegate)
}

// ApplyDeactivation makes the record terminally inactive. UpdatedAt is
// deliberately untouched; there is no reactivation.
func (r *Record) ApplyDeactivation() {
	r.Active = false
}

// Clone returns a deep copy so store internals never leak mutable state.
func (r *Record) Clone() *Record {
	delegates := make(map[domain.Address]struct{}, len(r.Delegates))
	for d := range r.Delegates {
		delegates[d] = struct{}{}
	}
	clone := *r
	clone.Delegates = delegates
	return &clone
}

// Resolution is the public read projection of a record. Delegate membership
// is queried separately and never cached.
type Resolution struct {
	DID        domain.DID     `json:"did"`
	Document   string         `json:"document"`
	Controller domain.Address `json:"controller"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Active     bool           `json:"active"`
}

// Resolve projects the record into its public form.
func (r *Record) Resolve() *Resolution {
	return &Resolution{
		DID:        r.DID,
		Document:   r.Document,
		Controller: r.Controller,
		UpdatedAt:  r.UpdatedAt,
		Active:     r.Active,
	}
}
