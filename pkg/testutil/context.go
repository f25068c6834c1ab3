// Package testutil provides shared helpers for service and integration tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"did-registry/pkg/domain"
	"did-registry/pkg/requestcontext"
)

// AuthenticatedContext returns a context carrying the given caller identity
// and a pinned timestamp, matching what the HTTP middleware stack installs for
// an authenticated request.
func AuthenticatedContext(t *testing.T, caller domain.Address, at time.Time) context.Context {
	t.Helper()
	ctx := requestcontext.WithCaller(context.Background(), caller)
	return requestcontext.WithTime(ctx, at)
}

// FixedTime is a stable timestamp for tests that assert on UpdatedAt values.
func FixedTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}
