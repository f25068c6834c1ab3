package service

import (
	"context"
	"sync"
	"time"

	"did-registry/pkg/domain"
	dErrors "did-registry/pkg/domain-errors"
)

// RegistryTx is the serialization point every mutating operation passes
// through. The hosting environment of the original design guaranteed one call
// at a time; behind a network service that guarantee has to be rebuilt, so
// mutation plus event emission for one identifier run under a per-identifier
// lock and commit together.
type RegistryTx interface {
	RunInTx(ctx context.Context, did domain.DID, fn func(txCtx context.Context) error) error
}

// shardedTx distributes identifiers across N mutexes by FNV-1a hash. One
// shard serializes all operations for the identifiers it covers; operations
// on different shards proceed concurrently.
const numShards = 128

// defaultTxTimeout is the maximum duration a serialized call may hold its shard.
const defaultTxTimeout = 5 * time.Second

type shardedTx struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func newShardedTx() *shardedTx {
	return &shardedTx{timeout: defaultTxTimeout}
}

func (t *shardedTx) RunInTx(ctx context.Context, did domain.DID, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := hashString(did.String()) % numShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring the lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

// hashString uses FNV-1a for stable shard distribution.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
