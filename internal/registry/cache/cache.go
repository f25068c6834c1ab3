// Package cache provides a Redis read-through cache for resolutions.
//
// Mutations invalidate eagerly; the TTL bounds staleness when an
// invalidation is lost. Delegate membership is never cached — it is already
// a single keyed read and staleness there would weaken authorization checks.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"did-registry/internal/registry/models"
	"did-registry/pkg/domain"
	"did-registry/pkg/platform/sentinel"
)

// ResolveCache caches resolve projections keyed by DID.
type ResolveCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func New(client *goredis.Client, ttl time.Duration) *ResolveCache {
	return &ResolveCache{client: client, ttl: ttl}
}

func key(did domain.DID) string {
	return "did-registry:resolve:" + did.String()
}

func (c *ResolveCache) Find(ctx context.Context, did domain.DID) (*models.Resolution, error) {
	payload, err := c.client.Get(ctx, key(did)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var resolution models.Resolution
	if err := json.Unmarshal(payload, &resolution); err != nil {
		// Treat a corrupt entry as a miss; the read-through path rewrites it.
		return nil, sentinel.ErrNotFound
	}
	return &resolution, nil
}

func (c *ResolveCache) Save(ctx context.Context, resolution *models.Resolution) error {
	payload, err := json.Marshal(resolution)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key(resolution.DID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *ResolveCache) Invalidate(ctx context.Context, did domain.DID) error {
	if err := c.client.Del(ctx, key(did)).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}
