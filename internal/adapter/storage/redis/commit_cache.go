package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payment-reconciliation/internal/core/domain"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// CommitCache implements ports.CommitCache: committed batches keyed by the
// session that produced them. The database idempotency log is the durable
// copy; this is the fast path for retried commits.
type CommitCache struct {
	client *goredis.Client
	prefix string
}

// NewCommitCache creates a new Redis-backed commit cache.
func NewCommitCache(client *goredis.Client) *CommitCache {
	return &CommitCache{
		client: client,
		prefix: "commit:",
	}
}

// Get returns the batch committed for sessionID. Returns nil, nil if the
// session was never committed or the entry expired.
func (c *CommitCache) Get(ctx context.Context, sessionID uuid.UUID) (*domain.PaymentBatch, error) {
	val, err := c.client.Get(ctx, c.prefix+sessionID.String()).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis commit get: %w", err)
	}

	var batch domain.PaymentBatch
	if err := json.Unmarshal(val, &batch); err != nil {
		return nil, fmt.Errorf("decode cached batch: %w", err)
	}
	return &batch, nil
}

// Set caches batch under its session id with TTL.
func (c *CommitCache) Set(ctx context.Context, batch *domain.PaymentBatch, ttl time.Duration) error {
	val, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	err = c.client.Set(ctx, c.prefix+batch.SessionID.String(), val, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis commit set: %w", err)
	}
	return nil
}
