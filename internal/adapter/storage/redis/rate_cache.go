package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payment-reconciliation/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// RateCache implements ports.RateCache. Rates are cached per currency and
// UTC day as JSON, so decimals keep their exact string form.
type RateCache struct {
	client *goredis.Client
	prefix string
}

// NewRateCache creates a new Redis-backed exchange rate cache.
func NewRateCache(client *goredis.Client) *RateCache {
	return &RateCache{
		client: client,
		prefix: "rate:",
	}
}

func (c *RateCache) key(currency string, day time.Time) string {
	return fmt.Sprintf("%s%s:%s", c.prefix, currency, day.UTC().Format(time.DateOnly))
}

// Get returns the cached rate for currency on day. Returns nil, nil on a miss.
func (c *RateCache) Get(ctx context.Context, currency string, day time.Time) (*domain.ExchangeRate, error) {
	val, err := c.client.Get(ctx, c.key(currency, day)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis rate get: %w", err)
	}

	var rate domain.ExchangeRate
	if err := json.Unmarshal(val, &rate); err != nil {
		return nil, fmt.Errorf("decode cached rate: %w", err)
	}
	return &rate, nil
}

// Set stores rate under its currency and day.
func (c *RateCache) Set(ctx context.Context, day time.Time, rate domain.ExchangeRate, ttl time.Duration) error {
	val, err := json.Marshal(rate)
	if err != nil {
		return fmt.Errorf("encode rate: %w", err)
	}
	if err := c.client.Set(ctx, c.key(rate.Currency, day), val, ttl).Err(); err != nil {
		return fmt.Errorf("redis rate set: %w", err)
	}
	return nil
}
