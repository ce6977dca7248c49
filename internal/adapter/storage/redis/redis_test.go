package redis

import (
	"context"
	"io"
	"strconv"
	"testing"
	"time"

	"payment-reconciliation/config"
	"payment-reconciliation/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestNewClient(t *testing.T) {
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	client, err := NewClient(context.Background(), config.RedisConfig{Host: s.Host(), Port: port}, zerolog.New(io.Discard))
	require.NoError(t, err)
	defer client.Close()

	hc := NewHealthCheck(client)
	assert.NoError(t, hc.Ping(context.Background()))
	assert.Equal(t, "redis", hc.Name())
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, config.RedisConfig{Host: "127.0.0.1", Port: 1}, zerolog.New(io.Discard))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinging redis")
}

func TestRateCache_SetAndGet(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewRateCache(client)
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	got, err := cache.Get(ctx, "USD", day)
	require.NoError(t, err)
	assert.Nil(t, got)

	rate := domain.ExchangeRate{Currency: "USD", Rate: decimal.RequireFromString("32.501200"), AsOf: day}
	require.NoError(t, cache.Set(ctx, day, rate, time.Hour))
	assert.True(t, s.Exists("rate:USD:2024-03-15"))

	got, err = cache.Get(ctx, "USD", day.Add(15*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Rate.Equal(rate.Rate))
	assert.Equal(t, "USD", got.Currency)

	other, err := cache.Get(ctx, "USD", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestRateCache_Expiry(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewRateCache(client)
	ctx := context.Background()
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	rate := domain.ExchangeRate{Currency: "EUR", Rate: decimal.RequireFromString("35.1"), AsOf: day}
	require.NoError(t, cache.Set(ctx, day, rate, time.Minute))

	s.FastForward(2 * time.Minute)

	got, err := cache.Get(ctx, "EUR", day)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRateCache_CorruptValue(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewRateCache(client)
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Set("rate:GBP:2024-03-15", "not-json"))

	_, err := cache.Get(context.Background(), "GBP", day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode cached rate")
}

func TestCommitCache_SetAndGet(t *testing.T) {
	_, client := newTestClient(t)
	cache := NewCommitCache(client)
	ctx := context.Background()

	batch := &domain.PaymentBatch{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		InvoiceID: "INV-1",
		TotalPaid: domain.Money{Amount: decimal.RequireFromString("3250.00"), Currency: "TRY"},
	}

	got, err := cache.Get(ctx, batch.SessionID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.Set(ctx, batch, time.Hour))

	got, err = cache.Get(ctx, batch.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, batch.ID, got.ID)
	assert.True(t, got.TotalPaid.Amount.Equal(batch.TotalPaid.Amount))
}

func TestCommitCache_TTLExpiry(t *testing.T) {
	s, client := newTestClient(t)
	cache := NewCommitCache(client)
	ctx := context.Background()

	batch := &domain.PaymentBatch{ID: uuid.New(), SessionID: uuid.New()}
	require.NoError(t, cache.Set(ctx, batch, time.Second))

	s.FastForward(2 * time.Second)

	got, err := cache.Get(ctx, batch.SessionID)
	assert.NoError(t, err)
	assert.Nil(t, got, "expired key should return nil")
}
