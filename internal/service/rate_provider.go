package service

import (
	"context"
	"fmt"
	"time"

	"payment-reconciliation/internal/core/domain"
	"payment-reconciliation/internal/core/ports"
	"payment-reconciliation/pkg/apperror"

	"github.com/rs/zerolog"
)

// CachedRateProvider implements ports.RateProvider on top of the rate table
// with a Redis cache in front (cache-aside, keyed by currency and day).
type CachedRateProvider struct {
	repo  ports.ExchangeRateRepository
	cache ports.RateCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedRateProvider creates a new CachedRateProvider. cache may be nil.
func NewCachedRateProvider(repo ports.ExchangeRateRepository, cache ports.RateCache, ttl time.Duration, log zerolog.Logger) *CachedRateProvider {
	return &CachedRateProvider{repo: repo, cache: cache, ttl: ttl, log: log}
}

// Rate returns the latest rate for currency on or before asOf's day.
func (p *CachedRateProvider) Rate(ctx context.Context, currency string, asOf time.Time) (domain.ExchangeRate, error) {
	currency = domain.NormalizeCurrency(currency)
	if asOf.IsZero() {
		asOf = time.Now()
	}
	day := asOf.UTC().Truncate(24 * time.Hour)

	// Layer 1: Redis
	if p.cache != nil {
		cached, err := p.cache.Get(ctx, currency, day)
		if err != nil {
			p.log.Warn().Err(err).Str("currency", currency).Msg("redis rate lookup failed, falling through to DB")
		}
		if cached != nil {
			return *cached, nil
		}
	}

	// Layer 2: DB
	rate, err := p.repo.Latest(ctx, currency, day.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		return domain.ExchangeRate{}, apperror.InternalError(fmt.Errorf("load exchange rate: %w", err))
	}
	if rate == nil {
		return domain.ExchangeRate{}, apperror.ErrRateUnavailable(currency, nil)
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, day, *rate, p.ttl); err != nil {
			p.log.Warn().Err(err).Str("currency", currency).Msg("failed to cache exchange rate in redis")
		}
	}

	return *rate, nil
}

// CashAccountDirectory implements ports.AccountDirectory over the cash
// account reference table.
type CashAccountDirectory struct {
	repo ports.CashAccountRepository
}

// NewCashAccountDirectory creates a new CashAccountDirectory.
func NewCashAccountDirectory(repo ports.CashAccountRepository) *CashAccountDirectory {
	return &CashAccountDirectory{repo: repo}
}

// IsUsable reports whether ref names an existing, active cash account.
func (d *CashAccountDirectory) IsUsable(ctx context.Context, ref string) (bool, error) {
	acc, err := d.repo.GetByRef(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("lookup cash account: %w", err)
	}
	return acc != nil && acc.Active, nil
}
