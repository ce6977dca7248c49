package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment-reconciliation/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ExchangeRateRepo implements ports.ExchangeRateRepository over the
// exchange_rates table, which holds one rate per currency per day.
type ExchangeRateRepo struct {
	pool Pool
}

// NewExchangeRateRepo creates a new ExchangeRateRepo.
func NewExchangeRateRepo(pool Pool) *ExchangeRateRepo {
	return &ExchangeRateRepo{pool: pool}
}

// Latest returns the newest rate for currency dated on or before asOf.
// Returns nil, nil when no rate has been imported yet.
func (r *ExchangeRateRepo) Latest(ctx context.Context, currency string, asOf time.Time) (*domain.ExchangeRate, error) {
	query := `SELECT currency, rate, as_of FROM exchange_rates
		WHERE currency = $1 AND as_of <= $2 ORDER BY as_of DESC LIMIT 1`

	rate := &domain.ExchangeRate{}
	err := r.pool.QueryRow(ctx, query, currency, asOf).Scan(&rate.Currency, &rate.Rate, &rate.AsOf)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get exchange rate: %w", err)
	}
	return rate, nil
}
