package postgres

import (
	"context"
	"fmt"

	"payment-reconciliation/internal/core/domain"
)

// CurrencyRepo implements ports.CurrencyRepository.
type CurrencyRepo struct {
	pool Pool
}

// NewCurrencyRepo creates a new CurrencyRepo.
func NewCurrencyRepo(pool Pool) *CurrencyRepo {
	return &CurrencyRepo{pool: pool}
}

// List returns every known currency. Loaded once at startup.
func (r *CurrencyRepo) List(ctx context.Context) ([]domain.CurrencyInfo, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name, minor_units FROM currencies ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	defer rows.Close()

	var out []domain.CurrencyInfo
	for rows.Next() {
		var c domain.CurrencyInfo
		if err := rows.Scan(&c.Code, &c.Name, &c.MinorUnits); err != nil {
			return nil, fmt.Errorf("scan currency row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate currency rows: %w", err)
	}
	return out, nil
}
