package postgres

import (
	"context"
	"errors"
	"fmt"

	"payment-reconciliation/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// CashAccountRepo implements ports.CashAccountRepository.
type CashAccountRepo struct {
	pool Pool
}

// NewCashAccountRepo creates a new CashAccountRepo.
func NewCashAccountRepo(pool Pool) *CashAccountRepo {
	return &CashAccountRepo{pool: pool}
}

// GetByRef fetches a cash account by its reference. Returns nil, nil when absent.
func (r *CashAccountRepo) GetByRef(ctx context.Context, ref string) (*domain.CashAccount, error) {
	query := `SELECT ref, name, currency, active FROM cash_accounts WHERE ref = $1`

	acc := &domain.CashAccount{}
	err := r.pool.QueryRow(ctx, query, ref).Scan(&acc.Ref, &acc.Name, &acc.Currency, &acc.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cash account: %w", err)
	}
	return acc, nil
}
