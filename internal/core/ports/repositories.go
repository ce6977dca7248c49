package ports

import (
	"context"
	"time"

	"payment-reconciliation/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BatchRepository persists committed payment batches and their entries.
// Create runs inside the commit transaction.
type BatchRepository interface {
	Create(ctx context.Context, tx pgx.Tx, batch *domain.PaymentBatch) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentBatch, error)
	// Reporting query
	ListByInvoice(ctx context.Context, params BatchListParams) ([]domain.PaymentBatch, int64, error)
}

// BatchListParams holds filter + pagination for listing batches.
type BatchListParams struct {
	InvoiceID string
	Page      int
	PageSize  int
}

// IdempotencyRepository defines persistence for commit records (DB backup
// of the Redis commit cache).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// ExchangeRateRepository reads imported exchange rates.
type ExchangeRateRepository interface {
	// Latest returns the most recent rate for currency on or before asOf,
	// or nil when none exists.
	Latest(ctx context.Context, currency string, asOf time.Time) (*domain.ExchangeRate, error)
}

// CashAccountRepository reads the cash account reference data.
type CashAccountRepository interface {
	GetByRef(ctx context.Context, ref string) (*domain.CashAccount, error)
}

// CurrencyRepository reads currency reference data.
type CurrencyRepository interface {
	List(ctx context.Context) ([]domain.CurrencyInfo, error)
}

// AuditRepository persists audit records.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
