package ports

import (
	"context"
	"time"

	"payment-reconciliation/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CurrencyMetadata supplies minor-unit precision per currency.
type CurrencyMetadata interface {
	// MinorUnits returns the number of decimal places for code and whether
	// the currency is known.
	MinorUnits(code string) (int32, bool)
}

// RateProvider resolves the rate that converts currency into the settlement
// currency on a given date.
type RateProvider interface {
	Rate(ctx context.Context, currency string, asOf time.Time) (domain.ExchangeRate, error)
}

// AccountDirectory tells whether a cash account reference can receive payments.
type AccountDirectory interface {
	IsUsable(ctx context.Context, ref string) (bool, error)
}

// RateCache is the Redis layer in front of the rate repository.
type RateCache interface {
	Get(ctx context.Context, currency string, day time.Time) (*domain.ExchangeRate, error) // nil on miss
	Set(ctx context.Context, day time.Time, rate domain.ExchangeRate, ttl time.Duration) error
}

// CommitCache remembers committed batches by session (fast path for retries).
type CommitCache interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*domain.PaymentBatch, error) // nil on miss
	Set(ctx context.Context, batch *domain.PaymentBatch, ttl time.Duration) error
}

// EventPublisher announces committed batches to downstream consumers.
type EventPublisher interface {
	PublishBatchCommitted(ctx context.Context, evt domain.BatchCommittedEvent) error
}

// TokenService validates operator bearer tokens.
type TokenService interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
	Name    string
}

// AuditService records audit entries.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// ReconciliationService drives reconciliation sessions.
type ReconciliationService interface {
	OpenSession(ctx context.Context, req OpenSessionRequest) (*domain.LedgerSnapshot, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*domain.LedgerSnapshot, error)
	AddEntry(ctx context.Context, sessionID uuid.UUID, req AddEntryRequest) (*domain.AddResult, error)
	RemoveEntry(ctx context.Context, sessionID, entryID uuid.UUID) (*domain.LedgerSnapshot, error)
	Commit(ctx context.Context, sessionID uuid.UUID) (*domain.PaymentBatch, error)
	Abandon(ctx context.Context, sessionID uuid.UUID) (*domain.LedgerSnapshot, error)
	ListBatches(ctx context.Context, params BatchListParams) ([]domain.PaymentBatch, int64, error)
	Convert(ctx context.Context, req ConvertRequest) (*ConversionResult, error)
}

// OpenSessionRequest holds validated input for opening a session.
type OpenSessionRequest struct {
	InvoiceID string
	Amount    decimal.Decimal
	Currency  string
	Rate      *decimal.Decimal // nil = resolve through the RateProvider
	RateDate  time.Time        // zero = today
}

// AddEntryRequest holds input for a payment entry. Amount is kept as the
// caller's string; the ledger parses it.
type AddEntryRequest struct {
	Currency       string
	Rate           *decimal.Decimal // nil = resolve through the RateProvider
	RateDate       time.Time
	Amount         string
	Description    string
	CashAccountRef string
	Confirmed      bool
}

// ConvertRequest holds input for a conversion preview.
type ConvertRequest struct {
	Amount   decimal.Decimal
	Currency string
	Rate     *decimal.Decimal
	RateDate time.Time
}

// ConversionResult is the outcome of a conversion preview.
type ConversionResult struct {
	Original   domain.Money
	Rate       decimal.Decimal // effective rate
	Settlement domain.Money
}
