package integration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"payment-reconciliation/internal/core/domain"
	"payment-reconciliation/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Batch Repo ---

type inMemoryBatchRepo struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]domain.PaymentBatch
}

func newInMemoryBatchRepo() *inMemoryBatchRepo {
	return &inMemoryBatchRepo{batches: make(map[uuid.UUID]domain.PaymentBatch)}
}

func (r *inMemoryBatchRepo) Create(ctx context.Context, tx pgx.Tx, batch *domain.PaymentBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.batches {
		if existing.SessionID == batch.SessionID {
			return fmt.Errorf("batch for session %s already exists", batch.SessionID)
		}
	}
	r.batches[batch.ID] = *batch
	return nil
}

func (r *inMemoryBatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentBatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *inMemoryBatchRepo) ListByInvoice(ctx context.Context, params ports.BatchListParams) ([]domain.PaymentBatch, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.PaymentBatch
	for _, b := range r.batches {
		if b.InvoiceID == params.InvoiceID {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CommittedAt.After(matched[j].CommittedAt)
	})

	total := int64(len(matched))
	offset := (params.Page - 1) * params.PageSize
	if offset >= len(matched) {
		return []domain.PaymentBatch{}, total, nil
	}
	end := min(offset+params.PageSize, len(matched))
	return matched[offset:end], total, nil
}

func (r *inMemoryBatchRepo) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches)
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu   sync.RWMutex
	logs map[string]*domain.IdempotencyLog
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{logs: make(map[string]*domain.IdempotencyLog)}
}

func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[log.Key]; ok {
		return fmt.Errorf("duplicate commit key %s", log.Key)
	}
	r.logs[log.Key] = log
	return nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logs[key]
	if !ok {
		return nil, nil
	}
	return l, nil
}

// --- In-Memory Reference Data ---

type inMemoryRateRepo struct {
	mu    sync.RWMutex
	rates map[string][]domain.ExchangeRate
	reads int
}

func newInMemoryRateRepo(rates ...domain.ExchangeRate) *inMemoryRateRepo {
	r := &inMemoryRateRepo{rates: make(map[string][]domain.ExchangeRate)}
	for _, rate := range rates {
		r.rates[rate.Currency] = append(r.rates[rate.Currency], rate)
	}
	return r
}

func (r *inMemoryRateRepo) Latest(ctx context.Context, currency string, asOf time.Time) (*domain.ExchangeRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++

	var best *domain.ExchangeRate
	for i, rate := range r.rates[currency] {
		if rate.AsOf.After(asOf) {
			continue
		}
		if best == nil || rate.AsOf.After(best.AsOf) {
			best = &r.rates[currency][i]
		}
	}
	if best == nil {
		return nil, nil
	}
	found := *best
	return &found, nil
}

func (r *inMemoryRateRepo) readCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reads
}

type inMemoryCashAccountRepo struct {
	accounts map[string]domain.CashAccount
}

func newInMemoryCashAccountRepo(accounts ...domain.CashAccount) *inMemoryCashAccountRepo {
	r := &inMemoryCashAccountRepo{accounts: make(map[string]domain.CashAccount)}
	for _, a := range accounts {
		r.accounts[strings.ToUpper(a.Ref)] = a
	}
	return r
}

func (r *inMemoryCashAccountRepo) GetByRef(ctx context.Context, ref string) (*domain.CashAccount, error) {
	a, ok := r.accounts[strings.ToUpper(ref)]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx satisfies pgx.Tx for repos that keep their state in memory.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
