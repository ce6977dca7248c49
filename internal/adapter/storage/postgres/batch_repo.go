package postgres

import (
	"context"
	"errors"
	"fmt"

	"payment-reconciliation/internal/core/domain"
	"payment-reconciliation/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const batchColumns = `id, session_id, invoice_id, settlement_currency, invoice_total,
		total_paid, remaining, overpayment_amount, committed_at`

const entryColumns = `id, batch_id, currency, rate, amount, settlement_amount,
		description, cash_account_ref, created_at`

// BatchRepo implements ports.BatchRepository. A batch is stored as one
// payment_batches row plus one payment_entries row per entry, all amounts
// as NUMERIC.
type BatchRepo struct {
	pool Pool
}

// NewBatchRepo creates a new BatchRepo.
func NewBatchRepo(pool Pool) *BatchRepo {
	return &BatchRepo{pool: pool}
}

// Create inserts the batch and its entries within a database transaction.
func (r *BatchRepo) Create(ctx context.Context, tx pgx.Tx, b *domain.PaymentBatch) error {
	query := `INSERT INTO payment_batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		b.ID, b.SessionID, b.InvoiceID, b.InvoiceTotal.Currency, b.InvoiceTotal.Amount,
		b.TotalPaid.Amount, b.Remaining.Amount, b.OverpaymentAmount.Amount, b.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment batch: %w", err)
	}

	entryQuery := `INSERT INTO payment_entries (` + entryColumns + `, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i, e := range b.Entries {
		_, err := tx.Exec(ctx, entryQuery,
			e.ID, b.ID, e.Currency, e.Rate, e.Amount, e.SettlementAmount.Amount,
			e.Description, e.CashAccountRef, e.CreatedAt, i,
		)
		if err != nil {
			return fmt.Errorf("insert payment entry %s: %w", e.ID, err)
		}
	}
	return nil
}

// GetByID fetches a batch with its entries. Returns nil, nil when absent.
func (r *BatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM payment_batches WHERE id = $1`

	b, err := scanBatch(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment batch: %w", err)
	}

	entries, err := r.loadEntries(ctx, []uuid.UUID{b.ID}, b.InvoiceTotal.Currency)
	if err != nil {
		return nil, err
	}
	b.Entries = entries[b.ID]
	return b, nil
}

// ListByInvoice returns one page of the batches committed against an
// invoice, newest first, with the total count.
func (r *BatchRepo) ListByInvoice(ctx context.Context, params ports.BatchListParams) ([]domain.PaymentBatch, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM payment_batches WHERE invoice_id = $1`, params.InvoiceID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count payment batches: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	query := `SELECT ` + batchColumns + ` FROM payment_batches
		WHERE invoice_id = $1 ORDER BY committed_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, params.InvoiceID, params.PageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list payment batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.PaymentBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payment batch row: %w", err)
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment batch rows: %w", err)
	}
	if len(batches) == 0 {
		return batches, total, nil
	}

	ids := make([]uuid.UUID, len(batches))
	for i := range batches {
		ids[i] = batches[i].ID
	}
	entries, err := r.loadEntries(ctx, ids, batches[0].InvoiceTotal.Currency)
	if err != nil {
		return nil, 0, err
	}
	for i := range batches {
		batches[i].Entries = entries[batches[i].ID]
	}
	return batches, total, nil
}

// loadEntries fetches the entries of the given batches in insertion order,
// grouped by batch id.
func (r *BatchRepo) loadEntries(ctx context.Context, batchIDs []uuid.UUID, settlement string) (map[uuid.UUID][]domain.PaymentEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM payment_entries
		WHERE batch_id = ANY($1) ORDER BY batch_id, position`

	rows, err := r.pool.Query(ctx, query, batchIDs)
	if err != nil {
		return nil, fmt.Errorf("list payment entries: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.PaymentEntry, len(batchIDs))
	for rows.Next() {
		var (
			e       domain.PaymentEntry
			batchID uuid.UUID
			settled decimal.Decimal
		)
		err := rows.Scan(
			&e.ID, &batchID, &e.Currency, &e.Rate, &e.Amount, &settled,
			&e.Description, &e.CashAccountRef, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment entry row: %w", err)
		}
		e.SettlementAmount = domain.Money{Amount: settled, Currency: settlement}
		out[batchID] = append(out[batchID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment entry rows: %w", err)
	}
	return out, nil
}

func scanBatch(row pgx.Row) (*domain.PaymentBatch, error) {
	var (
		b                                 domain.PaymentBatch
		currency                          string
		invoiceTotal, paid, rem, overpaid decimal.Decimal
	)
	err := row.Scan(
		&b.ID, &b.SessionID, &b.InvoiceID, &currency, &invoiceTotal,
		&paid, &rem, &overpaid, &b.CommittedAt,
	)
	if err != nil {
		return nil, err
	}
	b.InvoiceTotal = domain.Money{Amount: invoiceTotal, Currency: currency}
	b.TotalPaid = domain.Money{Amount: paid, Currency: currency}
	b.Remaining = domain.Money{Amount: rem, Currency: currency}
	b.OverpaymentAmount = domain.Money{Amount: overpaid, Currency: currency}
	return &b, nil
}
