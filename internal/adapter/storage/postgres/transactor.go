package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// commitTxOptions is used for the transaction that writes a committed batch,
// its entries and its commit record. Read-committed is enough: the unique
// session_id and idempotency key constraints reject a second commit.
var commitTxOptions = pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadWrite,
}

// Transactor implements ports.DBTransactor for reconciliation commits.
type Transactor struct {
	pool Pool
	opts pgx.TxOptions
}

// NewTransactor returns a Transactor that opens read-write, read-committed
// transactions on pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool, opts: commitTxOptions}
}

// Begin opens the transaction a batch commit runs in.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := t.pool.BeginTx(ctx, t.opts)
	if err != nil {
		return nil, fmt.Errorf("begin commit transaction: %w", err)
	}
	return tx, nil
}
