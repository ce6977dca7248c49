package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStatus represents the lifecycle state of a reconciliation session.
type LedgerStatus string

const (
	LedgerStatusOpen      LedgerStatus = "OPEN"
	LedgerStatusCommitted LedgerStatus = "COMMITTED"
	LedgerStatusAbandoned LedgerStatus = "ABANDONED"
)

// IsTerminal returns true once the ledger no longer accepts mutations.
func (s LedgerStatus) IsTerminal() bool {
	return s == LedgerStatusCommitted || s == LedgerStatusAbandoned
}

// Advisory is attached to an AddEntry result.
type Advisory string

const (
	AdvisoryNone Advisory = ""
	// AdvisoryRequiresConfirmation means the entry was held back because it
	// pushes the total paid past the advisory threshold.
	AdvisoryRequiresConfirmation Advisory = "REQUIRES_CONFIRMATION"
)

// InvoiceTarget is what a reconciliation session pays off. Immutable.
type InvoiceTarget struct {
	InvoiceID       string          `json:"invoice_id"`
	Amount          Money           `json:"amount"`
	Rate            decimal.Decimal `json:"rate"`
	SettlementTotal Money           `json:"settlement_total"`
}

// PaymentEntry is one submitted payment. Never mutated after creation;
// corrections are a remove followed by a new add.
type PaymentEntry struct {
	ID               uuid.UUID       `json:"id"`
	Currency         string          `json:"currency"`
	Rate             decimal.Decimal `json:"rate"`
	Amount           decimal.Decimal `json:"amount"`
	SettlementAmount Money           `json:"settlement_amount"`
	Description      string          `json:"description,omitempty"`
	CashAccountRef   string          `json:"cash_account_ref"`
	CreatedAt        time.Time       `json:"created_at"`
}

// LedgerSnapshot is a value copy of a ledger's state at one point in time.
// Entries is a fresh slice; holding a snapshot never aliases ledger state.
type LedgerSnapshot struct {
	SessionID         uuid.UUID      `json:"session_id"`
	Invoice           InvoiceTarget  `json:"invoice"`
	Entries           []PaymentEntry `json:"entries"`
	TotalPaid         Money          `json:"total_paid"`
	Remaining         Money          `json:"remaining"`
	Overpaid          bool           `json:"overpaid"`
	OverpaymentAmount Money          `json:"overpayment_amount"`
	Status            LedgerStatus   `json:"status"`
	Precision         int32          `json:"precision"` // settlement minor units
	UpdatedAt         time.Time      `json:"updated_at"`
}

// AddResult is returned by AddEntry. When Advisory is set, Entry is the
// proposed (not yet appended) entry and Snapshot is the projected state.
type AddResult struct {
	Entry    PaymentEntry   `json:"entry"`
	Snapshot LedgerSnapshot `json:"snapshot"`
	Advisory Advisory       `json:"advisory,omitempty"`
}

// Pending reports whether the add is waiting for confirmation.
func (r AddResult) Pending() bool {
	return r.Advisory == AdvisoryRequiresConfirmation
}

// PaymentBatch is the persistable result of a commit.
type PaymentBatch struct {
	ID                uuid.UUID      `json:"id"`
	SessionID         uuid.UUID      `json:"session_id"`
	InvoiceID         string         `json:"invoice_id"`
	InvoiceTotal      Money          `json:"invoice_total"`
	Entries           []PaymentEntry `json:"entries"`
	TotalPaid         Money          `json:"total_paid"`
	Remaining         Money          `json:"remaining"`
	OverpaymentAmount Money          `json:"overpayment_amount"` // zero when not overpaid
	CommittedAt       time.Time      `json:"committed_at"`
}

// HasOverpayment returns true if the batch carries an advance.
func (b *PaymentBatch) HasOverpayment() bool {
	return b.OverpaymentAmount.IsPositive()
}
