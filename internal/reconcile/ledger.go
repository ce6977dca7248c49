package reconcile

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"payment-reconciliation/internal/core/domain"
	"payment-reconciliation/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Policy holds the two overpayment thresholds. They are independent: a
// ledger can be flagged overpaid without crossing the advisory threshold.
type Policy struct {
	// Tolerance: the ledger is overpaid iff remaining < -Tolerance.
	Tolerance decimal.Decimal
	// AdvisoryRatio: an add needs confirmation iff the new total paid exceeds
	// invoice total * (1 + AdvisoryRatio).
	AdvisoryRatio decimal.Decimal
}

// DefaultPolicy returns a one-cent tolerance and a 5% advisory ratio.
func DefaultPolicy() Policy {
	return Policy{
		Tolerance:     decimal.RequireFromString("0.01"),
		AdvisoryRatio: decimal.RequireFromString("0.05"),
	}
}

// ParsePolicy builds a Policy from its decimal string representation.
func ParsePolicy(tolerance, advisoryRatio string) (Policy, error) {
	tol, err := decimal.NewFromString(tolerance)
	if err != nil {
		return Policy{}, fmt.Errorf("parsing overpayment tolerance %q: %w", tolerance, err)
	}
	ratio, err := decimal.NewFromString(advisoryRatio)
	if err != nil {
		return Policy{}, fmt.Errorf("parsing advisory ratio %q: %w", advisoryRatio, err)
	}
	if tol.IsNegative() || ratio.IsNegative() {
		return Policy{}, fmt.Errorf("overpayment tolerance and advisory ratio must not be negative")
	}
	return Policy{Tolerance: tol, AdvisoryRatio: ratio}, nil
}

// EntryRequest is the input of Ledger.AddEntry.
type EntryRequest struct {
	Currency       string
	Rate           decimal.Decimal
	Amount         string // parsed by the ledger
	Description    string
	CashAccountRef string
	Confirmed      bool
}

// addKey identifies a request for matching a confirmation against the add
// that raised the advisory.
type addKey struct {
	currency    string
	rate        string
	amount      string
	description string
	account     string
}

type pendingAdd struct {
	key   addKey
	entry domain.PaymentEntry
}

// Ledger tracks the payments made against one invoice. All methods are safe
// for concurrent use; mutations are serialised by the ledger's own mutex and
// every call returns value copies, never references into ledger state.
type Ledger struct {
	mu sync.Mutex

	id      uuid.UUID
	conv    *Converter
	policy  Policy
	invoice domain.InvoiceTarget

	entries   []domain.PaymentEntry
	status    domain.LedgerStatus
	pending   *pendingAdd
	batchID   uuid.UUID
	updatedAt time.Time
}

// NewLedger opens a ledger for invoice. The invoice should be built with
// conv.Invoice so both agree on the settlement currency.
func NewLedger(id uuid.UUID, invoice domain.InvoiceTarget, conv *Converter, policy Policy) *Ledger {
	return &Ledger{
		id:        id,
		conv:      conv,
		policy:    policy,
		invoice:   invoice,
		status:    domain.LedgerStatusOpen,
		updatedAt: time.Now(),
	}
}

// ID returns the session id the ledger was opened with.
func (l *Ledger) ID() uuid.UUID {
	return l.id
}

// Status returns the current lifecycle state.
func (l *Ledger) Status() domain.LedgerStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// LastActivity returns the time of the last call that touched the ledger.
func (l *Ledger) LastActivity() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updatedAt
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.project(l.entries)
}

// AddEntry converts and appends a payment.
//
// When the new total paid would cross the advisory threshold and req is not
// confirmed, nothing is appended: the result carries the proposed entry, the
// projected snapshot and AdvisoryRequiresConfirmation. Sending the same
// request again unconfirmed fails with ConfirmationRequired; sending it with
// Confirmed set appends the proposed entry under the same id.
func (l *Ledger) AddEntry(req EntryRequest) (domain.AddResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen(); err != nil {
		return domain.AddResult{}, err
	}
	ref, amount, err := parseEntry(req)
	if err != nil {
		return domain.AddResult{}, err
	}

	currency := domain.NormalizeCurrency(req.Currency)
	rate, err := l.conv.EffectiveRate(currency, req.Rate)
	if err != nil {
		return domain.AddResult{}, err
	}
	settled, err := l.conv.ToSettlement(amount, currency, rate)
	if err != nil {
		return domain.AddResult{}, err
	}

	l.updatedAt = time.Now()

	key := addKey{
		currency:    currency,
		rate:        rate.String(),
		amount:      amount.String(),
		description: req.Description,
		account:     ref,
	}
	matchesPending := l.pending != nil && l.pending.key == key

	entry := domain.PaymentEntry{
		ID:               uuid.New(),
		Currency:         currency,
		Rate:             rate,
		Amount:           amount,
		SettlementAmount: settled,
		Description:      req.Description,
		CashAccountRef:   ref,
		CreatedAt:        l.updatedAt,
	}

	if !req.Confirmed && l.exceedsAdvisory(l.totalPaid(l.entries).Add(settled.Amount)) {
		if matchesPending {
			return domain.AddResult{}, apperror.ErrConfirmationRequired(l.pending.entry.ID.String())
		}
		l.pending = &pendingAdd{key: key, entry: entry}

		projected := make([]domain.PaymentEntry, len(l.entries), len(l.entries)+1)
		copy(projected, l.entries)
		projected = append(projected, entry)

		return domain.AddResult{
			Entry:    entry,
			Snapshot: l.project(projected),
			Advisory: domain.AdvisoryRequiresConfirmation,
		}, nil
	}

	if req.Confirmed && matchesPending {
		entry.ID = l.pending.entry.ID
	}
	l.entries = append(l.entries, entry)
	l.pending = nil

	return domain.AddResult{Entry: entry, Snapshot: l.project(l.entries)}, nil
}

// CheckEntry runs the checks of AddEntry that need neither a rate nor any
// lookup outside the ledger: the ledger is open, the cash account reference
// is present and the amount is a positive decimal. It changes nothing.
func (l *Ledger) CheckEntry(req EntryRequest) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen(); err != nil {
		return err
	}
	_, _, err := parseEntry(req)
	return err
}

func parseEntry(req EntryRequest) (string, decimal.Decimal, error) {
	ref := strings.TrimSpace(req.CashAccountRef)
	if ref == "" {
		return "", decimal.Zero, apperror.Validation("cash account reference is required").
			WithDetail("field", "cash_account_ref")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		return "", decimal.Zero, apperror.ErrInvalidAmount("amount", "not a decimal number")
	}
	if !amount.IsPositive() {
		return "", decimal.Zero, apperror.ErrInvalidAmount("amount", "must be positive")
	}
	return ref, amount, nil
}

// RemoveEntry deletes an entry by id.
func (l *Ledger) RemoveEntry(entryID uuid.UUID) (domain.LedgerSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen(); err != nil {
		return domain.LedgerSnapshot{}, err
	}

	idx := -1
	for i := range l.entries {
		if l.entries[i].ID == entryID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.LedgerSnapshot{}, apperror.ErrEntryNotFound(entryID.String())
	}

	l.entries = append(l.entries[:idx:idx], l.entries[idx+1:]...)
	l.pending = nil
	l.updatedAt = time.Now()

	return l.project(l.entries), nil
}

// Commit validates the ledger and closes it, returning the batch to persist.
// Commit is not idempotent: a second call fails with AlreadyCommitted, whose
// batch_id detail names the batch of the first commit.
func (l *Ledger) Commit() (domain.PaymentBatch, error) {
	return l.CommitFunc(nil)
}

// CommitFunc is Commit with a persistence step. persist runs with the
// ledger locked; the ledger only transitions to Committed if it returns nil,
// otherwise the ledger stays Open and persist's error is returned.
func (l *Ledger) CommitFunc(persist func(domain.PaymentBatch) error) (domain.PaymentBatch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen(); err != nil {
		return domain.PaymentBatch{}, err
	}
	if len(l.entries) == 0 {
		return domain.PaymentBatch{}, apperror.ErrEmptyLedger()
	}
	for _, e := range l.entries {
		if !e.Amount.IsPositive() {
			return domain.PaymentBatch{}, apperror.ErrInvalidEntry(e.ID.String(), "amount must be positive")
		}
	}

	snap := l.project(l.entries)
	batch := domain.PaymentBatch{
		ID:                uuid.New(),
		SessionID:         l.id,
		InvoiceID:         l.invoice.InvoiceID,
		InvoiceTotal:      l.invoice.SettlementTotal,
		Entries:           snap.Entries,
		TotalPaid:         snap.TotalPaid,
		Remaining:         snap.Remaining,
		OverpaymentAmount: snap.OverpaymentAmount,
		CommittedAt:       time.Now().UTC(),
	}

	if persist != nil {
		if err := persist(batch); err != nil {
			return domain.PaymentBatch{}, err
		}
	}

	l.status = domain.LedgerStatusCommitted
	l.batchID = batch.ID
	l.pending = nil
	l.updatedAt = batch.CommittedAt

	return batch, nil
}

// Abandon discards the session without committing.
func (l *Ledger) Abandon() (domain.LedgerSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkOpen(); err != nil {
		return domain.LedgerSnapshot{}, err
	}

	l.status = domain.LedgerStatusAbandoned
	l.pending = nil
	l.updatedAt = time.Now()

	return l.project(l.entries), nil
}

// checkOpen must be called with l.mu held.
func (l *Ledger) checkOpen() error {
	switch l.status {
	case domain.LedgerStatusCommitted:
		return apperror.ErrAlreadyCommitted().WithDetail("batch_id", l.batchID.String())
	case domain.LedgerStatusAbandoned:
		return apperror.ErrLedgerClosed(string(l.status))
	}
	return nil
}

func (l *Ledger) totalPaid(entries []domain.PaymentEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.SettlementAmount.Amount)
	}
	return total
}

func (l *Ledger) exceedsAdvisory(totalPaid decimal.Decimal) bool {
	limit := l.invoice.SettlementTotal.Amount.Mul(one.Add(l.policy.AdvisoryRatio))
	return totalPaid.GreaterThan(limit)
}

// project derives the snapshot for entries. Totals are sums of the already
// rounded settlement amounts and are never rounded again.
func (l *Ledger) project(entries []domain.PaymentEntry) domain.LedgerSnapshot {
	currency := l.invoice.SettlementTotal.Currency
	paid := l.totalPaid(entries)
	remaining := l.invoice.SettlementTotal.Amount.Sub(paid)

	overpaid := remaining.LessThan(l.policy.Tolerance.Neg())
	overpayment := decimal.Zero
	if overpaid {
		overpayment = remaining.Neg()
	}

	copied := make([]domain.PaymentEntry, len(entries))
	copy(copied, entries)

	return domain.LedgerSnapshot{
		SessionID:         l.id,
		Invoice:           l.invoice,
		Entries:           copied,
		TotalPaid:         domain.Money{Amount: paid, Currency: currency},
		Remaining:         domain.Money{Amount: remaining, Currency: currency},
		Overpaid:          overpaid,
		OverpaymentAmount: domain.Money{Amount: overpayment, Currency: currency},
		Status:            l.status,
		Precision:         l.conv.Precision(),
		UpdatedAt:         l.updatedAt,
	}
}
