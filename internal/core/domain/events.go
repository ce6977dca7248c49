package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventTypeBatchCommitted is the type tag of BatchCommittedEvent.
const EventTypeBatchCommitted = "reconciliation.committed"

// BatchCommittedEvent is published after a payment batch is persisted.
// Amounts travel as fixed-point decimal strings.
type BatchCommittedEvent struct {
	EventID            uuid.UUID `json:"event_id"`
	Type               string    `json:"type"`
	BatchID            uuid.UUID `json:"batch_id"`
	SessionID          uuid.UUID `json:"session_id"`
	InvoiceID          string    `json:"invoice_id"`
	SettlementCurrency string    `json:"settlement_currency"`
	InvoiceTotal       string    `json:"invoice_total"`
	TotalPaid          string    `json:"total_paid"`
	OverpaymentAmount  string    `json:"overpayment_amount"`
	EntryCount         int       `json:"entry_count"`
	CommittedAt        time.Time `json:"committed_at"`
}

// NewBatchCommittedEvent derives the event from a committed batch.
func NewBatchCommittedEvent(b *PaymentBatch, places int32) BatchCommittedEvent {
	return BatchCommittedEvent{
		EventID:            uuid.New(),
		Type:               EventTypeBatchCommitted,
		BatchID:            b.ID,
		SessionID:          b.SessionID,
		InvoiceID:          b.InvoiceID,
		SettlementCurrency: b.TotalPaid.Currency,
		InvoiceTotal:       b.InvoiceTotal.Amount.StringFixed(places),
		TotalPaid:          b.TotalPaid.Amount.StringFixed(places),
		OverpaymentAmount:  b.OverpaymentAmount.Amount.StringFixed(places),
		EntryCount:         len(b.Entries),
		CommittedAt:        b.CommittedAt,
	}
}
