package handler

import (
	"time"

	"payment-reconciliation/internal/adapter/http/dto"
	"payment-reconciliation/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Settlement amounts are rendered with the settlement currency's minor
// units; foreign amounts and rates keep the precision they were given with.

func toMoneyResponse(m domain.Money, places int32) dto.MoneyResponse {
	return dto.MoneyResponse{Amount: m.Amount.StringFixed(places), Currency: m.Currency}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toEntryResponse(e domain.PaymentEntry, places int32) dto.EntryResponse {
	return dto.EntryResponse{
		ID:               e.ID.String(),
		Currency:         e.Currency,
		Amount:           e.Amount.String(),
		Rate:             e.Rate.String(),
		SettlementAmount: toMoneyResponse(e.SettlementAmount, places),
		Description:      e.Description,
		CashAccountRef:   e.CashAccountRef,
		CreatedAt:        formatTime(e.CreatedAt),
	}
}

func toEntryResponses(entries []domain.PaymentEntry, places int32) []dto.EntryResponse {
	out := make([]dto.EntryResponse, len(entries))
	for i, e := range entries {
		out[i] = toEntryResponse(e, places)
	}
	return out
}

func toSessionResponse(s *domain.LedgerSnapshot) dto.SessionResponse {
	p := s.Precision
	return dto.SessionResponse{
		SessionID: s.SessionID.String(),
		Status:    string(s.Status),
		Invoice: dto.InvoiceResponse{
			InvoiceID:       s.Invoice.InvoiceID,
			Amount:          dto.MoneyResponse{Amount: s.Invoice.Amount.Amount.String(), Currency: s.Invoice.Amount.Currency},
			Rate:            s.Invoice.Rate.String(),
			SettlementTotal: toMoneyResponse(s.Invoice.SettlementTotal, p),
		},
		Entries:           toEntryResponses(s.Entries, p),
		TotalPaid:         toMoneyResponse(s.TotalPaid, p),
		Remaining:         toMoneyResponse(s.Remaining, p),
		Overpaid:          s.Overpaid,
		OverpaymentAmount: toMoneyResponse(s.OverpaymentAmount, p),
		UpdatedAt:         formatTime(s.UpdatedAt),
	}
}

func toAddEntryResponse(r *domain.AddResult) dto.AddEntryResponse {
	return dto.AddEntryResponse{
		Entry:    toEntryResponse(r.Entry, r.Snapshot.Precision),
		Session:  toSessionResponse(&r.Snapshot),
		Advisory: string(r.Advisory),
	}
}

func toBatchResponse(b *domain.PaymentBatch, places int32) dto.BatchResponse {
	return dto.BatchResponse{
		ID:                b.ID.String(),
		SessionID:         b.SessionID.String(),
		InvoiceID:         b.InvoiceID,
		InvoiceTotal:      toMoneyResponse(b.InvoiceTotal, places),
		Entries:           toEntryResponses(b.Entries, places),
		TotalPaid:         toMoneyResponse(b.TotalPaid, places),
		Remaining:         toMoneyResponse(b.Remaining, places),
		OverpaymentAmount: toMoneyResponse(b.OverpaymentAmount, places),
		CommittedAt:       formatTime(b.CommittedAt),
	}
}

func toConversionResponse(original, settlement domain.Money, rate decimal.Decimal, places int32) dto.ConversionResponse {
	return dto.ConversionResponse{
		Original:   dto.MoneyResponse{Amount: original.Amount.String(), Currency: original.Currency},
		Rate:       rate.String(),
		Settlement: toMoneyResponse(settlement, places),
	}
}
