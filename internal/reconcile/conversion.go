// Package reconcile holds the multi-currency reconciliation core: conversion
// into the settlement currency and the per-invoice payment ledger. Nothing
// here performs I/O.
package reconcile

import (
	"payment-reconciliation/internal/core/domain"
	"payment-reconciliation/internal/core/ports"
	"payment-reconciliation/pkg/apperror"

	"github.com/shopspring/decimal"
)

// DefaultMinorUnits is used when the settlement currency has no metadata.
const DefaultMinorUnits int32 = 2

var one = decimal.NewFromInt(1)

// Converter turns (amount, currency, rate) triples into settlement-currency
// Money. It holds no mutable state and is safe for concurrent use.
type Converter struct {
	settlement string
	places     int32
}

// NewConverter creates a converter for the given settlement currency.
// Precision comes from meta; fallback applies when meta is nil or does not
// know the currency (a negative fallback means DefaultMinorUnits).
func NewConverter(settlement string, meta ports.CurrencyMetadata, fallback int32) *Converter {
	settlement = domain.NormalizeCurrency(settlement)
	if fallback < 0 {
		fallback = DefaultMinorUnits
	}

	places := fallback
	if meta != nil {
		if p, ok := meta.MinorUnits(settlement); ok && p >= 0 {
			places = p
		}
	}

	return &Converter{settlement: settlement, places: places}
}

// Settlement returns the settlement currency code.
func (c *Converter) Settlement() string {
	return c.settlement
}

// Precision returns the number of decimal places settlement amounts are
// rounded to.
func (c *Converter) Precision() int32 {
	return c.places
}

// EffectiveRate returns the rate actually applied for currency. The
// settlement currency always converts at exactly 1 whatever the caller sent.
func (c *Converter) EffectiveRate(currency string, rate decimal.Decimal) (decimal.Decimal, error) {
	currency = domain.NormalizeCurrency(currency)
	if currency == "" {
		return decimal.Zero, apperror.ErrInvalidRate(currency, "currency code is required")
	}
	if currency == c.settlement {
		return one, nil
	}
	if !rate.IsPositive() {
		return decimal.Zero, apperror.ErrInvalidRate(currency, "rate must be greater than zero")
	}
	return rate, nil
}

// ToSettlement converts amount of currency into the settlement currency.
// The product is rounded exactly once, half-up, to the settlement precision.
func (c *Converter) ToSettlement(amount decimal.Decimal, currency string, rate decimal.Decimal) (domain.Money, error) {
	if amount.IsNegative() {
		return domain.Money{}, apperror.ErrInvalidAmount("amount", "must not be negative")
	}

	effective, err := c.EffectiveRate(currency, rate)
	if err != nil {
		return domain.Money{}, err
	}

	// Round is half away from zero, which is half-up for non-negative input.
	converted := amount.Mul(effective).Round(c.places)
	return domain.Money{Amount: converted, Currency: c.settlement}, nil
}

// Invoice builds the immutable target of a reconciliation session.
func (c *Converter) Invoice(invoiceID string, amount decimal.Decimal, currency string, rate decimal.Decimal) (domain.InvoiceTarget, error) {
	if invoiceID == "" {
		return domain.InvoiceTarget{}, apperror.Validation("invoice id is required").WithDetail("field", "invoice_id")
	}
	if !amount.IsPositive() {
		return domain.InvoiceTarget{}, apperror.ErrInvalidAmount("invoice_amount", "must be positive")
	}

	effective, err := c.EffectiveRate(currency, rate)
	if err != nil {
		return domain.InvoiceTarget{}, err
	}
	total, err := c.ToSettlement(amount, currency, effective)
	if err != nil {
		return domain.InvoiceTarget{}, err
	}

	return domain.InvoiceTarget{
		InvoiceID:       invoiceID,
		Amount:          domain.NewMoney(amount, currency),
		Rate:            effective,
		SettlementTotal: total,
	}, nil
}

// CurrencyTable is an in-memory ports.CurrencyMetadata, typically loaded
// once from the currency reference table at start-up.
type CurrencyTable map[string]int32

// NewCurrencyTable indexes currencies by normalised code.
func NewCurrencyTable(currencies []domain.CurrencyInfo) CurrencyTable {
	t := make(CurrencyTable, len(currencies))
	for _, c := range currencies {
		t[domain.NormalizeCurrency(c.Code)] = c.MinorUnits
	}
	return t
}

func (t CurrencyTable) MinorUnits(code string) (int32, bool) {
	p, ok := t[domain.NormalizeCurrency(code)]
	return p, ok
}
