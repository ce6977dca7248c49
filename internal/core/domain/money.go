package domain

import (
	"strings"

	"payment-reconciliation/pkg/apperror"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point amount tagged with an ISO-4217 currency code.
// Arithmetic between two Money values is only defined for the same currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money value, normalising the currency code to upper case.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: NormalizeCurrency(currency)}
}

// ZeroMoney returns 0 in the given currency.
func ZeroMoney(currency string) Money {
	return NewMoney(decimal.Zero, currency)
}

// Add returns m + o. Fails with REC_009 when the currencies differ.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, apperror.ErrCurrencyMismatch(m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}, nil
}

// Sub returns m - o. Fails with REC_009 when the currencies differ.
func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, apperror.ErrCurrencyMismatch(m.Currency, o.Currency)
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}, nil
}

func (m Money) Neg() Money {
	return Money{Amount: m.Amount.Neg(), Currency: m.Currency}
}

func (m Money) IsZero() bool     { return m.Amount.IsZero() }
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// StringFixed renders the amount with exactly places decimals followed by the
// currency code, e.g. "3250.00 TRY".
func (m Money) StringFixed(places int32) string {
	return m.Amount.StringFixed(places) + " " + m.Currency
}

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}

// NormalizeCurrency trims and upper-cases a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
