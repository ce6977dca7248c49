package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate converts one unit of Currency into the settlement currency.
// AsOf is carried for traceability only; the ledger never interprets it.
type ExchangeRate struct {
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
	AsOf     time.Time       `json:"as_of"`
}

// CurrencyInfo is reference data about a currency.
type CurrencyInfo struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	MinorUnits int32  `json:"minor_units"`
}

// CashAccount is a receiving account that payment entries point at. The
// ledger only sees its Ref; the account directory owns the rest.
type CashAccount struct {
	Ref      string `json:"ref"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	Active   bool   `json:"active"`
}
