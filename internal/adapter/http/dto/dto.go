package dto

// OpenSessionRequest is the request body for opening a reconciliation session.
type OpenSessionRequest struct {
	InvoiceID string  `json:"invoice_id" binding:"required,max=64,safe_id"`
	Amount    string  `json:"amount" binding:"required,decimal_str"`
	Currency  string  `json:"currency" binding:"required,currency_code"`
	Rate      *string `json:"rate,omitempty" binding:"omitempty,decimal_str"`
	RateDate  string  `json:"rate_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
}

// AddEntryRequest is the request body for adding a payment entry. Amount and
// cash_account_ref are checked by the ledger so their errors carry ledger codes.
// The description limit applies to the raw text; it is stored HTML-escaped.
type AddEntryRequest struct {
	Currency       string  `json:"currency" binding:"required,currency_code"`
	Amount         string  `json:"amount" binding:"required"`
	Rate           *string `json:"rate,omitempty" binding:"omitempty,decimal_str"`
	RateDate       string  `json:"rate_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
	Description    string  `json:"description,omitempty" binding:"max=255"`
	CashAccountRef string  `json:"cash_account_ref" binding:"max=64"`
	Confirmed      bool    `json:"confirmed"`
}

// ConvertRequest is the request body for a conversion preview.
type ConvertRequest struct {
	Amount   string  `json:"amount" binding:"required,decimal_str"`
	Currency string  `json:"currency" binding:"required,currency_code"`
	Rate     *string `json:"rate,omitempty" binding:"omitempty,decimal_str"`
	RateDate string  `json:"rate_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
}

// MoneyResponse renders an amount fixed to the settlement precision.
type MoneyResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// InvoiceResponse describes the invoice a session pays off.
type InvoiceResponse struct {
	InvoiceID       string        `json:"invoice_id"`
	Amount          MoneyResponse `json:"amount"`
	Rate            string        `json:"rate"`
	SettlementTotal MoneyResponse `json:"settlement_total"`
}

// EntryResponse is one payment entry.
type EntryResponse struct {
	ID               string        `json:"id"`
	Currency         string        `json:"currency"`
	Amount           string        `json:"amount"`
	Rate             string        `json:"rate"`
	SettlementAmount MoneyResponse `json:"settlement_amount"`
	Description      string        `json:"description,omitempty"`
	CashAccountRef   string        `json:"cash_account_ref"`
	CreatedAt        string        `json:"created_at"`
}

// SessionResponse is the state of a reconciliation session.
type SessionResponse struct {
	SessionID         string          `json:"session_id"`
	Status            string          `json:"status"`
	Invoice           InvoiceResponse `json:"invoice"`
	Entries           []EntryResponse `json:"entries"`
	TotalPaid         MoneyResponse   `json:"total_paid"`
	Remaining         MoneyResponse   `json:"remaining"`
	Overpaid          bool            `json:"overpaid"`
	OverpaymentAmount MoneyResponse   `json:"overpayment_amount"`
	UpdatedAt         string          `json:"updated_at"`
}

// AddEntryResponse is returned by the add-entry endpoint. With an advisory
// the entry is only proposed and the session is the projected state.
type AddEntryResponse struct {
	Entry    EntryResponse   `json:"entry"`
	Session  SessionResponse `json:"session"`
	Advisory string          `json:"advisory,omitempty"`
}

// BatchResponse is a committed payment batch.
type BatchResponse struct {
	ID                string          `json:"id"`
	SessionID         string          `json:"session_id"`
	InvoiceID         string          `json:"invoice_id"`
	InvoiceTotal      MoneyResponse   `json:"invoice_total"`
	Entries           []EntryResponse `json:"entries"`
	TotalPaid         MoneyResponse   `json:"total_paid"`
	Remaining         MoneyResponse   `json:"remaining"`
	OverpaymentAmount MoneyResponse   `json:"overpayment_amount"`
	CommittedAt       string          `json:"committed_at"`
}

// BatchListResponse wraps a page of batches.
type BatchListResponse struct {
	Batches    []BatchResponse `json:"batches"`
	Total      int64           `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// ConversionResponse is the outcome of a conversion preview.
type ConversionResponse struct {
	Original   MoneyResponse `json:"original"`
	Rate       string        `json:"rate"`
	Settlement MoneyResponse `json:"settlement"`
}
