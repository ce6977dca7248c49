package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. REC_* are raised by the reconciliation core, SES_* by the
// session service around it.
const (
	CodeInvalidAmount        = "REC_001"
	CodeInvalidRate          = "REC_002"
	CodeEntryNotFound        = "REC_003"
	CodeConfirmationRequired = "REC_004"
	CodeEmptyLedger          = "REC_005"
	CodeInvalidEntry         = "REC_006"
	CodeAlreadyCommitted     = "REC_007"
	CodeLedgerClosed         = "REC_008"
	CodeCurrencyMismatch     = "REC_009"

	CodeSessionNotFound    = "SES_001"
	CodeInvalidCashAccount = "SES_002"
	CodeRateUnavailable    = "SES_003"

	CodeInvalidToken  = "AUTH_001"
	CodeRateLimit     = "RATE_001"
	CodeValidation    = "VAL_001"
	CodeNotFound      = "VAL_002"
	CodeInternal      = "SYS_001"
	CodeUnknownSystem = "SYS_000"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string            `json:"error_code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"` // Offending field, entry id, ...
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can write
// errors.Is(err, apperror.ErrEmptyLedger()).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithDetail attaches a key/value pair of context and returns the same error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string, 2)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// HasCode reports whether err is (or wraps) an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ---- Reconciliation core (REC) ----

func ErrInvalidAmount(field, reason string) *AppError {
	return New(CodeInvalidAmount, fmt.Sprintf("Invalid amount: %s", reason), http.StatusBadRequest).
		WithDetail("field", field)
}

func ErrInvalidRate(currency, reason string) *AppError {
	return New(CodeInvalidRate, fmt.Sprintf("Invalid exchange rate: %s", reason), http.StatusBadRequest).
		WithDetail("field", "rate").
		WithDetail("currency", currency)
}

func ErrEntryNotFound(entryID string) *AppError {
	return New(CodeEntryNotFound, "Payment entry not found", http.StatusNotFound).
		WithDetail("entry_id", entryID)
}

func ErrConfirmationRequired(entryID string) *AppError {
	return New(CodeConfirmationRequired, "Overpayment advisory must be confirmed before the entry is added", http.StatusConflict).
		WithDetail("entry_id", entryID)
}

func ErrEmptyLedger() *AppError {
	return New(CodeEmptyLedger, "Cannot commit a reconciliation without payment entries", http.StatusUnprocessableEntity)
}

func ErrInvalidEntry(entryID, reason string) *AppError {
	return New(CodeInvalidEntry, fmt.Sprintf("Invalid payment entry: %s", reason), http.StatusUnprocessableEntity).
		WithDetail("entry_id", entryID)
}

func ErrAlreadyCommitted() *AppError {
	return New(CodeAlreadyCommitted, "Reconciliation already committed", http.StatusConflict)
}

func ErrLedgerClosed(status string) *AppError {
	return New(CodeLedgerClosed, "Reconciliation is no longer open", http.StatusConflict).
		WithDetail("status", status)
}

func ErrCurrencyMismatch(left, right string) *AppError {
	return New(CodeCurrencyMismatch, fmt.Sprintf("Currency mismatch: %s vs %s", left, right), http.StatusBadRequest)
}

// ---- Session service (SES) ----

func ErrSessionNotFound(sessionID string) *AppError {
	return New(CodeSessionNotFound, "Reconciliation session not found", http.StatusNotFound).
		WithDetail("session_id", sessionID)
}

func ErrInvalidCashAccount(ref string) *AppError {
	return New(CodeInvalidCashAccount, "Cash account is unknown or inactive", http.StatusUnprocessableEntity).
		WithDetail("cash_account_ref", ref)
}

func ErrRateUnavailable(currency string, err error) *AppError {
	return Wrap(CodeRateUnavailable, "No exchange rate available", http.StatusUnprocessableEntity, err).
		WithDetail("currency", currency)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimit, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Request validation (VAL) ----

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeInternal, "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
