package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := OpenSessionRequest{
		InvoiceID: "  INV-001  ",
		Amount:    " 3250.00 ",
		Currency:  " usd ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "INV-001", req.InvoiceID)
	assert.Equal(t, "3250.00", req.Amount)
	assert.Equal(t, "usd", req.Currency)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := AddEntryRequest{
		Currency:    "USD",
		Amount:      "10",
		Description: "wire <script>alert('x')</script>",
	}
	SanitizeStruct(&req)

	assert.Contains(t, req.Description, "&lt;script&gt;")
	assert.NotContains(t, req.Description, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	req := ConvertRequest{Amount: "1", Currency: "USD", Rate: strPtr("  32.50  ")}
	SanitizeStruct(&req)
	assert.Equal(t, "32.50", *req.Rate)

	req = ConvertRequest{Amount: "1", Currency: "USD"}
	SanitizeStruct(&req)
	assert.Nil(t, req.Rate)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	SanitizeStruct("hello")
	SanitizeStruct(OpenSessionRequest{})
}

// --- Custom Validator tests ---

func TestSafeID(t *testing.T) {
	for _, tc := range []string{"INV-001", "inv_2024.03", "A"} {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
	for _, tc := range []string{"INV 001", "inv<1>", "a;DROP", ""} {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}

func TestOpenSessionRequest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     OpenSessionRequest
		wantErr bool
	}{
		{"valid without rate", OpenSessionRequest{InvoiceID: "INV-1", Amount: "100.00", Currency: "USD"}, false},
		{"valid with rate and date", OpenSessionRequest{InvoiceID: "INV-1", Amount: "100", Currency: "usd", Rate: strPtr("32.5"), RateDate: "2024-03-15"}, false},
		{"bad currency", OpenSessionRequest{InvoiceID: "INV-1", Amount: "100", Currency: "US"}, true},
		{"numeric currency", OpenSessionRequest{InvoiceID: "INV-1", Amount: "100", Currency: "U5D"}, true},
		{"amount not decimal", OpenSessionRequest{InvoiceID: "INV-1", Amount: "ten", Currency: "USD"}, true},
		{"rate not decimal", OpenSessionRequest{InvoiceID: "INV-1", Amount: "10", Currency: "USD", Rate: strPtr("1,5")}, true},
		{"bad date", OpenSessionRequest{InvoiceID: "INV-1", Amount: "10", Currency: "USD", RateDate: "15/03/2024"}, true},
		{"unsafe invoice id", OpenSessionRequest{InvoiceID: "INV 1", Amount: "10", Currency: "USD"}, true},
		{"missing invoice id", OpenSessionRequest{Amount: "10", Currency: "USD"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := binding.Validator.ValidateStruct(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAddEntryRequest_AmountLeftToLedger(t *testing.T) {
	req := AddEntryRequest{Currency: "USD", Amount: "not-a-number"}
	require.NoError(t, binding.Validator.ValidateStruct(&req))

	req = AddEntryRequest{Currency: "USD"}
	assert.Error(t, binding.Validator.ValidateStruct(&req))
}
