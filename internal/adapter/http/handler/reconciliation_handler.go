package handler

import (
	"math"
	"strconv"
	"time"

	"payment-reconciliation/internal/adapter/http/dto"
	"payment-reconciliation/internal/adapter/http/middleware"
	"payment-reconciliation/internal/core/ports"
	"payment-reconciliation/pkg/apperror"
	"payment-reconciliation/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationHandler serves the session, conversion and batch endpoints.
type ReconciliationHandler struct {
	svc       ports.ReconciliationService
	precision int32 // settlement minor units, for batches and previews
}

// NewReconciliationHandler creates a new ReconciliationHandler.
func NewReconciliationHandler(svc ports.ReconciliationService, precision int32) *ReconciliationHandler {
	return &ReconciliationHandler{svc: svc, precision: precision}
}

// OpenSession handles POST /api/v1/reconciliations.
func (h *ReconciliationHandler) OpenSession(c *gin.Context) {
	var req dto.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount("amount", "not a decimal number"))
		return
	}
	rate, rateDate, err := parseRate(req.Rate, req.RateDate)
	if err != nil {
		response.Error(c, err)
		return
	}

	snap, err := h.svc.OpenSession(c.Request.Context(), ports.OpenSessionRequest{
		InvoiceID: req.InvoiceID,
		Amount:    amount,
		Currency:  req.Currency,
		Rate:      rate,
		RateDate:  rateDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, snap.SessionID.String())
	response.Created(c, toSessionResponse(snap))
}

// GetSession handles GET /api/v1/reconciliations/:id.
func (h *ReconciliationHandler) GetSession(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	snap, err := h.svc.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toSessionResponse(snap))
}

// Abandon handles DELETE /api/v1/reconciliations/:id.
func (h *ReconciliationHandler) Abandon(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	snap, err := h.svc.Abandon(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toSessionResponse(snap))
}

// AddEntry handles POST /api/v1/reconciliations/:id/entries. An add held
// back for confirmation answers 202 with the projected session.
func (h *ReconciliationHandler) AddEntry(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req dto.AddEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	rate, rateDate, err := parseRate(req.Rate, req.RateDate)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.svc.AddEntry(c.Request.Context(), sessionID, ports.AddEntryRequest{
		Currency:       req.Currency,
		Rate:           rate,
		RateDate:       rateDate,
		Amount:         req.Amount,
		Description:    req.Description,
		CashAccountRef: req.CashAccountRef,
		Confirmed:      req.Confirmed,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Pending() {
		response.Accepted(c, toAddEntryResponse(result))
		return
	}
	response.Created(c, toAddEntryResponse(result))
}

// RemoveEntry handles DELETE /api/v1/reconciliations/:id/entries/:entryId.
func (h *ReconciliationHandler) RemoveEntry(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		response.Error(c, apperror.ErrEntryNotFound(c.Param("entryId")))
		return
	}

	snap, err := h.svc.RemoveEntry(c.Request.Context(), sessionID, entryID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toSessionResponse(snap))
}

// Commit handles POST /api/v1/reconciliations/:id/commit.
func (h *ReconciliationHandler) Commit(c *gin.Context) {
	sessionID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	batch, err := h.svc.Commit(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toBatchResponse(batch, h.precision))
}

// ListBatches handles GET /api/v1/invoices/:invoiceId/batches.
func (h *ReconciliationHandler) ListBatches(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	batches, total, err := h.svc.ListBatches(c.Request.Context(), ports.BatchListParams{
		InvoiceID: c.Param("invoiceId"),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.BatchResponse, len(batches))
	for i := range batches {
		items[i] = toBatchResponse(&batches[i], h.precision)
	}

	response.OK(c, dto.BatchListResponse{
		Batches:    items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	})
}

// Convert handles POST /api/v1/conversions.
func (h *ReconciliationHandler) Convert(c *gin.Context) {
	var req dto.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount("amount", "not a decimal number"))
		return
	}
	rate, rateDate, err := parseRate(req.Rate, req.RateDate)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.svc.Convert(c.Request.Context(), ports.ConvertRequest{
		Amount:   amount,
		Currency: req.Currency,
		Rate:     rate,
		RateDate: rateDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toConversionResponse(result.Original, result.Settlement, result.Rate, h.precision))
}

// uuidParam parses a path parameter as a session id, writing the error
// response itself when it is malformed.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		response.Error(c, apperror.ErrSessionNotFound(raw))
		return uuid.Nil, false
	}
	return id, true
}

// parseRate converts the optional rate and rate date of a request. A nil
// rate means the service resolves it through the rate provider.
func parseRate(raw *string, date string) (*decimal.Decimal, time.Time, error) {
	var rate *decimal.Decimal
	if raw != nil && *raw != "" {
		r, err := decimal.NewFromString(*raw)
		if err != nil {
			return nil, time.Time{}, apperror.ErrInvalidRate("", "not a decimal number")
		}
		rate = &r
	}

	var asOf time.Time
	if date != "" {
		d, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return nil, time.Time{}, apperror.Validation("rate_date must be YYYY-MM-DD").WithDetail("field", "rate_date")
		}
		asOf = d
	}
	return rate, asOf, nil
}
