package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payment-reconciliation/internal/core/domain"
	"payment-reconciliation/internal/core/ports"
	"payment-reconciliation/internal/reconcile"
	"payment-reconciliation/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultCommitCacheTTL = 24 * time.Hour
	defaultPageSize       = 20
	maxPageSize           = 100
)

var _ ports.ReconciliationService = (*ReconciliationServiceImpl)(nil)

// ReconciliationDeps bundles the collaborators of ReconciliationServiceImpl.
// Events and CommitCache are optional.
type ReconciliationDeps struct {
	Registry    *SessionRegistry
	Converter   *reconcile.Converter
	Policy      reconcile.Policy
	Rates       ports.RateProvider
	Accounts    ports.AccountDirectory
	BatchRepo   ports.BatchRepository
	IdempRepo   ports.IdempotencyRepository
	CommitCache ports.CommitCache
	Events      ports.EventPublisher
	Transactor  ports.DBTransactor
	CommitTTL   time.Duration
}

// ReconciliationServiceImpl implements ports.ReconciliationService.
type ReconciliationServiceImpl struct {
	registry    *SessionRegistry
	conv        *reconcile.Converter
	policy      reconcile.Policy
	rates       ports.RateProvider
	accounts    ports.AccountDirectory
	batchRepo   ports.BatchRepository
	idempRepo   ports.IdempotencyRepository
	commitCache ports.CommitCache
	events      ports.EventPublisher
	transactor  ports.DBTransactor
	commitTTL   time.Duration
	log         zerolog.Logger
}

// NewReconciliationService creates a new ReconciliationServiceImpl.
func NewReconciliationService(deps ReconciliationDeps, log zerolog.Logger) *ReconciliationServiceImpl {
	if deps.Registry == nil {
		deps.Registry = NewSessionRegistry()
	}
	if deps.CommitTTL <= 0 {
		deps.CommitTTL = defaultCommitCacheTTL
	}
	return &ReconciliationServiceImpl{
		registry:    deps.Registry,
		conv:        deps.Converter,
		policy:      deps.Policy,
		rates:       deps.Rates,
		accounts:    deps.Accounts,
		batchRepo:   deps.BatchRepo,
		idempRepo:   deps.IdempRepo,
		commitCache: deps.CommitCache,
		events:      deps.Events,
		transactor:  deps.Transactor,
		commitTTL:   deps.CommitTTL,
		log:         log,
	}
}

// OpenSession builds the invoice target and registers a fresh ledger for it.
func (s *ReconciliationServiceImpl) OpenSession(ctx context.Context, req ports.OpenSessionRequest) (*domain.LedgerSnapshot, error) {
	currency := domain.NormalizeCurrency(req.Currency)

	rate, err := s.resolveRate(ctx, currency, req.Rate, req.RateDate)
	if err != nil {
		return nil, err
	}

	invoice, err := s.conv.Invoice(req.InvoiceID, req.Amount, currency, rate)
	if err != nil {
		return nil, err
	}

	ledger := reconcile.NewLedger(uuid.New(), invoice, s.conv, s.policy)
	s.registry.Put(ledger)

	s.log.Info().
		Str("session_id", ledger.ID().String()).
		Str("invoice_id", invoice.InvoiceID).
		Str("settlement_total", invoice.SettlementTotal.StringFixed(s.conv.Precision())).
		Msg("reconciliation session opened")

	snap := ledger.Snapshot()
	return &snap, nil
}

// GetSession returns the current snapshot of a session.
func (s *ReconciliationServiceImpl) GetSession(_ context.Context, sessionID uuid.UUID) (*domain.LedgerSnapshot, error) {
	ledger, err := s.ledger(sessionID)
	if err != nil {
		return nil, err
	}
	snap := ledger.Snapshot()
	return &snap, nil
}

// AddEntry checks the request against the ledger, resolves a missing rate,
// validates the cash account and hands the entry to the ledger. The account
// directory is only consulted once the ledger-local checks have passed.
func (s *ReconciliationServiceImpl) AddEntry(ctx context.Context, sessionID uuid.UUID, req ports.AddEntryRequest) (*domain.AddResult, error) {
	ledger, err := s.ledger(sessionID)
	if err != nil {
		return nil, err
	}

	currency := domain.NormalizeCurrency(req.Currency)
	entryReq := reconcile.EntryRequest{
		Currency:       currency,
		Amount:         req.Amount,
		Description:    req.Description,
		CashAccountRef: req.CashAccountRef,
		Confirmed:      req.Confirmed,
	}
	if err := ledger.CheckEntry(entryReq); err != nil {
		return nil, err
	}

	rate, err := s.resolveRate(ctx, currency, req.Rate, req.RateDate)
	if err != nil {
		return nil, err
	}
	if entryReq.Rate, err = s.conv.EffectiveRate(currency, rate); err != nil {
		return nil, err
	}

	if s.accounts != nil {
		ok, err := s.accounts.IsUsable(ctx, req.CashAccountRef)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("account directory: %w", err))
		}
		if !ok {
			return nil, apperror.ErrInvalidCashAccount(req.CashAccountRef)
		}
	}

	res, err := ledger.AddEntry(entryReq)
	if err != nil {
		return nil, err
	}

	evt := s.log.Info()
	if res.Pending() {
		evt = s.log.Warn()
	}
	evt.Str("session_id", sessionID.String()).
		Str("entry_id", res.Entry.ID.String()).
		Str("settlement_amount", res.Entry.SettlementAmount.StringFixed(res.Snapshot.Precision)).
		Str("advisory", string(res.Advisory)).
		Bool("overpaid", res.Snapshot.Overpaid).
		Msg("payment entry submitted")

	return &res, nil
}

// RemoveEntry deletes an entry from an open session.
func (s *ReconciliationServiceImpl) RemoveEntry(_ context.Context, sessionID, entryID uuid.UUID) (*domain.LedgerSnapshot, error) {
	ledger, err := s.ledger(sessionID)
	if err != nil {
		return nil, err
	}

	snap, err := ledger.RemoveEntry(entryID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("entry_id", entryID.String()).
		Msg("payment entry removed")

	return &snap, nil
}

// Abandon closes a session without committing it.
func (s *ReconciliationServiceImpl) Abandon(_ context.Context, sessionID uuid.UUID) (*domain.LedgerSnapshot, error) {
	ledger, err := s.ledger(sessionID)
	if err != nil {
		return nil, err
	}

	snap, err := ledger.Abandon()
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("session_id", sessionID.String()).Msg("reconciliation session abandoned")
	return &snap, nil
}

// Commit closes the ledger and writes the resulting batch in one database
// transaction. The ledger only becomes Committed once that transaction has
// committed.
func (s *ReconciliationServiceImpl) Commit(ctx context.Context, sessionID uuid.UUID) (*domain.PaymentBatch, error) {
	ledger := s.registry.Get(sessionID)
	if ledger == nil {
		// The session may have been swept after a commit the caller is retrying.
		batchID, err := s.committedBatchID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if batchID != uuid.Nil {
			return nil, apperror.ErrAlreadyCommitted().WithDetail("batch_id", batchID.String())
		}
		return nil, apperror.ErrSessionNotFound(sessionID.String())
	}

	batch, err := ledger.CommitFunc(func(b domain.PaymentBatch) error {
		return s.persistBatch(ctx, &b)
	})
	if err != nil {
		return nil, err
	}

	// Post-process: cache in Redis (best-effort)
	if s.commitCache != nil {
		if err := s.commitCache.Set(ctx, &batch, s.commitTTL); err != nil {
			s.log.Warn().Err(err).Str("batch_id", batch.ID.String()).Msg("failed to cache committed batch in redis")
		}
	}

	// Post-process: announce (best-effort)
	if s.events != nil {
		evt := domain.NewBatchCommittedEvent(&batch, s.conv.Precision())
		if err := s.events.PublishBatchCommitted(ctx, evt); err != nil {
			s.log.Warn().Err(err).Str("batch_id", batch.ID.String()).Msg("failed to publish batch committed event")
		}
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Str("batch_id", batch.ID.String()).
		Str("invoice_id", batch.InvoiceID).
		Int("entries", len(batch.Entries)).
		Str("total_paid", batch.TotalPaid.StringFixed(s.conv.Precision())).
		Str("overpayment", batch.OverpaymentAmount.StringFixed(s.conv.Precision())).
		Msg("reconciliation committed")

	return &batch, nil
}

// ListBatches returns a page of committed batches for an invoice.
func (s *ReconciliationServiceImpl) ListBatches(ctx context.Context, params ports.BatchListParams) ([]domain.PaymentBatch, int64, error) {
	if params.InvoiceID == "" {
		return nil, 0, apperror.Validation("invoice id is required")
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}

	batches, total, err := s.batchRepo.ListByInvoice(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return batches, total, nil
}

// Convert previews a conversion without touching any session.
func (s *ReconciliationServiceImpl) Convert(ctx context.Context, req ports.ConvertRequest) (*ports.ConversionResult, error) {
	currency := domain.NormalizeCurrency(req.Currency)

	rate, err := s.resolveRate(ctx, currency, req.Rate, req.RateDate)
	if err != nil {
		return nil, err
	}
	effective, err := s.conv.EffectiveRate(currency, rate)
	if err != nil {
		return nil, err
	}
	settled, err := s.conv.ToSettlement(req.Amount, currency, effective)
	if err != nil {
		return nil, err
	}

	return &ports.ConversionResult{
		Original:   domain.NewMoney(req.Amount, currency),
		Rate:       effective,
		Settlement: settled,
	}, nil
}

func (s *ReconciliationServiceImpl) ledger(sessionID uuid.UUID) (*reconcile.Ledger, error) {
	ledger := s.registry.Get(sessionID)
	if ledger == nil {
		return nil, apperror.ErrSessionNotFound(sessionID.String())
	}
	return ledger, nil
}

// resolveRate returns the caller's rate when given, otherwise asks the rate
// provider. The settlement currency never needs a lookup.
func (s *ReconciliationServiceImpl) resolveRate(ctx context.Context, currency string, given *decimal.Decimal, asOf time.Time) (decimal.Decimal, error) {
	if given != nil {
		return *given, nil
	}
	if currency == "" || currency == s.conv.Settlement() {
		return decimal.Zero, nil
	}
	if s.rates == nil {
		return decimal.Zero, apperror.ErrRateUnavailable(currency, errors.New("no rate provider configured"))
	}

	rate, err := s.rates.Rate(ctx, currency, asOf)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return decimal.Zero, err
		}
		return decimal.Zero, apperror.ErrRateUnavailable(currency, err)
	}
	return rate.Rate, nil
}

// committedBatchID looks for an earlier commit of sessionID, first in Redis
// then in the commit log. Returns uuid.Nil when there is none.
func (s *ReconciliationServiceImpl) committedBatchID(ctx context.Context, sessionID uuid.UUID) (uuid.UUID, error) {
	// Layer 1: Redis
	if s.commitCache != nil {
		cached, err := s.commitCache.Get(ctx, sessionID)
		if err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("redis commit lookup failed, falling through to DB")
		}
		if cached != nil {
			return cached.ID, nil
		}
	}

	// Layer 2: DB
	if s.idempRepo == nil {
		return uuid.Nil, nil
	}
	idempLog, err := s.idempRepo.Get(ctx, domain.BuildCommitKey(sessionID))
	if err != nil {
		return uuid.Nil, apperror.InternalError(fmt.Errorf("db commit lookup: %w", err))
	}
	if idempLog == nil {
		return uuid.Nil, nil
	}
	return idempLog.BatchID, nil
}

// persistBatch writes the batch, its entries and the commit record in one
// transaction.
func (s *ReconciliationServiceImpl) persistBatch(ctx context.Context, batch *domain.PaymentBatch) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.batchRepo.Create(ctx, dbTx, batch); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("create batch: %w", err))
	}

	respJSON, err := json.Marshal(batch)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("marshal batch: %w", err))
	}

	idempLog := &domain.IdempotencyLog{
		Key:          domain.BuildCommitKey(batch.SessionID),
		BatchID:      batch.ID,
		ResponseJSON: respJSON,
		CreatedAt:    batch.CommittedAt,
	}
	if err := s.idempRepo.Create(ctx, dbTx, idempLog); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("save commit record: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}
