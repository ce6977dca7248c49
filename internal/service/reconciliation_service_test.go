package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"payment-reconciliation/internal/core/domain"
	"payment-reconciliation/internal/core/ports"
	"payment-reconciliation/internal/core/ports/mocks"
	"payment-reconciliation/internal/reconcile"
	"payment-reconciliation/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, code), "expected %s, got %v", code, err)
}

type reconTestDeps struct {
	svc         *ReconciliationServiceImpl
	registry    *SessionRegistry
	rates       *mocks.MockRateProvider
	accounts    *mocks.MockAccountDirectory
	batchRepo   *mocks.MockBatchRepository
	idempRepo   *mocks.MockIdempotencyRepository
	commitCache *mocks.MockCommitCache
	events      *mocks.MockEventPublisher
	transactor  *mocks.MockDBTransactor
	ctrl        *gomock.Controller
}

func setupReconciliationService(t *testing.T) *reconTestDeps {
	ctrl := gomock.NewController(t)
	d := &reconTestDeps{
		registry:    NewSessionRegistry(),
		rates:       mocks.NewMockRateProvider(ctrl),
		accounts:    mocks.NewMockAccountDirectory(ctrl),
		batchRepo:   mocks.NewMockBatchRepository(ctrl),
		idempRepo:   mocks.NewMockIdempotencyRepository(ctrl),
		commitCache: mocks.NewMockCommitCache(ctrl),
		events:      mocks.NewMockEventPublisher(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewReconciliationService(ReconciliationDeps{
		Registry:    d.registry,
		Converter:   reconcile.NewConverter("TRY", nil, reconcile.DefaultMinorUnits),
		Policy:      reconcile.DefaultPolicy(),
		Rates:       d.rates,
		Accounts:    d.accounts,
		BatchRepo:   d.batchRepo,
		IdempRepo:   d.idempRepo,
		CommitCache: d.commitCache,
		Events:      d.events,
		Transactor:  d.transactor,
		CommitTTL:   time.Hour,
	}, zerolog.Nop())
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func (d *reconTestDeps) openTRY(t *testing.T, amount string) uuid.UUID {
	t.Helper()
	snap, err := d.svc.OpenSession(context.Background(), ports.OpenSessionRequest{
		InvoiceID: "INV-100",
		Amount:    dec(amount),
		Currency:  "TRY",
	})
	require.NoError(t, err)
	return snap.SessionID
}

func (d *reconTestDeps) addTRY(t *testing.T, sessionID uuid.UUID, amount string) *domain.AddResult {
	t.Helper()
	d.accounts.EXPECT().IsUsable(gomock.Any(), "CASH-01").Return(true, nil)
	res, err := d.svc.AddEntry(context.Background(), sessionID, ports.AddEntryRequest{
		Currency:       "TRY",
		Amount:         amount,
		CashAccountRef: "CASH-01",
	})
	require.NoError(t, err)
	return res
}

// ==================== OpenSession Tests ====================

func TestReconciliationService_OpenSession_ExplicitRate(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	snap, err := d.svc.OpenSession(context.Background(), ports.OpenSessionRequest{
		InvoiceID: "INV-1",
		Amount:    dec("100.00"),
		Currency:  "usd",
		Rate:      decPtr("32.50"),
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, snap.SessionID)
	assert.Equal(t, domain.LedgerStatusOpen, snap.Status)
	assert.True(t, snap.Invoice.SettlementTotal.Amount.Equal(dec("3250")))
	assert.Equal(t, 1, d.registry.Len())
}

func TestReconciliationService_OpenSession_ResolvesRate(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	rateDate := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	d.rates.EXPECT().Rate(gomock.Any(), "EUR", rateDate).Return(domain.ExchangeRate{
		Currency: "EUR", Rate: dec("35.10"), AsOf: rateDate,
	}, nil)

	snap, err := d.svc.OpenSession(context.Background(), ports.OpenSessionRequest{
		InvoiceID: "INV-2",
		Amount:    dec("10"),
		Currency:  "EUR",
		RateDate:  rateDate,
	})
	require.NoError(t, err)
	assert.True(t, snap.Invoice.Rate.Equal(dec("35.10")))
	assert.True(t, snap.Invoice.SettlementTotal.Amount.Equal(dec("351")))
}

func TestReconciliationService_OpenSession_SettlementCurrencySkipsLookup(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	// No rate provider expectation: a lookup would fail the test.
	snap, err := d.svc.OpenSession(context.Background(), ports.OpenSessionRequest{
		InvoiceID: "INV-3",
		Amount:    dec("500"),
		Currency:  "TRY",
	})
	require.NoError(t, err)
	assert.True(t, snap.Invoice.SettlementTotal.Amount.Equal(dec("500")))
}

func TestReconciliationService_OpenSession_RateUnavailable(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	d.rates.EXPECT().Rate(gomock.Any(), "GBP", gomock.Any()).Return(domain.ExchangeRate{}, errors.New("redis and db down"))

	_, err := d.svc.OpenSession(context.Background(), ports.OpenSessionRequest{
		InvoiceID: "INV-4",
		Amount:    dec("10"),
		Currency:  "GBP",
	})
	assertAppError(t, err, apperror.CodeRateUnavailable)
	assert.Equal(t, 0, d.registry.Len())
}

func TestReconciliationService_OpenSession_InvalidAmount(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.OpenSession(context.Background(), ports.OpenSessionRequest{
		InvoiceID: "INV-5",
		Amount:    dec("-1"),
		Currency:  "TRY",
	})
	assertAppError(t, err, apperror.CodeInvalidAmount)
}

// ==================== AddEntry Tests ====================

func TestReconciliationService_AddEntry_Success(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	id := d.openTRY(t, "1000.00")
	res := d.addTRY(t, id, "400.00")

	assert.False(t, res.Pending())
	assert.True(t, res.Snapshot.Remaining.Amount.Equal(dec("600")))
}

func TestReconciliationService_AddEntry_ResolvesRate(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	id := d.openTRY(t, "5000.00")

	d.accounts.EXPECT().IsUsable(gomock.Any(), "CASH-USD").Return(true, nil)
	d.rates.EXPECT().Rate(gomock.Any(), "USD", gomock.Any()).Return(domain.ExchangeRate{Currency: "USD", Rate: dec("32.50")}, nil)

	res, err := d.svc.AddEntry(context.Background(), id, ports.AddEntryRequest{
		Currency:       "usd",
		Amount:         "100",
		CashAccountRef: "CASH-USD",
	})
	require.NoError(t, err)
	assert.True(t, res.Entry.Rate.Equal(dec("32.50")))
	assert.True(t, res.Entry.SettlementAmount.Amount.Equal(dec("3250")))
}

func TestReconciliationService_AddEntry_SessionNotFound(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.AddEntry(context.Background(), uuid.New(), ports.AddEntryRequest{
		Currency: "TRY", Amount: "1", CashAccountRef: "CASH-01",
	})
	assertAppError(t, err, apperror.CodeSessionNotFound)
}

func TestReconciliationService_AddEntry_InvalidCashAccount(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	id := d.openTRY(t, "100")
	d.accounts.EXPECT().IsUsable(gomock.Any(), "CLOSED-01").Return(false, nil)

	_, err := d.svc.AddEntry(context.Background(), id, ports.AddEntryRequest{
		Currency: "TRY", Amount: "10", CashAccountRef: "CLOSED-01",
	})
	assertAppError(t, err, apperror.CodeInvalidCashAccount)
}

func TestReconciliationService_AddEntry_AccountDirectoryError(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	id := d.openTRY(t, "100")
	d.accounts.EXPECT().IsUsable(gomock.Any(), "CASH-01").Return(false, errors.New("timeout"))

	_, err := d.svc.AddEntry(context.Background(), id, ports.AddEntryRequest{
		Currency: "TRY", Amount: "10", CashAccountRef: "CASH-01",
	})
	assertAppError(t, err, apperror.CodeInternal)
}

func TestReconciliationService_AddEntry_LedgerChecksBeforeAccountLookup(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := d.openTRY(t, "100")

	// No IsUsable expectation: the directory must not be asked.
	_, err := d.svc.AddEntry(ctx, id, ports.AddEntryRequest{
		Currency: "TRY", Amount: "-5", CashAccountRef: "UNKNOWN-01",
	})
	assertAppError(t, err, apperror.CodeInvalidAmount)

	_, err = d.svc.AddEntry(ctx, id, ports.AddEntryRequest{
		Currency: "USD", Amount: "5", Rate: decPtr("0"), CashAccountRef: "UNKNOWN-01",
	})
	assertAppError(t, err, apperror.CodeInvalidRate)

	d.addTRY(t, id, "100")
	tx := &mockTx{}
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.batchRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.commitCache.EXPECT().Set(ctx, gomock.Any(), time.Hour).Return(nil)
	d.events.EXPECT().PublishBatchCommitted(ctx, gomock.Any()).Return(nil)
	_, err = d.svc.Commit(ctx, id)
	require.NoError(t, err)

	_, err = d.svc.AddEntry(ctx, id, ports.AddEntryRequest{
		Currency: "TRY", Amount: "5", CashAccountRef: "UNKNOWN-01",
	})
	assertAppError(t, err, apperror.CodeAlreadyCommitted)
}

func TestReconciliationService_AddEntry_AdvisoryThenConfirm(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	id := d.openTRY(t, "500.00")
	d.addTRY(t, id, "300.00")

	advisory := d.addTRY(t, id, "250.00")
	require.True(t, advisory.Pending())

	d.accounts.EXPECT().IsUsable(gomock.Any(), "CASH-01").Return(true, nil)
	_, err := d.svc.AddEntry(context.Background(), id, ports.AddEntryRequest{
		Currency: "TRY", Amount: "250.00", CashAccountRef: "CASH-01",
	})
	assertAppError(t, err, apperror.CodeConfirmationRequired)

	d.accounts.EXPECT().IsUsable(gomock.Any(), "CASH-01").Return(true, nil)
	res, err := d.svc.AddEntry(context.Background(), id, ports.AddEntryRequest{
		Currency: "TRY", Amount: "250.00", CashAccountRef: "CASH-01", Confirmed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, advisory.Entry.ID, res.Entry.ID)
	assert.True(t, res.Snapshot.OverpaymentAmount.Amount.Equal(dec("50")))
}

// ==================== RemoveEntry / Abandon / GetSession ====================

func TestReconciliationService_RemoveEntry(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	id := d.openTRY(t, "500.00")
	res := d.addTRY(t, id, "100.00")

	snap, err := d.svc.RemoveEntry(context.Background(), id, res.Entry.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)

	_, err = d.svc.RemoveEntry(context.Background(), id, res.Entry.ID)
	assertAppError(t, err, apperror.CodeEntryNotFound)
}

func TestReconciliationService_AbandonAndGet(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	id := d.openTRY(t, "500.00")

	snap, err := d.svc.Abandon(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusAbandoned, snap.Status)

	got, err := d.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusAbandoned, got.Status)

	_, err = d.svc.GetSession(context.Background(), uuid.New())
	assertAppError(t, err, apperror.CodeSessionNotFound)
}

// ==================== Commit Tests ====================

func TestReconciliationService_Commit_Success(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := d.openTRY(t, "500.00")
	d.addTRY(t, id, "500.00")
	tx := &mockTx{}

	var published domain.BatchCommittedEvent
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.batchRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, log *domain.IdempotencyLog) error {
			assert.Equal(t, domain.BuildCommitKey(id), log.Key)
			assert.NotEmpty(t, log.ResponseJSON)
			return nil
		},
	)
	d.commitCache.EXPECT().Set(ctx, gomock.Any(), time.Hour).Return(nil)
	d.events.EXPECT().PublishBatchCommitted(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, evt domain.BatchCommittedEvent) error {
			published = evt
			return nil
		},
	)

	batch, err := d.svc.Commit(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, batch)

	assert.Equal(t, id, batch.SessionID)
	assert.Len(t, batch.Entries, 1)
	assert.True(t, batch.TotalPaid.Amount.Equal(dec("500")))
	assert.Equal(t, batch.ID, published.BatchID)
	assert.Equal(t, "500.00", published.TotalPaid)

	_, err = d.svc.Commit(ctx, id)
	assertAppError(t, err, apperror.CodeAlreadyCommitted)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, batch.ID.String(), appErr.Details["batch_id"])
}

func TestReconciliationService_Commit_EmptyLedger(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	id := d.openTRY(t, "500.00")

	_, err := d.svc.Commit(context.Background(), id)
	assertAppError(t, err, apperror.CodeEmptyLedger)
}

func TestReconciliationService_Commit_PersistFailureKeepsSessionOpen(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := d.openTRY(t, "500.00")
	d.addTRY(t, id, "100.00")
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.batchRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(errors.New("unique violation"))

	_, err := d.svc.Commit(ctx, id)
	assertAppError(t, err, apperror.CodeInternal)

	snap, err := d.svc.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.LedgerStatusOpen, snap.Status)
}

func TestReconciliationService_Commit_BeginFails(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := d.openTRY(t, "500.00")
	d.addTRY(t, id, "100.00")

	d.transactor.EXPECT().Begin(ctx).Return(nil, errors.New("pool closed"))

	_, err := d.svc.Commit(ctx, id)
	assertAppError(t, err, apperror.CodeInternal)
}

func TestReconciliationService_Commit_BestEffortFailuresDoNotFail(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := d.openTRY(t, "500.00")
	d.addTRY(t, id, "500.00")
	tx := &mockTx{}

	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.batchRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.commitCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
	d.events.EXPECT().PublishBatchCommitted(ctx, gomock.Any()).Return(errors.New("broker unreachable"))

	batch, err := d.svc.Commit(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, batch)
}

func TestReconciliationService_Commit_EvictedSession(t *testing.T) {
	batchID := uuid.New()

	tests := []struct {
		name  string
		setup func(d *reconTestDeps, id uuid.UUID)
		code  string
	}{
		{
			name: "redis hit",
			setup: func(d *reconTestDeps, id uuid.UUID) {
				d.commitCache.EXPECT().Get(gomock.Any(), id).Return(&domain.PaymentBatch{ID: batchID}, nil)
			},
			code: apperror.CodeAlreadyCommitted,
		},
		{
			name: "redis miss, db hit",
			setup: func(d *reconTestDeps, id uuid.UUID) {
				d.commitCache.EXPECT().Get(gomock.Any(), id).Return(nil, nil)
				d.idempRepo.EXPECT().Get(gomock.Any(), domain.BuildCommitKey(id)).Return(&domain.IdempotencyLog{BatchID: batchID}, nil)
			},
			code: apperror.CodeAlreadyCommitted,
		},
		{
			name: "redis error falls through to db",
			setup: func(d *reconTestDeps, id uuid.UUID) {
				d.commitCache.EXPECT().Get(gomock.Any(), id).Return(nil, errors.New("redis down"))
				d.idempRepo.EXPECT().Get(gomock.Any(), domain.BuildCommitKey(id)).Return(&domain.IdempotencyLog{BatchID: batchID}, nil)
			},
			code: apperror.CodeAlreadyCommitted,
		},
		{
			name: "never committed",
			setup: func(d *reconTestDeps, id uuid.UUID) {
				d.commitCache.EXPECT().Get(gomock.Any(), id).Return(nil, nil)
				d.idempRepo.EXPECT().Get(gomock.Any(), domain.BuildCommitKey(id)).Return(nil, nil)
			},
			code: apperror.CodeSessionNotFound,
		},
		{
			name: "db error",
			setup: func(d *reconTestDeps, id uuid.UUID) {
				d.commitCache.EXPECT().Get(gomock.Any(), id).Return(nil, nil)
				d.idempRepo.EXPECT().Get(gomock.Any(), domain.BuildCommitKey(id)).Return(nil, errors.New("conn reset"))
			},
			code: apperror.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupReconciliationService(t)
			defer d.ctrl.Finish()

			id := uuid.New()
			tt.setup(d, id)

			_, err := d.svc.Commit(context.Background(), id)
			assertAppError(t, err, tt.code)

			if tt.code == apperror.CodeAlreadyCommitted {
				var appErr *apperror.AppError
				require.True(t, errors.As(err, &appErr))
				assert.Equal(t, batchID.String(), appErr.Details["batch_id"])
			}
		})
	}
}

// ==================== ListBatches / Convert ====================

func TestReconciliationService_ListBatches_NormalisesPaging(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	d.batchRepo.EXPECT().ListByInvoice(gomock.Any(), ports.BatchListParams{
		InvoiceID: "INV-9", Page: 1, PageSize: maxPageSize,
	}).Return([]domain.PaymentBatch{{ID: uuid.New()}}, int64(1), nil)

	batches, total, err := d.svc.ListBatches(context.Background(), ports.BatchListParams{
		InvoiceID: "INV-9", Page: 0, PageSize: 1000,
	})
	require.NoError(t, err)
	assert.Len(t, batches, 1)
	assert.Equal(t, int64(1), total)
}

func TestReconciliationService_ListBatches_Errors(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.ListBatches(context.Background(), ports.BatchListParams{})
	assertAppError(t, err, apperror.CodeValidation)

	d.batchRepo.EXPECT().ListByInvoice(gomock.Any(), gomock.Any()).Return(nil, int64(0), errors.New("db down"))
	_, _, err = d.svc.ListBatches(context.Background(), ports.BatchListParams{InvoiceID: "INV-9"})
	assertAppError(t, err, apperror.CodeInternal)
}

func TestReconciliationService_Convert(t *testing.T) {
	d := setupReconciliationService(t)
	defer d.ctrl.Finish()

	res, err := d.svc.Convert(context.Background(), ports.ConvertRequest{
		Amount: dec("1.00"), Currency: "EUR", Rate: decPtr("2.345"),
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", res.Original.Currency)
	assert.True(t, res.Settlement.Amount.Equal(dec("2.35")))

	res, err = d.svc.Convert(context.Background(), ports.ConvertRequest{
		Amount: dec("10"), Currency: "TRY", Rate: decPtr("99"),
	})
	require.NoError(t, err)
	assert.True(t, res.Rate.Equal(decimal.NewFromInt(1)))
	assert.True(t, res.Settlement.Amount.Equal(dec("10")))

	d.rates.EXPECT().Rate(gomock.Any(), "USD", gomock.Any()).Return(domain.ExchangeRate{}, apperror.ErrRateUnavailable("USD", nil))
	_, err = d.svc.Convert(context.Background(), ports.ConvertRequest{Amount: dec("1"), Currency: "USD"})
	assertAppError(t, err, apperror.CodeRateUnavailable)
}
