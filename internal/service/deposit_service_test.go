package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/core/ports/mocks"
	"wallet-service/internal/metrics"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type depositTestDeps struct {
	svc        *DepositServiceImpl
	userRepo   *mocks.MockUserRepository
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	guard      *mocks.MockIdempotencyGuard
	gateway    *mocks.MockPaymentGateway
	transactor *mocks.MockDBTransactor
	audit      *mocks.MockAuditService
	ctrl       *gomock.Controller
}

func setupDepositService(t *testing.T) *depositTestDeps {
	ctrl := gomock.NewController(t)
	d := &depositTestDeps{
		userRepo:   mocks.NewMockUserRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		guard:      mocks.NewMockIdempotencyGuard(ctrl),
		gateway:    mocks.NewMockPaymentGateway(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		audit:      mocks.NewMockAuditService(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewDepositService(
		d.userRepo, d.walletRepo, d.txRepo, d.guard, d.gateway,
		d.transactor, d.audit, metrics.New(prometheus.NewRegistry()), zerolog.Nop(),
	)
	return d
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

// ==================== Initiate Tests ====================

func TestDepositService_Initiate_Success(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	walletID := uuid.New()
	tx := &mockTx{}

	d.userRepo.EXPECT().GetByID(ctx, userID).Return(&domain.User{ID: userID, Email: "a@b.com"}, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(&domain.Wallet{ID: walletID, UserID: userID}, nil)
	d.gateway.EXPECT().
		Initialize(ctx, int64(5000), "a@b.com", gomock.Any()).
		Return("https://checkout.example/abc", nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, txn *domain.Transaction) error {
			assert.Equal(t, domain.TransactionTypeDeposit, txn.Type)
			assert.Equal(t, domain.TransactionStatusPending, txn.Status)
			assert.Equal(t, int64(5000), txn.Amount)
			assert.Equal(t, walletID, txn.WalletID)
			return nil
		})
	d.audit.EXPECT().Record(ctx, gomock.Any())

	intent, err := d.svc.Initiate(ctx, userID, 5000, "1.2.3.4")
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.True(t, strings.HasPrefix(intent.Reference, "ref_"))
	assert.Len(t, intent.Reference, 4+32)
	assert.Equal(t, "https://checkout.example/abc", intent.AuthorizationURL)
}

func TestDepositService_Initiate_BelowMinimum(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	intent, err := d.svc.Initiate(context.Background(), uuid.New(), 99, "1.2.3.4")
	assert.Nil(t, intent)
	assertAppError(t, err, "VAL_001")
}

func TestDepositService_Initiate_GatewayFailure_NoLedgerWrite(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.userRepo.EXPECT().GetByID(ctx, userID).Return(&domain.User{ID: userID, Email: "a@b.com"}, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(&domain.Wallet{ID: uuid.New(), UserID: userID}, nil)
	d.gateway.EXPECT().
		Initialize(ctx, int64(5000), "a@b.com", gomock.Any()).
		Return("", assertableErr("gateway down"))

	// transactor.Begin must not be called: no ledger writes on gateway failure
	intent, err := d.svc.Initiate(ctx, userID, 5000, "1.2.3.4")
	assert.Nil(t, intent)
	assertAppError(t, err, "SYS_003")
}

// ==================== Reconcile Tests ====================

func TestDepositService_Reconcile_SuccessCreditsOnce(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	walletID := uuid.New()
	txnID := uuid.New()
	tx := &mockTx{}

	pending := &domain.Transaction{
		ID:        txnID,
		Reference: "ref_abc",
		UserID:    userID,
		WalletID:  walletID,
		Type:      domain.TransactionTypeDeposit,
		Amount:    5000,
		Status:    domain.TransactionStatusPending,
	}

	d.txRepo.EXPECT().GetByReference(ctx, "ref_abc").Return(pending, nil)
	d.guard.EXPECT().Begin(ctx, domain.OperationKindDeposit, "ref_abc").
		Return(&ports.Admission{State: ports.AdmissionAdmitted}, nil)
	d.gateway.EXPECT().Verify(ctx, "ref_abc").
		Return(&ports.GatewayVerification{Status: ports.GatewayStatusSuccess, Amount: 5000}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, walletID).
		Return(&domain.Wallet{ID: walletID, UserID: userID, Balance: 0}, nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, walletID, int64(5000)).Return(int64(5000), true, nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, txnID, domain.TransactionStatusSuccess).Return(nil)
	d.guard.EXPECT().Complete(ctx, tx, domain.OperationKindDeposit, "ref_abc", txnID, gomock.Any()).Return(nil)
	d.guard.EXPECT().Finish(ctx, domain.OperationKindDeposit, "ref_abc", gomock.Any())
	d.audit.EXPECT().Record(ctx, gomock.Any())

	result, err := d.svc.Reconcile(ctx, ports.GatewayEvent{
		Reference: "ref_abc",
		Status:    ports.GatewayStatusSuccess,
		Amount:    5000,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSuccess, result.Status)
	require.NotNil(t, result.ProcessedAt)
}

func TestDepositService_Reconcile_FailedEventNoCredit(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	txnID := uuid.New()
	tx := &mockTx{}

	pending := &domain.Transaction{
		ID:        txnID,
		Reference: "ref_fail",
		UserID:    uuid.New(),
		WalletID:  uuid.New(),
		Type:      domain.TransactionTypeDeposit,
		Amount:    5000,
		Status:    domain.TransactionStatusPending,
	}

	d.txRepo.EXPECT().GetByReference(ctx, "ref_fail").Return(pending, nil)
	d.guard.EXPECT().Begin(ctx, domain.OperationKindDeposit, "ref_fail").
		Return(&ports.Admission{State: ports.AdmissionAdmitted}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	// No wallet lock, no ApplyDelta: failure settles without touching balances
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, txnID, domain.TransactionStatusFailed).Return(nil)
	d.guard.EXPECT().Complete(ctx, tx, domain.OperationKindDeposit, "ref_fail", txnID, gomock.Any()).Return(nil)
	d.guard.EXPECT().Finish(ctx, domain.OperationKindDeposit, "ref_fail", gomock.Any())
	d.audit.EXPECT().Record(ctx, gomock.Any())

	result, err := d.svc.Reconcile(ctx, ports.GatewayEvent{
		Reference: "ref_fail",
		Status:    ports.GatewayStatusFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, result.Status)
}

func TestDepositService_Reconcile_UnknownReference(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.txRepo.EXPECT().GetByReference(ctx, "ref_nope").Return(nil, nil)

	result, err := d.svc.Reconcile(ctx, ports.GatewayEvent{Reference: "ref_nope", Status: ports.GatewayStatusSuccess})
	assert.Nil(t, result)
	assertAppError(t, err, "LED_003")
}

func TestDepositService_Reconcile_TerminalReplayIsNoop(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	settled := &domain.Transaction{
		ID:        uuid.New(),
		Reference: "ref_done",
		Status:    domain.TransactionStatusSuccess,
		Amount:    5000,
	}
	d.txRepo.EXPECT().GetByReference(ctx, "ref_done").Return(settled, nil)

	// Guard, gateway, and transactor must not be touched.
	result, err := d.svc.Reconcile(ctx, ports.GatewayEvent{Reference: "ref_done", Status: ports.GatewayStatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, settled, result)
}

func TestDepositService_Reconcile_CompletedAdmissionReturnsStoredResult(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	stored := &domain.Transaction{ID: uuid.New(), Reference: "ref_r", Status: domain.TransactionStatusSuccess}
	storedJSON, _ := json.Marshal(stored)

	d.txRepo.EXPECT().GetByReference(ctx, "ref_r").Return(&domain.Transaction{
		ID: stored.ID, Reference: "ref_r", Status: domain.TransactionStatusPending,
	}, nil)
	d.guard.EXPECT().Begin(ctx, domain.OperationKindDeposit, "ref_r").
		Return(&ports.Admission{State: ports.AdmissionCompleted, Result: storedJSON}, nil)

	result, err := d.svc.Reconcile(ctx, ports.GatewayEvent{Reference: "ref_r", Status: ports.GatewayStatusSuccess})
	require.NoError(t, err)
	assert.Equal(t, stored.ID, result.ID)
	assert.Equal(t, domain.TransactionStatusSuccess, result.Status)
}

func TestDepositService_Reconcile_InProgress(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.txRepo.EXPECT().GetByReference(ctx, "ref_busy").Return(&domain.Transaction{
		ID: uuid.New(), Reference: "ref_busy", Status: domain.TransactionStatusPending,
	}, nil)
	d.guard.EXPECT().Begin(ctx, domain.OperationKindDeposit, "ref_busy").
		Return(&ports.Admission{State: ports.AdmissionInProgress}, nil)

	result, err := d.svc.Reconcile(ctx, ports.GatewayEvent{Reference: "ref_busy", Status: ports.GatewayStatusSuccess})
	assert.Nil(t, result)
	assertAppError(t, err, "LED_005")
}

func TestDepositService_Reconcile_UnconfirmedSuccessReleasesClaim(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	pending := &domain.Transaction{
		ID:        uuid.New(),
		Reference: "ref_x",
		Status:    domain.TransactionStatusPending,
		Amount:    5000,
	}
	d.txRepo.EXPECT().GetByReference(ctx, "ref_x").Return(pending, nil)
	d.guard.EXPECT().Begin(ctx, domain.OperationKindDeposit, "ref_x").
		Return(&ports.Admission{State: ports.AdmissionAdmitted}, nil)
	d.gateway.EXPECT().Verify(ctx, "ref_x").
		Return(&ports.GatewayVerification{Status: "abandoned", Amount: 5000}, nil)
	d.guard.EXPECT().Release(ctx, domain.OperationKindDeposit, "ref_x").Return(nil)

	result, err := d.svc.Reconcile(ctx, ports.GatewayEvent{Reference: "ref_x", Status: ports.GatewayStatusSuccess})
	assert.Nil(t, result)
	assertAppError(t, err, "SYS_003")
}

// ==================== GetStatus Tests ====================

func TestDepositService_GetStatus_ReadsStoredStateOnly(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:        uuid.New(),
		Reference: "ref_s",
		UserID:    userID,
		Status:    domain.TransactionStatusPending,
		Amount:    5000,
		CreatedAt: now,
	}
	d.txRepo.EXPECT().GetByReference(ctx, "ref_s").Return(txn, nil)

	// Neither gateway nor transactor may be touched by a status read.
	result, err := d.svc.GetStatus(ctx, userID, "ref_s")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, result.Status)
}

func TestDepositService_GetStatus_HidesForeignReference(t *testing.T) {
	d := setupDepositService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.txRepo.EXPECT().GetByReference(ctx, "ref_other").Return(&domain.Transaction{
		ID:     uuid.New(),
		UserID: uuid.New(), // different owner
	}, nil)

	result, err := d.svc.GetStatus(ctx, uuid.New(), "ref_other")
	assert.Nil(t, result)
	assertAppError(t, err, "LED_003")
}

// ==================== Helpers ====================

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }
