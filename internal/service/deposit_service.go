package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/metrics"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MinAmount is the smallest accepted deposit or transfer, in minor units.
const MinAmount = 100

// DepositServiceImpl implements ports.DepositService.
type DepositServiceImpl struct {
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	guard      ports.IdempotencyGuard
	gateway    ports.PaymentGateway
	transactor ports.DBTransactor
	audit      ports.AuditService
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewDepositService creates a new DepositServiceImpl.
func NewDepositService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	guard ports.IdempotencyGuard,
	gateway ports.PaymentGateway,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	m *metrics.Metrics,
	log zerolog.Logger,
) *DepositServiceImpl {
	return &DepositServiceImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		guard:      guard,
		gateway:    gateway,
		transactor: transactor,
		audit:      audit,
		metrics:    m,
		log:        log,
	}
}

// Initiate registers a checkout session with the gateway and pre-registers
// a pending deposit transaction against its reference. The gateway call
// happens before any database transaction is opened.
func (s *DepositServiceImpl) Initiate(ctx context.Context, userID uuid.UUID, amount int64, clientIP string) (*ports.DepositIntent, error) {
	if amount < MinAmount {
		return nil, apperror.Validation(fmt.Sprintf("minimum deposit amount is %d minor units", MinAmount))
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch user: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("user")
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrUnknownWallet()
	}

	reference, err := generateReference("ref_")
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate reference: %w", err))
	}

	authorizationURL, err := s.gateway.Initialize(ctx, amount, user.Email, reference)
	if err != nil {
		return nil, apperror.ErrGatewayFailure(err)
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:               uuid.New(),
		Reference:        reference,
		UserID:           userID,
		WalletID:         wallet.ID,
		Type:             domain.TransactionTypeDeposit,
		Amount:           amount,
		Status:           domain.TransactionStatusPending,
		AuthorizationURL: &authorizationURL,
		Description:      fmt.Sprintf("Deposit of %d minor units", amount),
		CreatedAt:        now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStorageUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("register pending deposit: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStorageUnavailable(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.DepositsInitiated.Inc()
	s.audit.Record(ctx, domain.AuditLog{
		UserID:       &userID,
		Action:       domain.AuditActionDepositInitiated,
		ResourceType: "transaction",
		ResourceID:   reference,
		Details:      fmt.Sprintf(`{"amount":%d}`, amount),
		IPAddress:    clientIP,
	})

	s.log.Info().
		Str("reference", reference).
		Str("user_id", userID.String()).
		Int64("amount", amount).
		Msg("deposit initiated")

	return &ports.DepositIntent{Reference: reference, AuthorizationURL: authorizationURL}, nil
}

// Reconcile consumes a verified gateway event and settles the deposit
// exactly once. Replays return the stored terminal result unchanged.
func (s *DepositServiceImpl) Reconcile(ctx context.Context, event ports.GatewayEvent) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByReference(ctx, event.Reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup deposit: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrUnknownReference()
	}

	// Terminal status never regresses; late events are no-ops.
	if txn.IsTerminal() {
		s.metrics.IdempotentReplays.WithLabelValues(string(domain.OperationKindDeposit)).Inc()
		return txn, nil
	}

	admission, err := s.guard.Begin(ctx, domain.OperationKindDeposit, event.Reference)
	if err != nil {
		return nil, apperror.ErrStorageUnavailable(err)
	}
	switch admission.State {
	case ports.AdmissionCompleted:
		s.metrics.IdempotentReplays.WithLabelValues(string(domain.OperationKindDeposit)).Inc()
		return unmarshalTransaction(admission.Result)
	case ports.AdmissionInProgress:
		return nil, apperror.ErrOperationInProgress()
	}

	status := domain.TransactionStatusFailed
	if event.Status == ports.GatewayStatusSuccess {
		// Confirm with the gateway before crediting. This runs before the
		// atomic ledger unit, never inside it.
		verification, err := s.gateway.Verify(ctx, event.Reference)
		if err != nil {
			s.releaseClaim(ctx, event.Reference)
			return nil, apperror.ErrGatewayFailure(fmt.Errorf("confirm payment: %w", err))
		}
		if verification.Status != ports.GatewayStatusSuccess {
			s.releaseClaim(ctx, event.Reference)
			return nil, apperror.ErrGatewayFailure(fmt.Errorf("gateway did not confirm payment %s: status %q", event.Reference, verification.Status))
		}
		if verification.Amount != txn.Amount {
			s.log.Warn().
				Str("reference", event.Reference).
				Int64("registered", txn.Amount).
				Int64("gateway", verification.Amount).
				Msg("gateway amount differs from registered deposit, crediting registered amount")
		}
		status = domain.TransactionStatusSuccess
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		s.releaseClaim(ctx, event.Reference)
		return nil, apperror.ErrStorageUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Lock the wallet row for the credit
	if status == domain.TransactionStatusSuccess {
		wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, txn.WalletID)
		if err != nil {
			s.releaseClaim(ctx, event.Reference)
			return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if wallet == nil {
			s.releaseClaim(ctx, event.Reference)
			return nil, apperror.ErrUnknownWallet()
		}

		if _, applied, err := s.walletRepo.ApplyDelta(ctx, dbTx, txn.WalletID, txn.Amount); err != nil || !applied {
			s.releaseClaim(ctx, event.Reference)
			if err == nil {
				err = fmt.Errorf("credit rejected for wallet %s", txn.WalletID)
			}
			return nil, apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
		}
	}

	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, status); err != nil {
		s.releaseClaim(ctx, event.Reference)
		return nil, apperror.InternalError(fmt.Errorf("settle deposit: %w", err))
	}

	now := time.Now().UTC()
	txn.Status = status
	txn.ProcessedAt = &now

	result, err := json.Marshal(txn)
	if err != nil {
		s.releaseClaim(ctx, event.Reference)
		return nil, apperror.InternalError(fmt.Errorf("marshal result: %w", err))
	}
	if err := s.guard.Complete(ctx, dbTx, domain.OperationKindDeposit, event.Reference, txn.ID, result); err != nil {
		s.releaseClaim(ctx, event.Reference)
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		s.releaseClaim(ctx, event.Reference)
		return nil, apperror.ErrStorageUnavailable(fmt.Errorf("commit tx: %w", err))
	}

	s.guard.Finish(ctx, domain.OperationKindDeposit, event.Reference, result)
	s.metrics.DepositsReconciled.WithLabelValues(string(status)).Inc()

	action := domain.AuditActionDepositCredited
	if status == domain.TransactionStatusFailed {
		action = domain.AuditActionDepositFailed
	}
	s.audit.Record(ctx, domain.AuditLog{
		UserID:       &txn.UserID,
		Action:       action,
		ResourceType: "transaction",
		ResourceID:   txn.Reference,
		Details:      fmt.Sprintf(`{"amount":%d,"status":%q}`, txn.Amount, status),
		IPAddress:    event.IPAddress,
	})

	s.log.Info().
		Str("reference", txn.Reference).
		Str("status", string(status)).
		Int64("amount", txn.Amount).
		Msg("deposit reconciled")

	return txn, nil
}

// GetStatus reads the stored deposit status. It never mutates balances or
// transaction state: webhook delivery is the only credit path.
func (s *DepositServiceImpl) GetStatus(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup deposit: %w", err))
	}
	if txn == nil || txn.UserID != userID {
		return nil, apperror.ErrUnknownReference()
	}
	return txn, nil
}

func (s *DepositServiceImpl) releaseClaim(ctx context.Context, reference string) {
	if err := s.guard.Release(ctx, domain.OperationKindDeposit, reference); err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("failed to release deposit claim")
	}
}

// unmarshalTransaction deserializes a stored operation result.
func unmarshalTransaction(data []byte) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	if err := json.Unmarshal(data, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal stored result: %w", err))
	}
	return txn, nil
}

// generateReference builds a prefixed random reference (prefix + 32 hex chars).
func generateReference(prefix string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(buf), nil
}
