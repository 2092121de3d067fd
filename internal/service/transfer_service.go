package service

import (
	"context"
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

// TransferServiceImpl implements ports.TransferService.
type TransferServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	guard      ports.IdempotencyGuard
	transactor ports.DBTransactor
	audit      ports.AuditService
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl.
func NewTransferService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	guard ports.IdempotencyGuard,
	transactor ports.DBTransactor,
	audit ports.AuditService,
	m *metrics.Metrics,
	log zerolog.Logger,
) *TransferServiceImpl {
	return &TransferServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		guard:      guard,
		transactor: transactor,
		audit:      audit,
		metrics:    m,
		log:        log,
	}
}

// Transfer atomically moves value from the sender's wallet to the wallet
// identified by its number. Both ledger sides commit in one database
// transaction; wallet rows are locked in ascending ID order so opposite
// transfers between the same pair cannot deadlock.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*domain.Transaction, error) {
	if req.Amount < MinAmount {
		s.metrics.TransfersRejected.WithLabelValues("invalid_amount").Inc()
		return nil, apperror.Validation(fmt.Sprintf("minimum transfer amount is %d minor units", MinAmount))
	}
	if req.IdempotencyKey == "" {
		s.metrics.TransfersRejected.WithLabelValues("missing_idempotency_key").Inc()
		return nil, apperror.Validation("idempotency key is required")
	}

	senderWallet, err := s.walletRepo.GetByUserID(ctx, req.SenderUserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch sender wallet: %w", err))
	}
	if senderWallet == nil {
		s.metrics.TransfersRejected.WithLabelValues("unknown_wallet").Inc()
		return nil, apperror.ErrUnknownWallet()
	}

	recipientWallet, err := s.walletRepo.GetByNumber(ctx, req.RecipientWalletNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch recipient wallet: %w", err))
	}
	if recipientWallet == nil {
		s.metrics.TransfersRejected.WithLabelValues("unknown_wallet").Inc()
		return nil, apperror.ErrUnknownWallet()
	}
	if recipientWallet.ID == senderWallet.ID {
		s.metrics.TransfersRejected.WithLabelValues("self_transfer").Inc()
		return nil, apperror.ErrSelfTransfer()
	}

	admission, err := s.guard.Begin(ctx, domain.OperationKindTransfer, req.IdempotencyKey)
	if err != nil {
		return nil, apperror.ErrStorageUnavailable(err)
	}
	switch admission.State {
	case ports.AdmissionCompleted:
		s.metrics.IdempotentReplays.WithLabelValues(string(domain.OperationKindTransfer)).Inc()
		return unmarshalTransaction(admission.Result)
	case ports.AdmissionInProgress:
		return nil, apperror.ErrOperationInProgress()
	}

	txn, appErr := s.execute(ctx, req, senderWallet, recipientWallet)
	if appErr != nil {
		s.releaseTransferClaim(ctx, req.IdempotencyKey)
		return nil, appErr
	}

	result, err := json.Marshal(txn)
	if err == nil {
		s.guard.Finish(ctx, domain.OperationKindTransfer, req.IdempotencyKey, result)
	}

	s.metrics.TransfersApplied.Inc()
	s.audit.Record(ctx, domain.AuditLog{
		UserID:       &req.SenderUserID,
		Action:       domain.AuditActionTransfer,
		ResourceType: "transaction",
		ResourceID:   txn.Reference,
		Details:      fmt.Sprintf(`{"amount":%d,"recipient_wallet":%q}`, req.Amount, req.RecipientWalletNumber),
		IPAddress:    req.ClientIP,
	})

	s.log.Info().
		Str("reference", txn.Reference).
		Str("sender_wallet", senderWallet.ID.String()).
		Str("recipient_wallet", recipientWallet.ID.String()).
		Int64("amount", req.Amount).
		Msg("transfer applied")

	return txn, nil
}

// execute performs the atomic ledger unit: lock both wallets, move the
// balance, write both transaction records, and mark the claim completed,
// all in one database transaction.
func (s *TransferServiceImpl) execute(ctx context.Context, req ports.TransferRequest, sender, recipient *domain.Wallet) (*domain.Transaction, *apperror.AppError) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrStorageUnavailable(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	firstID, secondID := domain.LockOrder(sender.ID, recipient.ID)
	if _, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, firstID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet %s: %w", firstID, err))
	}
	if _, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, secondID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet %s: %w", secondID, err))
	}

	_, applied, err := s.walletRepo.ApplyDelta(ctx, dbTx, sender.ID, -req.Amount)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("debit sender: %w", err))
	}
	if !applied {
		s.metrics.TransfersRejected.WithLabelValues("insufficient_funds").Inc()
		return nil, apperror.ErrInsufficientFunds()
	}
	if _, applied, err = s.walletRepo.ApplyDelta(ctx, dbTx, recipient.ID, req.Amount); err != nil || !applied {
		if err == nil {
			err = fmt.Errorf("credit rejected for wallet %s", recipient.ID)
		}
		return nil, apperror.InternalError(fmt.Errorf("credit recipient: %w", err))
	}

	reference, err := generateReference("trf_")
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate reference: %w", err))
	}

	now := time.Now().UTC()
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Transfer of %d minor units", req.Amount)
	}

	outTxn := &domain.Transaction{
		ID:                   uuid.New(),
		Reference:            reference,
		UserID:               req.SenderUserID,
		WalletID:             sender.ID,
		CounterpartyWalletID: &recipient.ID,
		Type:                 domain.TransactionTypeTransferOut,
		Amount:               req.Amount,
		Status:               domain.TransactionStatusSuccess,
		Description:          description,
		CreatedAt:            now,
		ProcessedAt:          &now,
	}
	inTxn := &domain.Transaction{
		ID:                   uuid.New(),
		Reference:            reference,
		UserID:               recipient.UserID,
		WalletID:             recipient.ID,
		CounterpartyWalletID: &sender.ID,
		Type:                 domain.TransactionTypeTransferIn,
		Amount:               req.Amount,
		Status:               domain.TransactionStatusSuccess,
		Description:          description,
		CreatedAt:            now,
		ProcessedAt:          &now,
	}

	if err := s.txRepo.Create(ctx, dbTx, outTxn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record debit side: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, inTxn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record credit side: %w", err))
	}

	result, err := json.Marshal(outTxn)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal result: %w", err))
	}
	if err := s.guard.Complete(ctx, dbTx, domain.OperationKindTransfer, req.IdempotencyKey, outTxn.ID, result); err != nil {
		return nil, apperror.InternalError(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrStorageUnavailable(fmt.Errorf("commit tx: %w", err))
	}
	return outTxn, nil
}

func (s *TransferServiceImpl) releaseTransferClaim(ctx context.Context, key string) {
	if err := s.guard.Release(ctx, domain.OperationKindTransfer, key); err != nil {
		s.log.Warn().Err(err).Str("idempotency_key", key).Msg("failed to release transfer claim")
	}
}
