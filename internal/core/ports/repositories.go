package ports

import (
	"context"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	// ApplyDelta adds a signed amount to the wallet balance within a
	// transaction. Returns applied=false when the store's non-negativity
	// constraint rejects the delta; nothing is written in that case.
	ApplyDelta(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta int64) (newBalance int64, applied bool, err error)
}

// TransactionRepository defines persistence operations for ledger records.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// GetByReference fetches the deposit transaction registered for an
	// external payment reference (at most one exists).
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, int64, error)
}

// APIKeyRepository defines persistence operations for API keys. Keys are
// never deleted, only flagged revoked or rolled over.
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error)
	GetByKeyID(ctx context.Context, keyID string) (*domain.APIKey, error)
	CountActive(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	SetRevoked(ctx context.Context, id uuid.UUID, rolledOver bool) error
}

// IdempotencyRepository persists claim records. Claim admission must be
// atomic with respect to concurrent callers sharing a key.
type IdempotencyRepository interface {
	// Claim attempts to insert an admitted claim for the key. When the key
	// is already claimed it returns admitted=false and the existing claim,
	// unless the existing claim is admitted but older than the lease window,
	// in which case the caller takes it over (admitted=true).
	Claim(ctx context.Context, key string, now time.Time) (admitted bool, existing *domain.IdempotencyClaim, err error)
	// Complete marks the claim completed inside the guarded mutation's
	// database transaction.
	Complete(ctx context.Context, tx pgx.Tx, key string, transactionID uuid.UUID, result []byte) error
	Release(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*domain.IdempotencyClaim, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
