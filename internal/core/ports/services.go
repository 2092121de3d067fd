package ports

import (
	"context"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AdmissionState is the outcome of an idempotency admission check.
type AdmissionState string

const (
	// AdmissionAdmitted means this caller holds the claim and must perform
	// the mutation (then Complete or Release).
	AdmissionAdmitted AdmissionState = "admitted"
	// AdmissionCompleted means a prior caller finished; Result holds the
	// committed outcome and the mutation must not run again.
	AdmissionCompleted AdmissionState = "completed"
	// AdmissionInProgress means another caller holds the claim; retry later.
	AdmissionInProgress AdmissionState = "in_progress"
)

// Admission is the result of IdempotencyGuard.Begin.
type Admission struct {
	State  AdmissionState
	Result []byte // Prior committed result JSON when State == AdmissionCompleted
}

// IdempotencyGuard admits exactly one caller per (kind, reference) to
// perform a ledger mutation. Completion records are retained so replays
// observe the prior committed result.
type IdempotencyGuard interface {
	Begin(ctx context.Context, kind domain.OperationKind, reference string) (*Admission, error)
	Complete(ctx context.Context, tx pgx.Tx, kind domain.OperationKind, reference string, transactionID uuid.UUID, result []byte) error
	Release(ctx context.Context, kind domain.OperationKind, reference string) error
	// Finish caches the committed result for the fast path (best-effort,
	// called after commit).
	Finish(ctx context.Context, kind domain.OperationKind, reference string, result []byte)
}

// IdempotencyCache is the Redis-layer completed-result lookup (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached result JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// KeyHasher handles one-way hashing of API key secrets (Argon2id),
// verified in constant time.
type KeyHasher interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles session JWT operations.
type TokenService interface {
	Generate(userID uuid.UUID, email string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
	Email  string
}

// PaymentGateway is the external checkout provider. Initialize is called
// strictly before the atomic ledger unit, never inside it.
type PaymentGateway interface {
	// Initialize registers a checkout session and returns the URL the user
	// completes payment at.
	Initialize(ctx context.Context, amount int64, email, reference string) (authorizationURL string, err error)
	// Verify fetches the gateway-side status for a reference (read-only).
	Verify(ctx context.Context, reference string) (*GatewayVerification, error)
}

// GatewayVerification is the gateway's view of a payment.
type GatewayVerification struct {
	Status string // "success", "failed", or gateway-specific pending states
	Amount int64
}

// Identity is a verified identity-provider triple.
type Identity struct {
	SubjectID string
	Email     string
	Name      string
	Picture   *string
}

// IdentityProvider abstracts the OAuth sign-in collaborator.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// --- Service Ports (Business Logic) ---

// GatewayEvent is a verified payment-gateway webhook event. Signature
// verification happens upstream; only verified events reach the reconciler.
type GatewayEvent struct {
	Reference string
	Status    string // "success" or "failed"
	Amount    int64
	IPAddress string
}

// Gateway event status codes.
const (
	GatewayStatusSuccess = "success"
	GatewayStatusFailed  = "failed"
)

// DepositIntent is the result of initiating a deposit.
type DepositIntent struct {
	Reference        string
	AuthorizationURL string
}

// DepositService pre-registers deposits and credits wallets exactly once
// from verified gateway events.
type DepositService interface {
	Initiate(ctx context.Context, userID uuid.UUID, amount int64, clientIP string) (*DepositIntent, error)
	Reconcile(ctx context.Context, event GatewayEvent) (*domain.Transaction, error)
	// GetStatus reads current deposit status without ever mutating balances.
	GetStatus(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transaction, error)
}

// TransferRequest holds validated input for a peer-to-peer transfer.
type TransferRequest struct {
	SenderUserID          uuid.UUID
	RecipientWalletNumber string
	Amount                int64
	IdempotencyKey        string
	Description           string
	ClientIP              string
}

// TransferService atomically moves value between two wallets.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error)
}

// WalletBalance is a committed-state balance read.
type WalletBalance struct {
	WalletNumber string
	Balance      int64
}

// WalletService exposes read paths over the ledger.
type WalletService interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*WalletBalance, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, int64, error)
}

// CreateKeyRequest holds input for API key creation.
type CreateKeyRequest struct {
	UserID      uuid.UUID
	Name        string
	Permissions []domain.Permission
	TTL         domain.KeyTTL
	ClientIP    string
}

// CreatedKey is the issue-time result; Plaintext is shown only once.
type CreatedKey struct {
	Key       *domain.APIKey
	Plaintext string
}

// APIKeyService issues, validates, rolls over, and revokes scoped credentials.
type APIKeyService interface {
	Create(ctx context.Context, req CreateKeyRequest) (*CreatedKey, error)
	Rollover(ctx context.Context, userID, expiredKeyID uuid.UUID, ttl domain.KeyTTL, clientIP string) (*CreatedKey, error)
	Validate(ctx context.Context, plaintext string) (*domain.APIKey, error)
	Authorize(key *domain.APIKey, required domain.Permission) error
	Revoke(ctx context.Context, userID, keyID uuid.UUID, clientIP string) error
	List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
}

// LoginResult is the outcome of a completed sign-in.
type LoginResult struct {
	Token        string
	ExpiresAt    time.Time
	User         *domain.User
	WalletNumber string
}

// AuthService handles identity-provider sign-in and session issuance.
type AuthService interface {
	AuthURL(state string) string
	LoginWithCode(ctx context.Context, code, clientIP string) (*LoginResult, error)
}

// AuditService records audited actions best-effort; it never fails the
// operation being audited.
type AuditService interface {
	Record(ctx context.Context, log domain.AuditLog)
}
