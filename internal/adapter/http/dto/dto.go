package dto

// DepositRequest is the request body for initiating a deposit.
type DepositRequest struct {
	Amount int64 `json:"amount" binding:"required,gte=100"`
}

// DepositResponse is the response body for an initiated deposit.
type DepositResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// TransferRequest is the request body for a wallet-to-wallet transfer.
type TransferRequest struct {
	WalletNumber   string `json:"wallet_number" binding:"required,len=13,numeric"`
	Amount         int64  `json:"amount" binding:"required,gte=100"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,min=8,max=100,safe_id"`
	Description    string `json:"description" binding:"max=255"`
}

// TransactionResponse is the response body for a single ledger record.
type TransactionResponse struct {
	ID               string  `json:"id"`
	Reference        string  `json:"reference"`
	Type             string  `json:"type"`
	Amount           int64   `json:"amount"`
	Status           string  `json:"status"`
	Description      string  `json:"description"`
	AuthorizationURL *string `json:"authorization_url,omitempty"`
	CreatedAt        string  `json:"created_at"`
	ProcessedAt      *string `json:"processed_at,omitempty"`
}

// TransactionListResponse wraps a paginated transaction list.
type TransactionListResponse struct {
	Items  []TransactionResponse `json:"items"`
	Total  int64                 `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	WalletNumber string `json:"wallet_number"`
	Balance      int64  `json:"balance"`
}

// CreateKeyRequest is the request body for API key creation.
type CreateKeyRequest struct {
	Name        string   `json:"name" binding:"required,min=1,max=100"`
	Permissions []string `json:"permissions" binding:"required,min=1,max=3,dive,oneof=deposit transfer read"`
	TTL         string   `json:"ttl" binding:"required,oneof=1H 1D 1M 1Y"`
}

// RolloverKeyRequest is the request body for rolling over an expired key.
type RolloverKeyRequest struct {
	TTL string `json:"ttl" binding:"required,oneof=1H 1D 1M 1Y"`
}

// KeyResponse is the response body for a stored API key (no secret).
type KeyResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	KeyID         string   `json:"key_id"`
	Permissions   []string `json:"permissions"`
	ExpiresAt     string   `json:"expires_at"`
	Revoked       bool     `json:"revoked"`
	RolledOver    bool     `json:"rolled_over"`
	PredecessorID *string  `json:"predecessor_id,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

// CreatedKeyResponse is the issue-time response; Key is shown exactly once.
type CreatedKeyResponse struct {
	KeyResponse
	Key string `json:"key"`
}

// KeyListResponse wraps the user's API keys.
type KeyListResponse struct {
	Items []KeyResponse `json:"items"`
}

// AuthURLResponse carries the identity provider consent URL.
type AuthURLResponse struct {
	URL string `json:"url"`
}

// LoginResponse is the response body for a completed sign-in.
type LoginResponse struct {
	Token        string `json:"token"`
	Expiry       int64  `json:"expiry"` // Unix timestamp
	WalletNumber string `json:"wallet_number"`
	Email        string `json:"email"`
	Name         string `json:"name"`
}
