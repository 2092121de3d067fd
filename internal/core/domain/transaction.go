package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeTransferOut TransactionType = "transfer_out"
	TransactionTypeTransferIn  TransactionType = "transfer_in"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

// Transaction represents an immutable ledger entry. Amount and wallet ID
// never change after creation; status transitions pending -> success|failed
// exactly once. A transfer produces two records (transfer_out on the sender,
// transfer_in on the recipient) sharing the same Reference.
type Transaction struct {
	ID                   uuid.UUID         `json:"id"`
	Reference            string            `json:"reference"`
	UserID               uuid.UUID         `json:"user_id"`
	WalletID             uuid.UUID         `json:"wallet_id"`
	CounterpartyWalletID *uuid.UUID        `json:"counterparty_wallet_id,omitempty"`
	Type                 TransactionType   `json:"type"`
	Amount               int64             `json:"amount"` // Minor units, always positive
	Status               TransactionStatus `json:"status"`
	AuthorizationURL     *string           `json:"authorization_url,omitempty"` // Gateway checkout URL for deposits
	Description          string            `json:"description"`
	CreatedAt            time.Time         `json:"created_at"`
	ProcessedAt          *time.Time        `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSuccess || t.Status == TransactionStatusFailed
}
