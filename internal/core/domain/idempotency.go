package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationKind namespaces idempotency reference keys so a deposit
// reference and a transfer reference can never collide.
type OperationKind string

const (
	OperationKindDeposit  OperationKind = "deposit"
	OperationKindTransfer OperationKind = "transfer"
)

// ClaimStatus is the state of an idempotency claim.
type ClaimStatus string

const (
	ClaimStatusAdmitted  ClaimStatus = "admitted"
	ClaimStatusCompleted ClaimStatus = "completed"
)

// ClaimLease bounds how long an admitted claim blocks other callers. A
// claim older than this with no completion is assumed crashed and may be
// re-claimed.
const ClaimLease = 5 * time.Minute

// IdempotencyClaim is the claim/ticket record guarding a ledger mutation.
// Admission is an atomic insert on the key; completion is written inside
// the same database transaction as the mutation it guards.
type IdempotencyClaim struct {
	Key           string      `json:"key"` // "<kind>:<reference>"
	Status        ClaimStatus `json:"status"`
	TransactionID *uuid.UUID  `json:"transaction_id,omitempty"`
	ResultJSON    []byte      `json:"result_json,omitempty"` // Cached result returned on replay
	ClaimedAt     time.Time   `json:"claimed_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// BuildClaimKey constructs the namespaced claim key.
func BuildClaimKey(kind OperationKind, reference string) string {
	return string(kind) + ":" + reference
}
