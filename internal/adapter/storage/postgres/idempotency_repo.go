package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository with a claim
// table. The primary key on `key` makes admission a single atomic
// insert-or-conflict statement.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// Claim attempts to insert an admitted claim for the key. If the key is
// taken, the existing row decides the outcome — except a stale admitted
// claim past its lease, which the ON CONFLICT branch takes over.
func (r *IdempotencyRepo) Claim(ctx context.Context, key string, now time.Time) (bool, *domain.IdempotencyClaim, error) {
	query := `INSERT INTO idempotency_claims (key, status, claimed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET claimed_at = $3
		WHERE idempotency_claims.status = $2 AND idempotency_claims.claimed_at < $4
		RETURNING key`

	lease := now.Add(-domain.ClaimLease)
	var claimedKey string
	err := r.pool.QueryRow(ctx, query, key, domain.ClaimStatusAdmitted, now, lease).Scan(&claimedKey)
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("claim idempotency key: %w", err)
	}

	// Conflict with a live claim: report its state to the caller.
	existing, err := r.Get(ctx, key)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		// Claim released between our insert and read; caller retries.
		return false, nil, fmt.Errorf("claim for %s vanished, retry", key)
	}
	return false, existing, nil
}

// Complete marks the claim completed inside the guarded mutation's
// database transaction.
func (r *IdempotencyRepo) Complete(ctx context.Context, tx pgx.Tx, key string, transactionID uuid.UUID, result []byte) error {
	query := `UPDATE idempotency_claims
		SET status = $1, transaction_id = $2, result_json = $3, completed_at = NOW()
		WHERE key = $4`

	tag, err := tx.Exec(ctx, query, domain.ClaimStatusCompleted, transactionID, result, key)
	if err != nil {
		return fmt.Errorf("complete idempotency claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency claim not found: %s", key)
	}
	return nil
}

// Release deletes an admitted claim after a mutation failed with no side
// effects, so the caller can retry.
func (r *IdempotencyRepo) Release(ctx context.Context, key string) error {
	query := `DELETE FROM idempotency_claims WHERE key = $1 AND status = $2`

	_, err := r.pool.Exec(ctx, query, key, domain.ClaimStatusAdmitted)
	if err != nil {
		return fmt.Errorf("release idempotency claim: %w", err)
	}
	return nil
}

// Get fetches a claim by key.
func (r *IdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyClaim, error) {
	query := `SELECT key, status, transaction_id, result_json, claimed_at, completed_at
		FROM idempotency_claims WHERE key = $1`

	c := &domain.IdempotencyClaim{}
	err := r.pool.QueryRow(ctx, query, key).Scan(
		&c.Key, &c.Status, &c.TransactionID, &c.ResultJSON, &c.ClaimedAt, &c.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency claim: %w", err)
	}
	return c, nil
}
