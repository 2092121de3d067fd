package service

import (
	"context"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const idempotencyCacheTTL = 24 * time.Hour

// Guard implements ports.IdempotencyGuard: a Redis completed-result fast
// path in front of the PostgreSQL claim table, which is the source of
// truth for admission. Exactly one caller per (kind, reference) is
// admitted; everyone else observes the prior result or InProgress.
type Guard struct {
	repo  ports.IdempotencyRepository
	cache ports.IdempotencyCache
	log   zerolog.Logger
}

// NewIdempotencyGuard creates a new Guard.
func NewIdempotencyGuard(repo ports.IdempotencyRepository, cache ports.IdempotencyCache, log zerolog.Logger) *Guard {
	return &Guard{repo: repo, cache: cache, log: log}
}

// Begin performs the admission check for an operation reference.
func (g *Guard) Begin(ctx context.Context, kind domain.OperationKind, reference string) (*ports.Admission, error) {
	key := domain.BuildClaimKey(kind, reference)

	// Layer 1: Redis completed-result check
	cached, err := g.cache.Get(ctx, key)
	if err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return &ports.Admission{State: ports.AdmissionCompleted, Result: cached}, nil
	}

	// Layer 2: atomic claim on the DB table
	admitted, existing, err := g.repo.Claim(ctx, key, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	if admitted {
		return &ports.Admission{State: ports.AdmissionAdmitted}, nil
	}

	if existing.Status == domain.ClaimStatusCompleted {
		return &ports.Admission{State: ports.AdmissionCompleted, Result: existing.ResultJSON}, nil
	}
	return &ports.Admission{State: ports.AdmissionInProgress}, nil
}

// Complete records the committed result inside the guarded mutation's
// database transaction, so the claim flips atomically with the mutation.
func (g *Guard) Complete(ctx context.Context, tx pgx.Tx, kind domain.OperationKind, reference string, transactionID uuid.UUID, result []byte) error {
	key := domain.BuildClaimKey(kind, reference)
	if err := g.repo.Complete(ctx, tx, key, transactionID, result); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

// Release frees an admitted claim after the operation failed without side
// effects, so the caller may retry.
func (g *Guard) Release(ctx context.Context, kind domain.OperationKind, reference string) error {
	key := domain.BuildClaimKey(kind, reference)
	if err := g.repo.Release(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// Finish caches the committed result for the fast path. Best-effort.
func (g *Guard) Finish(ctx context.Context, kind domain.OperationKind, reference string, result []byte) {
	key := domain.BuildClaimKey(kind, reference)
	if err := g.cache.Set(ctx, key, result, idempotencyCacheTTL); err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency result in redis")
	}
}
