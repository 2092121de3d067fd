package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKeyRepo implements ports.APIKeyRepository. Permissions are stored as
// a JSON array; keys are never deleted.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

const apiKeyColumns = `id, user_id, name, key_id, secret_hash, permissions,
		expires_at, revoked, rolled_over, predecessor_id, created_at`

// Create inserts a new API key.
func (r *APIKeyRepo) Create(ctx context.Context, k *domain.APIKey) error {
	perms, err := json.Marshal(k.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}

	query := `INSERT INTO api_keys (id, user_id, name, key_id, secret_hash, permissions,
		expires_at, revoked, rolled_over, predecessor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.pool.Exec(ctx, query,
		k.ID, k.UserID, k.Name, k.KeyID, k.SecretHash, perms,
		k.ExpiresAt, k.Revoked, k.RolledOver, k.PredecessorID, k.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetByID fetches a key by UUID.
func (r *APIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	return scanAPIKey(r.pool.QueryRow(ctx, query, id))
}

// GetByKeyID fetches a key by its public lookup handle.
func (r *APIKeyRepo) GetByKeyID(ctx context.Context, keyID string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_id = $1`

	return scanAPIKey(r.pool.QueryRow(ctx, query, keyID))
}

// CountActive counts a user's non-revoked, non-expired keys at the given
// time. Rolled-over predecessors carry the revoked flag and never count.
func (r *APIKeyRepo) CountActive(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM api_keys
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("count active api keys: %w", err)
	}
	return count, nil
}

// ListByUser returns all of a user's keys, newest first, including
// expired and revoked ones (audit trail).
func (r *APIKeyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		var perms []byte
		k := domain.APIKey{}
		err := rows.Scan(
			&k.ID, &k.UserID, &k.Name, &k.KeyID, &k.SecretHash, &perms,
			&k.ExpiresAt, &k.Revoked, &k.RolledOver, &k.PredecessorID, &k.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		if err := json.Unmarshal(perms, &k.Permissions); err != nil {
			return nil, fmt.Errorf("unmarshal permissions: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}

	return keys, nil
}

// SetRevoked flips a key's revoked flag, optionally marking it rolled over.
func (r *APIKeyRepo) SetRevoked(ctx context.Context, id uuid.UUID, rolledOver bool) error {
	query := `UPDATE api_keys SET revoked = TRUE, rolled_over = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, rolledOver, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var perms []byte
	k := &domain.APIKey{}
	err := row.Scan(
		&k.ID, &k.UserID, &k.Name, &k.KeyID, &k.SecretHash, &perms,
		&k.ExpiresAt, &k.Revoked, &k.RolledOver, &k.PredecessorID, &k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	if err := json.Unmarshal(perms, &k.Permissions); err != nil {
		return nil, fmt.Errorf("unmarshal permissions: %w", err)
	}
	return k, nil
}
