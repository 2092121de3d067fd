package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/internal/metrics"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// APIKeyServiceImpl implements ports.APIKeyService.
type APIKeyServiceImpl struct {
	keyRepo ports.APIKeyRepository
	hasher  ports.KeyHasher
	audit   ports.AuditService
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewAPIKeyService creates a new APIKeyServiceImpl.
func NewAPIKeyService(
	keyRepo ports.APIKeyRepository,
	hasher ports.KeyHasher,
	audit ports.AuditService,
	m *metrics.Metrics,
	log zerolog.Logger,
) *APIKeyServiceImpl {
	return &APIKeyServiceImpl{
		keyRepo: keyRepo,
		hasher:  hasher,
		audit:   audit,
		metrics: m,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create issues a new scoped key. The plaintext is returned once and never
// stored; only the Argon2id hash of the secret persists.
func (s *APIKeyServiceImpl) Create(ctx context.Context, req ports.CreateKeyRequest) (*ports.CreatedKey, error) {
	if len(req.Permissions) == 0 {
		return nil, apperror.Validation("at least one permission is required")
	}
	seen := make(map[domain.Permission]bool, len(req.Permissions))
	for _, p := range req.Permissions {
		if !domain.ValidPermission(p) {
			return nil, apperror.Validation(fmt.Sprintf("unknown permission %q", p))
		}
		if seen[p] {
			return nil, apperror.Validation(fmt.Sprintf("duplicate permission %q", p))
		}
		seen[p] = true
	}
	ttl, err := req.TTL.Duration()
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	now := s.now()
	active, err := s.keyRepo.CountActive(ctx, req.UserID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count active keys: %w", err))
	}
	if active >= domain.MaxActiveKeysPerUser {
		return nil, apperror.ErrKeyLimitExceeded(domain.MaxActiveKeysPerUser)
	}

	created, err := s.issue(ctx, req.UserID, req.Name, req.Permissions, ttl, nil)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditLog{
		UserID:       &req.UserID,
		Action:       domain.AuditActionKeyCreated,
		ResourceType: "api_key",
		ResourceID:   created.Key.ID.String(),
		Details:      fmt.Sprintf(`{"name":%q,"ttl":%q}`, req.Name, req.TTL),
		IPAddress:    req.ClientIP,
	})
	s.log.Info().
		Str("key_id", created.Key.KeyID).
		Str("user_id", req.UserID.String()).
		Msg("api key created")

	return created, nil
}

// Rollover retires an expired key and issues a successor with the same
// permissions. Active keys cannot be rolled over.
func (s *APIKeyServiceImpl) Rollover(ctx context.Context, userID, expiredKeyID uuid.UUID, ttl domain.KeyTTL, clientIP string) (*ports.CreatedKey, error) {
	ttlDuration, err := ttl.Duration()
	if err != nil {
		return nil, apperror.Validation(err.Error())
	}

	old, err := s.keyRepo.GetByID(ctx, expiredKeyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch key: %w", err))
	}
	if old == nil {
		return nil, apperror.ErrNotFound("API key")
	}
	if old.UserID != userID {
		return nil, apperror.ErrNotOwner()
	}
	if old.Revoked {
		return nil, apperror.ErrKeyRevoked()
	}

	now := s.now()
	if !old.IsExpired(now) {
		return nil, apperror.ErrKeyStillActive()
	}

	// The successor replaces the expired key, so it does not count against
	// the active cap.
	if err := s.keyRepo.SetRevoked(ctx, old.ID, true); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("retire expired key: %w", err))
	}

	created, err := s.issue(ctx, userID, old.Name, old.Permissions, ttlDuration, &old.ID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditLog{
		UserID:       &userID,
		Action:       domain.AuditActionKeyRolledOver,
		ResourceType: "api_key",
		ResourceID:   created.Key.ID.String(),
		Details:      fmt.Sprintf(`{"predecessor_id":%q,"ttl":%q}`, old.ID, ttl),
		IPAddress:    clientIP,
	})
	s.log.Info().
		Str("key_id", created.Key.KeyID).
		Str("predecessor", old.KeyID).
		Msg("api key rolled over")

	return created, nil
}

// Validate resolves a plaintext key to its record and checks it is usable.
// The secret comparison runs in constant time regardless of outcome.
func (s *APIKeyServiceImpl) Validate(ctx context.Context, plaintext string) (*domain.APIKey, error) {
	keyID, secret, ok := domain.SplitPlaintextKey(plaintext)
	if !ok {
		s.metrics.APIKeyValidations.WithLabelValues("malformed").Inc()
		return nil, apperror.ErrInvalidKey()
	}

	key, err := s.keyRepo.GetByKeyID(ctx, keyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lookup key: %w", err))
	}
	if key == nil {
		s.metrics.APIKeyValidations.WithLabelValues("unknown").Inc()
		return nil, apperror.ErrInvalidKey()
	}

	match, err := s.hasher.Verify(secret, key.SecretHash)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("verify secret: %w", err))
	}
	if !match {
		s.metrics.APIKeyValidations.WithLabelValues("bad_secret").Inc()
		return nil, apperror.ErrInvalidKey()
	}
	if key.Revoked {
		s.metrics.APIKeyValidations.WithLabelValues("revoked").Inc()
		return nil, apperror.ErrKeyRevoked()
	}
	if key.IsExpired(s.now()) {
		s.metrics.APIKeyValidations.WithLabelValues("expired").Inc()
		return nil, apperror.ErrKeyExpired()
	}

	s.metrics.APIKeyValidations.WithLabelValues("ok").Inc()
	return key, nil
}

// Authorize checks the validated key grants the required permission.
func (s *APIKeyServiceImpl) Authorize(key *domain.APIKey, required domain.Permission) error {
	if !key.HasPermission(required) {
		return apperror.ErrPermissionDenied(string(required))
	}
	return nil
}

// Revoke permanently disables a key. The record is kept for audit.
func (s *APIKeyServiceImpl) Revoke(ctx context.Context, userID, keyID uuid.UUID, clientIP string) error {
	key, err := s.keyRepo.GetByID(ctx, keyID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("fetch key: %w", err))
	}
	if key == nil {
		return apperror.ErrNotFound("API key")
	}
	if key.UserID != userID {
		return apperror.ErrNotOwner()
	}
	if key.Revoked {
		return apperror.ErrKeyRevoked()
	}

	if err := s.keyRepo.SetRevoked(ctx, key.ID, false); err != nil {
		return apperror.InternalError(fmt.Errorf("revoke key: %w", err))
	}

	s.audit.Record(ctx, domain.AuditLog{
		UserID:       &userID,
		Action:       domain.AuditActionKeyRevoked,
		ResourceType: "api_key",
		ResourceID:   key.ID.String(),
		IPAddress:    clientIP,
	})
	s.log.Info().Str("key_id", key.KeyID).Msg("api key revoked")
	return nil
}

// List returns all keys ever issued to the user, including revoked and
// expired ones.
func (s *APIKeyServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	keys, err := s.keyRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list keys: %w", err))
	}
	return keys, nil
}

// issue generates, hashes, and persists a new key.
func (s *APIKeyServiceImpl) issue(ctx context.Context, userID uuid.UUID, name string, permissions []domain.Permission, ttl time.Duration, predecessorID *uuid.UUID) (*ports.CreatedKey, error) {
	keyID, err := randomHex(8)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate key id: %w", err))
	}
	secret, err := randomHex(32)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate secret: %w", err))
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash secret: %w", err))
	}

	now := s.now()
	key := &domain.APIKey{
		ID:            uuid.New(),
		UserID:        userID,
		Name:          name,
		KeyID:         keyID,
		SecretHash:    hash,
		Permissions:   append([]domain.Permission(nil), permissions...),
		ExpiresAt:     now.Add(ttl),
		PredecessorID: predecessorID,
		CreatedAt:     now,
	}
	if err := s.keyRepo.Create(ctx, key); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("store key: %w", err))
	}

	return &ports.CreatedKey{
		Key:       key,
		Plaintext: domain.FormatPlaintextKey(keyID, secret),
	}, nil
}

// randomHex returns n random bytes hex-encoded (2n characters).
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
