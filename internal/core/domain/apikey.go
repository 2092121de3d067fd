package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Permission is a capability an API key grants.
type Permission string

const (
	PermissionDeposit  Permission = "deposit"
	PermissionTransfer Permission = "transfer"
	PermissionRead     Permission = "read"
)

// ValidPermission reports whether p is one of the known permissions.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionDeposit, PermissionTransfer, PermissionRead:
		return true
	}
	return false
}

// KeyTTL is one of the fixed expiry windows an API key can be issued with.
type KeyTTL string

const (
	KeyTTLHour  KeyTTL = "1H"
	KeyTTLDay   KeyTTL = "1D"
	KeyTTLMonth KeyTTL = "1M"
	KeyTTLYear  KeyTTL = "1Y"
)

// Duration converts the TTL token to a time.Duration.
func (t KeyTTL) Duration() (time.Duration, error) {
	switch t {
	case KeyTTLHour:
		return time.Hour, nil
	case KeyTTLDay:
		return 24 * time.Hour, nil
	case KeyTTLMonth:
		return 30 * 24 * time.Hour, nil
	case KeyTTLYear:
		return 365 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("invalid ttl %q: must be one of 1H, 1D, 1M, 1Y", string(t))
}

// MaxActiveKeysPerUser caps non-expired, non-revoked keys per user.
const MaxActiveKeysPerUser = 5

// KeyPrefix is the prefix of every plaintext API key.
const KeyPrefix = "wsk_"

// APIKey is a scoped credential. The secret is stored as a one-way hash;
// the plaintext form "wsk_<key_id>_<secret>" is shown once at issue time.
// Keys are never deleted, only revoked or rolled over (kept for audit).
type APIKey struct {
	ID            uuid.UUID    `json:"id"`
	UserID        uuid.UUID    `json:"user_id"`
	Name          string       `json:"name"`
	KeyID         string       `json:"key_id"` // Public lookup handle
	SecretHash    string       `json:"-"`
	Permissions   []Permission `json:"permissions"`
	ExpiresAt     time.Time    `json:"expires_at"`
	Revoked       bool         `json:"revoked"`
	RolledOver    bool         `json:"rolled_over"`
	PredecessorID *uuid.UUID   `json:"predecessor_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// IsExpired evaluates expiry lazily against now. Expiry is derived state,
// not a scheduled transition.
func (k *APIKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}

// IsActive returns true if the key passes validation at the given time.
func (k *APIKey) IsActive(now time.Time) bool {
	return !k.Revoked && !k.IsExpired(now)
}

// HasPermission reports whether the key grants the given permission.
func (k *APIKey) HasPermission(p Permission) bool {
	for _, held := range k.Permissions {
		if held == p {
			return true
		}
	}
	return false
}

// SplitPlaintextKey parses "wsk_<key_id>_<secret>" into its parts.
func SplitPlaintextKey(plaintext string) (keyID, secret string, ok bool) {
	if !strings.HasPrefix(plaintext, KeyPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(plaintext, KeyPrefix)
	keyID, secret, ok = strings.Cut(rest, "_")
	if !ok || keyID == "" || secret == "" {
		return "", "", false
	}
	return keyID, secret, true
}

// FormatPlaintextKey builds the shown-once plaintext key.
func FormatPlaintextKey(keyID, secret string) string {
	return KeyPrefix + keyID + "_" + secret
}
