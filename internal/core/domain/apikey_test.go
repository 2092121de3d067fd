package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitPlaintextKey(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		wantKeyID string
		wantOK    bool
	}{
		{"valid key", "wsk_0123456789abcdef_deadbeefcafe", "0123456789abcdef", true},
		{"missing prefix", "0123456789abcdef_deadbeefcafe", "", false},
		{"wrong prefix", "sk_0123456789abcdef_deadbeefcafe", "", false},
		{"no secret separator", "wsk_0123456789abcdef", "", false},
		{"empty key id", "wsk__deadbeefcafe", "", false},
		{"empty secret", "wsk_0123456789abcdef_", "", false},
		{"empty string", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyID, secret, ok := SplitPlaintextKey(tt.plaintext)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKeyID, keyID)
			if tt.wantOK {
				assert.NotEmpty(t, secret)
			}
		})
	}
}

func TestFormatPlaintextKey_RoundTrip(t *testing.T) {
	plaintext := FormatPlaintextKey("abc123", "secret456")
	assert.Equal(t, "wsk_abc123_secret456", plaintext)

	keyID, secret, ok := SplitPlaintextKey(plaintext)
	require.True(t, ok)
	assert.Equal(t, "abc123", keyID)
	assert.Equal(t, "secret456", secret)
}

func TestKeyTTL_Duration(t *testing.T) {
	tests := []struct {
		ttl  KeyTTL
		want time.Duration
	}{
		{KeyTTLHour, time.Hour},
		{KeyTTLDay, 24 * time.Hour},
		{KeyTTLMonth, 30 * 24 * time.Hour},
		{KeyTTLYear, 365 * 24 * time.Hour},
	}
	for _, tt := range tests {
		d, err := tt.ttl.Duration()
		require.NoError(t, err)
		assert.Equal(t, tt.want, d)
	}

	_, err := KeyTTL("2W").Duration()
	assert.Error(t, err)
}

func TestAPIKey_IsActive(t *testing.T) {
	now := time.Now().UTC()
	key := &APIKey{ExpiresAt: now.Add(time.Hour)}

	assert.True(t, key.IsActive(now))

	key.Revoked = true
	assert.False(t, key.IsActive(now))

	key.Revoked = false
	assert.False(t, key.IsActive(now.Add(2*time.Hour)), "expired key is not active")
	assert.True(t, key.IsExpired(now.Add(2*time.Hour)))
}

func TestAPIKey_HasPermission(t *testing.T) {
	key := &APIKey{Permissions: []Permission{PermissionDeposit, PermissionRead}}

	assert.True(t, key.HasPermission(PermissionDeposit))
	assert.True(t, key.HasPermission(PermissionRead))
	assert.False(t, key.HasPermission(PermissionTransfer))
}

func TestValidPermission(t *testing.T) {
	assert.True(t, ValidPermission(PermissionDeposit))
	assert.True(t, ValidPermission(PermissionTransfer))
	assert.True(t, ValidPermission(PermissionRead))
	assert.False(t, ValidPermission(Permission("admin")))
	assert.False(t, ValidPermission(Permission("")))
}
