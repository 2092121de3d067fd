package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// WalletNumberLength is the length of the public wallet number.
const WalletNumberLength = 13

// Wallet represents a user's currency wallet. Balance is stored in minor
// units (kobo) and is never negative at any committed state. Only the
// deposit reconciler and the transfer engine mutate it.
type Wallet struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	WalletNumber string    `json:"wallet_number"`
	Balance      int64     `json:"balance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// LockOrder returns the two wallet IDs in ascending byte order. Transfers
// lock both wallet rows in this order so two transfers touching the same
// pair in opposite directions cannot deadlock.
func LockOrder(a, b uuid.UUID) (first, second uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}
