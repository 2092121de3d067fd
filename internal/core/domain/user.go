package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account holder. Each user owns exactly one wallet.
type User struct {
	ID        uuid.UUID `json:"id"`
	GoogleID  string    `json:"-"` // Identity provider subject, never exposed
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Picture   *string   `json:"picture,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
