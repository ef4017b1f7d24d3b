package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a registered user account. Guests have no account; they
// receive a short-lived token and a synthetic identity instead.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
