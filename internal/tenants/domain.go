package tenants

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// UserClient is one tenant account. Every domain row carries its id as
// the isolation key.
type UserClient struct {
	ID           uuid.UUID
	Username     string
	BusinessName string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	// ErrNotFound indicates a missing tenant account.
	ErrNotFound = errors.New("tenants: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("tenants: validation failed")
	// ErrDuplicateUsername indicates a username collision.
	ErrDuplicateUsername = errors.New("tenants: username already taken")
	// ErrInvalidCredentials indicates a failed authentication attempt. The
	// same error covers unknown usernames and wrong passwords.
	ErrInvalidCredentials = errors.New("tenants: invalid credentials")
)
