package auth

import "errors"

// UserRepository stores editor accounts.
type UserRepository interface {
	// GetUserByUsername returns (nil, ErrUserNotFound) for unknown users.
	GetUserByUsername(username string) (*User, error)

	// CreateUser expects a bcrypt hash and returns ErrUserExists on conflict.
	CreateUser(username string, passwordHash string, isAdmin bool) (*User, error)

	GetUserByID(id uint64) (*User, error)

	// ValidateCredentials checks the password and records the login time.
	ValidateCredentials(username, password string) (*User, error)
}

// Domain-level errors returned by the repository.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
