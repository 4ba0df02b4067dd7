package auth

import "time"

// User is an account allowed to edit maps through the REST API.
// Admins can also manage tile definitions.
type User struct {
	ID           uint64    `json:"id"`
	Username     string    `json:"username"` // unique, case-insensitive
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login"`
	IsAdmin      bool      `json:"is_admin"`
}
