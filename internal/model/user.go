package model

import "time"

// User is an account that owns tasks.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the authenticated caller resolved by the auth gate.
// TokenID and ExpiresAt describe the bearer token that proved it.
type Identity struct {
	UserID    string
	Email     string
	Name      string
	TokenID   string
	ExpiresAt time.Time
}

// IdentityFor builds an Identity for user from a verified token.
func IdentityFor(user *User, tokenID string, expiresAt time.Time) *Identity {
	return &Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		TokenID:   tokenID,
		ExpiresAt: expiresAt,
	}
}
