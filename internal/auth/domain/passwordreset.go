package domain

import "time"

// PasswordReset is a single-use reset grant. Only the fingerprint of the
// opaque token is stored; the plaintext travels to the user once via email.
type PasswordReset struct {
	ID        string
	UserID    string
	TokenHash string // base64url SHA-256 of the opaque token
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// RedeemableAt reports whether the grant is still unused and unexpired.
func (p PasswordReset) RedeemableAt(now time.Time) bool {
	return p.UsedAt == nil && now.Before(p.ExpiresAt)
}
