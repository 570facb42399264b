package domain

import "time"

// Session is a refresh-token family. Its ID is the sid claim carried by both
// token classes, and CurrentJTI points at the only refresh token in the
// family that is still redeemable. Presenting any other jti for this session
// is treated as token reuse and revokes the whole family.
type Session struct {
	ID         string
	UserID     string
	CurrentJTI string
	IP         string
	UserAgent  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ActiveAt reports whether the session can still mint tokens at the given
// instant.
func (s Session) ActiveAt(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
