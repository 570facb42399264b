package domain

import "time"

type User struct {
	ID           string
	TenantID     string
	Username     string
	Email        string
	PasswordHash string // argon2 encoded
	Role         string
	Disabled     bool

	// Lockout state maintained by the credential verifier.
	FailedLogins int
	LockedUntil  *time.Time // nullable; in the past means "not locked"

	// MFA state. TOTPSecret is stored encrypted (AES-GCM, base64url).
	MFAEnabled  bool
	TOTPSecret  *string
	TOTPEnabled *time.Time // when TOTP enrollment was confirmed
	EmailOTP    bool
	SMSOTP      bool
	Phone       *string

	// Pending one-time code, shared by the email and SMS channels.
	OTPHash      *string // SHA-256 fingerprint of the code
	OTPExpiresAt *time.Time
	OTPAttempts  int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockedAt reports whether the account is locked out at the given instant.
func (u User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// MFAMethods lists the second-factor methods the user can complete a
// challenge with. Backup codes are always available once MFA is on.
func (u User) MFAMethods() []string {
	if !u.MFAEnabled {
		return nil
	}

	var methods []string
	if u.TOTPSecret != nil && u.TOTPEnabled != nil {
		methods = append(methods, MethodTOTP)
	}
	if u.EmailOTP {
		methods = append(methods, MethodEmailOTP)
	}
	if u.SMSOTP {
		methods = append(methods, MethodSMSOTP)
	}
	methods = append(methods, MethodBackupCode)
	return methods
}
