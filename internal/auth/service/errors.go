package service

import "errors"

// Sentinel errors returned across the auth services. The HTTP layer maps
// these onto status codes and stable error strings for clients.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountLocked      = errors.New("account_locked")
	ErrAccountDisabled    = errors.New("account_disabled")
	ErrUserExists         = errors.New("user_already_exists")

	ErrInvalidRefresh = errors.New("invalid_refresh_token")
	ErrReuseDetected  = errors.New("refresh_reuse_detected")

	// ErrInvalidCode covers every failed code check: wrong code, expired
	// code, and the guess that exhausts the attempt cap. A single error
	// keeps the response from leaking which condition tripped.
	ErrInvalidCode        = errors.New("invalid_code")
	ErrMFANotEnabled      = errors.New("mfa_not_enabled")
	ErrAlreadyEnrolled    = errors.New("mfa_already_enrolled")
	ErrChannelUnavailable = errors.New("otp_channel_unavailable")
	ErrResendCooldown     = errors.New("resend_cooldown")

	ErrInvalidOrExpiredToken = errors.New("invalid_or_expired_token")
)
