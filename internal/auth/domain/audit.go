package domain

import "time"

// Audit actions recorded by the orchestrator. Kept as stable strings so log
// consumers can filter on them.
const (
	AuditLogin           = "auth.login"
	AuditLoginFailed     = "auth.login_failed"
	AuditAccountLocked   = "auth.account_locked"
	AuditMFAChallenge    = "auth.mfa_challenge"
	AuditMFACompleted    = "auth.mfa_completed"
	AuditMFAFailed       = "auth.mfa_failed"
	AuditMFAEnrolled     = "auth.mfa_enrolled"
	AuditMFADisabled     = "auth.mfa_disabled"
	AuditTokenRefreshed  = "auth.token_refreshed"
	AuditReuseDetected   = "auth.refresh_reuse_detected"
	AuditLogout          = "auth.logout"
	AuditRegistered      = "auth.registered"
	AuditResetRequested  = "auth.password_reset_requested"
	AuditResetCompleted  = "auth.password_reset_completed"
	AuditSessionsRevoked = "auth.sessions_revoked"
)

// AuditLog is one append-only security event.
type AuditLog struct {
	ID        string
	TenantID  string
	UserID    string // empty when the principal could not be resolved
	Action    string
	IP        string
	UserAgent string
	Detail    string // free-form context, e.g. the MFA method used
	CreatedAt time.Time
}
