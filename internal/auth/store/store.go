package store

import (
	"context"
	"errors"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today,
// postgres later) implement this. Sub-repositories keep concerns tidy and
// stop callers from accidentally nesting transactions.
type Store interface {
	Users() Users
	Sessions() Sessions
	PasswordResets() PasswordResets
	BackupCodes() BackupCodes
	AuditLogs() AuditLogs

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and rolling
	// back on error. Prefer this over Tx directly.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername looks a user up within a tenant. Usernames are only
	// unique per tenant.
	GetUserByUsername(ctx context.Context, tenantID, username string) (domain.User, error)

	// GetUserByEmail looks a user up within a tenant, for the reset flow.
	GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateLockout writes the failure counter and lock deadline together so
	// the two never drift apart.
	UpdateLockout(ctx context.Context, userID string, failedLogins int, lockedUntil *time.Time) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetDisabled flips the account's disabled flag.
	SetDisabled(ctx context.Context, userID string, disabled bool) error

	// SetPhone stores the destination for the SMS channel. An empty phone
	// clears it.
	SetPhone(ctx context.Context, userID, phone string) error

	// SetTOTPSecret stores the encrypted secret of a pending TOTP enrollment.
	SetTOTPSecret(ctx context.Context, userID, encryptedSecret string) error

	// ConfirmTOTP marks the pending TOTP enrollment as verified and enables MFA.
	ConfirmTOTP(ctx context.Context, userID string) error

	// SetOTPChannel turns an email/SMS delivery channel on or off and enables
	// MFA when a channel is turned on.
	SetOTPChannel(ctx context.Context, userID, method string, enabled bool) error

	// DisableMFA clears all second-factor state for a user.
	DisableMFA(ctx context.Context, userID string) error

	// SetPendingOTP stores the fingerprint of a freshly issued one-time code,
	// replacing any previous code and resetting the attempt counter.
	SetPendingOTP(ctx context.Context, userID, codeHash string, expiresAt time.Time) error

	// IncrementOTPAttempts bumps the failed-attempt counter for the pending
	// code and returns the new count.
	IncrementOTPAttempts(ctx context.Context, userID string) (int, error)

	// ClearPendingOTP drops the pending code after success or exhaustion.
	ClearPendingOTP(ctx context.Context, userID string) error
}

type Sessions interface {
	// CreateSession stores a new refresh-token family.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByID returns a session regardless of its revocation state;
	// callers decide how to treat revoked rows.
	GetSessionByID(ctx context.Context, id string) (domain.Session, error)

	// AdvanceRefreshPointer atomically moves current_jti from fromJTI to
	// toJTI. It returns false when the session was revoked, expired, or the
	// pointer did not match, which the caller must treat as token reuse.
	AdvanceRefreshPointer(ctx context.Context, sessionID, fromJTI, toJTI string) (bool, error)

	// RevokeSession marks one session revoked. Idempotent.
	RevokeSession(ctx context.Context, sessionID string) error

	// RevokeAllUserSessions revokes every live session for a user (password
	// reset, MFA disable, admin action).
	RevokeAllUserSessions(ctx context.Context, userID string) error

	// DeleteExpiredSessions is housekeeping.
	DeleteExpiredSessions(ctx context.Context) error
}

type PasswordResets interface {
	// CreatePasswordReset writes a new reset grant (token_hash is the
	// SHA-256 fingerprint of the opaque token).
	CreatePasswordReset(ctx context.Context, p domain.PasswordReset) error

	// GetPasswordResetByTokenHash returns a grant by fingerprint.
	GetPasswordResetByTokenHash(ctx context.Context, hash string) (domain.PasswordReset, error)

	// MarkPasswordResetUsed sets used_at; a used grant never redeems again.
	MarkPasswordResetUsed(ctx context.Context, id string) error

	// InvalidateUserPasswordResets marks all open grants for a user used,
	// so only the newest requested link works.
	InvalidateUserPasswordResets(ctx context.Context, userID string) error

	// DeleteExpiredPasswordResets is housekeeping.
	DeleteExpiredPasswordResets(ctx context.Context) error
}

type BackupCodes interface {
	// ReplaceBackupCodes swaps the full set of code hashes for a user.
	ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error

	// ConsumeBackupCode deletes the matching code and reports whether it
	// existed. Single use is enforced by the delete.
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)

	// DeleteAllBackupCodes removes all backup codes for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUserBackupCodes returns the number of unused codes left.
	CountUserBackupCodes(ctx context.Context, userID string) (int, error)
}

type AuditLogs interface {
	// CreateAuditLog appends one security event.
	CreateAuditLog(ctx context.Context, e domain.AuditLog) error

	// ListUserAuditLogs returns a user's newest events first, capped at limit.
	ListUserAuditLogs(ctx context.Context, userID string, limit int) ([]domain.AuditLog, error)

	// DeleteAuditLogsBefore trims events older than the cutoff.
	DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) error
}
