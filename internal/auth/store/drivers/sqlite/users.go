package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, tenant_id, username, email, password_hash, role, disabled,
	failed_logins, locked_until,
	mfa_enabled, totp_secret, totp_enabled, email_otp, sms_otp, phone,
	otp_hash, otp_expires_at, otp_attempts,
	created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u            domain.User
		lockedUntil  sql.NullTime
		totpSecret   sql.NullString
		totpEnabled  sql.NullTime
		phone        sql.NullString
		otpHash      sql.NullString
		otpExpiresAt sql.NullTime
	)

	err := row.Scan(
		&u.ID, &u.TenantID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.Disabled,
		&u.FailedLogins, &lockedUntil,
		&u.MFAEnabled, &totpSecret, &totpEnabled, &u.EmailOTP, &u.SMSOTP, &phone,
		&otpHash, &otpExpiresAt, &u.OTPAttempts,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.LockedUntil = mapNullTimePtr(lockedUntil)
	u.TOTPSecret = mapNullStringPtr(totpSecret)
	u.TOTPEnabled = mapNullTimePtr(totpEnabled)
	u.Phone = mapNullStringPtr(phone)
	u.OTPHash = mapNullStringPtr(otpHash)
	u.OTPExpiresAt = mapNullTimePtr(otpExpiresAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, tenantID, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND username = ?`, tenantID, username)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND email = ?`, tenantID, email)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, username, email, password_hash, role, disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Username, u.Email, u.PasswordHash, u.Role, u.Disabled, ts, ts,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateLockout(ctx context.Context, userID string, failedLogins int, lockedUntil *time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET failed_logins = ?, locked_until = ?, updated_at = ? WHERE id = ?`,
		failedLogins, mapOptionalTime(lockedUntil), now(), userID,
	)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return r.exec(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, now(), userID,
	)
}

func (r *usersRepo) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	return r.exec(ctx, `
		UPDATE users SET disabled = ?, updated_at = ? WHERE id = ?`,
		disabled, now(), userID,
	)
}

func (r *usersRepo) SetPhone(ctx context.Context, userID, phone string) error {
	var value sql.NullString
	if phone != "" {
		value = sql.NullString{String: phone, Valid: true}
	}
	return r.exec(ctx, `
		UPDATE users SET phone = ?, updated_at = ? WHERE id = ?`,
		value, now(), userID,
	)
}

func (r *usersRepo) SetTOTPSecret(ctx context.Context, userID, encryptedSecret string) error {
	// A new secret invalidates any earlier confirmation.
	return r.exec(ctx, `
		UPDATE users SET totp_secret = ?, totp_enabled = NULL, updated_at = ? WHERE id = ?`,
		encryptedSecret, now(), userID,
	)
}

func (r *usersRepo) ConfirmTOTP(ctx context.Context, userID string) error {
	ts := now()
	return r.exec(ctx, `
		UPDATE users SET totp_enabled = ?, mfa_enabled = 1, updated_at = ? WHERE id = ?`,
		ts, ts, userID,
	)
}

func (r *usersRepo) SetOTPChannel(ctx context.Context, userID, method string, enabled bool) error {
	var column string
	switch method {
	case domain.MethodEmailOTP:
		column = "email_otp"
	case domain.MethodSMSOTP:
		column = "sms_otp"
	default:
		return fmt.Errorf("sqlite: unknown otp channel %q", method)
	}

	if enabled {
		// Turning a channel on makes the account MFA-enabled.
		return r.exec(ctx,
			`UPDATE users SET `+column+` = 1, mfa_enabled = 1, updated_at = ? WHERE id = ?`,
			now(), userID,
		)
	}
	return r.exec(ctx,
		`UPDATE users SET `+column+` = 0, updated_at = ? WHERE id = ?`,
		now(), userID,
	)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users SET
			mfa_enabled = 0, totp_secret = NULL, totp_enabled = NULL,
			email_otp = 0, sms_otp = 0,
			otp_hash = NULL, otp_expires_at = NULL, otp_attempts = 0,
			updated_at = ?
		WHERE id = ?`,
		now(), userID,
	)
}

func (r *usersRepo) SetPendingOTP(ctx context.Context, userID, codeHash string, expiresAt time.Time) error {
	return r.exec(ctx, `
		UPDATE users SET otp_hash = ?, otp_expires_at = ?, otp_attempts = 0, updated_at = ? WHERE id = ?`,
		codeHash, expiresAt, now(), userID,
	)
}

func (r *usersRepo) IncrementOTPAttempts(ctx context.Context, userID string) (int, error) {
	if err := r.exec(ctx, `
		UPDATE users SET otp_attempts = otp_attempts + 1, updated_at = ? WHERE id = ?`,
		now(), userID,
	); err != nil {
		return 0, err
	}

	var attempts int
	err := r.db.QueryRowContext(ctx,
		`SELECT otp_attempts FROM users WHERE id = ?`, userID).Scan(&attempts)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *usersRepo) ClearPendingOTP(ctx context.Context, userID string) error {
	return r.exec(ctx, `
		UPDATE users SET otp_hash = NULL, otp_expires_at = NULL, otp_attempts = 0, updated_at = ? WHERE id = ?`,
		now(), userID,
	)
}

// exec runs an UPDATE that must touch exactly one existing user.
func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
