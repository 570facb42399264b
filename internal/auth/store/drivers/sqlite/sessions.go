package sqlite

import (
	"context"
	"database/sql"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
)

type sessionsRepo struct {
	db dbtx
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, current_jti, ip, user_agent, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.CurrentJTI, s.IP, s.UserAgent, s.ExpiresAt, ts, ts,
	)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	var (
		s         domain.Session
		revokedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, current_jti, ip, user_agent, expires_at, revoked_at, created_at, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.CurrentJTI, &s.IP, &s.UserAgent, &s.ExpiresAt, &revokedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}

	s.RevokedAt = mapNullTimePtr(revokedAt)
	return s, nil
}

// AdvanceRefreshPointer is the compare-and-swap at the heart of refresh
// rotation. The WHERE clause only matches when the presented jti is still
// the live pointer and the session hasn't been revoked or expired, so two
// concurrent redemptions of the same token can never both win.
func (r *sessionsRepo) AdvanceRefreshPointer(ctx context.Context, sessionID, fromJTI, toJTI string) (bool, error) {
	ts := now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET current_jti = ?, updated_at = ?
		WHERE id = ? AND current_jti = ? AND revoked_at IS NULL AND expires_at > ?`,
		toJTI, ts, sessionID, fromJTI, ts,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *sessionsRepo) RevokeSession(ctx context.Context, sessionID string) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE id = ? AND revoked_at IS NULL`,
		ts, ts, sessionID,
	)
	return err
}

func (r *sessionsRepo) RevokeAllUserSessions(ctx context.Context, userID string) error {
	ts := now()
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ?, updated_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		ts, ts, userID,
	)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, now())
	return err
}
