package sqlite

import (
	"context"
	"database/sql"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
)

type passwordResetsRepo struct {
	db dbtx
}

func (r *passwordResetsRepo) CreatePasswordReset(ctx context.Context, p domain.PasswordReset) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO password_resets (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.TokenHash, p.ExpiresAt, now(),
	)
	return mapConstraint(err)
}

func (r *passwordResetsRepo) GetPasswordResetByTokenHash(ctx context.Context, hash string) (domain.PasswordReset, error) {
	var (
		p      domain.PasswordReset
		usedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at
		FROM password_resets WHERE token_hash = ?`, hash,
	).Scan(&p.ID, &p.UserID, &p.TokenHash, &p.ExpiresAt, &usedAt, &p.CreatedAt)
	if err != nil {
		return domain.PasswordReset{}, mapNotFound(err)
	}

	p.UsedAt = mapNullTimePtr(usedAt)
	return p, nil
}

func (r *passwordResetsRepo) MarkPasswordResetUsed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE password_resets SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		now(), id,
	)
	return err
}

func (r *passwordResetsRepo) InvalidateUserPasswordResets(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE password_resets SET used_at = ? WHERE user_id = ? AND used_at IS NULL`,
		now(), userID,
	)
	return err
}

func (r *passwordResetsRepo) DeleteExpiredPasswordResets(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM password_resets WHERE expires_at <= ?`, now())
	return err
}
