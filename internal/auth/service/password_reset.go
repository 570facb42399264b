package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/cryptox"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/idx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/mailx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/slogx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/ttlstore"
)

const (
	// DefaultResetTokenTTL is how long a reset link stays valid.
	DefaultResetTokenTTL = time.Hour

	// DefaultResetRequestCooldown throttles repeat requests per account.
	DefaultResetRequestCooldown = 60 * time.Second
)

// PasswordResetService implements the forgot/reset flow. Only the SHA-256
// fingerprint of the opaque token is stored, the plaintext goes to the user
// once by email, and each grant redeems at most once.
type PasswordResetService struct {
	Store store.Store
	Mail  mailx.Sender

	// Cooldowns throttles how often one account can request a link.
	Cooldowns ttlstore.Store

	// ResetURL is the base the emailed link points at; the token is
	// appended as a query parameter.
	ResetURL string

	TokenTTL        time.Duration
	RequestCooldown time.Duration
}

func (s *PasswordResetService) tokenTTL() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return DefaultResetTokenTTL
}

func (s *PasswordResetService) requestCooldown() time.Duration {
	if s.RequestCooldown > 0 {
		return s.RequestCooldown
	}
	return DefaultResetRequestCooldown
}

// Request starts the flow for an email address. It always reports success
// to the caller: whether the address exists, is throttled, or the mail
// bounced is never revealed, to keep account enumeration off the table.
func (s *PasswordResetService) Request(ctx context.Context, tenantID, email string) {
	l := slogx.FromContext(ctx)
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.Store.Users().GetUserByEmail(ctx, tenantID, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.Error("password reset lookup failed", slog.Any("error", err))
		}
		return
	}
	if user.Disabled {
		return
	}

	ok, err := s.Cooldowns.Acquire(ctx, "reset:"+user.ID, s.requestCooldown())
	if err != nil || !ok {
		return
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		l.Error("failed to generate reset token", slog.Any("error", err))
		return
	}

	grant := domain.PasswordReset{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintToken(token),
		ExpiresAt: time.Now().UTC().Add(s.tokenTTL()),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// Only the newest requested link should work.
		if err := tx.PasswordResets().InvalidateUserPasswordResets(ctx, user.ID); err != nil {
			return err
		}
		return tx.PasswordResets().CreatePasswordReset(ctx, grant)
	})
	if err != nil {
		l.Error("failed to store reset grant", slog.Any("error", err))
		return
	}

	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\nReset link: %s?token=%s\n\nThe link expires in %d minutes. If you did not request this, you can ignore this message.",
		s.ResetURL, token, int(s.tokenTTL().Minutes()),
	)
	if err := s.Mail.Send(ctx, user.Email, "Password reset", body); err != nil {
		l.Error("failed to send reset email", slog.Any("error", err))
		return
	}

	l.Info("password reset link issued", slog.String("user_id", user.ID))
}

// Reset redeems a token and sets the new password. On success the grant is
// burned, the lockout counter cleared, and every session revoked so a
// stolen refresh token doesn't outlive the compromise.
func (s *PasswordResetService) Reset(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	grant, err := s.Store.PasswordResets().GetPasswordResetByTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}

	if !grant.RedeemableAt(time.Now().UTC()) {
		return ErrInvalidOrExpiredToken
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.PasswordResets().MarkPasswordResetUsed(ctx, grant.ID); err != nil {
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, grant.UserID, hash); err != nil {
			return err
		}
		if err := tx.Users().UpdateLockout(ctx, grant.UserID, 0, nil); err != nil {
			return err
		}
		return tx.Sessions().RevokeAllUserSessions(ctx, grant.UserID)
	})
	if err != nil {
		return err
	}

	s.auditReset(ctx, grant.UserID, meta)
	return nil
}

func (s *PasswordResetService) auditReset(ctx context.Context, userID string, meta RequestMeta) {
	err := s.Store.AuditLogs().CreateAuditLog(ctx, domain.AuditLog{
		ID:        idx.New().String(),
		UserID:    userID,
		Action:    domain.AuditResetCompleted,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to write audit log", slog.Any("error", err))
	}
}
