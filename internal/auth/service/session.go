package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/idx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/slogx"
)

// SessionService owns refresh-token families: creation, rotation with reuse
// detection, and revocation.
type SessionService struct {
	Store      store.Store
	RefreshTTL time.Duration
}

// Start creates a new session family for a user and returns it together
// with the jti its first refresh token must carry.
func (s *SessionService) Start(ctx context.Context, userID, ip, userAgent string) (domain.Session, error) {
	sess := domain.Session{
		ID:         idx.New().String(),
		UserID:     userID,
		CurrentJTI: idx.New().String(),
		IP:         ip,
		UserAgent:  userAgent,
		ExpiresAt:  time.Now().UTC().Add(s.RefreshTTL),
	}

	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// Rotate redeems a refresh token: the presented jti must be the session's
// live pointer, and rotation atomically moves the pointer to a fresh jti.
//
// A pointer mismatch means the presented token was already spent. That is
// the reuse signal, and the response is fail-closed: the entire family is
// revoked before the error is returned, so neither the original holder nor
// the thief can refresh again.
func (s *SessionService) Rotate(ctx context.Context, sessionID, presentedJTI string) (domain.Session, string, error) {
	l := slogx.FromContext(ctx)

	sess, err := s.Store.Sessions().GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, "", ErrInvalidRefresh
		}
		return domain.Session{}, "", err
	}

	if !sess.ActiveAt(time.Now().UTC()) {
		return domain.Session{}, "", ErrInvalidRefresh
	}

	newJTI := idx.New().String()
	ok, err := s.Store.Sessions().AdvanceRefreshPointer(ctx, sessionID, presentedJTI, newJTI)
	if err != nil {
		return domain.Session{}, "", err
	}
	if !ok {
		// A concurrent rotation may have just won with the same jti; either
		// way the presented token is no longer the live pointer.
		if err := s.Store.Sessions().RevokeSession(ctx, sessionID); err != nil {
			return domain.Session{}, "", err
		}
		l.Warn("refresh token reuse detected, session family revoked",
			slog.String("session_id", sessionID),
			slog.String("user_id", sess.UserID),
		)
		return domain.Session{}, "", ErrReuseDetected
	}

	sess.CurrentJTI = newJTI
	return sess, newJTI, nil
}

// Revoke ends one session. Unknown sessions are treated as already revoked.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	return s.Store.Sessions().RevokeSession(ctx, sessionID)
}

// RevokeAllForUser ends every live session a user has, used after password
// resets and MFA disablement.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.Store.Sessions().RevokeAllUserSessions(ctx, userID)
}
