package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/cryptox"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/idx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/slogx"
)

// RequestMeta carries the caller's network identity into audit records and
// session rows.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// LoginResult is either a token pair (single-factor account) or an MFA
// challenge (the password was right but a second factor is pending).
type LoginResult struct {
	Pair      *domain.TokenPair
	Challenge *domain.MFAChallengeResponse

	// User is set when Pair is.
	User domain.User
}

// AuthService is the orchestrator: it strings the credential check, MFA
// engine, session store and token issuer together into the public flows.
type AuthService struct {
	Store       store.Store
	Credentials *CredentialService
	MFA         *MFAService
	OTP         *OTPService
	Tokens      *TokenService
	Sessions    *SessionService
}

// Register creates a new account in a tenant. The first factor is a
// password; everything else is enrolled later.
func (s *AuthService) Register(ctx context.Context, tenantID, username, email, password string, meta RequestMeta) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:           idx.New().String(),
		TenantID:     tenantID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         "user",
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, err
	}

	s.audit(ctx, user, domain.AuditRegistered, meta, "")
	return user, nil
}

// Login runs the password check and then branches: accounts without MFA get
// a session and tokens immediately, accounts with MFA get a short-lived
// challenge token and the list of methods they can answer it with.
func (s *AuthService) Login(ctx context.Context, tenantID, username, password string, meta RequestMeta) (LoginResult, error) {
	l := slogx.FromContext(ctx)

	user, err := s.Credentials.VerifyPassword(ctx, tenantID, username, password)
	if err != nil {
		s.auditFailure(ctx, tenantID, username, err, meta)
		return LoginResult{}, err
	}

	if user.MFAEnabled {
		challenge, err := s.Tokens.MintMFAChallenge(ctx, user.ID)
		if err != nil {
			return LoginResult{}, err
		}

		s.audit(ctx, user, domain.AuditMFAChallenge, meta, "")
		return LoginResult{Challenge: &domain.MFAChallengeResponse{
			MFARequired: true,
			MFAToken:    challenge,
			Methods:     user.MFAMethods(),
		}}, nil
	}

	pair, err := s.startSession(ctx, user, false, meta)
	if err != nil {
		return LoginResult{}, err
	}

	l.Info("login succeeded", slog.String("user_id", user.ID))
	s.audit(ctx, user, domain.AuditLogin, meta, "password")
	return LoginResult{Pair: &pair, User: user}, nil
}

// SendLoginOTP delivers a one-time code mid-login. The challenge token from
// Login authorizes the send; the chosen channel must be enrolled.
func (s *AuthService) SendLoginOTP(ctx context.Context, mfaToken, method string) error {
	user, err := s.challengedUser(ctx, mfaToken)
	if err != nil {
		return err
	}

	switch method {
	case domain.MethodEmailOTP:
		if !user.EmailOTP {
			return ErrChannelUnavailable
		}
	case domain.MethodSMSOTP:
		if !user.SMSOTP {
			return ErrChannelUnavailable
		}
	default:
		return ErrChannelUnavailable
	}

	return s.OTP.Send(ctx, user, method)
}

// CompleteMFALogin answers a pending challenge with one of the enrolled
// second factors and, on success, issues the session and token pair the
// password check deferred.
func (s *AuthService) CompleteMFALogin(ctx context.Context, mfaToken, method, code string, meta RequestMeta) (domain.TokenPair, error) {
	user, err := s.challengedUser(ctx, mfaToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	switch method {
	case domain.MethodTOTP:
		err = s.MFA.VerifyTOTP(ctx, user, code)
	case domain.MethodBackupCode:
		err = s.MFA.ConsumeBackupCode(ctx, user, code)
	case domain.MethodEmailOTP, domain.MethodSMSOTP:
		err = s.OTP.Verify(ctx, user, code)
	default:
		err = ErrInvalidCode
	}
	if err != nil {
		s.audit(ctx, user, domain.AuditMFAFailed, meta, method)
		return domain.TokenPair{}, err
	}

	pair, err := s.startSession(ctx, user, true, meta)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.audit(ctx, user, domain.AuditMFACompleted, meta, method)
	return pair, nil
}

// Refresh rotates a refresh token and mints a fresh pair. Reuse of a spent
// token revokes the whole session family before the error surfaces.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string, meta RequestMeta) (domain.TokenPair, error) {
	claims, err := s.Tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}

	sess, newJTI, err := s.Sessions.Rotate(ctx, claims.SID, claims.ID)
	if err != nil {
		if errors.Is(err, ErrReuseDetected) {
			s.auditByID(ctx, claims.Subject, domain.AuditReuseDetected, meta, claims.SID)
		}
		return domain.TokenPair{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, sess.UserID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if user.Disabled {
		_ = s.Sessions.Revoke(ctx, sess.ID)
		return domain.TokenPair{}, ErrAccountDisabled
	}

	pair, err := s.Tokens.IssuePair(ctx, user, sess.ID, newJTI, user.MFAEnabled)
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.audit(ctx, user, domain.AuditTokenRefreshed, meta, "")
	return pair, nil
}

// Logout revokes the session a refresh token belongs to. An invalid or
// already-revoked token still logs the caller out, so the call is
// idempotent and never leaks token state.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string, meta RequestMeta) error {
	claims, err := s.Tokens.VerifyRefresh(rawRefresh)
	if err != nil {
		return nil
	}

	if err := s.Sessions.Revoke(ctx, claims.SID); err != nil {
		return err
	}

	s.auditByID(ctx, claims.Subject, domain.AuditLogout, meta, claims.SID)
	return nil
}

// Me returns the caller's own account record.
func (s *AuthService) Me(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// RevokeAllSessions force-logs a user out everywhere.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string, meta RequestMeta) error {
	if err := s.Sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	s.auditByID(ctx, userID, domain.AuditSessionsRevoked, meta, "")
	return nil
}

// startSession creates a session family and mints its first token pair.
func (s *AuthService) startSession(ctx context.Context, user domain.User, mfaSatisfied bool, meta RequestMeta) (domain.TokenPair, error) {
	sess, err := s.Sessions.Start(ctx, user.ID, meta.IP, meta.UserAgent)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return s.Tokens.IssuePair(ctx, user, sess.ID, sess.CurrentJTI, mfaSatisfied)
}

// challengedUser resolves the subject of a valid MFA challenge token.
func (s *AuthService) challengedUser(ctx context.Context, mfaToken string) (domain.User, error) {
	claims, err := s.Tokens.VerifyMFAChallenge(mfaToken)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrInvalidOrExpiredToken
		}
		return domain.User{}, err
	}
	if user.Disabled {
		return domain.User{}, ErrAccountDisabled
	}
	return user, nil
}

// audit writes a best-effort security event; failures are logged, never
// surfaced to the user.
func (s *AuthService) audit(ctx context.Context, user domain.User, action string, meta RequestMeta, detail string) {
	s.writeAudit(ctx, user.TenantID, user.ID, action, meta, detail)
}

func (s *AuthService) auditByID(ctx context.Context, userID, action string, meta RequestMeta, detail string) {
	s.writeAudit(ctx, "", userID, action, meta, detail)
}

func (s *AuthService) auditFailure(ctx context.Context, tenantID, username string, cause error, meta RequestMeta) {
	action := domain.AuditLoginFailed
	if errors.Is(cause, ErrAccountLocked) {
		action = domain.AuditAccountLocked
	}
	s.writeAudit(ctx, tenantID, "", action, meta, username)
}

func (s *AuthService) writeAudit(ctx context.Context, tenantID, userID, action string, meta RequestMeta, detail string) {
	err := s.Store.AuditLogs().CreateAuditLog(ctx, domain.AuditLog{
		ID:        idx.New().String(),
		TenantID:  tenantID,
		UserID:    userID,
		Action:    action,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Detail:    detail,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("failed to write audit log",
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}
