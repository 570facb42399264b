package service

import (
	"context"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/jwtx"
)

// TokenService mints and checks the three token classes. Access and refresh
// tokens are signed with independent secrets, so a leak of one signing key
// never lets an attacker forge the other class. MFA challenge tokens ride on
// the access secret but carry a stage marker that AuthnMiddleware rejects.
type TokenService struct {
	Access  *jwtx.HS256 // access + MFA challenge tokens
	Refresh *jwtx.HS256 // refresh tokens only

	Issuer   string
	Audience []string

	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	MFAChallengeTTL time.Duration
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

func (s *TokenService) challengeTTL() time.Duration {
	if s.MFAChallengeTTL > 0 {
		return s.MFAChallengeTTL
	}
	return jwtx.DefaultMFAChallengeTTL
}

// IssuePair mints a matched access/refresh token pair for a session. jti
// must be the session's current refresh pointer.
func (s *TokenService) IssuePair(_ context.Context, user domain.User, sid, jti string, mfaSatisfied bool) (domain.TokenPair, error) {
	now := time.Now().UTC()

	access, err := s.Access.Sign(jwtx.NewAccessClaims(
		user.ID, sid, user.Role, user.TenantID, mfaSatisfied,
		s.accessTTL(), s.Issuer, s.Audience, now,
	))
	if err != nil {
		return domain.TokenPair{}, err
	}

	refresh, err := s.Refresh.Sign(jwtx.NewRefreshClaims(
		user.ID, sid, jti,
		s.refreshTTL(), s.Issuer, s.Audience, now,
	))
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL().Seconds()),
	}, nil
}

// MintMFAChallenge issues the short-lived bridge token meaning "password
// accepted, second factor pending".
func (s *TokenService) MintMFAChallenge(_ context.Context, userID string) (string, error) {
	now := time.Now().UTC()
	return s.Access.Sign(jwtx.NewMFAChallengeClaims(
		userID, s.challengeTTL(), s.Issuer, s.Audience, now,
	))
}

// VerifyRefresh validates a presented refresh token. Any verification
// failure, including a token of the wrong class, comes back as
// ErrInvalidRefresh so callers can't distinguish forged from expired.
func (s *TokenService) VerifyRefresh(raw string) (jwtx.Claims, error) {
	claims, err := s.Refresh.Verify(raw)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidRefresh
	}
	if claims.Use != jwtx.UseRefresh || claims.SID == "" || claims.ID == "" {
		return jwtx.Claims{}, ErrInvalidRefresh
	}
	return claims, nil
}

// VerifyMFAChallenge validates a bridge token and returns the subject it
// vouches for.
func (s *TokenService) VerifyMFAChallenge(raw string) (jwtx.Claims, error) {
	claims, err := s.Access.Verify(raw)
	if err != nil {
		return jwtx.Claims{}, ErrInvalidOrExpiredToken
	}
	if claims.Stage != jwtx.StageMFA {
		return jwtx.Claims{}, ErrInvalidOrExpiredToken
	}
	return claims, nil
}
