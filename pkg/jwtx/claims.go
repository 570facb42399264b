package jwtx

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants. These provide sensible security defaults but
// are overridden from config in practice.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	// Short-lived for security - typical range is 15m to 1h.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	// Longer-lived for user convenience - typical range is 7d to 30d.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultMFAChallengeTTL is the default lifetime for the short-lived
	// token that bridges the password check and the MFA verification call.
	DefaultMFAChallengeTTL = 5 * time.Minute
)

// UseRefresh marks refresh tokens so they can never pass as access tokens
// even if the signing secrets were ever unified by misconfiguration.
const UseRefresh = "refresh"

// StageMFA marks the bridge token asserting "password accepted, MFA pending".
const StageMFA = "mfa"

// Claims are the token claims used across the service. Access, refresh and
// MFA-challenge tokens share the struct; the optional fields distinguish them.
type Claims struct {
	jwt.RegisteredClaims

	// SID is the session family identifier, stable across refreshes.
	SID string `json:"sid,omitempty"`

	// Role is the principal's role string ("user", "manager", ...).
	// Access tokens only.
	Role string `json:"role,omitempty"`

	// MFA reports whether multi-factor auth was satisfied for this session.
	// Access tokens only.
	MFA bool `json:"mfa,omitempty"`

	// TenantID scopes the principal to a tenant. Access tokens only.
	TenantID string `json:"tid,omitempty"`

	// Use is "refresh" on refresh tokens. The jti (RegisteredClaims.ID) of a
	// refresh token is the rotation pointer checked against the session.
	Use string `json:"use,omitempty"`

	// Stage is "mfa" on MFA-challenge bridge tokens.
	Stage string `json:"stage,omitempty"`
}

// NewAccessClaims builds claims for a short-lived access token.
func NewAccessClaims(
	subject, sid, role, tenantID string,
	mfaSatisfied bool,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: registered(subject, issuer, audience, ttl, now),
		SID:              sid,
		Role:             role,
		MFA:              mfaSatisfied,
		TenantID:         tenantID,
	}
}

// NewRefreshClaims builds claims for a refresh token bound to a session
// family. jti identifies this specific token within the family.
func NewRefreshClaims(
	subject, sid, jti string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	c := Claims{
		RegisteredClaims: registered(subject, issuer, audience, ttl, now),
		SID:              sid,
		Use:              UseRefresh,
	}
	c.ID = jti
	return c
}

// NewMFAChallengeClaims builds claims for the bridge token issued when a
// password check succeeds but MFA is still required.
func NewMFAChallengeClaims(
	subject string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: registered(subject, issuer, audience, ttl, now),
		Stage:            StageMFA,
	}
}

func registered(subject, issuer string, audience []string, ttl time.Duration, now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings(audience),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}
