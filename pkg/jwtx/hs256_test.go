package jwtx_test

import (
	"testing"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var (
	accessSecret  = []byte("access-secret-0123456789abcdef0123456789")
	refreshSecret = []byte("refresh-secret-0123456789abcdef012345678")
)

func newPair(t *testing.T) (access, refresh *jwtx.HS256) {
	t.Helper()

	access, err := jwtx.NewHS256(accessSecret, "secure-stack", []string{"secure-stack-api"})
	require.NoError(t, err)

	refresh, err = jwtx.NewHS256(refreshSecret, "secure-stack", []string{"secure-stack-api"})
	require.NoError(t, err)

	return access, refresh
}

func TestNewHS256RejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := jwtx.NewHS256([]byte("too-short"), "iss", nil)
	require.Error(t, err)
}

func TestSignAndVerifyAccessToken(t *testing.T) {
	t.Parallel()
	access, _ := newPair(t)

	now := time.Now()
	claims := jwtx.NewAccessClaims(
		"user-1", "sid-1", "manager", "tenant-1", true,
		15*time.Minute, "secure-stack", []string{"secure-stack-api"}, now,
	)

	raw, err := access.Sign(claims)
	require.NoError(t, err)

	got, err := access.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, "sid-1", got.SID)
	require.Equal(t, "manager", got.Role)
	require.Equal(t, "tenant-1", got.TenantID)
	require.True(t, got.MFA)
	require.Empty(t, got.Use)
}

func TestSecretSeparation(t *testing.T) {
	t.Parallel()
	access, refresh := newPair(t)

	now := time.Now()
	raw, err := refresh.Sign(jwtx.NewRefreshClaims(
		"user-1", "sid-1", "jti-1",
		time.Hour, "secure-stack", []string{"secure-stack-api"}, now,
	))
	require.NoError(t, err)

	// A refresh token must never verify against the access secret.
	_, err = access.Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrInvalidSig)

	got, err := refresh.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, jwtx.UseRefresh, got.Use)
	require.Equal(t, "jti-1", got.ID)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()
	access, _ := newPair(t)

	past := time.Now().Add(-time.Hour)
	raw, err := access.Sign(jwtx.NewAccessClaims(
		"user-1", "sid-1", "user", "", false,
		time.Minute, "secure-stack", []string{"secure-stack-api"}, past,
	))
	require.NoError(t, err)

	_, err = access.Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestVerifyRejectsWrongIssuerAndAudience(t *testing.T) {
	t.Parallel()

	other, err := jwtx.NewHS256(accessSecret, "other-issuer", []string{"secure-stack-api"})
	require.NoError(t, err)

	access, _ := newPair(t)

	now := time.Now()
	raw, err := other.Sign(jwtx.NewAccessClaims(
		"user-1", "sid-1", "user", "", false,
		time.Minute, "other-issuer", []string{"secure-stack-api"}, now,
	))
	require.NoError(t, err)

	_, err = access.Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrIssuer)

	raw, err = access.Sign(jwtx.NewAccessClaims(
		"user-1", "sid-1", "user", "", false,
		time.Minute, "secure-stack", []string{"another-deployment"}, now,
	))
	require.NoError(t, err)

	_, err = access.Verify(raw)
	require.ErrorIs(t, err, jwtx.ErrAudience)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	t.Parallel()
	access, _ := newPair(t)

	_, err := access.Verify("not-a-jwt")
	require.ErrorIs(t, err, jwtx.ErrMalformed)
}

func TestMFAChallengeClaims(t *testing.T) {
	t.Parallel()
	access, _ := newPair(t)

	now := time.Now()
	raw, err := access.Sign(jwtx.NewMFAChallengeClaims(
		"user-1", jwtx.DefaultMFAChallengeTTL, "secure-stack", []string{"secure-stack-api"}, now,
	))
	require.NoError(t, err)

	got, err := access.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, jwtx.StageMFA, got.Stage)
	require.Equal(t, "user-1", got.Subject)
}
