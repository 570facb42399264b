package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/service"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store/drivers/sqlite"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/cryptox"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/jwtx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/mailx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/ttlstore"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "auth-service-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

var meta = service.RequestMeta{IP: "127.0.0.1", UserAgent: "test"}

type stack struct {
	store *sqlite.Store
	auth  *service.AuthService
	reset *service.PasswordResetService
	email *mailx.Recorder
	sms   *mailx.Recorder
	cool  *ttlstore.Memory
}

func newStack(t *testing.T) *stack {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())

	access, err := jwtx.NewHS256([]byte("test-access-secret-0123456789abcdef00"), "authd-test", []string{"authd"})
	require.NoError(t, err)
	refresh, err := jwtx.NewHS256([]byte("test-refresh-secret-0123456789abcdef0"), "authd-test", []string{"authd"})
	require.NoError(t, err)

	email := mailx.NewRecorder()
	sms := mailx.NewRecorder()
	cool := ttlstore.NewMemory()

	tokens := &service.TokenService{
		Access:   access,
		Refresh:  refresh,
		Issuer:   "authd-test",
		Audience: []string{"authd"},
	}
	sessions := &service.SessionService{Store: s, RefreshTTL: 30 * 24 * time.Hour}

	auth := &service.AuthService{
		Store:       s,
		Credentials: &service.CredentialService{Store: s},
		MFA:         &service.MFAService{Store: s, Issuer: "authd-test"},
		OTP: &service.OTPService{
			Store:          s,
			Email:          email,
			SMS:            sms,
			Cooldowns:      cool,
			ResendCooldown: time.Nanosecond, // effectively off; cooldown has its own test
		},
		Tokens:   tokens,
		Sessions: sessions,
	}

	reset := &service.PasswordResetService{
		Store:           s,
		Mail:            email,
		Cooldowns:       cool,
		ResetURL:        "https://app.example/reset",
		RequestCooldown: time.Nanosecond,
	}

	return &stack{store: s, auth: auth, reset: reset, email: email, sms: sms, cool: cool}
}

func register(t *testing.T, st *stack) domain.User {
	t.Helper()

	user, err := st.auth.Register(context.Background(), "acme", "alice", "alice@example.com", "correct horse battery", meta)
	require.NoError(t, err)
	return user
}

func login(t *testing.T, st *stack) domain.TokenPair {
	t.Helper()

	res, err := st.auth.Login(context.Background(), "acme", "alice", "correct horse battery", meta)
	require.NoError(t, err)
	require.NotNil(t, res.Pair)
	return *res.Pair
}

var (
	codeRe  = regexp.MustCompile(`\b\d{6}\b`)
	tokenRe = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)
)

func TestRegisterAndLogin(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()

	user := register(t, st)
	require.Equal(t, "user", user.Role)

	_, err := st.auth.Register(ctx, "acme", "alice", "other@example.com", "pw-pw-pw-pw", meta)
	require.ErrorIs(t, err, service.ErrUserExists)

	_, err = st.auth.Login(ctx, "acme", "alice", "wrong password", meta)
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = st.auth.Login(ctx, "acme", "bob", "correct horse battery", meta)
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	pair := login(t, st)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "Bearer", pair.TokenType)

	// The email address works as the login identifier too.
	res, err := st.auth.Login(ctx, "acme", "alice@example.com", "correct horse battery", meta)
	require.NoError(t, err)
	require.NotNil(t, res.Pair)

	got, err := st.auth.Me(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)

	// Five wrong guesses all read as plain credential failures; the fifth
	// quietly trips the lock.
	for range 5 {
		_, err := st.auth.Login(ctx, "acme", "alice", "wrong", meta)
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}

	// Even the right password bounces while locked, and consumes nothing.
	_, err := st.auth.Login(ctx, "acme", "alice", "correct horse battery", meta)
	require.ErrorIs(t, err, service.ErrAccountLocked)

	// Once the window lapses the account works again and the slate is clean.
	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, st.store.Users().UpdateLockout(ctx, user.ID, 0, &past))

	login(t, st)

	got, err := st.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.FailedLogins)
	require.Nil(t, got.LockedUntil)
}

func TestRefreshRotationAndReuseDetection(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	register(t, st)
	pair := login(t, st)

	// Normal rotation works and yields a different refresh token.
	next, err := st.auth.Refresh(ctx, pair.RefreshToken, meta)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// Replaying the spent token is reuse: the family dies.
	_, err = st.auth.Refresh(ctx, pair.RefreshToken, meta)
	require.ErrorIs(t, err, service.ErrReuseDetected)

	// The honest holder's newest token is dead too; fail closed.
	_, err = st.auth.Refresh(ctx, next.RefreshToken, meta)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestRefreshRejectsGarbageAndAccessTokens(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	register(t, st)
	pair := login(t, st)

	_, err := st.auth.Refresh(ctx, "not-a-token", meta)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)

	// An access token must never pass as a refresh token.
	_, err = st.auth.Refresh(ctx, pair.AccessToken, meta)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestLogout(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	register(t, st)
	pair := login(t, st)

	require.NoError(t, st.auth.Logout(ctx, pair.RefreshToken, meta))

	_, err := st.auth.Refresh(ctx, pair.RefreshToken, meta)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)

	// Logging out again, or with garbage, still succeeds.
	require.NoError(t, st.auth.Logout(ctx, pair.RefreshToken, meta))
	require.NoError(t, st.auth.Logout(ctx, "garbage", meta))
}

func enrollTOTP(t *testing.T, st *stack, userID string) domain.MFAEnrollResponse {
	t.Helper()
	ctx := context.Background()

	enroll, err := st.auth.EnrollTOTP(ctx, userID, false)
	require.NoError(t, err)
	require.NotEmpty(t, enroll.Secret)
	require.Contains(t, enroll.OTPAuthURL, "otpauth://")
	require.Len(t, enroll.BackupCodes, service.DefaultBackupCodeCount)

	code, err := totp.GenerateCode(enroll.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, st.auth.VerifyTOTPEnrollment(ctx, userID, code, meta))

	return enroll
}

func TestTOTPEnrollmentAndMFALogin(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)
	enroll := enrollTOTP(t, st, user.ID)

	// Second enrollment without rotation is refused.
	_, err := st.auth.EnrollTOTP(ctx, user.ID, false)
	require.ErrorIs(t, err, service.ErrAlreadyEnrolled)

	// Login now stops at the challenge.
	res, err := st.auth.Login(ctx, "acme", "alice", "correct horse battery", meta)
	require.NoError(t, err)
	require.Nil(t, res.Pair)
	require.NotNil(t, res.Challenge)
	require.True(t, res.Challenge.MFARequired)
	require.Contains(t, res.Challenge.Methods, domain.MethodTOTP)
	require.Contains(t, res.Challenge.Methods, domain.MethodBackupCode)

	// A wrong code fails, a right one completes the login.
	_, err = st.auth.CompleteMFALogin(ctx, res.Challenge.MFAToken, domain.MethodTOTP, "000000", meta)
	require.ErrorIs(t, err, service.ErrInvalidCode)

	code, err := totp.GenerateCode(enroll.Secret, time.Now())
	require.NoError(t, err)
	pair, err := st.auth.CompleteMFALogin(ctx, res.Challenge.MFAToken, domain.MethodTOTP, code, meta)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)

	// The challenge token is not an access token and can't refresh anything.
	_, err = st.auth.Refresh(ctx, res.Challenge.MFAToken, meta)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)
}

func TestBackupCodesAreSingleUse(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)
	enroll := enrollTOTP(t, st, user.ID)

	backup := enroll.BackupCodes[0]

	res, err := st.auth.Login(ctx, "acme", "alice", "correct horse battery", meta)
	require.NoError(t, err)

	// Formatting doesn't matter; the canonical form does.
	sloppy := " " + backup[:5] + " " + backup[6:] + " "
	pair, err := st.auth.CompleteMFALogin(ctx, res.Challenge.MFAToken, domain.MethodBackupCode, sloppy, meta)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)

	// The same code never works twice.
	res2, err := st.auth.Login(ctx, "acme", "alice", "correct horse battery", meta)
	require.NoError(t, err)
	_, err = st.auth.CompleteMFALogin(ctx, res2.Challenge.MFAToken, domain.MethodBackupCode, backup, meta)
	require.ErrorIs(t, err, service.ErrInvalidCode)

	left, err := st.auth.MFA.RemainingBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, service.DefaultBackupCodeCount-1, left)
}

func TestEmailOTPEnrollmentAndLogin(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)

	// Enroll the email channel: prove the inbox by echoing the code back.
	require.NoError(t, st.auth.SendEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP))
	code := codeRe.FindString(st.email.Last().Body)
	require.Len(t, code, 6)
	require.NoError(t, st.auth.VerifyEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP, code, meta))

	// Login now challenges, offering the email channel.
	res, err := st.auth.Login(ctx, "acme", "alice", "correct horse battery", meta)
	require.NoError(t, err)
	require.NotNil(t, res.Challenge)
	require.Contains(t, res.Challenge.Methods, domain.MethodEmailOTP)

	require.NoError(t, st.auth.SendLoginOTP(ctx, res.Challenge.MFAToken, domain.MethodEmailOTP))
	loginCode := codeRe.FindString(st.email.Last().Body)

	pair, err := st.auth.CompleteMFALogin(ctx, res.Challenge.MFAToken, domain.MethodEmailOTP, loginCode, meta)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)

	// The code was cleared on success and can't be replayed.
	res2, err := st.auth.Login(ctx, "acme", "alice", "correct horse battery", meta)
	require.NoError(t, err)
	_, err = st.auth.CompleteMFALogin(ctx, res2.Challenge.MFAToken, domain.MethodEmailOTP, loginCode, meta)
	require.ErrorIs(t, err, service.ErrInvalidCode)
}

func TestSMSOTPRequiresPhone(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)

	// Without a phone on file the channel is unavailable.
	err := st.auth.SendEnrollmentOTP(ctx, user.ID, domain.MethodSMSOTP)
	require.ErrorIs(t, err, service.ErrChannelUnavailable)

	require.NoError(t, st.auth.SetPhone(ctx, user.ID, "+15550001111"))
	require.NoError(t, st.auth.SendEnrollmentOTP(ctx, user.ID, domain.MethodSMSOTP))

	code := codeRe.FindString(st.sms.Last().Body)
	require.NoError(t, st.auth.VerifyEnrollmentOTP(ctx, user.ID, domain.MethodSMSOTP, code, meta))

	got, err := st.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.SMSOTP)
	require.True(t, got.MFAEnabled)
}

func TestOTPExpiryAndAttemptCap(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)

	// Expired codes never match.
	require.NoError(t, st.auth.SendEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP))
	code := codeRe.FindString(st.email.Last().Body)
	require.NoError(t, st.store.Users().SetPendingOTP(ctx, user.ID,
		cryptox.FingerprintToken(code), time.Now().UTC().Add(-time.Minute)))
	err := st.auth.VerifyEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP, code, meta)
	require.ErrorIs(t, err, service.ErrInvalidCode)

	// Wrong guesses burn attempts; the fifth voids the code.
	require.NoError(t, st.auth.SendEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP))
	code = codeRe.FindString(st.email.Last().Body)

	for range 4 {
		err := st.auth.VerifyEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP, "000000", meta)
		require.ErrorIs(t, err, service.ErrInvalidCode)
	}
	err = st.auth.VerifyEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP, "000000", meta)
	require.ErrorIs(t, err, service.ErrInvalidCode)

	// Even the right code is dead now.
	err = st.auth.VerifyEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP, code, meta)
	require.ErrorIs(t, err, service.ErrInvalidCode)
}

func TestOTPResendCooldown(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)

	st.auth.OTP.ResendCooldown = time.Minute

	require.NoError(t, st.auth.SendEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP))
	err := st.auth.SendEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP)
	require.ErrorIs(t, err, service.ErrResendCooldown)
	require.Len(t, st.email.Messages(), 1)
}

func TestOTPSendSwallowsDeliveryFailure(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)

	// A relay outage must not bubble up; the caller already got its 202.
	st.email.FailWith(errors.New("smtp relay down"))
	require.NoError(t, st.auth.SendEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP))
	require.Empty(t, st.email.Messages())

	// The pending code survives the failed delivery, so a resend after the
	// outage reaches the user with a working code.
	st.email.FailWith(nil)
	require.NoError(t, st.auth.SendEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP))
	code := codeRe.FindString(st.email.Last().Body)
	require.NoError(t, st.auth.VerifyEnrollmentOTP(ctx, user.ID, domain.MethodEmailOTP, code, meta))
}

func TestDisableMFA(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)
	enrollTOTP(t, st, user.ID)

	require.NoError(t, st.auth.DisableMFA(ctx, user.ID, meta))

	got, err := st.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.MFAEnabled)
	require.Nil(t, got.TOTPSecret)

	left, err := st.auth.MFA.RemainingBackupCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, left)

	// Disabling again is a no-op, and login is single factor again.
	require.NoError(t, st.auth.DisableMFA(ctx, user.ID, meta))
	login(t, st)
}

func TestPasswordResetFlow(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	register(t, st)
	pair := login(t, st)

	// Unknown addresses report nothing and send nothing.
	st.reset.Request(ctx, "acme", "nobody@example.com")
	require.Empty(t, st.email.Messages())

	st.reset.Request(ctx, "acme", "alice@example.com")
	require.Len(t, st.email.Messages(), 1)

	match := tokenRe.FindStringSubmatch(st.email.Last().Body)
	require.Len(t, match, 2)
	token := match[1]

	require.NoError(t, st.reset.Reset(ctx, token, "entirely new passphrase", meta))

	// Old password is gone, new one works.
	_, err := st.auth.Login(ctx, "acme", "alice", "correct horse battery", meta)
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	res, err := st.auth.Login(ctx, "acme", "alice", "entirely new passphrase", meta)
	require.NoError(t, err)
	require.NotNil(t, res.Pair)

	// Sessions from before the reset are revoked.
	_, err = st.auth.Refresh(ctx, pair.RefreshToken, meta)
	require.ErrorIs(t, err, service.ErrInvalidRefresh)

	// The grant burned on use.
	err = st.reset.Reset(ctx, token, "yet another passphrase", meta)
	require.ErrorIs(t, err, service.ErrInvalidOrExpiredToken)
}

func TestPasswordResetOnlyNewestLinkWorks(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	register(t, st)

	st.reset.Request(ctx, "acme", "alice@example.com")
	first := tokenRe.FindStringSubmatch(st.email.Last().Body)[1]

	st.reset.Request(ctx, "acme", "alice@example.com")
	second := tokenRe.FindStringSubmatch(st.email.Last().Body)[1]
	require.NotEqual(t, first, second)

	require.ErrorIs(t, st.reset.Reset(ctx, first, "new passphrase one", meta), service.ErrInvalidOrExpiredToken)
	require.NoError(t, st.reset.Reset(ctx, second, "new passphrase two", meta))
}

func TestAuditTrail(t *testing.T) {
	st := newStack(t)
	ctx := context.Background()
	user := register(t, st)
	pair := login(t, st)
	require.NoError(t, st.auth.Logout(ctx, pair.RefreshToken, meta))

	logs, err := st.store.AuditLogs().ListUserAuditLogs(ctx, user.ID, 10)
	require.NoError(t, err)

	actions := make([]string, 0, len(logs))
	for _, e := range logs {
		actions = append(actions, e.Action)
	}
	require.Contains(t, actions, domain.AuditRegistered)
	require.Contains(t, actions, domain.AuditLogin)
	require.Contains(t, actions, domain.AuditLogout)
}
