package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store/drivers/sqlite"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/idx"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTestUser(t *testing.T, s *sqlite.Store) domain.User {
	t.Helper()

	u := domain.User{
		ID:           idx.New().String(),
		TenantID:     "acme",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Role:         "user",
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func TestUsersRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "acme", got.TenantID)
	require.False(t, got.MFAEnabled)
	require.Nil(t, got.LockedUntil)

	got, err = s.Users().GetUserByUsername(ctx, "acme", "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	// Same username in another tenant is a different namespace.
	_, err = s.Users().GetUserByUsername(ctx, "globex", "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.Users().GetUserByEmail(ctx, "acme", "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	newTestUser(t, s)

	dup := domain.User{
		ID:           idx.New().String(),
		TenantID:     "acme",
		Username:     "alice",
		Email:        "alice2@example.com",
		PasswordHash: "hash",
		Role:         "user",
	}
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	// Same username is fine in a different tenant.
	dup.TenantID = "globex"
	require.NoError(t, s.Users().CreateUser(ctx, dup))
}

func TestUpdateLockout(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	until := time.Now().UTC().Add(15 * time.Minute)
	require.NoError(t, s.Users().UpdateLockout(ctx, u.ID, 5, &until))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.FailedLogins)
	require.NotNil(t, got.LockedUntil)
	require.WithinDuration(t, until, *got.LockedUntil, time.Second)
	require.True(t, got.LockedAt(time.Now()))

	// Clearing the lock resets both fields together.
	require.NoError(t, s.Users().UpdateLockout(ctx, u.ID, 0, nil))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.FailedLogins)
	require.Nil(t, got.LockedUntil)

	require.ErrorIs(t, s.Users().UpdateLockout(ctx, "missing", 1, nil), store.ErrNotFound)
}

func TestMFAColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	require.NoError(t, s.Users().SetTOTPSecret(ctx, u.ID, "enc-secret"))
	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TOTPSecret)
	require.Nil(t, got.TOTPEnabled)
	require.False(t, got.MFAEnabled)

	require.NoError(t, s.Users().ConfirmTOTP(ctx, u.ID))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.TOTPEnabled)
	require.True(t, got.MFAEnabled)
	require.Contains(t, got.MFAMethods(), domain.MethodTOTP)
	require.Contains(t, got.MFAMethods(), domain.MethodBackupCode)

	require.NoError(t, s.Users().SetOTPChannel(ctx, u.ID, domain.MethodEmailOTP, true))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.EmailOTP)

	require.Error(t, s.Users().SetOTPChannel(ctx, u.ID, "carrier-pigeon", true))

	require.NoError(t, s.Users().DisableMFA(ctx, u.ID))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, got.MFAEnabled)
	require.Nil(t, got.TOTPSecret)
	require.Nil(t, got.TOTPEnabled)
	require.False(t, got.EmailOTP)
	require.Empty(t, got.MFAMethods())
}

func TestPendingOTPLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	expires := time.Now().UTC().Add(5 * time.Minute)
	require.NoError(t, s.Users().SetPendingOTP(ctx, u.ID, "hash-1", expires))

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.OTPHash)
	require.Equal(t, "hash-1", *got.OTPHash)
	require.Equal(t, 0, got.OTPAttempts)

	n, err := s.Users().IncrementOTPAttempts(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = s.Users().IncrementOTPAttempts(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// Issuing a fresh code replaces the old one and resets attempts.
	require.NoError(t, s.Users().SetPendingOTP(ctx, u.ID, "hash-2", expires))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "hash-2", *got.OTPHash)
	require.Equal(t, 0, got.OTPAttempts)

	require.NoError(t, s.Users().ClearPendingOTP(ctx, u.ID))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Nil(t, got.OTPHash)
	require.Nil(t, got.OTPExpiresAt)
}

func newTestSession(t *testing.T, s *sqlite.Store, userID string) domain.Session {
	t.Helper()

	sess := domain.Session{
		ID:         idx.New().String(),
		UserID:     userID,
		CurrentJTI: "jti-1",
		IP:         "127.0.0.1",
		UserAgent:  "test",
		ExpiresAt:  time.Now().UTC().Add(24 * time.Hour),
	}
	require.NoError(t, s.Sessions().CreateSession(context.Background(), sess))
	return sess
}

func TestAdvanceRefreshPointer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	sess := newTestSession(t, s, u.ID)

	ok, err := s.Sessions().AdvanceRefreshPointer(ctx, sess.ID, "jti-1", "jti-2")
	require.NoError(t, err)
	require.True(t, ok)

	// The spent jti no longer advances the pointer.
	ok, err = s.Sessions().AdvanceRefreshPointer(ctx, sess.ID, "jti-1", "jti-3")
	require.NoError(t, err)
	require.False(t, ok)

	got, err := s.Sessions().GetSessionByID(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "jti-2", got.CurrentJTI)

	// Revoked sessions never advance.
	require.NoError(t, s.Sessions().RevokeSession(ctx, sess.ID))
	ok, err = s.Sessions().AdvanceRefreshPointer(ctx, sess.ID, "jti-2", "jti-3")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAdvanceRefreshPointerConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	sess := newTestSession(t, s, u.ID)

	// Two goroutines race to redeem the same refresh token. Exactly one may win.
	const racers = 2
	results := make([]bool, racers)

	var wg sync.WaitGroup
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Sessions().AdvanceRefreshPointer(ctx, sess.ID, "jti-1", idx.New().String())
			require.NoError(t, err)
			results[i] = ok
		}()
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	require.Equal(t, 1, wins)
}

func TestRevokeAllUserSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)
	s1 := newTestSession(t, s, u.ID)
	s2 := newTestSession(t, s, u.ID)

	require.NoError(t, s.Sessions().RevokeAllUserSessions(ctx, u.ID))

	for _, id := range []string{s1.ID, s2.ID} {
		got, err := s.Sessions().GetSessionByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		require.False(t, got.ActiveAt(time.Now()))
	}
}

func TestBackupCodesSingleUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	hashes := []string{"h1", "h2", "h3"}
	require.NoError(t, s.BackupCodes().ReplaceBackupCodes(ctx, u.ID, hashes))

	count, err := s.BackupCodes().CountUserBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	ok, err := s.BackupCodes().ConsumeBackupCode(ctx, u.ID, "h2")
	require.NoError(t, err)
	require.True(t, ok)

	// Second use of the same code must fail.
	ok, err = s.BackupCodes().ConsumeBackupCode(ctx, u.ID, "h2")
	require.NoError(t, err)
	require.False(t, ok)

	// Replacement swaps the whole set.
	require.NoError(t, s.BackupCodes().ReplaceBackupCodes(ctx, u.ID, []string{"n1"}))
	count, err = s.BackupCodes().CountUserBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	ok, err = s.BackupCodes().ConsumeBackupCode(ctx, u.ID, "h1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPasswordResets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	p := domain.PasswordReset{
		ID:        idx.New().String(),
		UserID:    u.ID,
		TokenHash: "reset-hash",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, s.PasswordResets().CreatePasswordReset(ctx, p))

	got, err := s.PasswordResets().GetPasswordResetByTokenHash(ctx, "reset-hash")
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.True(t, got.RedeemableAt(time.Now()))

	require.NoError(t, s.PasswordResets().MarkPasswordResetUsed(ctx, p.ID))
	got, err = s.PasswordResets().GetPasswordResetByTokenHash(ctx, "reset-hash")
	require.NoError(t, err)
	require.NotNil(t, got.UsedAt)
	require.False(t, got.RedeemableAt(time.Now()))

	_, err = s.PasswordResets().GetPasswordResetByTokenHash(ctx, "unknown")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestInvalidateUserPasswordResets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	for _, h := range []string{"r1", "r2"} {
		require.NoError(t, s.PasswordResets().CreatePasswordReset(ctx, domain.PasswordReset{
			ID:        idx.New().String(),
			UserID:    u.ID,
			TokenHash: h,
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		}))
	}

	require.NoError(t, s.PasswordResets().InvalidateUserPasswordResets(ctx, u.ID))

	for _, h := range []string{"r1", "r2"} {
		got, err := s.PasswordResets().GetPasswordResetByTokenHash(ctx, h)
		require.NoError(t, err)
		require.NotNil(t, got.UsedAt)
	}
}

func TestAuditLogs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	for _, action := range []string{domain.AuditLogin, domain.AuditLogout} {
		require.NoError(t, s.AuditLogs().CreateAuditLog(ctx, domain.AuditLog{
			ID:       idx.New().String(),
			TenantID: u.TenantID,
			UserID:   u.ID,
			Action:   action,
			IP:       "127.0.0.1",
		}))
	}

	logs, err := s.AuditLogs().ListUserAuditLogs(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	require.NoError(t, s.AuditLogs().DeleteAuditLogsBefore(ctx, time.Now().UTC().Add(time.Minute)))
	logs, err = s.AuditLogs().ListUserAuditLogs(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, s)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, u.ID, "new-hash"); err != nil {
			return err
		}
		return context.Canceled // force rollback
	})
	require.Error(t, err)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "hash", got.PasswordHash)
}
