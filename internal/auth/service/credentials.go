package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/cryptox"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/slogx"
)

const (
	// DefaultLockoutThreshold is how many consecutive password failures
	// trip the lockout.
	DefaultLockoutThreshold = 5

	// DefaultLockoutWindow is how long a tripped account stays locked.
	DefaultLockoutWindow = 15 * time.Minute
)

// CredentialService owns password verification and the failure-counter
// lockout that protects it from online guessing.
type CredentialService struct {
	Store            store.Store
	LockoutThreshold int
	LockoutWindow    time.Duration
}

func (s *CredentialService) threshold() int {
	if s.LockoutThreshold > 0 {
		return s.LockoutThreshold
	}
	return DefaultLockoutThreshold
}

func (s *CredentialService) window() time.Duration {
	if s.LockoutWindow > 0 {
		return s.LockoutWindow
	}
	return DefaultLockoutWindow
}

// VerifyPassword checks a tenant user's password, maintaining lockout state:
//
//   - a locked account fails with ErrAccountLocked and consumes no attempt
//   - a wrong password bumps the failure counter; the failure that reaches
//     the threshold locks the account for the lockout window and zeroes the
//     counter so the next window starts clean
//   - a correct password clears any failure state
//
// An unknown username still burns an argon2 verification so response timing
// doesn't reveal which usernames exist.
func (s *CredentialService) VerifyPassword(ctx context.Context, tenantID, username, password string) (domain.User, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	user, err := s.lookup(ctx, tenantID, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = cryptox.VerifyPassword(password, decoyHash)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if user.Disabled {
		return domain.User{}, ErrAccountDisabled
	}

	if user.LockedAt(now) {
		l.Info("login attempt on locked account",
			slog.String("user_id", user.ID),
			slog.Time("locked_until", *user.LockedUntil),
		)
		return domain.User{}, ErrAccountLocked
	}

	if cryptox.VerifyPassword(password, user.PasswordHash) != nil {
		failures := user.FailedLogins + 1

		if failures >= s.threshold() {
			// The tripping attempt still reads as a plain credential
			// failure; only attempts made while locked see the lock.
			until := now.Add(s.window())
			if err := s.Store.Users().UpdateLockout(ctx, user.ID, 0, &until); err != nil {
				return domain.User{}, err
			}
			l.Warn("account locked after repeated password failures",
				slog.String("user_id", user.ID),
				slog.Time("locked_until", until),
			)
			return domain.User{}, ErrInvalidCredentials
		}

		if err := s.Store.Users().UpdateLockout(ctx, user.ID, failures, nil); err != nil {
			return domain.User{}, err
		}
		return domain.User{}, ErrInvalidCredentials
	}

	// Success resets the counter, and clears a lock that has already lapsed.
	if user.FailedLogins > 0 || user.LockedUntil != nil {
		if err := s.Store.Users().UpdateLockout(ctx, user.ID, 0, nil); err != nil {
			return domain.User{}, err
		}
		user.FailedLogins = 0
		user.LockedUntil = nil
	}

	return user, nil
}

// lookup resolves a login identifier, which may be a username or an email
// address, within a tenant.
func (s *CredentialService) lookup(ctx context.Context, tenantID, identifier string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByUsername(ctx, tenantID, identifier)
	if errors.Is(err, store.ErrNotFound) && strings.Contains(identifier, "@") {
		return s.Store.Users().GetUserByEmail(ctx, tenantID, strings.ToLower(identifier))
	}
	return user, err
}

// decoyHash is verified against when the username doesn't exist, so both
// paths cost one argon2id evaluation. Generated once; the password behind it
// was discarded.
const decoyHash = "$argon2id$v=19$m=19456,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$WT602bNvWLecDIdzWraLAVXvStDbhRfy5QTDq9vrsto"
