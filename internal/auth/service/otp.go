package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/cryptox"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/mailx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/slogx"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/ttlstore"
)

const (
	// DefaultOTPTTL is how long a delivered code stays redeemable.
	DefaultOTPTTL = 5 * time.Minute

	// DefaultOTPMaxAttempts caps wrong guesses before the code is voided.
	DefaultOTPMaxAttempts = 5

	// DefaultOTPResendCooldown throttles how often a fresh code can be
	// requested per user and channel.
	DefaultOTPResendCooldown = 60 * time.Second

	// DefaultOTPDigits is the length of delivered codes.
	DefaultOTPDigits = 6
)

// OTPService issues and checks one-time codes delivered out of band. A user
// has at most one pending code; requesting a new one replaces it.
type OTPService struct {
	Store store.Store
	Email mailx.Sender
	SMS   mailx.Sender

	// Cooldowns throttles resends. Backed by memory or Redis depending on
	// deployment.
	Cooldowns ttlstore.Store

	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	Digits         int
}

func (s *OTPService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultOTPTTL
}

func (s *OTPService) maxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultOTPMaxAttempts
}

func (s *OTPService) cooldown() time.Duration {
	if s.ResendCooldown > 0 {
		return s.ResendCooldown
	}
	return DefaultOTPResendCooldown
}

func (s *OTPService) digits() int {
	if s.Digits > 0 {
		return s.Digits
	}
	return DefaultOTPDigits
}

// Send generates a code, stores its fingerprint against the user and
// delivers the plaintext over the requested channel. Resends inside the
// cooldown window fail with ErrResendCooldown.
func (s *OTPService) Send(ctx context.Context, user domain.User, method string) error {
	l := slogx.FromContext(ctx)

	sender, destination, err := s.channel(user, method)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("otp:%s:%s", user.ID, method)
	ok, err := s.Cooldowns.Acquire(ctx, key, s.cooldown())
	if err != nil {
		return err
	}
	if !ok {
		return ErrResendCooldown
	}

	code, err := cryptox.GenerateNumericCode(s.digits())
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(s.ttl())
	if err := s.Store.Users().SetPendingOTP(ctx, user.ID, cryptox.FingerprintToken(code), expiresAt); err != nil {
		return err
	}

	body := fmt.Sprintf(
		"Your verification code is %s. It expires in %d minutes.\n\nIf you did not request this code, you can ignore this message.",
		code, int(s.ttl().Minutes()),
	)
	// Delivery is best effort: a relay outage is logged, never surfaced to
	// the caller. The pending code stays valid, so a later resend can still
	// reach the user.
	if err := sender.Send(ctx, destination, "Your verification code", body); err != nil {
		l.Error("failed to deliver one-time code",
			slog.Any("error", err),
			slog.String("user_id", user.ID),
			slog.String("method", method),
		)
		return nil
	}

	l.Info("one-time code issued",
		slog.String("user_id", user.ID),
		slog.String("method", method),
	)
	return nil
}

// Verify redeems the user's pending code. Wrong guesses burn attempts; the
// guess that reaches the cap voids the code entirely, and an expired or
// absent code never matches.
func (s *OTPService) Verify(ctx context.Context, user domain.User, code string) error {
	if user.OTPHash == nil || user.OTPExpiresAt == nil {
		return ErrInvalidCode
	}

	if time.Now().UTC().After(*user.OTPExpiresAt) {
		_ = s.Store.Users().ClearPendingOTP(ctx, user.ID)
		return ErrInvalidCode
	}

	// The cap deliberately reads as an invalid code; distinguishing it would
	// tell a guesser how many tries remain.
	if user.OTPAttempts >= s.maxAttempts() {
		_ = s.Store.Users().ClearPendingOTP(ctx, user.ID)
		return ErrInvalidCode
	}

	presented := cryptox.FingerprintToken(strings.TrimSpace(code))
	if subtle.ConstantTimeCompare([]byte(presented), []byte(*user.OTPHash)) != 1 {
		attempts, err := s.Store.Users().IncrementOTPAttempts(ctx, user.ID)
		if err != nil {
			return err
		}
		if attempts >= s.maxAttempts() {
			_ = s.Store.Users().ClearPendingOTP(ctx, user.ID)
		}
		return ErrInvalidCode
	}

	return s.Store.Users().ClearPendingOTP(ctx, user.ID)
}

// EnableChannel turns on email or SMS delivery for future logins, called
// once the user has proven the destination by redeeming a code sent to it.
func (s *OTPService) EnableChannel(ctx context.Context, userID, method string) error {
	return s.Store.Users().SetOTPChannel(ctx, userID, method, true)
}

func (s *OTPService) channel(user domain.User, method string) (mailx.Sender, string, error) {
	switch method {
	case domain.MethodEmailOTP:
		if user.Email == "" {
			return nil, "", ErrChannelUnavailable
		}
		return s.Email, user.Email, nil
	case domain.MethodSMSOTP:
		if user.Phone == nil || *user.Phone == "" {
			return nil, "", ErrChannelUnavailable
		}
		return s.SMS, *user.Phone, nil
	default:
		return nil, "", ErrChannelUnavailable
	}
}
