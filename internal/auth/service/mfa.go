package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/store"
	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/cryptox"
)

const (
	// DefaultBackupCodeCount is how many recovery codes an enrollment hands out.
	DefaultBackupCodeCount = 8

	// backupCodeAlphabet avoids characters users confuse when reading codes
	// off paper (0/O, 1/I/L).
	backupCodeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ23456789"

	backupCodeGroupLen = 5
)

// MFAService owns TOTP enrollment and the backup-code fallback. One-time
// codes over email/SMS live in OTPService.
type MFAService struct {
	Store           store.Store
	Issuer          string // shown in authenticator apps
	BackupCodeCount int
}

func (s *MFAService) codeCount() int {
	if s.BackupCodeCount > 0 {
		return s.BackupCodeCount
	}
	return DefaultBackupCodeCount
}

// EnrollTOTP provisions a TOTP secret for the user and issues a fresh set of
// backup codes. MFA is not considered enabled until VerifyTOTPEnrollment
// confirms the user's authenticator produces matching codes.
//
// Enrolling again with rotate=false fails once a confirmed secret exists;
// rotate=true replaces the secret and all backup codes.
func (s *MFAService) EnrollTOTP(ctx context.Context, user domain.User, rotate bool) (domain.MFAEnrollResponse, error) {
	if user.TOTPEnabled != nil && !rotate {
		return domain.MFAEnrollResponse{}, ErrAlreadyEnrolled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollResponse{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	encrypted, err := cryptox.EncryptSecret(key.Secret())
	if err != nil {
		return domain.MFAEnrollResponse{}, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	codes, hashes, err := s.generateBackupCodes()
	if err != nil {
		return domain.MFAEnrollResponse{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetTOTPSecret(ctx, user.ID, encrypted); err != nil {
			return err
		}
		return tx.BackupCodes().ReplaceBackupCodes(ctx, user.ID, hashes)
	})
	if err != nil {
		return domain.MFAEnrollResponse{}, err
	}

	return domain.MFAEnrollResponse{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		Issuer:      s.Issuer,
		Account:     user.Email,
		BackupCodes: codes,
	}, nil
}

// VerifyTOTPEnrollment confirms a pending enrollment: the user proves their
// authenticator holds the secret by submitting one valid code, which flips
// MFA on for the account.
func (s *MFAService) VerifyTOTPEnrollment(ctx context.Context, user domain.User, code string) error {
	if user.TOTPSecret == nil {
		return ErrMFANotEnabled
	}

	if err := s.validateTOTP(*user.TOTPSecret, code); err != nil {
		return err
	}

	return s.Store.Users().ConfirmTOTP(ctx, user.ID)
}

// VerifyTOTP checks a login-time TOTP code against a confirmed enrollment.
func (s *MFAService) VerifyTOTP(_ context.Context, user domain.User, code string) error {
	if user.TOTPSecret == nil || user.TOTPEnabled == nil {
		return ErrMFANotEnabled
	}
	return s.validateTOTP(*user.TOTPSecret, code)
}

func (s *MFAService) validateTOTP(encryptedSecret, code string) error {
	secret, err := cryptox.DecryptSecret(encryptedSecret)
	if err != nil {
		return fmt.Errorf("failed to decrypt TOTP secret: %w", err)
	}

	if !totp.Validate(strings.TrimSpace(code), secret) {
		return ErrInvalidCode
	}
	return nil
}

// ConsumeBackupCode redeems one recovery code. Each code works exactly once.
func (s *MFAService) ConsumeBackupCode(ctx context.Context, user domain.User, code string) error {
	if !user.MFAEnabled {
		return ErrMFANotEnabled
	}

	hash := cryptox.FingerprintToken(NormalizeBackupCode(code))
	ok, err := s.Store.BackupCodes().ConsumeBackupCode(ctx, user.ID, hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// RemainingBackupCodes reports how many unused recovery codes the user holds.
func (s *MFAService) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	return s.Store.BackupCodes().CountUserBackupCodes(ctx, userID)
}

// Disable wipes every second factor for the user: TOTP secret, channel
// flags, pending codes and backup codes. Calling it on an account without
// MFA is a no-op.
func (s *MFAService) Disable(ctx context.Context, userID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().DisableMFA(ctx, userID); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteAllBackupCodes(ctx, userID)
	})
}

// NormalizeBackupCode canonicalizes user input: whitespace and hyphens are
// stripped and letters uppercased, so "abcde-fghjk" and "ABCDE FGHJK" match
// the same stored hash.
func NormalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

func (s *MFAService) generateBackupCodes() (codes, hashes []string, err error) {
	count := s.codeCount()
	codes = make([]string, count)
	hashes = make([]string, count)

	for i := range count {
		code, err := generateBackupCode()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		codes[i] = code
		hashes[i] = cryptox.FingerprintToken(NormalizeBackupCode(code))
	}
	return codes, hashes, nil
}

// generateBackupCode produces codes like "7HKQM-2XWPD".
func generateBackupCode() (string, error) {
	var b strings.Builder
	alphabetLen := big.NewInt(int64(len(backupCodeAlphabet)))

	for i := range 2 * backupCodeGroupLen {
		if i == backupCodeGroupLen {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
