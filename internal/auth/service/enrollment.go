package service

import (
	"context"

	"github.com/jlanguidoaltrue/secure-stack-v2/internal/auth/domain"
)

// EnrollTOTP provisions TOTP for the authenticated user. With rotate=true an
// existing enrollment is replaced, which also reissues the backup codes.
func (s *AuthService) EnrollTOTP(ctx context.Context, userID string, rotate bool) (domain.MFAEnrollResponse, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.MFAEnrollResponse{}, err
	}
	return s.MFA.EnrollTOTP(ctx, user, rotate)
}

// VerifyTOTPEnrollment confirms a pending enrollment and switches MFA on.
func (s *AuthService) VerifyTOTPEnrollment(ctx context.Context, userID, code string, meta RequestMeta) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.MFA.VerifyTOTPEnrollment(ctx, user, code); err != nil {
		return err
	}

	s.audit(ctx, user, domain.AuditMFAEnrolled, meta, domain.MethodTOTP)
	return nil
}

// SetPhone stores the SMS destination. The number is not trusted until a
// code sent to it is verified through channel enrollment.
func (s *AuthService) SetPhone(ctx context.Context, userID, phone string) error {
	return s.Store.Users().SetPhone(ctx, userID, phone)
}

// SendEnrollmentOTP delivers a code to a channel the user wants to enroll.
// Unlike login-time sends, the channel doesn't have to be enabled yet; it
// only has to have a destination on file.
func (s *AuthService) SendEnrollmentOTP(ctx context.Context, userID, method string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.OTP.Send(ctx, user, method)
}

// VerifyEnrollmentOTP proves the user controls the destination, which
// enables the channel as a login-time second factor.
func (s *AuthService) VerifyEnrollmentOTP(ctx context.Context, userID, method, code string, meta RequestMeta) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if method != domain.MethodEmailOTP && method != domain.MethodSMSOTP {
		return ErrChannelUnavailable
	}

	if err := s.OTP.Verify(ctx, user, code); err != nil {
		return err
	}

	if err := s.OTP.EnableChannel(ctx, userID, method); err != nil {
		return err
	}

	s.audit(ctx, user, domain.AuditMFAEnrolled, meta, method)
	return nil
}

// DisableMFA wipes all second factors for the user. Safe to call when MFA
// was never enabled.
func (s *AuthService) DisableMFA(ctx context.Context, userID string, meta RequestMeta) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.MFA.Disable(ctx, userID); err != nil {
		return err
	}

	s.audit(ctx, user, domain.AuditMFADisabled, meta, "")
	return nil
}
