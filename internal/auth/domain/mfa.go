package domain

// Second-factor method identifiers, as surfaced to clients in challenge
// responses and accepted back on verification calls.
const (
	MethodTOTP       = "totp"
	MethodEmailOTP   = "email_otp"
	MethodSMSOTP     = "sms_otp"
	MethodBackupCode = "backup_code"
)

// MFAChallengeResponse is returned instead of tokens when the password
// checked out but a second factor is still required.
type MFAChallengeResponse struct {
	MFARequired bool     `json:"mfa_required"` // always true
	MFAToken    string   `json:"mfa_token"`    // short-lived signed challenge token
	Methods     []string `json:"methods"`      // e.g. ["totp", "backup_code"]
}

// MFAEnrollResponse carries everything the client needs to finish TOTP
// enrollment. BackupCodes are plaintext here and never shown again.
type MFAEnrollResponse struct {
	Secret      string   `json:"secret"`       // base32, for manual entry
	OTPAuthURL  string   `json:"otpauth_url"`  // otpauth:// URL for QR rendering
	Issuer      string   `json:"issuer"`
	Account     string   `json:"account"`
	BackupCodes []string `json:"backup_codes"`
}
