package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// TokenSize256 is the byte length for opaque credential tokens, giving 256
// bits of entropy (43 chars base64url). Used for password reset tokens.
const TokenSize256 = 32

// GenerateToken returns size random bytes as a base64url string without
// padding.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the SHA-256 digest of token as base64url. Stores
// compare fingerprints so a leaked table never reveals a live token, and an
// unsalted digest keeps the column indexable for lookup.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateNumericCode returns a uniformly random zero-padded numeric code of
// the given number of digits, e.g. "042917" for digits=6. Used for one-time
// PINs delivered over email/SMS.
func GenerateNumericCode(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("code digits must be in 1..18, got %d", digits)
	}

	limit := int64(1)
	for range digits {
		limit *= 10
	}

	n, err := rand.Int(rand.Reader, big.NewInt(limit))
	if err != nil {
		return "", fmt.Errorf("failed to generate random code: %w", err)
	}

	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
