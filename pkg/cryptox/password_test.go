package cryptox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "cryptox-test")
	if err != nil {
		panic(err)
	}
	SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func TestHashPasswordProducesPHCFormat(t *testing.T) {
	for _, password := range []string{
		"password123",
		"P@ssw0rd!#$%^&*()",
		strings.Repeat("a", 100),
		"",
		"   spaces   ",
	} {
		hash, err := HashPassword(password)
		require.NoError(t, err)

		parts := strings.Split(hash, "$")
		require.Len(t, parts, 6)
		require.Equal(t, "argon2id", parts[1])
		require.Equal(t, "v=19", parts[2])
		require.Equal(t, "m=19456,t=2,p=1", parts[3])
		require.NotEmpty(t, parts[4])
		require.NotEmpty(t, parts[5])

		require.NoError(t, VerifyPassword(password, hash))
	}
}

func TestHashPasswordSaltsAreUnique(t *testing.T) {
	a, err := HashPassword("samepassword")
	require.NoError(t, err)
	b, err := HashPassword("samepassword")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
	require.NoError(t, VerifyPassword("samepassword", a))
	require.NoError(t, VerifyPassword("samepassword", b))
}

func TestVerifyPasswordRejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword("correct-password")
	require.NoError(t, err)

	for _, wrong := range []string{
		"wrong-password",
		"Correct-Password",
		"correct-password ",
		"correct-passwor",
		"",
		strings.Repeat("x", 10000),
	} {
		err := VerifyPassword(wrong, hash)
		require.ErrorIs(t, err, ErrPasswordMismatch, "password %q", wrong)
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	for name, bad := range map[string]string{
		"empty":             "",
		"wrong algorithm":   "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"missing parts":     "$argon2id$v=19$m=19456",
		"bad parameters":    "$argon2id$v=19$invalid$c2FsdA$aGFzaA",
		"bad salt base64":   "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA",
		"bad hash base64":   "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!",
		"wrong version":     "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		"no leading dollar": "argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA$x",
	} {
		err := VerifyPassword("whatever", bad)
		require.Error(t, err, name)
		require.NotErrorIs(t, err, ErrPasswordMismatch, name)
	}
}

func TestPepperChangesTheHash(t *testing.T) {
	hash, err := HashPassword("test-password")
	require.NoError(t, err)
	require.NoError(t, VerifyPassword("test-password", hash))

	// Same password under a different pepper must not verify.
	oldPepper := pepper
	pepper = oldPepper + "-rotated"
	defer func() { pepper = oldPepper }()

	require.ErrorIs(t, VerifyPassword("test-password", hash), ErrPasswordMismatch)
}
