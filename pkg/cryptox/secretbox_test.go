package cryptox_test

import (
	"path/filepath"
	"testing"

	"github.com/jlanguidoaltrue/secure-stack-v2/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptSecret(t *testing.T) {
	t.Setenv("AUTH_MASTER_KEY", "test-master-key-material")
	cryptox.ResetMasterKeyForTesting()
	t.Cleanup(cryptox.ResetMasterKeyForTesting)

	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

	encrypted, err := cryptox.EncryptSecret(secret)
	require.NoError(t, err)
	require.NotEmpty(t, encrypted)
	require.NotEqual(t, secret, encrypted)

	decrypted, err := cryptox.DecryptSecret(encrypted)
	require.NoError(t, err)
	require.Equal(t, secret, decrypted)
}

func TestEncryptSecretUniqueNonce(t *testing.T) {
	t.Setenv("AUTH_MASTER_KEY", "test-master-key-material")
	cryptox.ResetMasterKeyForTesting()
	t.Cleanup(cryptox.ResetMasterKeyForTesting)

	a, err := cryptox.EncryptSecret("same-plaintext")
	require.NoError(t, err)
	b, err := cryptox.EncryptSecret("same-plaintext")
	require.NoError(t, err)

	// Random nonce per encryption means ciphertexts must differ.
	require.NotEqual(t, a, b)
}

func TestDecryptSecretRejectsTampering(t *testing.T) {
	t.Setenv("AUTH_MASTER_KEY", "test-master-key-material")
	cryptox.ResetMasterKeyForTesting()
	t.Cleanup(cryptox.ResetMasterKeyForTesting)

	encrypted, err := cryptox.EncryptSecret("payload")
	require.NoError(t, err)

	tampered := "A" + encrypted[1:]
	if tampered == encrypted {
		tampered = "B" + encrypted[1:]
	}

	_, err = cryptox.DecryptSecret(tampered)
	require.Error(t, err)
}

func TestDecryptSecretRejectsGarbage(t *testing.T) {
	t.Setenv("AUTH_MASTER_KEY", "test-master-key-material")
	cryptox.ResetMasterKeyForTesting()
	t.Cleanup(cryptox.ResetMasterKeyForTesting)

	_, err := cryptox.DecryptSecret("not base64!!")
	require.Error(t, err)

	_, err = cryptox.DecryptSecret("c2hvcnQ") // valid base64, too short for a nonce
	require.Error(t, err)
}

func TestMasterKeyLoadFailureIsSticky(t *testing.T) {
	cryptox.ResetMasterKeyForTesting()
	cryptox.SetMasterKeyPath(filepath.Join(t.TempDir(), "missing.key"))
	t.Cleanup(func() {
		cryptox.SetMasterKeyPath("")
		cryptox.ResetMasterKeyForTesting()
	})

	_, err := cryptox.EncryptSecret("payload")
	require.ErrorContains(t, err, "master key")

	// Later callers must see the original load failure, not a misleading
	// cipher error from a nil key.
	_, err = cryptox.EncryptSecret("payload")
	require.ErrorContains(t, err, "master key")

	_, err = cryptox.DecryptSecret("c2hvcnQ")
	require.ErrorContains(t, err, "master key")
}
