package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that any secret survives an encrypt/decrypt round trip unchanged.
// Scope: Unit Test
// Security: Confidentiality of stored database passwords
// Expected: decrypt(encrypt(s)) == s for representative secret values.
// Test Case ID: SEC-01
func TestSecrets_Cipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("test-master-secret")
	require.NoError(t, err)

	secrets := []string{
		"",
		"p",
		"correct horse battery staple",
		"unicode-ü-密码-🔑",
		string(make([]byte, 4096)),
	}

	for _, s := range secrets {
		ct, err := c.Encrypt(s)
		require.NoError(t, err)
		assert.NotEqual(t, s, ct)

		pt, err := c.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, s, pt)
	}
}

// TestPurpose: Validates that encryption is non-deterministic (fresh nonce per call).
// Scope: Unit Test
// Security: Prevents equality of stored passwords leaking via ciphertext equality
// Expected: Two encryptions of the same plaintext produce different ciphertexts.
// Test Case ID: SEC-02
func TestSecrets_Cipher_NonDeterministic(t *testing.T) {
	c, err := NewCipher("test-master-secret")
	require.NoError(t, err)

	a, err := c.Encrypt("same-password")
	require.NoError(t, err)
	b, err := c.Encrypt("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

// TestPurpose: Validates that flipping any single byte of a ciphertext is detected.
// Scope: Unit Test
// Security: Authenticated encryption; tampering must never yield a valid-looking password
// Expected: Decryption of every 1-byte mutation fails with ErrDecryptionFailed.
// Test Case ID: SEC-03
func TestSecrets_Cipher_TamperDetection(t *testing.T) {
	c, err := NewCipher("test-master-secret")
	require.NoError(t, err)

	ct, err := c.Encrypt("s3cr3t-password")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ct)
	require.NoError(t, err)

	for i := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01

		_, err := c.Decrypt(base64.StdEncoding.EncodeToString(mutated))
		assert.ErrorIs(t, err, ErrDecryptionFailed, "byte %d mutation must be detected", i)
	}
}

// TestPurpose: Validates that a ciphertext written under one master secret cannot be read under another.
// Scope: Unit Test
// Security: Key isolation between environments
// Expected: Decryption with a different master secret fails with ErrDecryptionFailed.
// Test Case ID: SEC-04
func TestSecrets_Cipher_WrongKeyFails(t *testing.T) {
	c1, err := NewCipher("master-secret-one")
	require.NoError(t, err)
	c2, err := NewCipher("master-secret-two")
	require.NoError(t, err)

	ct, err := c1.Encrypt("s3cr3t-password")
	require.NoError(t, err)

	_, err = c2.Decrypt(ct)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

// TestPurpose: Validates that malformed stored values are rejected before decryption is attempted.
// Scope: Unit Test
// Security: Robustness against catalog corruption
// Expected: Bad base64 and too-short inputs return ErrInvalidCiphertext, distinct from ErrDecryptionFailed.
// Test Case ID: SEC-05
func TestSecrets_Cipher_InvalidCiphertext(t *testing.T) {
	c, err := NewCipher("test-master-secret")
	require.NoError(t, err)

	_, err = c.Decrypt("not!!!base64")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	// Valid base64 but shorter than a GCM nonce.
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

// TestPurpose: Validates that a cipher cannot be constructed without a master secret.
// Scope: Unit Test
// Security: Fails closed on missing key material
// Expected: NewCipher("") returns ErrEmptyMasterSecret.
// Test Case ID: SEC-06
func TestSecrets_Cipher_EmptyMasterSecret(t *testing.T) {
	_, err := NewCipher("")
	assert.ErrorIs(t, err, ErrEmptyMasterSecret)
}

// TestPurpose: Validates that key derivation is deterministic across cipher instances.
// Scope: Unit Test
// Security: Ciphertexts must survive process restarts
// Expected: A second instance built from the same master secret decrypts the first instance's output.
// Test Case ID: SEC-07
func TestSecrets_Cipher_DeterministicDerivation(t *testing.T) {
	c1, err := NewCipher("shared-master-secret")
	require.NoError(t, err)
	c2, err := NewCipher("shared-master-secret")
	require.NoError(t, err)

	ct, err := c1.Encrypt("persisted-password")
	require.NoError(t, err)

	pt, err := c2.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "persisted-password", pt)
}
