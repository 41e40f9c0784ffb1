package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	enc, err := c.Encrypt("ya29.access-token")
	require.NoError(t, err)
	assert.NotEqual(t, "ya29.access-token", enc)

	dec, err := c.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", dec)
}

func TestCipher_NonceIsRandom(t *testing.T) {
	c, err := NewCipher("test-secret")
	require.NoError(t, err)

	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCipher_SameSecretDerivesSameKey(t *testing.T) {
	c1, err := NewCipher("shared")
	require.NoError(t, err)
	c2, err := NewCipher("shared")
	require.NoError(t, err)

	enc, err := c1.Encrypt("refresh-token")
	require.NoError(t, err)
	dec, err := c2.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "refresh-token", dec)
}

func TestCipher_Errors(t *testing.T) {
	_, err := NewCipher("")
	assert.ErrorIs(t, err, ErrEmptySecret)

	c, err := NewCipher("secret-a")
	require.NoError(t, err)
	other, err := NewCipher("secret-b")
	require.NoError(t, err)

	_, err = c.Decrypt("")
	assert.ErrorIs(t, err, ErrEmptyCiphertext)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	enc, err := c.Encrypt("token")
	require.NoError(t, err)
	_, err = other.Decrypt(enc)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	raw, _ := base64.StdEncoding.DecodeString(enc)
	raw[len(raw)-1] ^= 0xff
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}
