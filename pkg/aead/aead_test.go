package aead_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/otpvault/pkg/aead"
)

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := aead.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"rfc4226 seed", []byte("12345678901234567890")},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80}},
		{"large", bytes.Repeat([]byte("x"), 64*1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sealed, err := aead.Seal(key, tt.plaintext)
			require.NoError(t, err)
			assert.Len(t, sealed, len(tt.plaintext)+aead.Overhead)

			plain, err := aead.Open(key, sealed)
			require.NoError(t, err)
			assert.NotNil(t, plain)
			assert.Equal(t, tt.plaintext, plain)
		})
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	t.Parallel()

	key, err := aead.GenerateKey()
	require.NoError(t, err)

	a, err := aead.Seal(key, []byte("same"))
	require.NoError(t, err)
	b, err := aead.Seal(key, []byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a[:aead.NonceSize], b[:aead.NonceSize])
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsEveryBitFlip(t *testing.T) {
	t.Parallel()

	key, err := aead.GenerateKey()
	require.NoError(t, err)

	sealed, err := aead.Seal(key, []byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	for i := range sealed {
		for bit := range 8 {
			tampered := bytes.Clone(sealed)
			tampered[i] ^= 1 << bit

			plain, err := aead.Open(key, tampered)
			require.ErrorIs(t, err, aead.ErrDecryptionFailed, "byte %d bit %d", i, bit)
			require.Nil(t, plain)
		}
	}
}

func TestOpenWithWrongKey(t *testing.T) {
	t.Parallel()

	key, err := aead.GenerateKey()
	require.NoError(t, err)
	other, err := aead.GenerateKey()
	require.NoError(t, err)

	sealed, err := aead.Seal(key, []byte("secret"))
	require.NoError(t, err)

	_, err = aead.Open(other, sealed)
	assert.ErrorIs(t, err, aead.ErrDecryptionFailed)
}

func TestOpenMalformed(t *testing.T) {
	t.Parallel()

	key, err := aead.GenerateKey()
	require.NoError(t, err)

	_, err = aead.Open(key, make([]byte, aead.Overhead-1))
	assert.ErrorIs(t, err, aead.ErrMalformedCiphertext)

	_, err = aead.Open(key, nil)
	assert.ErrorIs(t, err, aead.ErrMalformedCiphertext)
}

func TestInvalidKeyLength(t *testing.T) {
	t.Parallel()

	_, err := aead.Seal(make([]byte, 16), []byte("x"))
	assert.ErrorIs(t, err, aead.ErrInvalidKeyLength)
	assert.ErrorIs(t, err, aead.ErrEncryptionFailed)

	_, err = aead.Open(make([]byte, 31), make([]byte, 64))
	assert.ErrorIs(t, err, aead.ErrInvalidKeyLength)
}

func TestSealWithFailingRand(t *testing.T) {
	t.Parallel()

	key, err := aead.GenerateKey()
	require.NoError(t, err)

	_, err = aead.SealWithRand(errReader{}, key, []byte("x"))
	assert.ErrorIs(t, err, aead.ErrEncryptionFailed)

	_, err = aead.GenerateKeyWithRand(errReader{})
	assert.ErrorIs(t, err, aead.ErrKeyGenerationFailed)
}

func TestEncryptDecryptString(t *testing.T) {
	t.Parallel()

	key, err := aead.GenerateKey()
	require.NoError(t, err)

	for _, s := range []string{"", "hello", "Hello 世界 🌍"} {
		enc, err := aead.EncryptString(key, s)
		require.NoError(t, err)

		dec, err := aead.DecryptString(key, enc)
		require.NoError(t, err)
		assert.Equal(t, s, dec)
	}

	_, err = aead.DecryptString(key, "not base64!!")
	assert.ErrorIs(t, err, aead.ErrMalformedCiphertext)
}

func TestWipe(t *testing.T) {
	t.Parallel()

	b := []byte{1, 2, 3}
	aead.Wipe(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }
