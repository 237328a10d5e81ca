package keys_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/otpvault/pkg/aead"
	"github.com/dmitrymomot/otpvault/pkg/keys"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	t.Parallel()

	salt := bytes.Repeat([]byte{7}, keys.SaltSize)

	a, err := keys.DeriveKey("correct horse", salt, keys.MinIterations)
	require.NoError(t, err)
	b, err := keys.DeriveKey("correct horse", salt, keys.MinIterations)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, aead.KeySize)

	otherSalt := bytes.Repeat([]byte{8}, keys.SaltSize)
	c, err := keys.DeriveKey("correct horse", otherSalt, keys.MinIterations)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestDeriveKeyNormalizesPassword(t *testing.T) {
	t.Parallel()

	salt := bytes.Repeat([]byte{1}, keys.SaltSize)

	// "é" precomposed vs. "e" + combining acute accent
	composed, err := keys.DeriveKey("caf\u00e9", salt, keys.MinIterations)
	require.NoError(t, err)
	decomposed, err := keys.DeriveKey("cafe\u0301", salt, keys.MinIterations)
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestDeriveKeyValidation(t *testing.T) {
	t.Parallel()

	salt := make([]byte, keys.SaltSize)

	_, err := keys.DeriveKey("", salt, keys.MinIterations)
	assert.ErrorIs(t, err, keys.ErrEmptyPassword)

	_, err = keys.DeriveKey("pw", salt[:8], keys.MinIterations)
	assert.ErrorIs(t, err, keys.ErrInvalidSalt)

	_, err = keys.DeriveKey("pw", salt, keys.MinIterations-1)
	assert.ErrorIs(t, err, keys.ErrWeakIterations)
}

func TestPasswordRoundTrip(t *testing.T) {
	t.Parallel()

	sk, err := keys.GenerateSessionKey(nil)
	require.NoError(t, err)

	blob, err := keys.WrapWithPassword(sk, "hunter2")
	require.NoError(t, err)
	assert.Len(t, blob, keys.SaltSize+aead.Overhead+aead.KeySize)

	got, err := keys.UnwrapWithPassword(blob, "hunter2")
	require.NoError(t, err)
	assert.True(t, sk.Equal(got))
	assert.Equal(t, sk.Bytes(), got.Bytes())
}

func TestPasswordWrongPassword(t *testing.T) {
	t.Parallel()

	sk, err := keys.GenerateSessionKey(nil)
	require.NoError(t, err)

	blob, err := keys.WrapWithPassword(sk, "hunter2")
	require.NoError(t, err)

	got, err := keys.UnwrapWithPassword(blob, "hunter3")
	assert.ErrorIs(t, err, keys.ErrWrongPassword)
	assert.Nil(t, got)
}

func TestPasswordWrapUsesFreshSalt(t *testing.T) {
	t.Parallel()

	sk, err := keys.GenerateSessionKey(nil)
	require.NoError(t, err)

	a, err := keys.WrapWithPassword(sk, "pw")
	require.NoError(t, err)
	b, err := keys.WrapWithPassword(sk, "pw")
	require.NoError(t, err)

	assert.NotEqual(t, a[:keys.SaltSize], b[:keys.SaltSize])
}

func TestPasswordUnwrapTamperedSalt(t *testing.T) {
	t.Parallel()

	sk, err := keys.GenerateSessionKey(nil)
	require.NoError(t, err)

	blob, err := keys.WrapWithPassword(sk, "pw")
	require.NoError(t, err)

	// a different salt derives a different key: indistinguishable from a wrong password
	blob[0] ^= 0x01
	_, err = keys.UnwrapWithPassword(blob, "pw")
	assert.ErrorIs(t, err, keys.ErrWrongPassword)
}

func TestPasswordUnwrapMalformed(t *testing.T) {
	t.Parallel()

	_, err := keys.UnwrapWithPassword(make([]byte, keys.SaltSize+aead.Overhead-1), "pw")
	assert.ErrorIs(t, err, aead.ErrMalformedCiphertext)
	assert.NotErrorIs(t, err, keys.ErrWrongPassword)
}

func TestPasswordWrapperIterationsMustMatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sk, err := keys.GenerateSessionKey(nil)
	require.NoError(t, err)

	strong, err := keys.NewPasswordWrapper("pw", keys.WithIterations(keys.MinIterations+1))
	require.NoError(t, err)
	blob, err := strong.Wrap(ctx, sk)
	require.NoError(t, err)

	def, err := keys.NewPasswordWrapper("pw")
	require.NoError(t, err)
	_, err = def.Unwrap(ctx, blob)
	assert.ErrorIs(t, err, keys.ErrWrongPassword)

	got, err := strong.Unwrap(ctx, blob)
	require.NoError(t, err)
	assert.True(t, sk.Equal(got))

	_, err = keys.NewPasswordWrapper("pw", keys.WithIterations(10))
	assert.ErrorIs(t, err, keys.ErrWeakIterations)

	_, err = keys.NewPasswordWrapper("")
	assert.ErrorIs(t, err, keys.ErrEmptyPassword)
}
