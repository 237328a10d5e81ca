package keys

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"io"

	"github.com/dmitrymomot/otpvault/pkg/aead"
)

// Wrapper protects a SessionKey with another key. The password and
// biometric paths both implement it and must yield byte-identical keys.
type Wrapper interface {
	Wrap(ctx context.Context, sk *SessionKey) ([]byte, error)
	Unwrap(ctx context.Context, blob []byte) (*SessionKey, error)
}

// SessionKey is the in-memory master key that encrypts stored OTP secrets.
// It is never persisted in plaintext.
type SessionKey struct {
	key  []byte
	rand io.Reader
}

// GenerateSessionKey creates a fresh random session key. A nil reader means crypto/rand.
func GenerateSessionKey(r io.Reader) (*SessionKey, error) {
	r = orRand(r)
	key, err := aead.GenerateKeyWithRand(r)
	if err != nil {
		return nil, err
	}
	return &SessionKey{key: key, rand: r}, nil
}

// NewSessionKey builds a session key from raw bytes. The bytes are copied.
func NewSessionKey(raw []byte, r io.Reader) (*SessionKey, error) {
	if len(raw) != aead.KeySize {
		return nil, ErrInvalidSessionKey
	}
	key := make([]byte, aead.KeySize)
	copy(key, raw)
	return &SessionKey{key: key, rand: orRand(r)}, nil
}

// Encrypt seals a secret under the session key.
func (k *SessionKey) Encrypt(plaintext []byte) ([]byte, error) {
	return aead.SealWithRand(k.rand, k.key, plaintext)
}

// Decrypt opens a secret sealed by Encrypt.
func (k *SessionKey) Decrypt(ciphertext []byte) ([]byte, error) {
	return aead.Open(k.key, ciphertext)
}

// Bytes returns a copy of the raw key. Callers should Wipe it after use.
func (k *SessionKey) Bytes() []byte {
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}

// Equal reports whether both keys hold the same bytes, in constant time.
func (k *SessionKey) Equal(other *SessionKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.key, other.key) == 1
}

// Destroy zeroes the key. The SessionKey is unusable afterwards.
func (k *SessionKey) Destroy() {
	if k == nil {
		return
	}
	aead.Wipe(k.key)
}

func orRand(r io.Reader) io.Reader {
	if r == nil {
		return rand.Reader
	}
	return r
}
