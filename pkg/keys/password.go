package keys

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/dmitrymomot/otpvault/pkg/aead"
)

const (
	// MinIterations is the lowest PBKDF2 iteration count accepted.
	MinIterations = 100_000
	// DefaultIterations is used when no iteration count is configured.
	DefaultIterations = MinIterations
	// SaltSize is the length of the random salt stored in front of a password blob.
	SaltSize = 16
)

// DeriveKey derives a 256-bit key from a password with PBKDF2-HMAC-SHA256.
// The password is NFKC-normalized first.
func DeriveKey(password string, salt []byte, iterations int) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	if len(salt) != SaltSize {
		return nil, ErrInvalidSalt
	}
	if iterations < MinIterations {
		return nil, ErrWeakIterations
	}
	normalized := norm.NFKC.String(password)
	return pbkdf2.Key([]byte(normalized), salt, iterations, aead.KeySize, sha256.New), nil
}

// PasswordOption configures a PasswordWrapper.
type PasswordOption func(*PasswordWrapper)

// WithIterations overrides the PBKDF2 iteration count.
// Blobs can only be unwrapped with the count they were wrapped with.
func WithIterations(n int) PasswordOption {
	return func(w *PasswordWrapper) { w.iterations = n }
}

// WithPasswordRand sets the entropy source for salts, nonces and unwrapped keys.
func WithPasswordRand(r io.Reader) PasswordOption {
	return func(w *PasswordWrapper) {
		if r != nil {
			w.rand = r
		}
	}
}

// PasswordWrapper wraps session keys under a password-derived key.
// Blob layout: salt (16) || iv (12) || ciphertext || tag (16).
type PasswordWrapper struct {
	password   string
	iterations int
	rand       io.Reader
}

// NewPasswordWrapper validates the password and options.
func NewPasswordWrapper(password string, opts ...PasswordOption) (*PasswordWrapper, error) {
	w := &PasswordWrapper{
		password:   password,
		iterations: DefaultIterations,
		rand:       orRand(nil),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.password == "" {
		return nil, ErrEmptyPassword
	}
	if w.iterations < MinIterations {
		return nil, ErrWeakIterations
	}
	return w, nil
}

// Wrap encrypts the session key under a key derived with a fresh salt.
func (w *PasswordWrapper) Wrap(_ context.Context, sk *SessionKey) ([]byte, error) {
	if sk == nil {
		return nil, errors.Join(ErrWrapFailed, ErrInvalidSessionKey)
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(w.rand, salt); err != nil {
		return nil, errors.Join(ErrWrapFailed, err)
	}

	kek, err := DeriveKey(w.password, salt, w.iterations)
	if err != nil {
		return nil, errors.Join(ErrWrapFailed, err)
	}
	defer aead.Wipe(kek)

	raw := sk.Bytes()
	defer aead.Wipe(raw)

	sealed, err := aead.SealWithRand(w.rand, kek, raw)
	if err != nil {
		return nil, errors.Join(ErrWrapFailed, err)
	}

	blob := make([]byte, 0, SaltSize+len(sealed))
	blob = append(blob, salt...)
	return append(blob, sealed...), nil
}

// Unwrap re-derives the key from the blob's salt and decrypts the session key.
// A tag mismatch is reported as ErrWrongPassword and nothing else.
func (w *PasswordWrapper) Unwrap(_ context.Context, blob []byte) (*SessionKey, error) {
	if len(blob) < SaltSize+aead.Overhead {
		return nil, errors.Join(ErrUnwrapFailed, aead.ErrMalformedCiphertext)
	}
	salt, sealed := blob[:SaltSize], blob[SaltSize:]

	kek, err := DeriveKey(w.password, salt, w.iterations)
	if err != nil {
		return nil, errors.Join(ErrUnwrapFailed, err)
	}
	defer aead.Wipe(kek)

	raw, err := aead.Open(kek, sealed)
	if err != nil {
		if errors.Is(err, aead.ErrDecryptionFailed) {
			return nil, ErrWrongPassword
		}
		return nil, errors.Join(ErrUnwrapFailed, err)
	}
	defer aead.Wipe(raw)

	sk, err := NewSessionKey(raw, w.rand)
	if err != nil {
		return nil, errors.Join(ErrUnwrapFailed, err)
	}
	return sk, nil
}

// WrapWithPassword wraps sk with password using default parameters.
func WrapWithPassword(sk *SessionKey, password string) ([]byte, error) {
	w, err := NewPasswordWrapper(password)
	if err != nil {
		return nil, errors.Join(ErrWrapFailed, err)
	}
	return w.Wrap(context.Background(), sk)
}

// UnwrapWithPassword unwraps a blob produced by WrapWithPassword.
func UnwrapWithPassword(blob []byte, password string) (*SessionKey, error) {
	w, err := NewPasswordWrapper(password)
	if err != nil {
		return nil, errors.Join(ErrUnwrapFailed, err)
	}
	return w.Unwrap(context.Background(), blob)
}
