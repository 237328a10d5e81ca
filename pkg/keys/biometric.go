package keys

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dmitrymomot/otpvault/pkg/aead"
)

// DefaultPromptTimeout bounds how long a biometric prompt may stay open.
const DefaultPromptTimeout = 30 * time.Second

// Operation is a single-use cipher handle bound to a hardware key.
// It refuses to Seal or Open until an Authenticator has authorized it,
// and it can be used exactly once.
type Operation interface {
	// Challenge identifies this operation to the authenticator.
	Challenge() []byte
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Keystore holds a non-exportable key and issues operations against it.
type Keystore interface {
	// Generate creates or replaces the key, bound to the current enrollment.
	Generate(ctx context.Context) error
	// Begin issues a fresh operation. It fails with ErrBiometricUnavailable
	// when no key exists and ErrKeyInvalidated after an enrollment change.
	Begin(ctx context.Context) (Operation, error)
	Delete(ctx context.Context) error
}

// Authenticator is the biometric prompt.
type Authenticator interface {
	// CanAuthenticate reports whether hardware is present and enrolled.
	CanAuthenticate(ctx context.Context) bool
	// Authenticate presents the prompt for op. It returns nil once op is
	// authorized, ErrBiometricCancelled when the user dismissed the prompt
	// and ErrBiometricRejected when the credential did not match.
	Authenticate(ctx context.Context, op Operation) error
}

// BiometricOption configures a BiometricWrapper.
type BiometricOption func(*BiometricWrapper)

// WithPromptTimeout overrides DefaultPromptTimeout.
func WithPromptTimeout(d time.Duration) BiometricOption {
	return func(w *BiometricWrapper) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithBiometricRand sets the entropy source for unwrapped session keys.
func WithBiometricRand(r io.Reader) BiometricOption {
	return func(w *BiometricWrapper) {
		if r != nil {
			w.rand = r
		}
	}
}

// BiometricWrapper wraps session keys with a biometric-gated hardware key.
// Blob layout: iv (12) || ciphertext || tag (16).
type BiometricWrapper struct {
	keystore Keystore
	auth     Authenticator
	timeout  time.Duration
	rand     io.Reader
}

// NewBiometricWrapper binds a keystore to the prompt that authorizes it.
func NewBiometricWrapper(ks Keystore, auth Authenticator, opts ...BiometricOption) *BiometricWrapper {
	w := &BiometricWrapper{
		keystore: ks,
		auth:     auth,
		timeout:  DefaultPromptTimeout,
		rand:     orRand(nil),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CanAuthenticate probes hardware support and enrollment.
func (w *BiometricWrapper) CanAuthenticate(ctx context.Context) bool {
	return w.keystore != nil && w.auth != nil && w.auth.CanAuthenticate(ctx)
}

// Enroll creates a fresh hardware key for the current enrollment.
func (w *BiometricWrapper) Enroll(ctx context.Context) error {
	if !w.CanAuthenticate(ctx) {
		return ErrBiometricUnavailable
	}
	return w.keystore.Generate(ctx)
}

// Forget deletes the hardware key.
func (w *BiometricWrapper) Forget(ctx context.Context) error {
	if w.keystore == nil {
		return nil
	}
	return w.keystore.Delete(ctx)
}

// Wrap encrypts the session key after a fresh biometric challenge.
func (w *BiometricWrapper) Wrap(ctx context.Context, sk *SessionKey) ([]byte, error) {
	if sk == nil {
		return nil, errors.Join(ErrWrapFailed, ErrInvalidSessionKey)
	}

	op, err := w.authorize(ctx)
	if err != nil {
		return nil, err
	}

	raw := sk.Bytes()
	defer aead.Wipe(raw)

	blob, err := op.Seal(raw)
	if err != nil {
		return nil, errors.Join(ErrWrapFailed, err)
	}
	return blob, nil
}

// Unwrap decrypts a biometric blob after a fresh biometric challenge.
func (w *BiometricWrapper) Unwrap(ctx context.Context, blob []byte) (*SessionKey, error) {
	if len(blob) < aead.Overhead {
		return nil, errors.Join(ErrUnwrapFailed, aead.ErrMalformedCiphertext)
	}

	op, err := w.authorize(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := op.Open(blob)
	if err != nil {
		return nil, errors.Join(ErrUnwrapFailed, err)
	}
	defer aead.Wipe(raw)

	sk, err := NewSessionKey(raw, w.rand)
	if err != nil {
		return nil, errors.Join(ErrUnwrapFailed, err)
	}
	return sk, nil
}

// authorize issues a new operation and runs the prompt for it.
func (w *BiometricWrapper) authorize(ctx context.Context) (Operation, error) {
	if !w.CanAuthenticate(ctx) {
		return nil, ErrBiometricUnavailable
	}

	op, err := w.keystore.Begin(ctx)
	if err != nil {
		return nil, err
	}

	promptCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	err = w.auth.Authenticate(promptCtx, op)
	switch {
	case err == nil:
		return op, nil
	case errors.Is(promptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, errors.Join(ErrBiometricCancelled, ErrBiometricTimeout)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, errors.Join(ErrBiometricCancelled, err)
	case errors.Is(err, ErrBiometricCancelled), errors.Is(err, ErrBiometricRejected),
		errors.Is(err, ErrBiometricUnavailable):
		return nil, err
	default:
		// unknown prompt failures count as a failed attempt, not a dismissal
		return nil, errors.Join(ErrBiometricRejected, err)
	}
}
