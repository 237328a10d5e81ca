package keys

import (
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/dmitrymomot/otpvault/pkg/aead"
)

// hkdfInfo separates the biometric wrapping key from any other use of the device secret.
const hkdfInfo = "otpvault-biometric-v1"

// EnrollmentFunc returns a fingerprint of the biometric enrollment set on the
// device. Any change of the returned value invalidates the keystore key.
type EnrollmentFunc func(ctx context.Context) (string, error)

// SoftwareKeystore is a Keystore for platforms without a secure element.
// The key lives in process memory, which is weaker than hardware confinement:
// it is only as safe as the process itself.
type SoftwareKeystore struct {
	mu          sync.Mutex
	secret      []byte
	boundTo     string
	invalidated bool
	enrollment  EnrollmentFunc
	rand        io.Reader
}

// NewSoftwareKeystore creates an empty keystore. A nil reader means crypto/rand.
func NewSoftwareKeystore(enrollment EnrollmentFunc, r io.Reader) *SoftwareKeystore {
	return &SoftwareKeystore{enrollment: enrollment, rand: orRand(r)}
}

// Generate replaces any existing key with one bound to the current enrollment.
func (s *SoftwareKeystore) Generate(ctx context.Context) error {
	fingerprint, err := s.currentEnrollment(ctx)
	if err != nil {
		return err
	}

	secret, err := aead.GenerateKeyWithRand(s.rand)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	aead.Wipe(s.secret)
	s.secret = secret
	s.boundTo = fingerprint
	s.invalidated = false
	return nil
}

// Begin issues an unauthorized single-use operation.
func (s *SoftwareKeystore) Begin(ctx context.Context) (Operation, error) {
	fingerprint, err := s.currentEnrollment(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.invalidated {
		return nil, ErrKeyInvalidated
	}
	if s.secret == nil {
		return nil, ErrBiometricUnavailable
	}
	if fingerprint != s.boundTo {
		// permanent: the old key is gone even if the enrollment is restored
		aead.Wipe(s.secret)
		s.secret = nil
		s.invalidated = true
		return nil, ErrKeyInvalidated
	}

	key := make([]byte, aead.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, s.secret, []byte(s.boundTo), []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}

	challenge := make([]byte, 32)
	if _, err := io.ReadFull(s.rand, challenge); err != nil {
		aead.Wipe(key)
		return nil, err
	}

	return &softOperation{owner: s, key: key, challenge: challenge, rand: s.rand}, nil
}

// Confirm authorizes an operation issued by this keystore. Platform prompts
// call it once the user has passed the biometric check.
func (s *SoftwareKeystore) Confirm(op Operation) error {
	so, ok := op.(*softOperation)
	if !ok || so.owner != s {
		return ErrForeignOperation
	}
	so.mu.Lock()
	defer so.mu.Unlock()
	if so.used {
		return ErrOperationUsed
	}
	so.authorized = true
	return nil
}

// Delete removes the key. Blobs wrapped by it become unrecoverable.
func (s *SoftwareKeystore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	aead.Wipe(s.secret)
	s.secret = nil
	s.boundTo = ""
	s.invalidated = false
	return nil
}

func (s *SoftwareKeystore) currentEnrollment(ctx context.Context) (string, error) {
	if s.enrollment == nil {
		return "", ErrBiometricUnavailable
	}
	fingerprint, err := s.enrollment(ctx)
	if err != nil {
		return "", errors.Join(ErrBiometricUnavailable, err)
	}
	return fingerprint, nil
}

type softOperation struct {
	mu         sync.Mutex
	owner      *SoftwareKeystore
	key        []byte
	challenge  []byte
	rand       io.Reader
	authorized bool
	used       bool
}

func (o *softOperation) Challenge() []byte {
	out := make([]byte, len(o.challenge))
	copy(out, o.challenge)
	return out
}

func (o *softOperation) Seal(plaintext []byte) ([]byte, error) {
	if err := o.consume(); err != nil {
		return nil, err
	}
	defer aead.Wipe(o.key)
	return aead.SealWithRand(o.rand, o.key, plaintext)
}

func (o *softOperation) Open(sealed []byte) ([]byte, error) {
	if err := o.consume(); err != nil {
		return nil, err
	}
	defer aead.Wipe(o.key)
	return aead.Open(o.key, sealed)
}

func (o *softOperation) consume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.authorized {
		return ErrNotAuthorized
	}
	if o.used {
		return ErrOperationUsed
	}
	o.used = true
	return nil
}
