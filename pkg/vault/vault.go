package vault

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/otpvault/pkg/aead"
	"github.com/dmitrymomot/otpvault/pkg/keys"
	"github.com/dmitrymomot/otpvault/pkg/logger"
)

// Vault coordinates the key hierarchy and the stored secrets.
type Vault struct {
	secrets           SecretStore
	prefs             PreferenceStore
	bio               BiometricUnlocker
	log               *slog.Logger
	rand              io.Reader
	now               func() time.Time
	iterations        int
	requireProtection bool

	// mu serializes transitions and entry writes; readers of the store
	// hold it shared so they never see a half-rotated set.
	mu sync.RWMutex

	// keyMu guards key and level, which change together in commit.
	keyMu sync.RWMutex
	key   *keys.SessionKey
	level Level
}

// New creates a Vault. Call Open before use to load the protection level.
func New(secrets SecretStore, prefs PreferenceStore, opts ...Option) *Vault {
	v := &Vault{
		secrets:    secrets,
		prefs:      prefs,
		log:        slog.Default(),
		rand:       rand.Reader,
		now:        time.Now,
		iterations: keys.DefaultIterations,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.With(logger.Component("vault"))
	return v
}

// Open derives the protection level from the stored blobs. A protected
// vault starts locked.
func (v *Vault) Open(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	pw, err := v.prefs.Get(ctx, KeyPasswordBlob)
	if err != nil {
		return err
	}
	bio, err := v.prefs.Get(ctx, KeyBiometricBlob)
	if err != nil {
		return err
	}

	level := Unprotected
	switch {
	case len(pw) > 0 && len(bio) > 0:
		level = BiometricEnabled
	case len(pw) > 0:
		level = PasswordProtected
	case len(bio) > 0:
		v.log.WarnContext(ctx, "biometric blob without password blob, ignoring it")
	}

	v.commit(level, nil)
	v.log.DebugContext(ctx, "vault opened", logger.Level(level))
	return nil
}

// Level reports the current protection level. It is known even while locked.
func (v *Vault) Level() Level {
	v.keyMu.RLock()
	defer v.keyMu.RUnlock()
	return v.level
}

// Locked reports whether a password is set but no session key is loaded.
func (v *Vault) Locked() bool {
	v.keyMu.RLock()
	defer v.keyMu.RUnlock()
	return v.level != Unprotected && v.key == nil
}

// Lock destroys the in-memory session key.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.keyMu.Lock()
	defer v.keyMu.Unlock()
	if v.key != nil {
		v.key.Destroy()
		v.key = nil
	}
}

// CanUseBiometric reports whether biometric unlock can be offered now.
func (v *Vault) CanUseBiometric(ctx context.Context) bool {
	return v.bio != nil && v.Level() == BiometricEnabled && v.bio.CanAuthenticate(ctx)
}

// EncryptSecret seals plaintext with the session key. Without a password the
// plaintext is returned as is, unless protection is required.
func (v *Vault) EncryptSecret(plaintext []byte) ([]byte, error) {
	v.keyMu.RLock()
	defer v.keyMu.RUnlock()

	switch {
	case v.key != nil:
		return v.key.Encrypt(plaintext)
	case v.level != Unprotected:
		return nil, ErrLocked
	case v.requireProtection:
		return nil, ErrNotProtected
	default:
		return bytes.Clone(plaintext), nil
	}
}

// DecryptSecret reverses EncryptSecret. Authentication failures are
// reported as ErrCorruptedSecret, never as a wrong password.
func (v *Vault) DecryptSecret(stored []byte) ([]byte, error) {
	v.keyMu.RLock()
	defer v.keyMu.RUnlock()

	switch {
	case v.key != nil:
		return openWith(v.key, stored)
	case v.level != Unprotected:
		return nil, ErrLocked
	default:
		return bytes.Clone(stored), nil
	}
}

// commit swaps level and key in one step. The previous key is destroyed
// unless it is the one being installed.
func (v *Vault) commit(level Level, key *keys.SessionKey) {
	v.keyMu.Lock()
	defer v.keyMu.Unlock()

	if v.key != nil && v.key != key {
		v.key.Destroy()
	}
	v.key = key
	v.level = level
}

func (v *Vault) currentKey() *keys.SessionKey {
	v.keyMu.RLock()
	defer v.keyMu.RUnlock()
	return v.key
}

func (v *Vault) passwordWrapper(password string) (*keys.PasswordWrapper, error) {
	return keys.NewPasswordWrapper(password,
		keys.WithIterations(v.iterations),
		keys.WithPasswordRand(v.rand),
	)
}

// unwrapPassword loads the password blob and unwraps it.
func (v *Vault) unwrapPassword(ctx context.Context, password string) (*keys.SessionKey, error) {
	blob, err := v.prefs.Get(ctx, KeyPasswordBlob)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		return nil, ErrNotProtected
	}
	w, err := v.passwordWrapper(password)
	if err != nil {
		return nil, err
	}
	return w.Unwrap(ctx, blob)
}

// sealWith encrypts with key, or copies when key is nil (cleartext storage).
func sealWith(key *keys.SessionKey, plaintext []byte) ([]byte, error) {
	if key == nil {
		return bytes.Clone(plaintext), nil
	}
	return key.Encrypt(plaintext)
}

func openWith(key *keys.SessionKey, stored []byte) ([]byte, error) {
	if key == nil {
		return bytes.Clone(stored), nil
	}
	plain, err := key.Decrypt(stored)
	if err != nil {
		if errors.Is(err, aead.ErrDecryptionFailed) || errors.Is(err, aead.ErrMalformedCiphertext) {
			return nil, errors.Join(ErrCorruptedSecret, err)
		}
		return nil, err
	}
	return plain, nil
}
