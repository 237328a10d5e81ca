package vault

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/otpvault/pkg/keys"
	"github.com/dmitrymomot/otpvault/pkg/otp"
)

// Preference keys owned by the vault.
const (
	KeyPasswordBlob  = "vault.password_blob"
	KeyBiometricBlob = "vault.biometric_blob"
)

// Entry is one stored OTP account. Descriptor.Secret holds the stored form:
// ciphertext while a password is set, cleartext otherwise.
type Entry struct {
	ID         uuid.UUID      `json:"id"`
	Descriptor otp.Descriptor `json:"descriptor"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SecretStore persists entries. Get and Delete return ErrEntryNotFound for
// unknown IDs. UpdateAll must replace the given rows atomically: either all
// of them are written or none.
type SecretStore interface {
	GetAll(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id uuid.UUID) (Entry, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateAll(ctx context.Context, entries []Entry) error
}

// PreferenceStore is a durable key-value store. Get returns nil, nil for a
// missing key. Watch streams every new value of key until ctx is done;
// a deletion is delivered as an empty value.
type PreferenceStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context, key string) (<-chan []byte, error)
}

// BiometricUnlocker wraps the session key behind a biometric prompt.
// *keys.BiometricWrapper implements it.
type BiometricUnlocker interface {
	CanAuthenticate(ctx context.Context) bool
	Enroll(ctx context.Context) error
	Forget(ctx context.Context) error
	Wrap(ctx context.Context, sk *keys.SessionKey) ([]byte, error)
	Unwrap(ctx context.Context, blob []byte) (*keys.SessionKey, error)
}
