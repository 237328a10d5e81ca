package vault

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/otpvault/pkg/aead"
	"github.com/dmitrymomot/otpvault/pkg/logger"
	"github.com/dmitrymomot/otpvault/pkg/otp"
)

// AddEntry validates d, encrypts its secret and stores it. The returned
// entry carries the plaintext descriptor.
func (v *Vault) AddEntry(ctx context.Context, d otp.Descriptor) (Entry, error) {
	d = d.WithDefaults()
	if err := d.Validate(); err != nil {
		return Entry{}, errors.Join(ErrInvalidEntry, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	sealed, err := v.EncryptSecret(d.Secret)
	if err != nil {
		return Entry{}, err
	}

	now := v.now()
	e := Entry{ID: uuid.New(), Descriptor: d, CreatedAt: now, UpdatedAt: now}
	stored := e
	stored.Descriptor.Secret = sealed
	if err := v.secrets.Put(ctx, stored); err != nil {
		return Entry{}, err
	}

	v.log.DebugContext(ctx, "entry added", logger.EntryID(e.ID))
	return e, nil
}

// Entries returns every entry with its secret decrypted.
func (v *Vault) Entries(ctx context.Context) ([]Entry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	stored, err := v.secrets.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(stored))
	for _, e := range stored {
		plain, err := v.DecryptSecret(e.Descriptor.Secret)
		if err != nil {
			return nil, err
		}
		e.Descriptor.Secret = plain
		out = append(out, e)
	}
	return out, nil
}

// Entry returns one entry with its secret decrypted.
func (v *Vault) Entry(ctx context.Context, id uuid.UUID) (Entry, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.load(ctx, id)
}

// DeleteEntry removes an entry. Unknown IDs yield ErrEntryNotFound.
func (v *Vault) DeleteEntry(ctx context.Context, id uuid.UUID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.secrets.Delete(ctx, id)
}

// Code returns the TOTP code of entry id at the given time. Callers pass
// corrected time from the clock source.
func (v *Vault) Code(ctx context.Context, id uuid.UUID, at time.Time) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	e, err := v.load(ctx, id)
	if err != nil {
		return "", err
	}
	defer aead.Wipe(e.Descriptor.Secret)
	return e.Descriptor.Code(at)
}

// NextCounterCode advances the HOTP counter of entry id by one, persists it
// and only then returns the code for the new counter.
func (v *Vault) NextCounterCode(ctx context.Context, id uuid.UUID) (string, error) {
	ctx = logger.WithOperation(ctx, "next_counter_code")
	v.mu.Lock()
	defer v.mu.Unlock()

	stored, err := v.secrets.Get(ctx, id)
	if err != nil {
		return "", err
	}
	plain, err := v.DecryptSecret(stored.Descriptor.Secret)
	if err != nil {
		return "", err
	}
	defer aead.Wipe(plain)

	d := stored.Descriptor
	d.Secret = plain
	next, code, err := d.Next()
	if err != nil {
		return "", err
	}

	stored.Descriptor.Counter = next.Counter
	stored.UpdatedAt = v.now()
	if err := v.secrets.Put(ctx, stored); err != nil {
		return "", err
	}

	v.log.DebugContext(ctx, "counter advanced", logger.EntryID(id), "counter", next.Counter)
	return code, nil
}

func (v *Vault) load(ctx context.Context, id uuid.UUID) (Entry, error) {
	e, err := v.secrets.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	plain, err := v.DecryptSecret(e.Descriptor.Secret)
	if err != nil {
		return Entry{}, err
	}
	e.Descriptor.Secret = plain
	return e, nil
}
