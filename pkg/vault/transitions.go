package vault

import (
	"context"
	"errors"

	"github.com/dmitrymomot/otpvault/pkg/aead"
	"github.com/dmitrymomot/otpvault/pkg/keys"
	"github.com/dmitrymomot/otpvault/pkg/logger"
)

// prefChange is one preference write of a transition. A nil value deletes.
type prefChange struct {
	key   string
	value []byte
}

// SetupPassword protects an unprotected vault: a new session key is wrapped
// with password and every stored secret is encrypted under it. The vault is
// unlocked afterwards.
func (v *Vault) SetupPassword(ctx context.Context, password string) error {
	ctx = logger.WithOperation(ctx, string(evSetupPassword))
	v.mu.Lock()
	defer v.mu.Unlock()

	to, err := nextLevel(v.Level(), evSetupPassword)
	if err != nil {
		return err
	}

	w, err := v.passwordWrapper(password)
	if err != nil {
		return err
	}

	sk, err := v.rotate(ctx, nil, func(sk *keys.SessionKey) ([]prefChange, error) {
		blob, err := w.Wrap(ctx, sk)
		if err != nil {
			return nil, err
		}
		return []prefChange{{KeyPasswordBlob, blob}}, nil
	})
	if err != nil {
		return err
	}

	v.commit(to, sk)
	v.log.InfoContext(ctx, "password protection enabled", logger.Level(to))
	return nil
}

// ChangePassword re-keys the vault. The current password must unwrap the
// stored blob. A brand-new session key replaces the old one, every secret is
// re-encrypted and the biometric blob is cleared, since it wraps the old key.
func (v *Vault) ChangePassword(ctx context.Context, current, next string) error {
	ctx = logger.WithOperation(ctx, string(evChangePassword))
	v.mu.Lock()
	defer v.mu.Unlock()

	from := v.Level()
	to, err := nextLevel(from, evChangePassword)
	if err != nil {
		return err
	}

	w, err := v.passwordWrapper(next)
	if err != nil {
		return err
	}

	old, err := v.unwrapPassword(ctx, current)
	if err != nil {
		return err
	}
	defer old.Destroy()

	sk, err := v.rotate(ctx, old, func(sk *keys.SessionKey) ([]prefChange, error) {
		blob, err := w.Wrap(ctx, sk)
		if err != nil {
			return nil, err
		}
		return []prefChange{
			{KeyPasswordBlob, blob},
			{KeyBiometricBlob, nil},
		}, nil
	})
	if err != nil {
		return err
	}

	if from == BiometricEnabled && v.bio != nil {
		v.forgetBiometric(ctx)
	}
	v.commit(to, sk)
	v.log.InfoContext(ctx, "password changed", logger.Level(to))
	return nil
}

// RemovePassword decrypts every secret back to cleartext and deletes both
// blobs. The current password is required.
func (v *Vault) RemovePassword(ctx context.Context, current string) error {
	ctx = logger.WithOperation(ctx, string(evRemovePassword))
	v.mu.Lock()
	defer v.mu.Unlock()

	from := v.Level()
	to, err := nextLevel(from, evRemovePassword)
	if err != nil {
		return err
	}

	old, err := v.unwrapPassword(ctx, current)
	if err != nil {
		return err
	}
	defer old.Destroy()

	if err := v.reseal(ctx, old, nil, []prefChange{
		{KeyPasswordBlob, nil},
		{KeyBiometricBlob, nil},
	}); err != nil {
		return err
	}

	if from == BiometricEnabled && v.bio != nil {
		v.forgetBiometric(ctx)
	}
	v.commit(to, nil)
	v.log.InfoContext(ctx, "password protection removed", logger.Level(to))
	return nil
}

// EnableBiometric wraps the live session key with the biometric unlocker and
// stores the blob next to the password blob. The vault must be unlocked.
func (v *Vault) EnableBiometric(ctx context.Context) error {
	ctx = logger.WithOperation(ctx, string(evEnableBiometric))
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.bio == nil {
		return ErrBiometricNotConfigured
	}
	to, err := nextLevel(v.Level(), evEnableBiometric)
	if err != nil {
		return err
	}

	sk := v.currentKey()
	if sk == nil {
		return ErrLocked
	}
	if !v.bio.CanAuthenticate(ctx) {
		return keys.ErrBiometricUnavailable
	}

	if err := v.bio.Enroll(ctx); err != nil {
		return err
	}

	// sk stays valid: only commit or Lock destroy it and both need v.mu.
	blob, err := v.bio.Wrap(ctx, sk)
	if err != nil {
		v.forgetBiometric(ctx)
		return err
	}
	if err := v.prefs.Set(ctx, KeyBiometricBlob, blob); err != nil {
		v.forgetBiometric(ctx)
		return err
	}

	v.commit(to, sk)
	v.log.InfoContext(ctx, "biometric unlock enabled", logger.Level(to))
	return nil
}

// DisableBiometric deletes the biometric blob. The password path is
// untouched and the vault may stay locked.
func (v *Vault) DisableBiometric(ctx context.Context) error {
	ctx = logger.WithOperation(ctx, string(evDisableBiometric))
	v.mu.Lock()
	defer v.mu.Unlock()

	to, err := nextLevel(v.Level(), evDisableBiometric)
	if err != nil {
		return err
	}
	if err := v.prefs.Delete(ctx, KeyBiometricBlob); err != nil {
		return err
	}
	if v.bio != nil {
		v.forgetBiometric(ctx)
	}

	v.commit(to, v.currentKey())
	v.log.InfoContext(ctx, "biometric unlock disabled", logger.Level(to))
	return nil
}

// UnlockWithPassword loads the session key from the password blob.
// A wrong password yields keys.ErrWrongPassword.
func (v *Vault) UnlockWithPassword(ctx context.Context, password string) error {
	ctx = logger.WithOperation(ctx, "unlock_password")
	v.mu.Lock()
	defer v.mu.Unlock()

	level := v.Level()
	if level == Unprotected {
		return ErrNotProtected
	}

	sk, err := v.unwrapPassword(ctx, password)
	if err != nil {
		return err
	}

	v.commit(level, sk)
	v.log.DebugContext(ctx, "vault unlocked")
	return nil
}

// UnlockWithBiometric loads the session key through the biometric prompt.
// Cancellation and rejection surface as keys.ErrBiometricCancelled and
// keys.ErrBiometricRejected. When the hardware key was invalidated by an
// enrollment change the blob is kept and ErrBiometricInvalidated asks the
// caller to unlock with the password instead.
func (v *Vault) UnlockWithBiometric(ctx context.Context) error {
	ctx = logger.WithOperation(ctx, "unlock_biometric")
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.bio == nil {
		return ErrBiometricNotConfigured
	}
	level := v.Level()
	if level != BiometricEnabled {
		return ErrBiometricNotEnabled
	}

	blob, err := v.prefs.Get(ctx, KeyBiometricBlob)
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return ErrBiometricNotEnabled
	}

	sk, err := v.bio.Unwrap(ctx, blob)
	switch {
	case err == nil:
	case errors.Is(err, keys.ErrKeyInvalidated):
		v.log.WarnContext(ctx, "biometric key invalidated, password unlock required", logger.Error(err))
		return errors.Join(ErrBiometricInvalidated, err)
	default:
		return err
	}

	v.commit(level, sk)
	v.log.DebugContext(ctx, "vault unlocked")
	return nil
}

// rotate generates a new session key, re-encrypts every entry from old to
// the new key and persists the changes returned by wrap. On failure the new
// key is destroyed and nothing observable has changed.
func (v *Vault) rotate(
	ctx context.Context,
	old *keys.SessionKey,
	wrap func(*keys.SessionKey) ([]prefChange, error),
) (*keys.SessionKey, error) {
	sk, err := keys.GenerateSessionKey(v.rand)
	if err != nil {
		return nil, errors.Join(ErrRotationFailed, err)
	}

	staged, err := v.stage(ctx, old, sk)
	if err != nil {
		sk.Destroy()
		return nil, err
	}

	changes, err := wrap(sk)
	if err != nil {
		sk.Destroy()
		return nil, errors.Join(ErrRotationFailed, err)
	}

	if err := v.apply(ctx, staged, changes); err != nil {
		sk.Destroy()
		return nil, err
	}
	return sk, nil
}

// reseal re-encrypts every entry from one key to another (nil is cleartext)
// and persists changes.
func (v *Vault) reseal(ctx context.Context, from, to *keys.SessionKey, changes []prefChange) error {
	staged, err := v.stage(ctx, from, to)
	if err != nil {
		return err
	}
	return v.apply(ctx, staged, changes)
}

type staging struct {
	prev []Entry
	next []Entry
}

// stage decrypts each entry with from and encrypts it with to, entirely in
// memory. Nothing is written.
func (v *Vault) stage(ctx context.Context, from, to *keys.SessionKey) (*staging, error) {
	entries, err := v.secrets.GetAll(ctx)
	if err != nil {
		return nil, errors.Join(ErrRotationFailed, err)
	}

	now := v.now()
	next := make([]Entry, len(entries))
	for i, e := range entries {
		plain, err := openWith(from, e.Descriptor.Secret)
		if err != nil {
			return nil, errors.Join(ErrRotationFailed, err)
		}
		sealed, err := sealWith(to, plain)
		aead.Wipe(plain)
		if err != nil {
			return nil, errors.Join(ErrRotationFailed, err)
		}
		e.Descriptor.Secret = sealed
		e.UpdatedAt = now
		next[i] = e
	}

	return &staging{prev: entries, next: next}, nil
}

// apply writes the staged entries, then the preference changes. If a
// preference write fails, the entries and already written preferences are
// put back.
func (v *Vault) apply(ctx context.Context, s *staging, changes []prefChange) error {
	saved := make([]prefChange, len(changes))
	for i, c := range changes {
		val, err := v.prefs.Get(ctx, c.key)
		if err != nil {
			return errors.Join(ErrRotationFailed, err)
		}
		saved[i] = prefChange{c.key, val}
	}

	if len(s.next) > 0 {
		if err := v.secrets.UpdateAll(ctx, s.next); err != nil {
			return errors.Join(ErrRotationFailed, err)
		}
	}

	for i, c := range changes {
		if err := v.writePref(ctx, c); err != nil {
			v.restore(ctx, s.prev, saved[:i])
			return errors.Join(ErrRotationFailed, err)
		}
	}

	v.log.DebugContext(ctx, "secrets re-encrypted", logger.EntryCount(len(s.next)))
	return nil
}

func (v *Vault) restore(ctx context.Context, entries []Entry, prefs []prefChange) {
	if len(entries) > 0 {
		if err := v.secrets.UpdateAll(ctx, entries); err != nil {
			v.log.ErrorContext(ctx, "failed to restore entries after rotation failure", logger.Error(err))
		}
	}
	for _, c := range prefs {
		if err := v.writePref(ctx, c); err != nil {
			v.log.ErrorContext(ctx, "failed to restore preference after rotation failure",
				logger.Error(err), "key", c.key)
		}
	}
}

func (v *Vault) writePref(ctx context.Context, c prefChange) error {
	if len(c.value) == 0 {
		return v.prefs.Delete(ctx, c.key)
	}
	return v.prefs.Set(ctx, c.key, c.value)
}

func (v *Vault) forgetBiometric(ctx context.Context) {
	if err := v.bio.Forget(ctx); err != nil {
		v.log.WarnContext(ctx, "failed to delete biometric key", logger.Error(err))
	}
}
