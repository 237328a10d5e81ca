package vault

import (
	"io"
	"log/slog"
	"time"
)

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.log = l
		}
	}
}

// WithRand sets the entropy source for session keys, salts and nonces.
func WithRand(r io.Reader) Option {
	return func(v *Vault) {
		if r != nil {
			v.rand = r
		}
	}
}

// WithIterations sets the PBKDF2 iteration count. Blobs do not record it,
// so the value must stay the same for the lifetime of the stored data.
func WithIterations(n int) Option {
	return func(v *Vault) {
		if n > 0 {
			v.iterations = n
		}
	}
}

// WithBiometric enables the biometric unlock path.
func WithBiometric(b BiometricUnlocker) Option {
	return func(v *Vault) { v.bio = b }
}

// WithRequireProtection refuses to store secrets in cleartext: without a
// password, EncryptSecret and AddEntry fail with ErrNotProtected.
func WithRequireProtection() Option {
	return func(v *Vault) { v.requireProtection = true }
}

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}
