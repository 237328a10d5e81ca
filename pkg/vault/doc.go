// Package vault coordinates the envelope-encryption key hierarchy that
// protects stored OTP secrets.
//
// A random session key encrypts every secret. The session key itself is
// only persisted wrapped: once under a password-derived key and, optionally,
// once more by a biometric-gated key. Both wrappings hold the same bytes.
//
// # Protection levels
//
//	Unprotected --SetupPassword--> PasswordProtected <--Enable/DisableBiometric--> BiometricEnabled
//	PasswordProtected, BiometricEnabled --ChangePassword--> PasswordProtected
//	PasswordProtected, BiometricEnabled --RemovePassword--> Unprotected
//
// Each transition stages its re-encryption in memory, writes the entries
// with SecretStore.UpdateAll, then writes the wrapped-key preferences. If any
// step fails the previous entries and preferences are put back and the level
// does not change. The session key and level are swapped together only after
// everything is stored.
//
// Without a password secrets are stored in cleartext. WithRequireProtection
// turns that into ErrNotProtected.
//
// # Usage
//
//	v := vault.New(secrets, prefs, vault.WithBiometric(bio))
//	if err := v.Open(ctx); err != nil {
//	    return err
//	}
//	if v.Locked() {
//	    err := v.UnlockWithBiometric(ctx)
//	    if errors.Is(err, vault.ErrBiometricInvalidated) {
//	        err = v.UnlockWithPassword(ctx, askPassword())
//	    }
//	}
//	code, err := v.Code(ctx, id, clock.Now())
//
// # Error Handling
//
// keys.ErrWrongPassword is only returned for a failed password unwrap. A
// stored secret that fails authentication is ErrCorruptedSecret joined with
// aead.ErrDecryptionFailed. Biometric cancellation and rejection keep their
// keys package sentinels so callers can tell a dismissed prompt from a failed
// attempt.
package vault
