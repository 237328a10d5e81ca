// Package keys implements the key hierarchy that protects stored OTP secrets.
//
// A SessionKey is the master key that directly encrypts secrets. It only
// exists in memory; what is persisted is a wrapped blob produced by one of
// two Wrapper implementations:
//
//   - PasswordWrapper derives a key-encryption key with PBKDF2-HMAC-SHA256
//     (at least MinIterations rounds, 16-byte random salt per wrap) and stores
//     salt || iv || ciphertext || tag.
//   - BiometricWrapper seals the session key with a Keystore key that can only
//     be used after an Authenticator (the biometric prompt) authorized a
//     single-use Operation. It stores iv || ciphertext || tag.
//
// Both wrappers must return byte-identical session keys for the same blob
// origin, so the vault can unlock through either path.
//
// A wrong password is only detectable through the AEAD tag check and is
// reported as ErrWrongPassword. On the biometric path, a dismissed prompt
// (ErrBiometricCancelled) is distinct from a failed match
// (ErrBiometricRejected), and an enrollment change permanently invalidates the
// keystore key (ErrKeyInvalidated). Callers are expected to fall back to the
// password path in that case.
//
// SoftwareKeystore is a Keystore for hosts without a secure element. It
// derives its key with HKDF-SHA256 from an in-memory device secret bound to
// the enrollment fingerprint.
package keys
