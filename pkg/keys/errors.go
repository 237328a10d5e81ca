package keys

import "errors"

var (
	ErrInvalidSessionKey = errors.New("keys: invalid session key")
	ErrEmptyPassword     = errors.New("keys: password is empty")
	ErrWeakIterations    = errors.New("keys: kdf iteration count below minimum")
	ErrInvalidSalt       = errors.New("keys: invalid salt length")
	ErrWrongPassword     = errors.New("keys: wrong password")
	ErrWrapFailed        = errors.New("keys: failed to wrap session key")
	ErrUnwrapFailed      = errors.New("keys: failed to unwrap session key")

	// Biometric path.
	ErrBiometricUnavailable = errors.New("keys: biometric authentication unavailable")
	ErrBiometricRejected    = errors.New("keys: biometric authentication rejected")
	ErrBiometricCancelled   = errors.New("keys: biometric authentication cancelled")
	ErrBiometricTimeout     = errors.New("keys: biometric prompt timed out")
	ErrKeyInvalidated       = errors.New("keys: hardware key invalidated by enrollment change")
	ErrNotAuthorized        = errors.New("keys: operation not authorized")
	ErrOperationUsed        = errors.New("keys: operation already used")
	ErrForeignOperation     = errors.New("keys: operation was not issued by this keystore")
)
