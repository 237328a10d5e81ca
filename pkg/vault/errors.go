package vault

import "errors"

var (
	ErrLocked                 = errors.New("vault: locked")
	ErrNotProtected           = errors.New("vault: no password configured")
	ErrInvalidTransition      = errors.New("vault: transition not allowed from current protection level")
	ErrCorruptedSecret        = errors.New("vault: stored secret failed authentication")
	ErrRotationFailed         = errors.New("vault: key rotation failed, previous state kept")
	ErrBiometricNotConfigured = errors.New("vault: no biometric unlocker configured")
	ErrBiometricNotEnabled    = errors.New("vault: biometric unlock not enabled")
	ErrBiometricInvalidated   = errors.New("vault: biometric key invalidated, unlock with password")
	ErrEntryNotFound          = errors.New("vault: entry not found")
	ErrInvalidEntry           = errors.New("vault: invalid entry")
)
