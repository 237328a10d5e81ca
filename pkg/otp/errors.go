package otp

import "errors"

var (
	ErrMalformedSecret      = errors.New("otp: malformed shared secret")
	ErrMissingSecret        = errors.New("otp: missing secret")
	ErrUnsupportedAlgorithm = errors.New("otp: unsupported hash algorithm")
	ErrInvalidDigits        = errors.New("otp: invalid digit count")
	ErrInvalidPeriod        = errors.New("otp: invalid period")
	ErrInvalidKind          = errors.New("otp: invalid kind")
	ErrNegativeTime         = errors.New("otp: time before unix epoch")
	ErrFailedToGenerateSeed = errors.New("otp: failed to generate secret")
	ErrKindMismatch         = errors.New("otp: operation does not match descriptor kind")
	ErrInvalidURI           = errors.New("otp: invalid otpauth URI")
	ErrCounterExhausted     = errors.New("otp: counter at maximum")
)
