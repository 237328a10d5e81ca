package otp

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind selects counter-based or time-based derivation.
type Kind string

const (
	KindHOTP Kind = "hotp"
	KindTOTP Kind = "totp"
)

// Descriptor describes one OTP account. Algorithm and Digits are fixed at
// creation; Counter only ever grows.
type Descriptor struct {
	Issuer      string    `json:"issuer" bson:"issuer"`
	AccountName string    `json:"account_name" bson:"account_name"`
	Secret      []byte    `json:"secret" bson:"secret"`
	Algorithm   Algorithm `json:"algorithm" bson:"algorithm"`
	Digits      int       `json:"digits" bson:"digits"`
	Kind        Kind      `json:"kind" bson:"kind"`
	Counter     uint64    `json:"counter,omitempty" bson:"counter"`
	Period      uint      `json:"period,omitempty" bson:"period"`
}

// WithDefaults fills zero-valued Algorithm, Digits and Period.
func (d Descriptor) WithDefaults() Descriptor {
	if d.Algorithm == "" {
		d.Algorithm = DefaultAlgorithm
	}
	if d.Digits == 0 {
		d.Digits = DefaultDigits
	}
	if d.Kind == KindTOTP && d.Period == 0 {
		d.Period = DefaultPeriod
	}
	return d
}

// Validate checks the parameters, not the secret encoding.
func (d Descriptor) Validate() error {
	if len(d.Secret) == 0 {
		return ErrMissingSecret
	}
	if _, err := d.Algorithm.Hash(); err != nil {
		return err
	}
	if d.Digits < MinDigits || d.Digits > MaxDigits {
		return ErrInvalidDigits
	}
	switch d.Kind {
	case KindHOTP:
	case KindTOTP:
		if d.Period == 0 {
			return ErrInvalidPeriod
		}
	default:
		return ErrInvalidKind
	}
	return nil
}

// Code returns the TOTP code at t. It fails for HOTP descriptors, whose
// codes are issued through Next.
func (d Descriptor) Code(at time.Time) (string, error) {
	if d.Kind != KindTOTP {
		return "", ErrKindMismatch
	}
	return TOTP(d.Secret, d.Period, d.Algorithm, d.Digits, at.Unix())
}

// Next returns the descriptor with its counter advanced by one and the code
// for the new counter. The caller must persist the returned descriptor before
// showing the code.
func (d Descriptor) Next() (Descriptor, string, error) {
	if d.Kind != KindHOTP {
		return d, "", ErrKindMismatch
	}
	if d.Counter == math.MaxUint64 {
		return d, "", ErrCounterExhausted
	}
	d.Counter++
	code, err := HOTP(d.Secret, d.Counter, d.Algorithm, d.Digits)
	if err != nil {
		return d, "", err
	}
	return d, code, nil
}

// Label is "Issuer:AccountName", or just the account name without issuer.
func (d Descriptor) Label() string {
	if d.Issuer == "" {
		return d.AccountName
	}
	return d.Issuer + ":" + d.AccountName
}

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ParseSecret decodes a base32 shared secret. It is case-insensitive and
// ignores spaces, dashes and trailing padding.
func ParseSecret(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t', '\n', '=':
			return -1
		}
		return r
	}, strings.ToUpper(s))

	if cleaned == "" {
		return nil, ErrMissingSecret
	}

	// re-pad so the decoder rejects partial groups instead of dropping them
	if r := len(cleaned) % 8; r != 0 {
		cleaned += strings.Repeat("=", 8-r)
	}
	secret, err := base32.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, errors.Join(ErrMalformedSecret, err)
	}
	return secret, nil
}

// EncodeSecret returns the unpadded base32 form of a secret.
func EncodeSecret(secret []byte) string {
	return secretEncoding.EncodeToString(secret)
}

// GenerateSecret returns size random bytes. Size 0 uses 20 bytes (160 bits).
func GenerateSecret(size int) ([]byte, error) {
	if size <= 0 {
		size = 20
	}
	secret := make([]byte, size)
	if _, err := rand.Read(secret); err != nil {
		return nil, errors.Join(ErrFailedToGenerateSeed, err)
	}
	return secret, nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s (%s, %s, %d digits)", d.Label(), d.Kind, d.Algorithm, d.Digits)
}
