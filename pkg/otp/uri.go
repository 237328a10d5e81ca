package otp

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	pqotp "github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"
)

// ParseURI reads an otpauth:// provisioning URI as produced by QR codes,
// e.g. otpauth://totp/ACME:alice?secret=JBSWY3DPEHPK3PXP&issuer=ACME.
// Missing parameters take the usual defaults.
func ParseURI(uri string) (Descriptor, error) {
	key, err := pqotp.NewKeyFromURL(uri)
	if err != nil {
		return Descriptor{}, errors.Join(ErrInvalidURI, err)
	}
	u, err := url.Parse(key.URL())
	if err != nil {
		return Descriptor{}, errors.Join(ErrInvalidURI, err)
	}
	if u.Scheme != "otpauth" {
		return Descriptor{}, ErrInvalidURI
	}

	secret, err := ParseSecret(key.Secret())
	if err != nil {
		return Descriptor{}, err
	}
	alg, err := ParseAlgorithm(key.Algorithm().String())
	if err != nil {
		return Descriptor{}, err
	}

	d := Descriptor{
		Issuer:      key.Issuer(),
		AccountName: key.AccountName(),
		Secret:      secret,
		Algorithm:   alg,
		Kind:        Kind(strings.ToLower(key.Type())),
	}

	// pquerna only reports 6 or 8 digits
	q := u.Query()
	if v := q.Get("digits"); v != "" {
		if d.Digits, err = strconv.Atoi(v); err != nil {
			return Descriptor{}, errors.Join(ErrInvalidDigits, err)
		}
	}

	switch d.Kind {
	case KindTOTP:
		d.Period = uint(key.Period())
	case KindHOTP:
		if v := q.Get("counter"); v != "" {
			if d.Counter, err = strconv.ParseUint(v, 10, 64); err != nil {
				return Descriptor{}, errors.Join(ErrInvalidURI, err)
			}
		}
	default:
		return Descriptor{}, ErrInvalidKind
	}

	d = d.WithDefaults()
	return d, d.Validate()
}

// URI returns the otpauth:// provisioning URI of d. Both Issuer and
// AccountName must be set.
func (d Descriptor) URI() (string, error) {
	d = d.WithDefaults()
	if err := d.Validate(); err != nil {
		return "", err
	}
	alg, err := d.Algorithm.pquerna()
	if err != nil {
		return "", err
	}

	var key *pqotp.Key
	switch d.Kind {
	case KindTOTP:
		key, err = totp.Generate(totp.GenerateOpts{
			Issuer:      d.Issuer,
			AccountName: d.AccountName,
			Period:      d.Period,
			Secret:      d.Secret,
			Digits:      pqotp.Digits(d.Digits),
			Algorithm:   alg,
		})
	default:
		key, err = hotp.Generate(hotp.GenerateOpts{
			Issuer:      d.Issuer,
			AccountName: d.AccountName,
			Secret:      d.Secret,
			Digits:      pqotp.Digits(d.Digits),
			Algorithm:   alg,
		})
	}
	if err != nil {
		return "", errors.Join(ErrInvalidURI, err)
	}
	if d.Kind == KindTOTP {
		return key.URL(), nil
	}

	u, err := url.Parse(key.URL())
	if err != nil {
		return "", errors.Join(ErrInvalidURI, err)
	}
	q := u.Query()
	q.Set("counter", strconv.FormatUint(d.Counter, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a Algorithm) pquerna() (pqotp.Algorithm, error) {
	switch a {
	case AlgorithmSHA1:
		return pqotp.AlgorithmSHA1, nil
	case AlgorithmSHA256:
		return pqotp.AlgorithmSHA256, nil
	case AlgorithmSHA512:
		return pqotp.AlgorithmSHA512, nil
	default:
		return 0, ErrUnsupportedAlgorithm
	}
}
