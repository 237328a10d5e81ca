package otp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"hash"
	"math"
	"strings"
	"time"
)

const (
	DefaultDigits    = 6         // RFC 4226 standard
	DefaultPeriod    = 30        // RFC 6238 standard step in seconds
	DefaultAlgorithm = AlgorithmSHA1

	MinDigits = 4
	MaxDigits = 10
)

// Algorithm is the HMAC hash used for code derivation.
type Algorithm string

const (
	AlgorithmSHA1   Algorithm = "SHA1"
	AlgorithmSHA256 Algorithm = "SHA256"
	AlgorithmSHA512 Algorithm = "SHA512"
)

// ParseAlgorithm accepts common spellings like "sha-256" or "SHA256".
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "")) {
	case "", "SHA1":
		return AlgorithmSHA1, nil
	case "SHA256":
		return AlgorithmSHA256, nil
	case "SHA512":
		return AlgorithmSHA512, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
}

// Hash returns the hash constructor for the algorithm.
func (a Algorithm) Hash() (func() hash.Hash, error) {
	switch a {
	case AlgorithmSHA1:
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func (a Algorithm) String() string { return string(a) }

// HOTP implements RFC 4226. The result is zero-padded to digits characters.
func HOTP(secret []byte, counter uint64, alg Algorithm, digits int) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	if digits < MinDigits || digits > MaxDigits {
		return "", ErrInvalidDigits
	}
	newHash, err := alg.Hash()
	if err != nil {
		return "", err
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(newHash, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation: low nibble of the last byte selects a 4-byte window
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := uint64(value) % uint64(math.Pow10(digits))
	return fmt.Sprintf("%0*d", digits, code), nil
}

// CounterAt returns the TOTP step containing epochSeconds.
func CounterAt(epochSeconds int64, period uint) uint64 {
	if period == 0 || epochSeconds < 0 {
		return 0
	}
	return uint64(epochSeconds) / uint64(period)
}

// TOTP implements RFC 6238 on top of HOTP.
func TOTP(secret []byte, period uint, alg Algorithm, digits int, epochSeconds int64) (string, error) {
	if period == 0 {
		return "", ErrInvalidPeriod
	}
	if epochSeconds < 0 {
		return "", ErrNegativeTime
	}
	return HOTP(secret, CounterAt(epochSeconds, period), alg, digits)
}

// Progress returns the fraction of the current step that is still left,
// (period - t mod period) / period, with sub-second precision. It reaches its
// lowest value right before a step boundary and resets to 1 on it.
func Progress(t time.Time, period uint) float64 {
	if period == 0 {
		return 0
	}
	p := time.Duration(period) * time.Second
	elapsed := time.Duration(t.UnixNano()) % p
	if elapsed < 0 {
		elapsed += p
	}
	return float64(p-elapsed) / float64(p)
}

// Remaining returns how long the code for t stays valid.
func Remaining(t time.Time, period uint) time.Duration {
	if period == 0 {
		return 0
	}
	p := time.Duration(period) * time.Second
	elapsed := time.Duration(t.UnixNano()) % p
	if elapsed < 0 {
		elapsed += p
	}
	return p - elapsed
}
