package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

const (
	KeySize   = 32 // AES-256
	NonceSize = 12 // 96-bit GCM nonce
	TagSize   = 16 // 128-bit GCM tag

	// Overhead is the number of bytes Seal adds to a plaintext.
	Overhead = NonceSize + TagSize
)

// Seal encrypts plaintext with AES-256-GCM using a random nonce from crypto/rand.
// Returns nonce || ciphertext || tag.
func Seal(key, plaintext []byte) ([]byte, error) {
	return SealWithRand(rand.Reader, key, plaintext)
}

// SealWithRand is Seal with an explicit entropy source for the nonce.
func SealWithRand(r io.Reader, key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts a payload produced by Seal.
func Open(key, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}

	if len(sealed) < Overhead {
		return nil, ErrMalformedCiphertext
	}
	nonce, ciphertext := sealed[:NonceSize], sealed[NonceSize:]

	plaintext, err := gcm.Open(make([]byte, 0, len(ciphertext)-TagSize), nonce, ciphertext, nil)
	if err != nil {
		// gcm.Open gives no detail worth keeping; never leak which byte was wrong
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptString seals a UTF-8 string and returns base64-encoded output.
func EncryptString(key []byte, plaintext string) (string, error) {
	sealed, err := Seal(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString decodes base64 input and opens it back to a string.
func DecryptString(key []byte, encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Join(ErrMalformedCiphertext, err)
	}
	plaintext, err := Open(key, sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GenerateKey returns a new random 32-byte key.
func GenerateKey() ([]byte, error) {
	return GenerateKeyWithRand(rand.Reader)
}

// GenerateKeyWithRand returns a new 32-byte key read from r.
func GenerateKeyWithRand(r io.Reader) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyGenerationFailed, err)
	}
	return key, nil
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	clear(b)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
