package aead

import "errors"

var (
	ErrInvalidKeyLength    = errors.New("aead: invalid key length, must be 32 bytes")
	ErrMalformedCiphertext = errors.New("aead: malformed ciphertext")
	ErrEncryptionFailed    = errors.New("aead: encryption failed")
	ErrDecryptionFailed    = errors.New("aead: decryption failed")
	ErrKeyGenerationFailed = errors.New("aead: key generation failed")
)
