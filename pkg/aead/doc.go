// Package aead provides the authenticated symmetric cipher used by every layer
// of the vault key hierarchy.
//
// All payloads are sealed with AES-256 in GCM mode. A fresh 96-bit nonce is
// drawn for every call and prepended to the output, so the sealed form is
// self-contained:
//
//	iv (12 bytes) || ciphertext || tag (16 bytes)
//
// Open fails closed. A tag mismatch, a truncated payload or a key of the
// wrong size produce a classified error and never partial plaintext.
//
// # Usage
//
//	key, _ := aead.GenerateKey()
//	sealed, err := aead.Seal(key, []byte("JBSWY3DPEHPK3PXP"))
//	if err != nil {
//	    // handle error
//	}
//	plain, err := aead.Open(key, sealed)
//	if errors.Is(err, aead.ErrDecryptionFailed) {
//	    // wrong key or tampered payload
//	}
//
// String helpers (EncryptString, DecryptString) wrap the byte-level functions
// with UTF-8 and standard base64 encoding for transports that only carry text.
//
// # Error Handling
//
// Errors wrap one of the package sentinels with errors.Join. Match them with
// errors.Is: ErrInvalidKeyLength, ErrMalformedCiphertext, ErrEncryptionFailed,
// ErrDecryptionFailed.
package aead
