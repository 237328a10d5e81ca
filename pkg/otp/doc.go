// Package otp derives HOTP (RFC 4226) and TOTP (RFC 6238) codes.
//
// HOTP computes HMAC(secret, counter as 8-byte big-endian), applies dynamic
// truncation to get a 31-bit integer and reduces it modulo 10^digits. TOTP is
// HOTP with counter = unix seconds / period. SHA1, SHA256 and SHA512 are
// supported, with 4 to 10 digits.
//
// A Descriptor bundles the parameters of one account. Time-based descriptors
// produce codes through Code; counter-based descriptors advance through Next,
// which returns the updated descriptor so the caller can persist the new
// counter before the code is shown.
//
//	secret, _ := otp.ParseSecret("GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ")
//	code, _ := otp.TOTP(secret, 30, otp.AlgorithmSHA1, 6, time.Now().Unix())
//
// Errors are package sentinels, ErrMalformedSecret among them; match with
// errors.Is.
package otp
