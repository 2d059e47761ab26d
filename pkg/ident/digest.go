package ident

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Digest computes the SHA-256 hash of a string.
//
// The returned digest is hex encoded for storage.
func Digest(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// DigestBytes computes the SHA-256 hash of bytes.
func DigestBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// VerifyDigest verifies a string against an expected digest.
//
// Uses constant-time comparison to prevent timing attacks.
func VerifyDigest(s, expected string) bool {
	actual := Digest(s)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}
