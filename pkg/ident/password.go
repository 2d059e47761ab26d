package ident

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	// Argon2Memory is the memory cost in KB.
	Argon2Memory uint32 = 16384

	// Argon2Time is the time cost (iterations).
	Argon2Time uint32 = 2

	// Argon2Parallelism is the parallelism factor.
	Argon2Parallelism uint8 = 2

	// Argon2KeyLen is the output hash length in bytes.
	Argon2KeyLen uint32 = 32

	// Argon2SaltLen is the salt length in bytes.
	Argon2SaltLen = 16
)

// HashPassword computes an Argon2id hash of the password.
// Returns the hash in the format: $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
//
// The salt is random, so hashing the same password twice yields different
// strings; use VerifyPassword for comparison, never string equality.
func HashPassword(password string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)

	saltB64 := base64.RawStdEncoding.EncodeToString(salt)
	hashB64 := base64.RawStdEncoding.EncodeToString(hash)

	return "$argon2id$v=19$m=16384,t=2,p=2$" + saltB64 + "$" + hashB64, nil
}

// VerifyPassword verifies a password against an Argon2id hash.
// Hash format: $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func VerifyPassword(password, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		return false
	}

	if parts[1] != "argon2id" {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Parallelism, uint32(len(expected)))

	// Constant-time comparison to prevent timing attacks.
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

// DeriveKey derives a fixed-length key from a password and salt using
// Argon2id with the package parameters. Used for encryption keys where a
// deterministic derivation from (password, salt) is required.
func DeriveKey(password string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Parallelism, keyLen)
}
