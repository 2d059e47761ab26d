// Package ident provides identifier generation and credential hashing
// utilities.
//
// Identifier Format:
//
//   - Prefix: a short lowercase tag ending in "-" (e.g. "rxh-")
//   - Body: 26 characters of lowercase ULID
//
// ULIDs are lexicographically sortable by creation time, which keeps
// identifier ordering stable in range scans.
//
// Credential Hashing:
//
//   - Random tokens use crypto/rand, Base64 RawURL encoded
//   - Digests use SHA-256 with constant-time comparison
//   - Passwords use Argon2id in PHC string format; the hash is salted,
//     so verification always recomputes against the stored salt
package ident
