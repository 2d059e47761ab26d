// Package adaptive provides adaptive authenticated encryption.
//
// This package implements a cipher abstraction that automatically
// selects the best available encryption algorithm based on hardware
// capabilities. It backs field-level encryption in document stores.
//
// Supported Algorithms:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: fallback for systems without AES-NI
//
// Features:
//
//   - Hardware Detection: automatic selection based on CPU architecture
//   - AEAD: authenticated encryption with associated data
//   - Thread Safety: all cipher operations are thread-safe
//
// Usage:
//
//	cipher, err := adaptive.New(key)
//	sealed, err := cipher.Encrypt(plaintext, aad)
//	plain, err := cipher.Decrypt(sealed, aad)
package adaptive
