package ident

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewUID generates a prefixed unique identifier using ULID.
// Format: {prefix}{ulid_lowercase}, e.g. "rxh-01h455vb4pex5vsknk084sn02q".
func NewUID(prefix string) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return prefix + strings.ToLower(id.String()), nil
}

// MustUID is like NewUID but panics on failure.
//
// ULID generation only fails when the entropy source does, which is not
// recoverable; callers on non-error paths use this form.
func MustUID(prefix string) string {
	id, err := NewUID(prefix)
	if err != nil {
		panic("ident: ulid generation failed: " + err.Error())
	}
	return id
}

// ValidUID reports whether id is a well-formed prefixed ULID.
func ValidUID(prefix, id string) bool {
	id = strings.ToLower(id)

	if !strings.HasPrefix(id, prefix) {
		return false
	}

	ulidPart := strings.ToUpper(id[len(prefix):])
	_, err := ulid.Parse(ulidPart)
	return err == nil
}
