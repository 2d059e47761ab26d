package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hoanglam10499/rxdb/pkg/ident"
)

// Compiled is the canonical form of a schema.
type Compiled struct {
	// Hash is the hex SHA-256 digest of the normalized payload.
	// Equal schemas hash equally regardless of input field order.
	Hash string

	// Version is the schema version, copied through for convenience.
	Version int

	// Normalized is the canonical JSON encoding of the schema.
	Normalized []byte

	// EncryptedPaths lists the fields requiring at-rest encryption,
	// sorted ascending.
	EncryptedPaths []string
}

// Compiler turns a raw schema into its canonical compiled form.
type Compiler interface {
	Compile(s *Schema) (*Compiled, error)
}

// DefaultCompiler validates and canonicalizes schemas.
//
// Canonicalization relies on encoding/json emitting map keys in sorted
// order, which makes the normalized payload independent of how the
// schema was authored.
type DefaultCompiler struct{}

// NewCompiler returns the default schema compiler.
func NewCompiler() *DefaultCompiler {
	return &DefaultCompiler{}
}

// Compile validates s and produces its canonical form.
func (c *DefaultCompiler) Compile(s *Schema) (*Compiled, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	norm := normalize(s)

	payload, err := json.Marshal(norm)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized schema: %w", err)
	}

	encrypted := s.EncryptedFields()
	sort.Strings(encrypted)

	return &Compiled{
		Hash:           ident.DigestBytes(payload),
		Version:        s.Version,
		Normalized:     payload,
		EncryptedPaths: encrypted,
	}, nil
}

// normalize produces a copy of s with deterministic slice ordering and
// without presentation-only fields.
func normalize(s *Schema) *Schema {
	out := &Schema{
		Version:    s.Version,
		PrimaryKey: s.PrimaryKey,
		Properties: s.Properties,
	}

	// Title is presentation-only and excluded from the hash.

	if len(s.Required) > 0 {
		out.Required = append([]string(nil), s.Required...)
		sort.Strings(out.Required)
	}
	if len(s.Indexes) > 0 {
		out.Indexes = append([]string(nil), s.Indexes...)
		sort.Strings(out.Indexes)
	}

	return out
}
