// Package schema defines the collection schema model and its compiler.
//
// A Schema describes the shape of documents in one collection version.
// Compiling a schema produces a canonical form whose content hash gates
// schema redefinition: a collection version keeps its hash for as long
// as its store holds documents.
package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Property describes a single top-level document field.
type Property struct {
	// Type is the JSON type of the field (string, number, integer,
	// boolean, object, array).
	Type string `json:"type"`

	// Encrypted marks the field for at-rest encryption. Opening a
	// collection with encrypted fields requires a database password.
	Encrypted bool `json:"encrypted,omitempty"`

	// Final marks the field as immutable after first write.
	Final bool `json:"final,omitempty"`
}

// Schema describes one version of a collection's document shape.
type Schema struct {
	Title      string              `json:"title,omitempty"`
	Version    int                 `json:"version"`
	PrimaryKey string              `json:"primaryKey"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
	Indexes    []string            `json:"indexes,omitempty"`
}

// Validation errors.
var (
	ErrNilSchema       = errors.New("schema: schema is nil")
	ErrNegativeVersion = errors.New("schema: version must not be negative")
	ErrNoPrimaryKey    = errors.New("schema: primaryKey is required")
	ErrNoProperties    = errors.New("schema: at least one property is required")
)

// fieldNamePattern restricts property names to plain identifiers.
// Leading underscores are rejected: those names are reserved for
// internal bookkeeping fields.
var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Validate checks the schema for structural problems.
func (s *Schema) Validate() error {
	if s == nil {
		return ErrNilSchema
	}
	if s.Version < 0 {
		return ErrNegativeVersion
	}
	if s.PrimaryKey == "" {
		return ErrNoPrimaryKey
	}
	if len(s.Properties) == 0 {
		return ErrNoProperties
	}

	if _, ok := s.Properties[s.PrimaryKey]; !ok {
		return fmt.Errorf("schema: primaryKey %q is not a declared property", s.PrimaryKey)
	}
	if s.Properties[s.PrimaryKey].Encrypted {
		return fmt.Errorf("schema: primaryKey %q must not be encrypted", s.PrimaryKey)
	}

	for name := range s.Properties {
		if strings.HasPrefix(name, "_") {
			return fmt.Errorf("schema: property %q uses a reserved name", name)
		}
		if !fieldNamePattern.MatchString(name) {
			return fmt.Errorf("schema: property %q is not a valid field name", name)
		}
	}

	for _, req := range s.Required {
		if _, ok := s.Properties[req]; !ok {
			return fmt.Errorf("schema: required field %q is not declared", req)
		}
	}
	for _, idx := range s.Indexes {
		if _, ok := s.Properties[idx]; !ok {
			return fmt.Errorf("schema: indexed field %q is not declared", idx)
		}
	}

	return nil
}

// EncryptedFields returns the names of properties marked Encrypted,
// in undefined order.
func (s *Schema) EncryptedFields() []string {
	var fields []string
	for name, prop := range s.Properties {
		if prop.Encrypted {
			fields = append(fields, name)
		}
	}
	return fields
}
