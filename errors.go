package rxdb

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes. Stable identifiers for every rejection this package
// produces; match with errors.Is against the sentinel values below or
// with IsCode.
const (
	// ErrCodeDuplicateInstance: the (name, adapter) pair is already
	// open in this process and duplication was not permitted.
	ErrCodeDuplicateInstance = "RX-INST-4090"

	// ErrCodePasswordMismatch: the stored password hash does not
	// verify against the configured password.
	ErrCodePasswordMismatch = "RX-AUTH-4010"

	// ErrCodeReservedName: the collection name starts with the
	// reserved marker.
	ErrCodeReservedName = "RX-COLL-4001"

	// ErrCodeNameCollision: the collection name equals one of the
	// database's own member identifiers.
	ErrCodeNameCollision = "RX-COLL-4002"

	// ErrCodeAlreadyOpen: the collection name is already registered
	// on this database.
	ErrCodeAlreadyOpen = "RX-COLL-4090"

	// ErrCodeMissingSchema: CreateCollection was called without a
	// schema.
	ErrCodeMissingSchema = "RX-COLL-4000"

	// ErrCodeSchemaMismatch: the schema hash changed while the
	// collection's store still holds documents.
	ErrCodeSchemaMismatch = "RX-COLL-4091"

	// ErrCodeEncryptionRequiresPassword: the schema declares
	// encrypted fields but the database has no password.
	ErrCodeEncryptionRequiresPassword = "RX-COLL-4010"

	// ErrCodeInvalidAdapterConfiguration: the adapter is missing or
	// unusable.
	ErrCodeInvalidAdapterConfiguration = "RX-CONF-4000"

	// ErrCodeDestroyed: the database was destroyed.
	ErrCodeDestroyed = "RX-INST-4100"
)

// Error is a database error with a structured error code.
type Error struct {
	Code    string         // Error code (e.g. "RX-COLL-4001")
	Message string         // Human-readable message
	Fields  map[string]any // Structured context (offending name, hashes, adapter)
	Cause   error          // Underlying error (if any)
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)

	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support: two Errors match when their codes
// match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithField returns a copy of the error carrying one more context
// field.
func (e *Error) WithField(key string, value any) *Error {
	return e.WithFields(map[string]any{key: value})
}

// WithFields returns a copy of the error with the given fields merged
// in.
func (e *Error) WithFields(fields map[string]any) *Error {
	merged := make(map[string]any, len(e.Fields)+len(fields))
	for k, v := range e.Fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Error{Code: e.Code, Message: e.Message, Fields: merged, Cause: e.Cause}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *Error) WithCause(cause error) *Error {
	fields := make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	return &Error{Code: e.Code, Message: e.Message, Fields: fields, Cause: cause}
}

// IsCode checks whether err is an Error with the given code. An empty
// code matches any Error.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		if code == "" {
			return true
		}
		return e.Code == code
	}
	return false
}

// CodeOf extracts the error code, or "" when err carries none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Sentinel errors. Use WithField/WithFields/WithCause to attach
// context; errors.Is still matches the sentinel.
var (
	// ErrDuplicateInstance indicates the (name, adapter) pair is
	// already open.
	ErrDuplicateInstance = NewError(ErrCodeDuplicateInstance, "database already open for this name and adapter")

	// ErrPasswordMismatch indicates the stored hash disagrees with
	// the configured password.
	ErrPasswordMismatch = NewError(ErrCodePasswordMismatch, "password does not match the stored hash")

	// ErrReservedName indicates a collection name starting with the
	// reserved marker.
	ErrReservedName = NewError(ErrCodeReservedName, "collection name is reserved")

	// ErrNameCollision indicates a collection name shadowing a
	// database member.
	ErrNameCollision = NewError(ErrCodeNameCollision, "collection name collides with a database member")

	// ErrAlreadyOpen indicates the collection is already open on this
	// database.
	ErrAlreadyOpen = NewError(ErrCodeAlreadyOpen, "collection already open on this database")

	// ErrMissingSchema indicates CreateCollection without a schema.
	ErrMissingSchema = NewError(ErrCodeMissingSchema, "collection schema is required")

	// ErrSchemaMismatch indicates an incompatible schema redefinition
	// over a non-empty store.
	ErrSchemaMismatch = NewError(ErrCodeSchemaMismatch, "schema changed over a non-empty collection")

	// ErrEncryptionRequiresPassword indicates encrypted fields
	// without a database password.
	ErrEncryptionRequiresPassword = NewError(ErrCodeEncryptionRequiresPassword, "encrypted fields require a database password")

	// ErrInvalidAdapterConfiguration indicates a missing or unusable
	// adapter.
	ErrInvalidAdapterConfiguration = NewError(ErrCodeInvalidAdapterConfiguration, "adapter configuration is invalid")

	// ErrDestroyed indicates an operation on a destroyed database.
	ErrDestroyed = NewError(ErrCodeDestroyed, "database is destroyed")
)
