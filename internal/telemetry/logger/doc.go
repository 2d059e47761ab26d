// Package logger provides structured logging for the rxdb daemon and
// library components.
//
// This package wraps log/slog:
//
//   - logger.go: handler construction and runtime level control
//   - context.go: context-aware logging with request IDs
//   - redact.go: sensitive data redaction
//
// Features:
//
//   - JSON and text output formats
//   - Log level filtering, adjustable at runtime for config hot-reload
//   - Automatic masking of passwords, credentials and password hashes
//   - Context propagation for the ops HTTP surface
package logger
