package config

import "strings"

// Sanitize returns a copy of the config with sensitive fields masked,
// for logging the effective configuration without exposing secrets.
func Sanitize(cfg *Config) *Config {
	sanitized := *cfg

	if sanitized.Database.Password != "" {
		sanitized.Database.Password = maskSecret(sanitized.Database.Password)
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
