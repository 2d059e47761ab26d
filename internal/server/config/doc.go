// Package config defines the rxdb daemon configuration.
//
//   - spec.go: Config struct definition (koanf-tagged sections)
//   - default.go: default values
//   - verify.go: validation (adapter choice, paths, cluster wiring)
//   - sanitize.go: masking of secrets before logging
//   - cluster.go: mapping onto raftelect and gossip configs
//
// Configuration is loaded via internal/infra/confloader from a YAML
// file and RXDB_-prefixed environment variables layered over the
// defaults.
package config
