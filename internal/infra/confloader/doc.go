// Package confloader loads daemon configuration from layered sources.
//
// It builds on koanf and merges, lowest priority first:
//
//  1. Default values (a map supplied by the caller)
//  2. Configuration file (YAML)
//  3. Environment variables (RXDB_ prefix)
//
// A later source overrides the keys of an earlier one. The companion
// Watcher reacts to changes of the configuration file so the daemon
// can reload tunables (log level, for now) without a restart.
package confloader
