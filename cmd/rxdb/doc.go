// Package main provides the entry point for the rxdb daemon.
//
// The daemon hosts a single rxdb database and provides:
//
//   - an operational HTTP endpoint with health, status and metrics
//   - optional raft leader election and gossip event transport for
//     multi-process deployments
//   - configuration hot reload for the log level
//
// Usage:
//
//	rxdb serve --config /etc/rxdb/rxdb.yaml
//	rxdb version
//	rxdb remove --name shop --dir /var/lib/rxdb/data
//
// Configuration merges built-in defaults, the YAML file and RXDB_*
// environment variables, in that order.
package main
