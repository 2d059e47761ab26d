// Package opsserver exposes the daemon's operational HTTP endpoint.
//
// It serves three routes, none of which touch document data:
//
//   - GET /healthz  liveness, degraded once the database is destroyed
//   - GET /status   build info plus a database snapshot
//   - GET /metrics  Prometheus exposition
//
// The surface is deliberately unauthenticated; deployments are
// expected to bind it to loopback or a management network.
package opsserver
