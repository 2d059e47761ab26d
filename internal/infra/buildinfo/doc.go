// Package buildinfo exposes the daemon's build identity.
//
// Version, Commit and BuildTime are injected at build time via
// ldflags. When they were not injected, Commit and GoVersion fall back
// to what debug.ReadBuildInfo reports, so even a plain `go build`
// produces something usable for the version command and the /status
// endpoint.
package buildinfo
