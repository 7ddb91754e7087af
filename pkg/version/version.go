// Package version carries build metadata reported by `cmlkit version` and
// by the MCP server's initialize response.
package version

import "runtime"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/cmlkit/pkg/version.Version=v0.3.0 \
//	  -X github.com/newtron-network/cmlkit/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/cmlkit/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	return Version + " (" + GitCommit + ") built " + BuildDate + " " + runtime.Version()
}
