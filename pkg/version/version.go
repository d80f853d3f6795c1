// Package version carries the build identity of the wcmpd binary.
package version

import "runtime"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/wcmpd/pkg/version.Version=v0.3.0 \
//	  -X github.com/newtron-network/wcmpd/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/wcmpd/pkg/version.BuildDate=2026-01-01T00:00:00Z" ./cmd/wcmpd
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	return Version + " (" + GitCommit + ") built " + BuildDate + " " + runtime.Version()
}
