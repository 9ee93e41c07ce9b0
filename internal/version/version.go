// Package version provides build-time version information.
//
// Set at build time via:
//
//	go build -ldflags "-X github.com/mfateev/temporal-agent-loop/internal/version.GitCommit=$(git rev-parse --short HEAD)"
package version

// Version is the release version of the agent loop.
const Version = "0.3.0"

// GitCommit is the short git commit hash, set at build time via ldflags.
var GitCommit = "dev"

// String returns "<version> (<commit>)".
func String() string {
	return Version + " (" + GitCommit + ")"
}
