// Package version carries build identification, set at link time via
// -ldflags "-X github.com/trafficvitals/tvsi/internal/version.Version=...".
package version

import "fmt"

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String renders the build identification as a single log-friendly line.
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, GitSHA, BuildTime)
}
