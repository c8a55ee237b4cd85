// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.3.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Commit returns GitCommit, falling back to the VCS revision recorded by
// the Go toolchain.
func Commit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				return s.Value[:7]
			}
		}
	}
	return GitCommit
}

// String returns a one-line version banner.
func String() string {
	return fmt.Sprintf("trefm %s (commit %s, built %s, %s)", Version, Commit(), BuildTime, runtime.Version())
}
