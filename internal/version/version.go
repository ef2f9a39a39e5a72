// Package version carries the build identity stamped in with -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set at build time, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/posture.report/internal/version.Version=1.2.0"
var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// Revision returns GitSHA, falling back to the VCS revision the Go
// toolchain embeds when it was not stamped.
func Revision() string {
	if GitSHA != "unknown" && GitSHA != "" {
		return GitSHA
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return "unknown"
}

// String renders the one-line banner printed by -version.
func String() string {
	return fmt.Sprintf("posture %s (git %s, built %s)", Version, Revision(), BuildTime)
}
