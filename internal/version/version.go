package version

import (
	"runtime"

	"github.com/Masterminds/semver/v3"
)

var (
	Version = "0.2.0"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return "show-dialog " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// Semver parses Version for update comparisons.
func Semver() (*semver.Version, error) {
	return semver.NewVersion(Version)
}
