// Package version carries build metadata injected with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"             // ex: v0.1.0
	Commit    = "none"            // ex: abcd123
	BuildDate = "unknown"         // ex: 2025-08-11T18:42:00Z
	GoVersion = runtime.Version() // go version
)

// String is the one-line summary printed by `stash version` and at startup.
func String() string {
	return fmt.Sprintf("Stash %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}
