// Package version exposes build metadata injected through ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/seqbuild/internal/version.Version=v1.2.0"
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release version.
var Version = "unknown"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version. When the binary was
// not built with ldflags, module build info is consulted for the version.
func String() string {
	v := Version
	if v == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	return fmt.Sprintf("seqbuild %s (commit %s, built %s)", v, GitCommit, BuildTime)
}
