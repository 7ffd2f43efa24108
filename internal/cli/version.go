package cli

import (
	"fmt"
	"runtime/debug"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

// RunVersion prints build information.
func RunVersion(args []string) error {
	fmt.Printf("cdcscope %s\n", versionString())
	return nil
}

func versionString() string {
	if Version != "dev" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return Version
	}
	return info.Main.Version
}
