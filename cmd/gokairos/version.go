package main

import "runtime/debug"

var (
	// Version is the version of the binary, set at build time or read from the module.
	Version string
	// BuildDate is the date the binary was built.
	BuildDate string
	// GitCommit is the commit the binary was built from.
	GitCommit string
)

// GetVersion returns the main module version from the build info.
func GetVersion() string {
	if build, ok := debug.ReadBuildInfo(); ok {
		return build.Main.Version
	}
	return "unknown"
}
