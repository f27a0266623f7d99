// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for the spectrum binary. It allows embedding metadata such as the build
// timestamp, Git commit hash, and semantic version into the binary at compile
// time using linker flags, for example:
//
//	go build -ldflags "-X spectrum/pkg/build.buildVersion=0.3.0 -X spectrum/pkg/build.buildCommit=$(git rev-parse --short HEAD)"
package build

import "fmt"

// Defaults used when a flag was not set at link time.
const (
	DefaultName        = "spectrum"
	DefaultDescription = "Real-time audio spectrum analyser that publishes perceptual bins"
	unknown            = "unknown"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String is the one-line version banner.
func (f ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        DefaultName,
		Description: DefaultDescription,
		Time:        unknown,
		Commit:      unknown,
		Version:     unknown,
	}
)

// Initialize copies build information from the ldflags variables into the
// build flags. Unset variables keep their defaults and are reported in the
// returned error, which development builds may ignore.
func Initialize() error {
	if buildName != "" {
		buildFlags.Name = buildName
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
