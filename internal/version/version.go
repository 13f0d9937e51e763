// Package appversion provides build version information injected via ldflags.
//
// All variables are set at build time:
//
//	-ldflags="-X github.com/dantte-lp/goprotos/internal/version.Version=v1.0.0
//	          -X github.com/dantte-lp/goprotos/internal/version.GitCommit=abc1234
//	          -X github.com/dantte-lp/goprotos/internal/version.BuildDate=2026-10-18T12:00:00Z"
//
// Binaries built with `go install` carry no ldflags; for those the commit and
// date fall back to the VCS stamp recorded in the module build info.
package appversion

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const unknown = "unknown"

// Version is the semantic version (e.g., "v0.1.0" or "dev").
var Version = "dev"

// GitCommit is the short git commit hash at build time.
var GitCommit = unknown

// BuildDate is the RFC 3339 build timestamp.
var BuildDate = unknown

// shortCommitLen matches `git rev-parse --short`.
const shortCommitLen = 7

// Info is the resolved build information.
type Info struct {
	Version   string
	GitCommit string
	BuildDate string
	GoVersion string
}

// Get returns the build information, filling commit and date from the VCS
// stamp when ldflags did not set them.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fillFromSettings(info, bi.Settings)
}

func fillFromSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == unknown && s.Value != "" {
				info.GitCommit = s.Value
				if len(info.GitCommit) > shortCommitLen {
					info.GitCommit = info.GitCommit[:shortCommitLen]
				}
			}
		case "vcs.time":
			if info.BuildDate == unknown && s.Value != "" {
				info.BuildDate = s.Value
			}
		}
	}
	return info
}

// Full returns a human-readable multi-line version string.
func Full(binary string) string {
	info := Get()
	return fmt.Sprintf("%s %s\n  commit:  %s\n  built:   %s\n  go:      %s",
		binary, info.Version, info.GitCommit, info.BuildDate, info.GoVersion)
}
