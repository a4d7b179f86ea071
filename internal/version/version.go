/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the current version of playlistd.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/playlistd/internal/version.Version=X.Y.Z
var Version = "0.4.0"

// Commit is the VCS revision, filled from build info when not set by ldflags.
var Commit = ""

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get returns the build description.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
	}
	if info.Commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					info.Commit = s.Value
					if len(info.Commit) > 12 {
						info.Commit = info.Commit[:12]
					}
				}
			}
		}
	}
	return info
}

// String formats the build description for `playlistd version`.
func (i Info) String() string {
	if i.Commit == "" {
		return fmt.Sprintf("playlistd %s (%s)", i.Version, i.GoVersion)
	}
	return fmt.Sprintf("playlistd %s (%s, %s)", i.Version, i.Commit, i.GoVersion)
}
