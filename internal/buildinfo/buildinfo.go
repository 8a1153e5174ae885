// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import (
	"fmt"
	"runtime"
)

// Set via ldflags.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// UserAgent is sent on every outgoing HTTP request.
var UserAgent = fmt.Sprintf("trctl/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)

// Print returns a multi-line version description for the version command.
func Print() string {
	commit := Commit
	if commit == "" {
		commit = "unknown"
	}
	date := Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuild date: %s", Version, commit, date)
}
