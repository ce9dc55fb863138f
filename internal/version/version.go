// SPDX-License-Identifier: MIT

// Package version carries build-time identity set via ldflags.
package version

var (
	// Version is the current application version.
	// Populated by the build system (ldflags); the fallback tracks the
	// latest tagged release.
	Version = "v1.2.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
