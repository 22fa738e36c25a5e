/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build identification.
package version

import "fmt"

// Version is the release of fieldops.
// This is set at build time via ldflags:
//
//	-X github.com/friendsincode/fieldops/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the git revision the binary was built from, if known.
var Commit = ""

// String formats the version with its commit for logs and the CLI.
func String() string {
	if Commit == "" {
		return Version
	}
	short := Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("%s (%s)", Version, short)
}
