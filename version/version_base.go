// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package version

import (
	"strings"
)

var (
	// The git commit that was compiled. This will be filled in by the
	// linker.
	GitCommit string

	// The compilation date. This will be filled in by the linker.
	BuildDate string

	fullVersion                   = "0.1.0-dev"
	Version, VersionPrerelease, _ = strings.Cut(strings.TrimSpace(fullVersion), "-")
	VersionMetadata               = ""
)
