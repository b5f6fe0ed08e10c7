// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionInfo(t *testing.T) {
	v := &VersionInfo{
		Revision:          "abc123",
		Version:           "1.2.3",
		VersionPrerelease: "beta1",
		VersionMetadata:   "ent",
		BuildDate:         "2025-01-01T00:00:00Z",
	}

	require.Equal(t, "1.2.3-beta1+ent", v.VersionNumber())
	require.Equal(t, "mdbkv v1.2.3-beta1+ent (abc123), built 2025-01-01T00:00:00Z", v.FullVersionNumber(true))
	require.Equal(t, "mdbkv v1.2.3-beta1+ent, built 2025-01-01T00:00:00Z", v.FullVersionNumber(false))

	unknown := &VersionInfo{Version: "unknown", VersionPrerelease: "unknown"}
	require.Equal(t, "(version unknown)", unknown.VersionNumber())
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	require.Equal(t, "0.1.0", v.Version)
	require.Equal(t, "dev", v.VersionPrerelease)
	require.Equal(t, "mdbkv v0.1.0-dev", v.FullVersionNumber(false))
}
