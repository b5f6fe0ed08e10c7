// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package osutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckDataFilePermissions(t *testing.T) {
	dir := t.TempDir()

	require.Error(t, CheckDataFilePermissions(""))
	require.NoError(t, CheckDataFilePermissions(filepath.Join(dir, "missing.db")))
	require.Error(t, CheckDataFilePermissions(dir))

	path := filepath.Join(dir, "data.db")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))
	require.NoError(t, CheckDataFilePermissions(path))

	for _, mode := range []os.FileMode{0o620, 0o602, 0o666} {
		require.NoError(t, os.Chmod(path, mode))
		require.Error(t, CheckDataFilePermissions(path), "mode %o", mode)
	}
}

func TestFileSha256Sum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	sum, err := FileSha256Sum(path)
	require.NoError(t, err)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", sum)

	_, err = FileSha256Sum(path + ".missing")
	require.Error(t, err)
}

func TestReplaceFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "new")
	dst := filepath.Join(dir, "old")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o600))

	require.NoError(t, ReplaceFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err))
}
